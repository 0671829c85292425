package types

// Status tracks the lifecycle of a persisted row. Only active rows take part in numbering.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusDeleted  Status = "deleted"
)
