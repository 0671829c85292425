package types

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	ierr "github.com/qmsuite/correlative/internal/errors"
)

// EntityType is the kind of business entity a numbering scope issues codes for
type EntityType string

const (
	EntityTypeMeeting EntityType = "meeting"
	EntityTypeAudit   EntityType = "audit"
	EntityTypeFinding EntityType = "finding"
	EntityTypeAction  EntityType = "action"

	// EntityTypeRecordPrefix qualifies generic record types, ex record:nonconformity
	EntityTypeRecordPrefix = "record:"
)

var recordTypePattern = regexp.MustCompile(`^record:[a-z0-9][a-z0-9_\-]{0,40}$`)

func (e EntityType) String() string {
	return string(e)
}

// IsRecord reports whether the entity type is a generic record type
func (e EntityType) IsRecord() bool {
	return strings.HasPrefix(string(e), EntityTypeRecordPrefix)
}

func (e EntityType) Validate() error {
	switch e {
	case EntityTypeMeeting, EntityTypeAudit, EntityTypeFinding, EntityTypeAction:
		return nil
	}
	if recordTypePattern.MatchString(string(e)) {
		return nil
	}
	return ierr.NewErrorf("invalid entity type %q", e).
		WithHintf("Entity type must be one of meeting, audit, finding, action or record:<type>").
		WithReportableDetails(map[string]any{
			"entity_type": e,
		}).
		Mark(ierr.ErrConfigurationInvalid)
}

// ResetPolicy selects which reset cadence a period reset run applies to
type ResetPolicy string

const (
	ResetPolicyAnnual  ResetPolicy = "annual"
	ResetPolicyMonthly ResetPolicy = "monthly"
)

func (p ResetPolicy) Validate() error {
	switch p {
	case ResetPolicyAnnual, ResetPolicyMonthly:
		return nil
	}
	return ierr.NewErrorf("invalid reset policy %q", p).
		WithHint("Reset policy must be annual or monthly").
		Mark(ierr.ErrValidation)
}

// Period qualifies a numbering scope that resets on a cadence.
// A zero Year means the scope never resets; a zero Month means it resets yearly.
type Period struct {
	Year  int `json:"year,omitempty"`
	Month int `json:"month,omitempty"`
}

// NewPeriod resolves the period for the given reset flags at the given instant.
// Monthly resets always carry the year as well.
func NewPeriod(at time.Time, resetAnnual, resetMonthly bool) Period {
	switch {
	case resetMonthly:
		return Period{Year: at.Year(), Month: int(at.Month())}
	case resetAnnual:
		return Period{Year: at.Year()}
	default:
		return Period{}
	}
}

// PeriodForPolicy returns the current period of a reset policy
func PeriodForPolicy(at time.Time, policy ResetPolicy) Period {
	if policy == ResetPolicyMonthly {
		return NewPeriod(at, false, true)
	}
	return NewPeriod(at, true, false)
}

func (p Period) IsZero() bool {
	return p.Year == 0 && p.Month == 0
}

func (p Period) String() string {
	switch {
	case p.IsZero():
		return ""
	case p.Month == 0:
		return fmt.Sprintf("%04d", p.Year)
	default:
		return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
	}
}
