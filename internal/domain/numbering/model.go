package numbering

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	ierr "github.com/qmsuite/correlative/internal/errors"
	"github.com/qmsuite/correlative/internal/types"
)

// Scope is the unit of uniqueness for issued codes: one counter per
// tenant, entity type, prefix and optional period.
type Scope struct {
	ID             string           `db:"id" json:"id"`
	EntityType     types.EntityType `db:"entity_type" json:"entity_type"`
	Prefix         string           `db:"prefix" json:"prefix"`
	Year           int              `db:"year" json:"year,omitempty"`
	Month          int              `db:"month" json:"month,omitempty"`
	LastNumber     int64            `db:"last_number" json:"last_number"`
	Format         string           `db:"format" json:"format"`
	ResetAnnual    bool             `db:"reset_annual" json:"reset_annual"`
	ResetMonthly   bool             `db:"reset_monthly" json:"reset_monthly"`
	AdvancedConfig AdvancedConfig   `db:"advanced_config" json:"advanced_config"`
	ErrorLog       ErrorLog         `db:"error_log" json:"-"`

	types.BaseModel
}

// Period returns the period qualifying the scope
func (s *Scope) Period() types.Period {
	return types.Period{Year: s.Year, Month: s.Month}
}

// Key returns the identity tuple of the scope
func (s *Scope) Key() ScopeKey {
	return ScopeKey{
		TenantID:   s.TenantID,
		EntityType: s.EntityType,
		Prefix:     s.Prefix,
		Period:     s.Period(),
	}
}

// Metadata groups the audit fields and the error log of a scope
func (s *Scope) Metadata() Metadata {
	return Metadata{
		CreatedBy:  s.CreatedBy,
		ModifiedBy: s.UpdatedBy,
		ErrorLog:   s.ErrorLog,
	}
}

// Copy returns a deep copy of the scope
func (s *Scope) Copy() *Scope {
	if s == nil {
		return nil
	}
	c := *s
	if s.ErrorLog != nil {
		c.ErrorLog = append(ErrorLog(nil), s.ErrorLog...)
	}
	return &c
}

type Metadata struct {
	CreatedBy  string   `json:"created_by,omitempty"`
	ModifiedBy string   `json:"modified_by,omitempty"`
	ErrorLog   ErrorLog `json:"error_log"`
}

// ScopeKey identifies at most one scope
type ScopeKey struct {
	TenantID   string
	EntityType types.EntityType
	Prefix     string
	Period     types.Period
}

// NewScopeKey normalizes the prefix so that keys compare case-insensitively
func NewScopeKey(tenantID string, entityType types.EntityType, prefix string, period types.Period) ScopeKey {
	return ScopeKey{
		TenantID:   tenantID,
		EntityType: entityType,
		Prefix:     NormalizePrefix(prefix),
		Period:     period,
	}
}

func (k ScopeKey) String() string {
	return fmt.Sprintf("%s:%s:%s:%04d:%02d", k.TenantID, k.EntityType, k.Prefix, k.Period.Year, k.Period.Month)
}

// NormalizePrefix trims and uppercases a prefix
func NormalizePrefix(prefix string) string {
	return strings.ToUpper(strings.TrimSpace(prefix))
}

// AdvancedConfig controls how the number and the suffix are rendered
type AdvancedConfig struct {
	NumberLength int    `json:"number_length"`
	PadWithZeros bool   `json:"pad_with_zeros"`
	Separator    string `json:"separator"`
	Suffix       string `json:"suffix,omitempty"`
}

// Value implements driver.Valuer for the jsonb column
func (a AdvancedConfig) Value() (driver.Value, error) {
	return json.Marshal(a)
}

// Scan implements sql.Scanner for the jsonb column
func (a *AdvancedConfig) Scan(src interface{}) error {
	return scanJSON(src, a)
}

// Merge applies the non-nil fields of the patch on top of the config
func (a AdvancedConfig) Merge(p AdvancedConfigPatch) AdvancedConfig {
	if p.NumberLength != nil {
		a.NumberLength = *p.NumberLength
	}
	if p.PadWithZeros != nil {
		a.PadWithZeros = *p.PadWithZeros
	}
	if p.Separator != nil {
		a.Separator = *p.Separator
	}
	if p.Suffix != nil {
		a.Suffix = *p.Suffix
	}
	return a
}

// AdvancedConfigPatch is a partial advanced config; nil fields keep the stored value
type AdvancedConfigPatch struct {
	NumberLength *int    `json:"number_length,omitempty"`
	PadWithZeros *bool   `json:"pad_with_zeros,omitempty"`
	Separator    *string `json:"separator,omitempty"`
	Suffix       *string `json:"suffix,omitempty"`
}

func (p AdvancedConfigPatch) IsEmpty() bool {
	return p.NumberLength == nil && p.PadWithZeros == nil && p.Separator == nil && p.Suffix == nil
}

// ErrorLogEntry records a failed issuance attempt on a scope
type ErrorLogEntry struct {
	Message    string    `json:"message"`
	OccurredAt time.Time `json:"occurred_at"`
}

type ErrorLog []ErrorLogEntry

// Value implements driver.Valuer for the jsonb column
func (l ErrorLog) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner for the jsonb column
func (l *ErrorLog) Scan(src interface{}) error {
	return scanJSON(src, l)
}

func scanJSON(src interface{}, dest interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return ierr.NewErrorf("unsupported jsonb source type %T", src).
			Mark(ierr.ErrDatabase)
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, dest)
}

// ScopeDefaults are the settings a scope is created with when it does not exist yet
type ScopeDefaults struct {
	Format         string
	ResetAnnual    bool
	ResetMonthly   bool
	AdvancedConfig AdvancedConfig
	CreatedBy      string
}

// ConfigPatch carries caller overrides merged into a persisted scope.
// Advanced config is merged field by field, never replaced.
type ConfigPatch struct {
	Format         *string
	ResetAnnual    *bool
	ResetMonthly   *bool
	AdvancedConfig AdvancedConfigPatch
	ModifiedBy     string
}

func (p ConfigPatch) IsEmpty() bool {
	return p.Format == nil && p.ResetAnnual == nil && p.ResetMonthly == nil && p.AdvancedConfig.IsEmpty()
}

// ApplyTo returns a copy of the scope with the patch merged in
func (p ConfigPatch) ApplyTo(s *Scope) *Scope {
	c := s.Copy()
	if p.Format != nil {
		c.Format = *p.Format
	}
	if p.ResetAnnual != nil {
		c.ResetAnnual = *p.ResetAnnual
	}
	if p.ResetMonthly != nil {
		c.ResetMonthly = *p.ResetMonthly
	}
	c.AdvancedConfig = c.AdvancedConfig.Merge(p.AdvancedConfig)
	if p.ModifiedBy != "" {
		c.UpdatedBy = p.ModifiedBy
	}
	return c
}

// IncrementResult is the outcome of one atomic increment
type IncrementResult struct {
	Scope              *Scope
	PreviousLastNumber int64
	NewLastNumber      int64
}

// ScopeFilter narrows scope listings
type ScopeFilter struct {
	TenantID   string
	EntityType types.EntityType
	Prefix     string
}

// ResetFilter selects the scope of one configuration to zero for a period.
// Defaults are used when the scope for that period does not exist yet.
type ResetFilter struct {
	TenantID   string
	EntityType types.EntityType
	Prefix     string
	Period     types.Period
	Defaults   ScopeDefaults
}

func (f ResetFilter) Key() ScopeKey {
	return NewScopeKey(f.TenantID, f.EntityType, f.Prefix, f.Period)
}

// LogAction is the kind of operation recorded in the numbering log
type LogAction string

const (
	LogActionCreate LogAction = "create"
	LogActionReset  LogAction = "reset"
)

// LogEntry is an append-only audit record of an issuance attempt
type LogEntry struct {
	ID           string           `db:"id" json:"id"`
	TenantID     string           `db:"tenant_id" json:"tenant_id"`
	ScopeID      string           `db:"scope_id" json:"scope_id,omitempty"`
	EntityType   types.EntityType `db:"entity_type" json:"entity_type"`
	Prefix       string           `db:"prefix" json:"prefix"`
	Action       LogAction        `db:"action" json:"action"`
	Code         string           `db:"code" json:"code,omitempty"`
	Number       int64            `db:"number" json:"number,omitempty"`
	Success      bool             `db:"success" json:"success"`
	ErrorMessage string           `db:"error_message" json:"error_message,omitempty"`
	CreatedBy    string           `db:"created_by" json:"created_by,omitempty"`
	CreatedAt    time.Time        `db:"created_at" json:"created_at"`
}

// LogFilter narrows numbering log listings
type LogFilter struct {
	TenantID string
	ScopeID  string
	Limit    uint64
}
