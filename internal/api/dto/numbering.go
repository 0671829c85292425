package dto

import (
	"strings"
	"time"

	"github.com/qmsuite/correlative/internal/config"
	"github.com/qmsuite/correlative/internal/domain/numbering"
	ierr "github.com/qmsuite/correlative/internal/errors"
	"github.com/qmsuite/correlative/internal/types"
	"github.com/qmsuite/correlative/internal/validator"
	"github.com/samber/lo"
)

// Sub-code composition
const (
	SubCodeSeparator    = "."
	SubCodeNumberLength = 4
	MaxParentCodeLength = 150
)

// AdvancedConfigRequest is a partial advanced config; omitted fields keep the stored values
type AdvancedConfigRequest struct {
	NumberLength *int    `json:"number_length,omitempty"`
	PadWithZeros *bool   `json:"pad_with_zeros,omitempty"`
	Separator    *string `json:"separator,omitempty"`
	Suffix       *string `json:"suffix,omitempty"`
}

func (r *AdvancedConfigRequest) toPatch() numbering.AdvancedConfigPatch {
	if r == nil {
		return numbering.AdvancedConfigPatch{}
	}
	return numbering.AdvancedConfigPatch{
		NumberLength: r.NumberLength,
		PadWithZeros: r.PadWithZeros,
		Separator:    r.Separator,
		Suffix:       r.Suffix,
	}
}

// NumberingConfig is the caller supplied configuration of a code request
type NumberingConfig struct {
	EntityType     types.EntityType       `json:"entity_type" validate:"required"`
	Prefix         string                 `json:"prefix" validate:"required"`
	Format         *string                `json:"format,omitempty"`
	ResetAnnual    *bool                  `json:"reset_annual,omitempty"`
	ResetMonthly   *bool                  `json:"reset_monthly,omitempty"`
	AdvancedConfig *AdvancedConfigRequest `json:"advanced_config,omitempty"`
}

// Validate rejects malformed configuration before any storage access
func (c *NumberingConfig) Validate() error {
	if err := validator.ValidateRequest(c); err != nil {
		return ierr.WithError(err).
			WithHint("Numbering configuration requires an entity type and a prefix").
			Mark(ierr.ErrConfigurationInvalid)
	}
	if err := c.EntityType.Validate(); err != nil {
		return err
	}
	if err := numbering.ValidatePrefix(c.Prefix); err != nil {
		return err
	}
	if c.Format != nil {
		if err := numbering.ValidateFormat(*c.Format); err != nil {
			return err
		}
	}
	return c.AdvancedConfig.toPatch().Validate()
}

// Period resolves the scope period for the requested reset flags at the given instant
func (c *NumberingConfig) Period(at time.Time) types.Period {
	return types.NewPeriod(at, lo.FromPtr(c.ResetAnnual), lo.FromPtr(c.ResetMonthly))
}

// ToPatch returns the overrides the caller supplied
func (c *NumberingConfig) ToPatch(userID string) numbering.ConfigPatch {
	return numbering.ConfigPatch{
		Format:         c.Format,
		ResetAnnual:    c.ResetAnnual,
		ResetMonthly:   c.ResetMonthly,
		AdvancedConfig: c.AdvancedConfig.toPatch(),
		ModifiedBy:     userID,
	}
}

// ToDefaults returns the settings a new scope is created with
func (c *NumberingConfig) ToDefaults(cfg config.NumberingConfig, userID string) numbering.ScopeDefaults {
	base := numbering.AdvancedConfig{
		NumberLength: cfg.NumberLength,
		PadWithZeros: cfg.PadWithZeros,
		Separator:    cfg.Separator,
	}
	return numbering.ScopeDefaults{
		Format:         lo.FromPtr(c.Format),
		ResetAnnual:    lo.FromPtr(c.ResetAnnual),
		ResetMonthly:   lo.FromPtr(c.ResetMonthly),
		AdvancedConfig: base.Merge(c.AdvancedConfig.toPatch()),
		CreatedBy:      userID,
	}
}

// NewSubCodeConfig builds the configuration of a child code embedding the parent code.
// The child scope is keyed by entity type and prefix only, so children of different
// parents share one counter.
func NewSubCodeConfig(parentCode string, childEntityType types.EntityType, childPrefix string) NumberingConfig {
	return NumberingConfig{
		EntityType:   childEntityType,
		Prefix:       childPrefix,
		Format:       lo.ToPtr(parentCode + SubCodeSeparator + numbering.PlaceholderPrefix + numbering.PlaceholderNumber),
		ResetAnnual:  lo.ToPtr(false),
		ResetMonthly: lo.ToPtr(false),
		AdvancedConfig: &AdvancedConfigRequest{
			NumberLength: lo.ToPtr(SubCodeNumberLength),
			PadWithZeros: lo.ToPtr(true),
			Separator:    lo.ToPtr(""),
			Suffix:       lo.ToPtr(""),
		},
	}
}

// GenerateCodeRequest is the body of POST /v1/numbering/codes
type GenerateCodeRequest struct {
	NumberingConfig
}

// GenerateSubCodeRequest is the body of POST /v1/numbering/subcodes
type GenerateSubCodeRequest struct {
	ParentCode      string           `json:"parent_code" validate:"required"`
	ChildEntityType types.EntityType `json:"child_entity_type" validate:"required"`
	ChildPrefix     string           `json:"child_prefix" validate:"required"`
}

func (r *GenerateSubCodeRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return ierr.WithError(err).
			WithHint("Sub-code generation requires a parent code, a child entity type and a child prefix").
			Mark(ierr.ErrConfigurationInvalid)
	}
	return ValidateParentCode(r.ParentCode)
}

// ValidateParentCode rejects parent codes that could not be embedded literally in a template
func ValidateParentCode(parentCode string) error {
	p := strings.TrimSpace(parentCode)
	if p == "" || len(p) > MaxParentCodeLength || strings.ContainsAny(p, "{}") {
		return ierr.NewErrorf("invalid parent code %q", parentCode).
			WithHintf("Parent code must be a non empty issued code of at most %d characters", MaxParentCodeLength).
			WithReportableDetails(map[string]any{"parent_code": parentCode}).
			Mark(ierr.ErrConfigurationInvalid)
	}
	return nil
}

// ScopeResponse represents a numbering scope in API responses
type ScopeResponse struct {
	ID             string                   `json:"id"`
	TenantID       string                   `json:"tenant_id"`
	EntityType     types.EntityType         `json:"entity_type"`
	Prefix         string                   `json:"prefix"`
	Period         types.Period             `json:"period"`
	LastNumber     int64                    `json:"last_number"`
	Format         string                   `json:"format"`
	ResetAnnual    bool                     `json:"reset_annual"`
	ResetMonthly   bool                     `json:"reset_monthly"`
	AdvancedConfig numbering.AdvancedConfig `json:"advanced_config"`
	Metadata       numbering.Metadata       `json:"metadata"`
	CreatedAt      time.Time                `json:"created_at"`
	UpdatedAt      time.Time                `json:"updated_at"`
}

func NewScopeResponse(s *numbering.Scope) *ScopeResponse {
	if s == nil {
		return nil
	}
	return &ScopeResponse{
		ID:             s.ID,
		TenantID:       s.TenantID,
		EntityType:     s.EntityType,
		Prefix:         s.Prefix,
		Period:         s.Period(),
		LastNumber:     s.LastNumber,
		Format:         s.Format,
		ResetAnnual:    s.ResetAnnual,
		ResetMonthly:   s.ResetMonthly,
		AdvancedConfig: s.AdvancedConfig,
		Metadata:       s.Metadata(),
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
}

// CodeResult is the outcome of a successful issuance
type CodeResult struct {
	Code            string         `json:"code"`
	Number          int64          `json:"number"`
	Scope           *ScopeResponse `json:"scope"`
	NextCodePreview string         `json:"next_code_preview"`
}

// SubCodeResponse is the response of POST /v1/numbering/subcodes
type SubCodeResponse struct {
	Code string `json:"code"`
}

// PreviewResponse is a read-only projection of the next code of a scope
type PreviewResponse struct {
	Code   string `json:"code"`
	Number int64  `json:"number"`
}

// ListScopesResponse is the response of GET /v1/numbering/scopes
type ListScopesResponse struct {
	Items []*ScopeResponse `json:"items"`
	Total int              `json:"total"`
}

func NewListScopesResponse(scopes []*numbering.Scope) *ListScopesResponse {
	return &ListScopesResponse{
		Items: lo.Map(scopes, func(s *numbering.Scope, _ int) *ScopeResponse {
			return NewScopeResponse(s)
		}),
		Total: len(scopes),
	}
}

// ListLogsResponse is the response of GET /v1/numbering/logs
type ListLogsResponse struct {
	Items []*numbering.LogEntry `json:"items"`
	Total int                   `json:"total"`
}

// ResetResult reports a period reset run for one tenant
type ResetResult struct {
	TenantID       string            `json:"tenant_id"`
	Policy         types.ResetPolicy `json:"policy"`
	Period         string            `json:"period"`
	ScopesAffected int               `json:"scopes_affected"`
	CountersReset  int               `json:"counters_reset"`
	Failed         int               `json:"failed"`
	Error          string            `json:"error,omitempty"`
}

// ResetAllTenantsResponse aggregates a period reset run across tenants
type ResetAllTenantsResponse struct {
	Policy         types.ResetPolicy `json:"policy"`
	Tenants        []*ResetResult    `json:"tenants"`
	ScopesAffected int               `json:"scopes_affected"`
	CountersReset  int               `json:"counters_reset"`
	FailedTenants  int               `json:"failed_tenants"`
}
