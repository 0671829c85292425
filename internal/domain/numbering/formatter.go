package numbering

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	ierr "github.com/qmsuite/correlative/internal/errors"
)

// Template placeholders
const (
	PlaceholderPrefix    = "{prefijo}"
	PlaceholderYear      = "{año}"
	PlaceholderShortYear = "{año_corto}"
	PlaceholderMonth     = "{mes}"
	PlaceholderDay       = "{dia}"
	PlaceholderNumber    = "{numero}"
)

const (
	MaxNumberLength = 20
	MaxPrefixLength = 20
	MaxSuffixLength = 20
	MaxFormatLength = 200
)

var alphanumeric = regexp.MustCompile(`^[A-Za-z0-9]+$`)

// RenderInput is everything a code depends on
type RenderInput struct {
	Format       string
	Prefix       string
	Date         time.Time
	Number       int64
	ResetAnnual  bool
	ResetMonthly bool
	Advanced     AdvancedConfig
}

// RenderInputFor builds the render input of a scope for a number at a date
func RenderInputFor(s *Scope, at time.Time, number int64) RenderInput {
	return RenderInput{
		Format:       s.Format,
		Prefix:       s.Prefix,
		Date:         at,
		Number:       number,
		ResetAnnual:  s.ResetAnnual,
		ResetMonthly: s.ResetMonthly,
		Advanced:     s.AdvancedConfig,
	}
}

// Render produces the code for the input. It performs no I/O and is deterministic.
func Render(in RenderInput) string {
	number := FormatNumber(in.Number, in.Advanced)

	var code string
	if in.Format == "" {
		code = defaultComposition(in, number)
	} else {
		// strings.Replacer scans left to right and never rescans substituted text
		code = strings.NewReplacer(
			PlaceholderPrefix, in.Prefix,
			PlaceholderShortYear, fmt.Sprintf("%02d", in.Date.Year()%100),
			PlaceholderYear, fmt.Sprintf("%04d", in.Date.Year()),
			PlaceholderMonth, fmt.Sprintf("%02d", int(in.Date.Month())),
			PlaceholderDay, fmt.Sprintf("%02d", in.Date.Day()),
			PlaceholderNumber, number,
		).Replace(in.Format)
	}

	if in.Advanced.Suffix != "" {
		code += in.Advanced.Separator + in.Advanced.Suffix
	}

	return strings.ToUpper(code)
}

func defaultComposition(in RenderInput, number string) string {
	var b strings.Builder
	b.WriteString(in.Prefix)
	if in.ResetAnnual {
		fmt.Fprintf(&b, "-%04d", in.Date.Year())
	}
	if in.ResetMonthly {
		fmt.Fprintf(&b, "-%02d", int(in.Date.Month()))
	}
	b.WriteString("-")
	b.WriteString(number)
	return b.String()
}

// FormatNumber renders the number in decimal, left padded with zeros when configured.
// Numbers longer than the configured length are never truncated.
func FormatNumber(n int64, cfg AdvancedConfig) string {
	s := strconv.FormatInt(n, 10)
	if cfg.PadWithZeros && len(s) < cfg.NumberLength {
		return strings.Repeat("0", cfg.NumberLength-len(s)) + s
	}
	return s
}

// ValidateFormat checks a caller supplied template. An empty template selects the default composition.
func ValidateFormat(format string) error {
	if format == "" {
		return nil
	}
	if len(format) > MaxFormatLength {
		return ierr.NewErrorf("format exceeds %d characters", MaxFormatLength).
			WithHintf("Format must be at most %d characters long", MaxFormatLength).
			WithReportableDetails(map[string]any{"format": format}).
			Mark(ierr.ErrConfigurationInvalid)
	}
	if !strings.Contains(format, PlaceholderNumber) {
		return ierr.NewErrorf("format %q has no %s placeholder", format, PlaceholderNumber).
			WithHintf("Format must contain the %s placeholder", PlaceholderNumber).
			WithReportableDetails(map[string]any{"format": format}).
			Mark(ierr.ErrConfigurationInvalid)
	}
	return nil
}

// ValidatePrefix checks that a prefix is a short alphanumeric code
func ValidatePrefix(prefix string) error {
	p := strings.TrimSpace(prefix)
	if p == "" || len(p) > MaxPrefixLength || !alphanumeric.MatchString(p) {
		return ierr.NewErrorf("invalid prefix %q", prefix).
			WithHintf("Prefix must be 1 to %d letters or digits", MaxPrefixLength).
			WithReportableDetails(map[string]any{"prefix": prefix}).
			Mark(ierr.ErrConfigurationInvalid)
	}
	return nil
}

// Validate checks a fully merged advanced config
func (a AdvancedConfig) Validate() error {
	return AdvancedConfigPatch{
		NumberLength: &a.NumberLength,
		Separator:    &a.Separator,
		Suffix:       &a.Suffix,
	}.Validate()
}

// Validate checks the fields present in the patch
func (p AdvancedConfigPatch) Validate() error {
	if p.NumberLength != nil && (*p.NumberLength < 0 || *p.NumberLength > MaxNumberLength) {
		return ierr.NewErrorf("invalid number length %d", *p.NumberLength).
			WithHintf("Number length must be between 0 and %d", MaxNumberLength).
			WithReportableDetails(map[string]any{"number_length": *p.NumberLength}).
			Mark(ierr.ErrConfigurationInvalid)
	}
	if p.Separator != nil && len(*p.Separator) > 5 {
		return ierr.NewErrorf("separator %q too long", *p.Separator).
			WithHint("Separator must be at most 5 characters long").
			WithReportableDetails(map[string]any{"separator": *p.Separator}).
			Mark(ierr.ErrConfigurationInvalid)
	}
	if p.Suffix != nil && *p.Suffix != "" && (len(*p.Suffix) > MaxSuffixLength || !alphanumeric.MatchString(*p.Suffix)) {
		return ierr.NewErrorf("invalid suffix %q", *p.Suffix).
			WithHintf("Suffix must be at most %d letters or digits", MaxSuffixLength).
			WithReportableDetails(map[string]any{"suffix": *p.Suffix}).
			Mark(ierr.ErrConfigurationInvalid)
	}
	return nil
}
