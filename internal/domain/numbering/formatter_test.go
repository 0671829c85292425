package numbering

import (
	"testing"
	"time"

	ierr "github.com/qmsuite/correlative/internal/errors"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var march2024 = time.Date(2024, time.March, 5, 10, 30, 0, 0, time.UTC)

func padded(length int) AdvancedConfig {
	return AdvancedConfig{NumberLength: length, PadWithZeros: true, Separator: "-"}
}

func TestRender(t *testing.T) {
	tests := []struct {
		name string
		in   RenderInput
		want string
	}{
		{
			name: "template with year",
			in:   RenderInput{Format: "AUD-{año}-{numero}", Prefix: "AUD", Date: march2024, Number: 1, ResetAnnual: true, Advanced: padded(4)},
			want: "AUD-2024-0001",
		},
		{
			name: "all placeholders",
			in:   RenderInput{Format: "{prefijo}/{año_corto}{mes}{dia}/{numero}", Prefix: "rev", Date: march2024, Number: 42, Advanced: padded(3)},
			want: "REV/240305/042",
		},
		{
			name: "year placeholder substituted without reset flag",
			in:   RenderInput{Format: "{prefijo}{año}{numero}", Prefix: "M", Date: march2024, Number: 9, Advanced: padded(2)},
			want: "M202409",
		},
		{
			name: "unknown tokens left in place",
			in:   RenderInput{Format: "{prefijo}-{zona}-{numero}", Prefix: "F", Date: march2024, Number: 3, Advanced: padded(2)},
			want: "F-{ZONA}-03",
		},
		{
			name: "padding never truncates",
			in:   RenderInput{Format: "X-{numero}", Prefix: "X", Date: march2024, Number: 12345, Advanced: padded(4)},
			want: "X-12345",
		},
		{
			name: "no padding",
			in:   RenderInput{Format: "X-{numero}", Prefix: "X", Date: march2024, Number: 7, Advanced: AdvancedConfig{NumberLength: 4}},
			want: "X-7",
		},
		{
			name: "suffix appended with separator",
			in:   RenderInput{Format: "{prefijo}-{numero}", Prefix: "ACC", Date: march2024, Number: 5, Advanced: AdvancedConfig{NumberLength: 3, PadWithZeros: true, Separator: "/", Suffix: "qa"}},
			want: "ACC-005/QA",
		},
		{
			name: "default composition without resets",
			in:   RenderInput{Prefix: "act", Date: march2024, Number: 7, Advanced: padded(4)},
			want: "ACT-0007",
		},
		{
			name: "default composition annual",
			in:   RenderInput{Prefix: "REV", Date: march2024, Number: 7, ResetAnnual: true, Advanced: padded(4)},
			want: "REV-2024-0007",
		},
		{
			name: "default composition annual and monthly",
			in:   RenderInput{Prefix: "REV", Date: march2024, Number: 7, ResetAnnual: true, ResetMonthly: true, Advanced: padded(4)},
			want: "REV-2024-03-0007",
		},
		{
			name: "default composition monthly only",
			in:   RenderInput{Prefix: "REV", Date: march2024, Number: 7, ResetMonthly: true, Advanced: padded(4)},
			want: "REV-03-0007",
		},
		{
			name: "default composition with suffix",
			in:   RenderInput{Prefix: "REV", Date: march2024, Number: 7, Advanced: AdvancedConfig{NumberLength: 2, PadWithZeros: true, Separator: "-", Suffix: "b"}},
			want: "REV-07-B",
		},
		{
			name: "sub code template",
			in:   RenderInput{Format: "REV-2024-0007.{prefijo}{numero}", Prefix: "H", Date: march2024, Number: 2, Advanced: AdvancedConfig{NumberLength: 4, PadWithZeros: true}},
			want: "REV-2024-0007.H0002",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Render(tt.in))
		})
	}
}

func TestRender_Deterministic(t *testing.T) {
	in := RenderInput{Format: "{prefijo}-{año}-{mes}-{numero}", Prefix: "aud", Date: march2024, Number: 77, Advanced: padded(5)}
	assert.Equal(t, Render(in), Render(in))
}

func TestFormatNumber_PaddingLaw(t *testing.T) {
	cfg := AdvancedConfig{NumberLength: 4, PadWithZeros: true}
	assert.Equal(t, "0007", FormatNumber(7, cfg))
	assert.Equal(t, "12345", FormatNumber(12345, cfg))
	assert.Equal(t, "0000", FormatNumber(0, cfg))
	assert.Equal(t, "7", FormatNumber(7, AdvancedConfig{NumberLength: 0, PadWithZeros: true}))
}

func TestValidateFormat(t *testing.T) {
	require.NoError(t, ValidateFormat(""))
	require.NoError(t, ValidateFormat("{prefijo}-{numero}"))

	err := ValidateFormat("{prefijo}-{año}")
	require.Error(t, err)
	assert.True(t, ierr.IsConfigurationInvalid(err))
}

func TestValidatePrefix(t *testing.T) {
	require.NoError(t, ValidatePrefix("REV"))
	require.NoError(t, ValidatePrefix(" aud2 "))

	for _, p := range []string{"", "RE-V", "REV 1", "ABCDEFGHIJKLMNOPQRSTU"} {
		err := ValidatePrefix(p)
		require.Error(t, err, p)
		assert.True(t, ierr.IsConfigurationInvalid(err), p)
	}
}

func TestAdvancedConfigPatch_Validate(t *testing.T) {
	tests := []struct {
		name    string
		patch   AdvancedConfigPatch
		wantErr bool
	}{
		{name: "empty", patch: AdvancedConfigPatch{}},
		{name: "valid", patch: AdvancedConfigPatch{NumberLength: lo.ToPtr(6), Separator: lo.ToPtr("/"), Suffix: lo.ToPtr("QA")}},
		{name: "negative length", patch: AdvancedConfigPatch{NumberLength: lo.ToPtr(-1)}, wantErr: true},
		{name: "length too large", patch: AdvancedConfigPatch{NumberLength: lo.ToPtr(MaxNumberLength + 1)}, wantErr: true},
		{name: "long separator", patch: AdvancedConfigPatch{Separator: lo.ToPtr("------")}, wantErr: true},
		{name: "non alphanumeric suffix", patch: AdvancedConfigPatch{Suffix: lo.ToPtr("Q A")}, wantErr: true},
		{name: "empty suffix clears", patch: AdvancedConfigPatch{Suffix: lo.ToPtr("")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.patch.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, ierr.IsConfigurationInvalid(err))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestAdvancedConfig_MergeIsShallow(t *testing.T) {
	base := AdvancedConfig{NumberLength: 4, PadWithZeros: true, Separator: "-", Suffix: "QA"}
	merged := base.Merge(AdvancedConfigPatch{NumberLength: lo.ToPtr(6)})

	assert.Equal(t, AdvancedConfig{NumberLength: 6, PadWithZeros: true, Separator: "-", Suffix: "QA"}, merged)
	assert.Equal(t, 4, base.NumberLength)
}

func TestConfigPatch_ApplyTo(t *testing.T) {
	scope := &Scope{Prefix: "REV", Format: "{prefijo}-{numero}", AdvancedConfig: padded(4), LastNumber: 9}
	patch := ConfigPatch{
		Format:         lo.ToPtr("{prefijo}/{numero}"),
		ResetAnnual:    lo.ToPtr(true),
		AdvancedConfig: AdvancedConfigPatch{Suffix: lo.ToPtr("X")},
		ModifiedBy:     "user_1",
	}

	got := patch.ApplyTo(scope)
	assert.Equal(t, "{prefijo}/{numero}", got.Format)
	assert.True(t, got.ResetAnnual)
	assert.Equal(t, "X", got.AdvancedConfig.Suffix)
	assert.Equal(t, 4, got.AdvancedConfig.NumberLength)
	assert.Equal(t, int64(9), got.LastNumber)
	assert.Equal(t, "user_1", got.UpdatedBy)
	assert.Equal(t, "{prefijo}-{numero}", scope.Format)
}
