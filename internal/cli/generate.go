package cli

import (
	"fmt"

	"github.com/qmsuite/correlative/internal/api/dto"
	"github.com/qmsuite/correlative/internal/types"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

// GenerateOptions holds flags for the generate command
type GenerateOptions struct {
	*RootOptions
	TenantID     string
	UserID       string
	EntityType   string
	Prefix       string
	Template     string
	ResetAnnual  bool
	ResetMonthly bool
	Parent       string
	Preview      bool
}

// NewGenerateCommand creates the generate command
func NewGenerateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GenerateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Issue a code",
		Long: `Issue the next code of a scope. With --parent a sub-code embedding the parent
code is issued instead. With --preview nothing is consumed.

Example:
  correlativectl generate --tenant t1 --entity-type audit --prefix AUD --template 'AUD-{año}-{numero}' --reset-annual
  correlativectl generate --tenant t1 --entity-type finding --prefix H --parent REV-2024-0007`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.TenantID, "tenant", "", "tenant id (required)")
	cmd.Flags().StringVar(&opts.UserID, "user", types.SystemUserID, "user recorded as the author")
	cmd.Flags().StringVar(&opts.EntityType, "entity-type", "", "entity type (required)")
	cmd.Flags().StringVar(&opts.Prefix, "prefix", "", "code prefix (required)")
	cmd.Flags().StringVar(&opts.Template, "template", "", "code template, ex '{prefijo}-{año}-{numero}'")
	cmd.Flags().BoolVar(&opts.ResetAnnual, "reset-annual", false, "restart numbering every year")
	cmd.Flags().BoolVar(&opts.ResetMonthly, "reset-monthly", false, "restart numbering every month")
	cmd.Flags().StringVar(&opts.Parent, "parent", "", "issue a sub-code of this parent code")
	cmd.Flags().BoolVar(&opts.Preview, "preview", false, "render the next code without issuing it")
	_ = cmd.MarkFlagRequired("tenant")
	_ = cmd.MarkFlagRequired("entity-type")
	_ = cmd.MarkFlagRequired("prefix")
	cmd.MarkFlagsMutuallyExclusive("parent", "preview")
	cmd.MarkFlagsMutuallyExclusive("parent", "template")

	return cmd
}

// config returns the numbering config; only flags the operator set become overrides
func (o *GenerateOptions) config(cmd *cobra.Command) dto.NumberingConfig {
	cfg := dto.NumberingConfig{
		EntityType: types.EntityType(o.EntityType),
		Prefix:     o.Prefix,
	}
	if cmd.Flags().Changed("template") {
		cfg.Format = lo.ToPtr(o.Template)
	}
	if cmd.Flags().Changed("reset-annual") {
		cfg.ResetAnnual = lo.ToPtr(o.ResetAnnual)
	}
	if cmd.Flags().Changed("reset-monthly") {
		cfg.ResetMonthly = lo.ToPtr(o.ResetMonthly)
	}
	return cfg
}

func runGenerate(cmd *cobra.Command, opts *GenerateOptions) error {
	ctx := types.SetUserID(cmd.Context(), opts.UserID)
	svc, release, err := opts.Connect(ctx)
	if err != nil {
		return err
	}
	defer release()

	out := cmd.OutOrStdout()

	switch {
	case opts.Parent != "":
		code, err := svc.Numbering.GenerateSubCode(ctx, opts.TenantID, opts.Parent, types.EntityType(opts.EntityType), opts.Prefix)
		if err != nil {
			return err
		}
		if ok, err := printJSON(opts.RootOptions, out, dto.SubCodeResponse{Code: code}); ok || err != nil {
			return err
		}
		fmt.Fprintln(out, code)

	case opts.Preview:
		preview, err := svc.Numbering.PreviewCode(ctx, opts.TenantID, opts.config(cmd))
		if err != nil {
			return err
		}
		if ok, err := printJSON(opts.RootOptions, out, preview); ok || err != nil {
			return err
		}
		fmt.Fprintf(out, "%s (not issued)\n", preview.Code)

	default:
		result, err := svc.Numbering.GenerateCode(ctx, opts.TenantID, opts.config(cmd), opts.UserID)
		if err != nil {
			return err
		}
		if ok, err := printJSON(opts.RootOptions, out, result); ok || err != nil {
			return err
		}
		fmt.Fprintf(out, "%s\nnext: %s\n", result.Code, result.NextCodePreview)
	}
	return nil
}
