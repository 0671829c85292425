package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/qmsuite/correlative/internal/api/dto"
	"github.com/qmsuite/correlative/internal/types"
	"github.com/spf13/cobra"
)

// ScopesOptions holds flags for the scopes commands
type ScopesOptions struct {
	*RootOptions
	TenantID   string
	EntityType string
}

// NewScopesCommand creates the scopes command
func NewScopesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scopes",
		Short: "Inspect numbering scopes",
	}
	cmd.AddCommand(newScopesListCommand(rootOpts))
	return cmd
}

func newScopesListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScopesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the scopes of a tenant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScopesList(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.TenantID, "tenant", "", "tenant id (required)")
	cmd.Flags().StringVar(&opts.EntityType, "entity-type", "", "only list this entity type")
	_ = cmd.MarkFlagRequired("tenant")

	return cmd
}

func runScopesList(cmd *cobra.Command, opts *ScopesOptions) error {
	ctx := cmd.Context()
	svc, release, err := opts.Connect(ctx)
	if err != nil {
		return err
	}
	defer release()

	scopes, err := svc.Numbering.GetConfiguration(ctx, opts.TenantID, types.EntityType(opts.EntityType))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if ok, err := printJSON(opts.RootOptions, out, dto.NewListScopesResponse(scopes)); ok || err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ENTITY TYPE\tPREFIX\tPERIOD\tLAST NUMBER\tFORMAT\tERRORS")
	for _, s := range scopes {
		period := s.Period().String()
		if period == "" {
			period = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%d\n",
			s.EntityType, s.Prefix, period, s.LastNumber, s.Format, len(s.ErrorLog))
	}
	return tw.Flush()
}
