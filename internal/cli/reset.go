package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/qmsuite/correlative/internal/types"
	"github.com/spf13/cobra"
)

// ResetOptions holds flags for the reset command
type ResetOptions struct {
	*RootOptions
	TenantID string
}

// NewResetCommand creates the reset command
func NewResetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reset <annual|monthly>",
		Short: "Zero period counters",
		Long: `Zero the counters of every configuration flagged with the policy for the
current period. Runs for every tenant unless --tenant is given. Safe to repeat.

Example:
  correlativectl reset annual
  correlativectl reset monthly --tenant tenant_01`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(types.ResetPolicyAnnual), string(types.ResetPolicyMonthly)},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReset(cmd, opts, types.ResetPolicy(args[0]))
		},
	}

	cmd.Flags().StringVar(&opts.TenantID, "tenant", "", "only reset this tenant")

	return cmd
}

func runReset(cmd *cobra.Command, opts *ResetOptions, policy types.ResetPolicy) error {
	if err := policy.Validate(); err != nil {
		return err
	}

	ctx := types.SetUserID(cmd.Context(), types.SystemUserID)
	svc, release, err := opts.Connect(ctx)
	if err != nil {
		return err
	}
	defer release()

	out := cmd.OutOrStdout()

	if opts.TenantID != "" {
		result, err := svc.Reset.Reset(ctx, opts.TenantID, policy)
		if err != nil {
			return err
		}
		if ok, err := printJSON(opts.RootOptions, out, result); ok || err != nil {
			return err
		}
		fmt.Fprintf(out, "tenant %s: %d scopes affected, %d counters reset, %d failed (period %s)\n",
			result.TenantID, result.ScopesAffected, result.CountersReset, result.Failed, result.Period)
		return nil
	}

	resp, err := svc.Reset.ResetAllTenants(ctx, policy)
	if err != nil {
		return err
	}
	if ok, err := printJSON(opts.RootOptions, out, resp); ok || err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TENANT\tPERIOD\tAFFECTED\tRESET\tFAILED\tERROR")
	for _, r := range resp.Tenants {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\n",
			r.TenantID, r.Period, r.ScopesAffected, r.CountersReset, r.Failed, r.Error)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "%d tenants, %d counters reset, %d tenants failed\n",
		len(resp.Tenants), resp.CountersReset, resp.FailedTenants)
	return nil
}
