package main

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/pim-core/internal/model"
	"github.com/sells-group/pim-core/internal/review"
)

var approvalsEntityType string

var approvalsCmd = &cobra.Command{
	Use:   "approvals",
	Short: "Review queue operations",
}

var approvalsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List values awaiting approval, grouped by entity",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := initApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		pending, err := review.NewResolver(a.repo).GetPendingApprovals(ctx, approvalsEntityType)
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			fmt.Println("nothing pending")
			return nil
		}
		for _, e := range pending {
			fmt.Printf("entity %s\n", e.EntityID)
			for _, attr := range e.Attributes {
				marker := ""
				if attr.HasOverride {
					marker = "  (override)"
				}
				fmt.Printf("  %-30s %q%s\n", attr.AttributeID, attr.ValueDisplay, marker)
			}
		}
		return nil
	},
}

var approvalsCountCmd = &cobra.Command{
	Use:   "count",
	Short: "Count pending attribute records",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := initApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := review.NewResolver(a.repo).CountPendingApprovals(ctx, approvalsEntityType)
		if err != nil {
			return err
		}
		fmt.Println(n)
		return nil
	},
}

var approvalsApproveCmd = &cobra.Command{
	Use:   "approve ENTITY_ID ATTRIBUTE_ID",
	Short: "Approve one value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := initApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		v, err := a.values.Approve(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Printf("approved %s/%s = %q\n", args[0], args[1], *v.Approved)
		return nil
	},
}

var approvalsBulkCmd = &cobra.Command{
	Use:   "bulk ENTITY_ID:ATTRIBUTE_ID ...",
	Short: "Approve many values, best effort per pair",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		pairs := make([]model.ValuePair, 0, len(args))
		for _, arg := range args {
			entityID, attributeID, ok := strings.Cut(arg, ":")
			if !ok || entityID == "" || attributeID == "" {
				return eris.Errorf("invalid pair %q, want ENTITY_ID:ATTRIBUTE_ID", arg)
			}
			pairs = append(pairs, model.ValuePair{EntityID: entityID, AttributeID: attributeID})
		}

		a, err := initApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		res := a.values.BulkApprove(ctx, pairs)
		fmt.Printf("approved=%d failed=%d\n", res.Approved, res.Failed)
		for _, e := range res.Errors {
			fmt.Printf("  %v\n", e)
		}
		return nil
	},
}

func init() {
	approvalsCmd.PersistentFlags().StringVar(&approvalsEntityType, "entity-type", "", "restrict to one entity type")
	approvalsCmd.AddCommand(approvalsListCmd, approvalsCountCmd, approvalsApproveCmd, approvalsBulkCmd)
	rootCmd.AddCommand(approvalsCmd)
}
