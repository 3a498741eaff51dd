package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/pim-core/internal/catalog"
)

var attributesEntityType string

var attributesCmd = &cobra.Command{
	Use:   "attributes",
	Short: "Manage attribute definitions",
}

var attributesLoadCmd = &cobra.Command{
	Use:   "load FILE",
	Short: "Load attribute definitions from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := initApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		attrs, err := catalog.LoadFile(ctx, a.repo, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("loaded %d attributes\n", len(attrs))
		return nil
	},
}

var attributesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List attribute definitions for an entity type",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := initApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		attrs, err := a.repo.ListAttributes(ctx, attributesEntityType)
		if err != nil {
			return err
		}
		for _, attr := range attrs {
			output := ""
			if attr.IsPipelineOutput() {
				output = "  pipeline=" + attr.PipelineID
			}
			fmt.Printf("%-24s %-10s editable=%-12s review=%-15s%s\n",
				attr.Key, attr.DataType, attr.Editable, attr.Review, output)
		}
		return nil
	},
}

func init() {
	attributesListCmd.Flags().StringVar(&attributesEntityType, "entity-type", "product", "entity type")
	attributesCmd.AddCommand(attributesLoadCmd, attributesListCmd)
	rootCmd.AddCommand(attributesCmd)
}
