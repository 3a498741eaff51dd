package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/pim-core/internal/importer"
)

var entitiesEntityType string

var entitiesCmd = &cobra.Command{
	Use:   "entities",
	Short: "Manage entities",
}

var entitiesImportCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Import entities and attribute values from a CSV or XLSX file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := initApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		im := importer.New(a.repo, a.values)
		path := args[0]

		var res *importer.Result
		switch {
		case strings.HasSuffix(path, ".xlsx"):
			res, err = im.ImportXLSX(ctx, path, entitiesEntityType)
		case strings.HasSuffix(path, ".csv"):
			f, ferr := os.Open(path)
			if ferr != nil {
				return eris.Wrapf(ferr, "open %s", path)
			}
			defer f.Close()
			res, err = im.ImportCSV(ctx, f, entitiesEntityType)
		default:
			return eris.Errorf("unsupported file type: %s (want .csv or .xlsx)", path)
		}
		if err != nil {
			return err
		}

		fmt.Printf("entities=%d values=%d rejected=%d\n", res.Entities, res.Values, res.Failed)
		return nil
	},
}

var entitiesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List entities of a type",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := initApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		entities, err := a.repo.ListEntities(ctx, entitiesEntityType)
		if err != nil {
			return err
		}
		for _, e := range entities {
			fmt.Printf("%s  %s\n", e.ID, e.ExternalKey)
		}
		fmt.Printf("%d entities\n", len(entities))
		return nil
	},
}

func init() {
	entitiesCmd.PersistentFlags().StringVar(&entitiesEntityType, "entity-type", "product", "entity type")
	entitiesCmd.AddCommand(entitiesImportCmd, entitiesListCmd)
	rootCmd.AddCommand(entitiesCmd)
}
