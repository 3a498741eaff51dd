package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/pim-core/internal/pipeline"
)

var pipelinesEntityType string

var pipelinesCmd = &cobra.Command{
	Use:   "pipelines",
	Short: "Manage pipeline definitions",
}

var pipelinesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pipelines for an entity type",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := initApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		pipelines, err := a.repo.ListPipelines(ctx, pipelinesEntityType)
		if err != nil {
			return err
		}
		if len(pipelines) == 0 {
			fmt.Println("no pipelines")
			return nil
		}
		for _, p := range pipelines {
			fmt.Printf("%-24s v%-3d output=%s modules=%d\n",
				p.Name, p.Version, p.OutputAttributeID, len(p.Modules))
		}
		return nil
	},
}

var pipelinesOrderCmd = &cobra.Command{
	Use:   "order",
	Short: "Show the dependency execution order for an entity type",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := initApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		pipelines, err := a.repo.ListPipelines(ctx, pipelinesEntityType)
		if err != nil {
			return err
		}
		order, err := pipeline.ExecutionOrder(pipelines)
		if err != nil {
			return err
		}
		for i, p := range order {
			fmt.Printf("%2d. %s -> %s\n", i+1, p.Name, p.OutputAttributeID)
		}
		return nil
	},
}

var pipelinesLoadCmd = &cobra.Command{
	Use:   "load FILE",
	Short: "Load pipeline definitions from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := initApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		loaded, err := pipeline.NewLoader(a.repo).LoadFile(ctx, args[0])
		if err != nil {
			return err
		}
		for _, p := range loaded {
			fmt.Printf("loaded %s v%d\n", p.Name, p.Version)
		}
		return nil
	},
}

var pipelinesValidateCmd = &cobra.Command{
	Use:   "validate NAME",
	Short: "Validate a saved pipeline against the current graph",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := initApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		p, err := a.repo.GetPipelineByName(ctx, args[0])
		if err != nil {
			return err
		}
		existing, err := a.repo.ListPipelines(ctx, p.EntityType)
		if err != nil {
			return err
		}

		problems := pipeline.Validate(p, existing)
		if len(problems) == 0 {
			fmt.Printf("%s is valid\n", p.Name)
			return nil
		}
		for _, msg := range problems {
			fmt.Printf("  %s\n", msg)
		}
		return eris.Errorf("%s has %d problem(s)", p.Name, len(problems))
	},
}

var pipelinesEvalCmd = &cobra.Command{
	Use:   "eval NAME",
	Short: "Replay stored eval fixtures against a pipeline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := initApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		p, err := a.repo.GetPipelineByName(ctx, args[0])
		if err != nil {
			return err
		}
		evals, err := a.repo.ListEvals(ctx, p.ID)
		if err != nil {
			return err
		}
		if len(evals) == 0 {
			fmt.Println("no evals stored")
			return nil
		}

		outcomes, err := a.engine.RunEvals(ctx, p, evals)
		if err != nil {
			return err
		}
		passed := 0
		for _, o := range outcomes {
			status := "FAIL"
			if o.Passed {
				status = "PASS"
				passed++
			}
			fmt.Printf("%s  entity=%s  want=%q got=%q\n", status, o.EntityID, o.Expected, o.Got)
			if o.Error != "" {
				fmt.Printf("      error: %s\n", o.Error)
			}
		}
		fmt.Printf("%d/%d passed\n", passed, len(outcomes))
		return nil
	},
}

func init() {
	pipelinesCmd.PersistentFlags().StringVar(&pipelinesEntityType, "entity-type", "product", "entity type")
	pipelinesCmd.AddCommand(pipelinesListCmd, pipelinesOrderCmd, pipelinesLoadCmd, pipelinesValidateCmd, pipelinesEvalCmd)
	rootCmd.AddCommand(pipelinesCmd)
}
