package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hupe1980/llmflow/flow"
)

var runCmd = &cobra.Command{
	Use:   "run <task.yaml>",
	Short: "Run a generation task",
	Long:  `Runs the task declared in a YAML file and prints the output. The output artifact is reused while the task inputs are unchanged, depending on the overwrite policy of the task.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		task, err := flow.LoadTask(args[0])
		if err != nil {
			return err
		}
		if output, _ := cmd.Flags().GetString("output"); output != "" {
			task.Output = output
		}
		pairs, _ := cmd.Flags().GetStringArray("var")
		vars, err := parseVars(pairs)
		if err != nil {
			return err
		}

		app, err := newApp(cmd)
		if err != nil {
			return err
		}
		res, err := task.Run(cmd.Context(), app.Flow(), vars)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), res.Text())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringP("output", "o", "", "Override the output artifact name")
	runCmd.Flags().StringArray("var", nil, "Template variable as key=value (repeatable)")
}

func parseVars(pairs []string) (map[string]any, error) {
	vars := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid variable %q, want key=value", p)
		}
		vars[k] = v
	}
	return vars, nil
}
