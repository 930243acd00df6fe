package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var artifactsCmd = &cobra.Command{
	Use:     "artifacts",
	Aliases: []string{"art"},
	Short:   "Inspect and remove stored artifacts",
}

var artifactsListCmd = &cobra.Command{
	Use:   "ls [prefix]",
	Short: "List artifact names",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp(cmd)
		if err != nil {
			return err
		}
		prefix := ""
		if len(args) > 0 {
			prefix = args[0]
		}
		names, err := app.Store().List(cmd.Context(), prefix)
		if err != nil {
			return err
		}
		for _, n := range names {
			fmt.Fprintln(cmd.OutOrStdout(), n)
		}
		return nil
	},
}

var artifactsShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Print metadata and content of the latest artifact version",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp(cmd)
		if err != nil {
			return err
		}
		a, err := app.Store().Latest(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		md := a.Metadata
		out, err := yaml.Marshal(map[string]any{
			"name":         md.Name,
			"version":      md.Version,
			"content_type": md.ContentType,
			"size_bytes":   md.SizeBytes,
			"size_tokens":  md.SizeTokens,
			"input_hash":   md.InputHash,
			"timestamp":    time.UnixMilli(md.Timestamp).UTC().Format(time.RFC3339),
		})
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if _, err := w.Write(out); err != nil {
			return err
		}
		if meta, _ := cmd.Flags().GetBool("meta"); meta {
			return nil
		}
		fmt.Fprintf(w, "---\n%s\n", a.Text())
		return nil
	},
}

var artifactsRemoveCmd = &cobra.Command{
	Use:   "rm <name>...",
	Short: "Delete artifacts with all their versions",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp(cmd)
		if err != nil {
			return err
		}
		for _, name := range args {
			if err := app.Store().Delete(cmd.Context(), name); err != nil {
				return fmt.Errorf("delete %s: %w", name, err)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(artifactsCmd)
	artifactsCmd.AddCommand(artifactsListCmd, artifactsShowCmd, artifactsRemoveCmd)

	artifactsShowCmd.Flags().Bool("meta", false, "Print the metadata only")
}
