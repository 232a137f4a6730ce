package cmd

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/agentic-research/snowpak/internal/known"
)

var knownCmd = &cobra.Command{
	Use:   "known",
	Short: "Print the known-issue table in effect as YAML",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := settings(cmd)
		if err != nil {
			return err
		}
		issues, err := knownIssues(cfg)
		if err != nil {
			return err
		}
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		defer func() { _ = enc.Close() }()
		return enc.Encode(struct {
			Issues []known.Issue `yaml:"issues"`
		}{issues})
	},
}

func init() {
	rootCmd.AddCommand(knownCmd)
}
