package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/agentic-research/snowpak/internal/ingest"
)

var printReport bool

var loadCmd = &cobra.Command{
	Use:   "load [archive]",
	Short: "Load an archive and print what was resolved",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := loadArchive(cmd, args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		sum := res.Report.Summary()
		fmt.Fprintf(out, "Archive:        %s\n", args[0])
		fmt.Fprintf(out, "Template sets:  %d\n", res.Templates.Len())
		fmt.Fprintf(out, "Classes:        %d\n", len(res.Store.Classes()))
		fmt.Fprintf(out, "Items:          %d\n", res.Store.Len())
		fmt.Fprintf(out, "Ignored files:  %d\n", sum.IgnoredFiles)
		fmt.Fprintf(out, "Ignored items:  %d\n", sum.IgnoredItems)
		fmt.Fprintf(out, "Warnings:       %d\n", sum.Warnings)
		fmt.Fprintf(out, "Known issues:   %d\n", sum.KnownIssues)
		for _, class := range res.Store.Classes() {
			fmt.Fprintf(out, "  %-20s %d\n", class.Name, len(class.Items))
		}
		if printReport {
			return res.Report.WriteText(out)
		}
		return nil
	},
}

func init() {
	loadCmd.Flags().BoolVar(&printReport, "report", false, "Print the full diagnostics report")
	rootCmd.AddCommand(loadCmd)
}

// loadArchive resolves the archive at path. An interrupt stops the load.
func loadArchive(cmd *cobra.Command, path string) (*ingest.Result, error) {
	engine, _, err := newEngine(cmd)
	if err != nil {
		return nil, err
	}
	return runLoad(cmd, engine, path)
}

func runLoad(cmd *cobra.Command, engine *ingest.Engine, path string) (*ingest.Result, error) {
	ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt)
	defer stop()
	return engine.Load(ctx, path)
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
