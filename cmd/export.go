package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentic-research/snowpak/internal/ingest"
)

var exportCmd = &cobra.Command{
	Use:   "export [archive] [output.db]",
	Short: "Export resolved items into a SQLite database",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		source, output := args[0], args[1]

		engine, logger, err := newEngine(cmd)
		if err != nil {
			return err
		}
		start := time.Now()
		res, err := runLoad(cmd, engine, source)
		if err != nil {
			return err
		}

		_ = os.Remove(output) // Overwrite
		writer, err := ingest.NewSQLiteWriter(output, logger)
		if err != nil {
			return err
		}
		ingest.Copy(res.Store, writer)
		if err := writer.Close(); err != nil {
			return fmt.Errorf("export %s: %w", output, err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Exported %d items from %s to %s in %v.\n",
			res.Store.Len(), source, output, time.Since(start).Round(time.Millisecond))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
}
