package cmd

import (
	"fmt"
	"os"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/spf13/cobra"

	"github.com/agentic-research/snowpak/internal/render"
)

var renderCmd = &cobra.Command{
	Use:   "render [archive] [outdir]",
	Short: "Write every resolved item as a markup file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := loadArchive(cmd, args[0])
		if err != nil {
			return err
		}
		if err := os.MkdirAll(args[1], 0o755); err != nil {
			return err
		}
		n, err := render.Store(osfs.New(args[1]), res.Store)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Rendered %d items to %s.\n", n, args[1])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(renderCmd)
}
