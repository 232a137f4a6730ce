package cmd

import (
	"fmt"

	"github.com/ohler55/ojg/oj"
	"github.com/spf13/cobra"

	"github.com/agentic-research/snowpak/internal/graph"
	"github.com/agentic-research/snowpak/internal/render"
)

var (
	showJSON bool
	showPath string
)

var showCmd = &cobra.Command{
	Use:   "show [archive] [class] [item]",
	Short: "Print the resolved content of an item",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := loadArchive(cmd, args[0])
		if err != nil {
			return err
		}
		it, err := res.Store.GetItem(args[1], args[2])
		if err != nil {
			return err
		}

		nodes := []*graph.Node{it.Content}
		if showPath != "" {
			if nodes, err = it.Content.GetNodes(showPath); err != nil {
				return err
			}
		}

		out := cmd.OutOrStdout()
		for _, n := range nodes {
			if showJSON {
				fmt.Fprintln(out, oj.JSON(n.ToMap(), &oj.Options{Sort: true, Indent: 2}))
				continue
			}
			if err := render.Node(out, n); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	showCmd.Flags().BoolVar(&showJSON, "json", false, "Print as JSON")
	showCmd.Flags().StringVarP(&showPath, "path", "p", "", "Dotted node path from the content element, e.g. Truck.Wheels.Wheel")
	rootCmd.AddCommand(showCmd)
}
