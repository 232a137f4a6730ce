package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentic-research/snowpak/internal/graph"
	"github.com/agentic-research/snowpak/internal/query"
)

var queryCmd = &cobra.Command{
	Use:   "query [archive] [class] [item|*] [jsonpath]",
	Short: "Evaluate a JSONPath expression over resolved items",
	Long: `Evaluate a JSONPath expression over the map form of resolved items:

  {"name": "Truck", "attrs": {...}, "children": {"Wheel": [{...}]}}

Use * as the item name to query every item of the class.`,
	Args: cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := loadArchive(cmd, args[0])
		if err != nil {
			return err
		}
		className, itemName, selector := args[1], args[2], args[3]

		var items []*graph.Item
		if itemName == "*" {
			class, ok := res.Store.Class(className)
			if !ok {
				return fmt.Errorf("%w: class %q", graph.ErrNotFound, className)
			}
			for _, name := range class.ItemNames() {
				items = append(items, class.Items[name])
			}
		} else {
			it, err := res.Store.GetItem(className, itemName)
			if err != nil {
				return err
			}
			items = append(items, it)
		}

		matches, err := query.NewWalker().Items(items, selector)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, it := range items {
			for _, m := range matches[it.ID()] {
				fmt.Fprintf(out, "%s\t%s\n", it.ID(), m.JSON(0))
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(queryCmd)
}
