package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/mcpgate/internal/ui"
)

var resourcesCmd = &cobra.Command{
	Use:     "resources [uri]",
	Short:   "List resources, or print one",
	GroupID: "gateway",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			content, err := gw.ReadResource(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}
			if jsonOutput {
				return printJSON(content)
			}
			fmt.Print(content.Text)
			return nil
		}

		list, err := gw.ListResources(cmd.Context())
		if err != nil {
			return fmt.Errorf("listing resources: %w", err)
		}
		if jsonOutput {
			return printJSON(list)
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "URI\tNAME")
		for _, r := range list {
			fmt.Fprintf(w, "%s\t%s\n", ui.RenderAccent(r.URI), r.Name)
		}
		return w.Flush()
	},
}
