package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/mcpgate/internal/ui"
	"github.com/alfredjeanlab/mcpgate/internal/upstream"
)

var upstreamsCmd = &cobra.Command{
	Use:     "upstreams",
	Short:   "Show upstream lifecycle states of a running gateway",
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := gw.Health(cmd.Context())
		if err != nil {
			return fmt.Errorf("checking health: %w", err)
		}
		if jsonOutput {
			return printJSON(resp.Upstreams)
		}
		printUpstreamTable(resp.Upstreams)
		return nil
	},
}

var upstreamsCheckCmd = &cobra.Command{
	Use:   "check <file>",
	Short: "Validate an upstreams TOML file without starting anything",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		descs, err := upstream.LoadFile(args[0])
		if err != nil {
			return err
		}
		reg, err := upstream.NewRegistry(descs)
		if err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(reg.Descriptors())
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tPREFIX\tCOMMAND\tDELEGATED AUTH")
		for _, d := range reg.Descriptors() {
			command := strings.TrimSpace(d.Command + " " + strings.Join(d.Args, " "))
			delegated := "-"
			if d.DelegatedAuth {
				delegated = d.TokenArgument()
				if len(d.TokenProviders) > 0 {
					delegated += " (" + strings.Join(d.TokenProviders, ", ") + ")"
				}
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.DisplayName(), d.Prefix, ui.RenderMuted(command), delegated)
		}
		w.Flush()
		fmt.Printf("\n%d upstreams OK\n", reg.Len())
		return nil
	},
}

func init() {
	upstreamsCmd.AddCommand(upstreamsCheckCmd)
}
