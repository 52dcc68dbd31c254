package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/mcpgate/internal/ui"
)

var healthCmd = &cobra.Command{
	Use:     "health",
	Short:   "Check the health of a running gateway",
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := gw.Health(cmd.Context())
		if err != nil {
			return fmt.Errorf("checking health: %w", err)
		}

		if jsonOutput {
			if err := printJSON(resp); err != nil {
				return err
			}
		} else {
			fmt.Printf("Health: %s\n", ui.RenderStatus(resp.Status))
			if len(resp.Upstreams) > 0 {
				fmt.Println()
				printUpstreamTable(resp.Upstreams)
			}
		}

		if resp.Status != "ok" {
			return fmt.Errorf("unhealthy: %s", resp.Status)
		}
		return nil
	},
}
