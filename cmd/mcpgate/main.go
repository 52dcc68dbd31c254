package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/mcpgate/internal/client"
	"github.com/alfredjeanlab/mcpgate/internal/ui"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	gatewayURL string
	token      string
	jsonOutput bool
	noColor    bool

	gw client.GatewayClient
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

var rootCmd = &cobra.Command{
	Use:           "mcpgate <command>",
	Short:         "Tool gateway for stdio MCP servers",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if noColor || !ui.ShouldUseColor() {
			ui.ForceNoColor()
		}
		gw = client.NewHTTPClient(gatewayURL, token)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if gw != nil {
			_ = gw.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&gatewayURL, "url", envOr("MCPGATE_URL", "http://localhost:8443"), "gateway base URL")
	rootCmd.PersistentFlags().StringVar(&token, "token", os.Getenv("MCPGATE_TOKEN"), "bearer token for the gateway")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddGroup(
		&cobra.Group{ID: "gateway", Title: "Gateway:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)

	cobra.EnableCommandSorting = false
	rootCmd.SetHelpFunc(colorizedHelpFunc())

	// Gateway
	rootCmd.AddCommand(toolsCmd)
	rootCmd.AddCommand(callCmd)
	rootCmd.AddCommand(resourcesCmd)

	// System
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(upstreamsCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(eventsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ui.RenderError("Error: ")+err.Error())
		os.Exit(1)
	}
}
