package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var toolsCmd = &cobra.Command{
	Use:     "tools",
	Short:   "List the aggregated tool catalog",
	GroupID: "gateway",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		prefix, _ := cmd.Flags().GetString("prefix")

		tools, err := gw.ListTools(cmd.Context())
		if err != nil {
			return fmt.Errorf("listing tools: %w", err)
		}
		if prefix != "" {
			kept := tools[:0]
			for _, t := range tools {
				if strings.HasPrefix(t.Name, prefix) {
					kept = append(kept, t)
				}
			}
			tools = kept
		}

		if jsonOutput {
			return printJSON(tools)
		}
		printToolTable(tools)
		return nil
	},
}

var callCmd = &cobra.Command{
	Use:   "call <tool> [json-arguments]",
	Short: "Call a tool",
	Long: `Call a tool through the gateway. Arguments are a JSON object, given
inline or with --arg key=value pairs (values are parsed as JSON when
possible, otherwise taken as strings).

  mcpgate call get_company_profile '{"companyId":"acme"}'
  mcpgate call pg.query --arg sql='SELECT 1'`,
	GroupID: "gateway",
	Args:    cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		pairs, _ := cmd.Flags().GetStringArray("arg")

		callArgs, err := parseCallArgs(args[1:], pairs)
		if err != nil {
			return err
		}

		res, err := gw.CallTool(cmd.Context(), args[0], callArgs)
		if err != nil {
			return fmt.Errorf("calling %s: %w", args[0], err)
		}

		if jsonOutput {
			if err := printJSON(res); err != nil {
				return err
			}
		} else {
			printToolResult(res)
		}
		if res.IsError {
			return fmt.Errorf("tool %s returned an error", args[0])
		}
		return nil
	},
}

// parseCallArgs merges an optional inline JSON object with key=value pairs.
// Pairs win over keys of the inline object.
func parseCallArgs(inline []string, pairs []string) (map[string]any, error) {
	out := make(map[string]any)
	if len(inline) > 0 && strings.TrimSpace(inline[0]) != "" {
		if err := json.Unmarshal([]byte(inline[0]), &out); err != nil {
			return nil, fmt.Errorf("arguments must be a JSON object: %w", err)
		}
	}
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --arg %q (want key=value)", p)
		}
		var parsed any
		if err := json.Unmarshal([]byte(v), &parsed); err != nil {
			parsed = v
		}
		out[k] = parsed
	}
	return out, nil
}

func init() {
	toolsCmd.Flags().String("prefix", "", "only show tools whose name starts with this prefix")
	callCmd.Flags().StringArray("arg", nil, "argument as key=value (repeatable)")
}
