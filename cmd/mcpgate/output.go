package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/alfredjeanlab/mcpgate/internal/client"
	"github.com/alfredjeanlab/mcpgate/internal/model"
	"github.com/alfredjeanlab/mcpgate/internal/ui"
)

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func printToolTable(tools []model.Tool) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tDESCRIPTION")
	descWidth := max(ui.Width()-40, 20)
	for _, t := range tools {
		fmt.Fprintf(w, "%s\t%s\n", ui.RenderAccent(t.Name), ui.Truncate(t.Description, descWidth))
	}
	w.Flush()
	fmt.Printf("\n%d tools\n", len(tools))
}

// printToolResult writes each text block of res; non-text blocks are
// summarized.
func printToolResult(res *model.ToolResult) {
	for _, c := range res.Content {
		switch c.Type {
		case model.ContentText:
			if res.IsError {
				fmt.Println(ui.RenderError(c.Text))
			} else {
				fmt.Println(c.Text)
			}
		case model.ContentResource:
			fmt.Println(ui.RenderMuted("[resource " + c.URI + "]"))
		default:
			fmt.Println(ui.RenderMuted(fmt.Sprintf("[%s %s, %d bytes]", c.Type, c.MimeType, len(c.Data))))
		}
	}
}

func printUpstreamTable(upstreams []client.UpstreamStatus) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tPREFIX\tSTATE")
	for _, u := range upstreams {
		fmt.Fprintf(w, "%s\t%s\t%s\n", u.Name, u.Prefix, ui.RenderState(u.State))
	}
	w.Flush()
}
