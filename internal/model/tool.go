package model

// Content kinds carried in a ToolResult.
const (
	ContentText     = "text"
	ContentImage    = "image"
	ContentResource = "resource"
)

// Tool describes one invocable tool in the aggregated catalog.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema"`
}

// ToolCall is a request to invoke a tool by (prefixed) name.
type ToolCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// Content is a single block of a tool result.
type Content struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	URI      string `json:"uri,omitempty"`
}

// ToolResult is the ordered content returned by a tool call.
type ToolResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// TextResult returns a single-block text result.
func TextResult(text string) *ToolResult {
	return &ToolResult{Content: []Content{{Type: ContentText, Text: text}}}
}

// ErrorResult returns a single-block text result flagged as an error.
func ErrorResult(text string) *ToolResult {
	return &ToolResult{Content: []Content{{Type: ContentText, Text: text}}, IsError: true}
}

// Resource describes a readable resource exposed to callers.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// ResourceContent is the body of a read resource.
type ResourceContent struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text"`
}
