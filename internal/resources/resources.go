// Package resources serves the static context documents exposed through
// resources/list and resources/read.
package resources

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"

	"github.com/alfredjeanlab/mcpgate/internal/model"
)

//go:embed content/*.md
var embedded embed.FS

const uriPrefix = "mcp://mcpgate/prompts/"

// ErrNotFound is returned by Read for an unknown URI.
var ErrNotFound = errors.New("resource not found")

type entry struct {
	file        string
	name        string
	description string
}

var catalog = []entry{
	{"team_default_context.md", "Team Default Context", "Default company context and guidelines for AI interactions"},
	{"meta_ads_guidelines.md", "Meta Ads Guidelines", "Best practices and guidelines for Meta Ads management"},
	{"database_guidelines.md", "Database Guidelines", "Database access patterns and security guidelines"},
	{"company_specific_context.md", "Company-Specific Context", "Company-specific context and business rules"},
}

// Library lists and reads the fixed resource catalog. Documents are read
// from the overlay first when one is configured, then from the embedded
// defaults.
type Library struct {
	overlay fs.FS
	logger  *slog.Logger
}

// New returns a Library. overlay may be nil.
func New(overlay fs.FS, logger *slog.Logger) *Library {
	if logger == nil {
		logger = slog.Default()
	}
	return &Library{overlay: overlay, logger: logger}
}

// URI returns the resource URI for a catalog file name.
func URI(file string) string { return uriPrefix + file }

func (l *Library) List() []model.Resource {
	out := make([]model.Resource, 0, len(catalog))
	for _, e := range catalog {
		out = append(out, model.Resource{
			URI:         URI(e.file),
			Name:        e.name,
			Description: e.description,
			MimeType:    "text/markdown",
		})
	}
	return out
}

func (l *Library) Read(uri string) (*model.ResourceContent, error) {
	for _, e := range catalog {
		if URI(e.file) != uri {
			continue
		}
		text, err := l.load(e.file)
		if err != nil {
			return nil, err
		}
		return &model.ResourceContent{URI: uri, MimeType: "text/markdown", Text: text}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, uri)
}

func (l *Library) load(file string) (string, error) {
	if l.overlay != nil {
		data, err := fs.ReadFile(l.overlay, file)
		if err == nil {
			return string(data), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			l.logger.Warn("reading resource overlay", "file", file, "err", err)
		}
	}
	data, err := embedded.ReadFile(path.Join("content", file))
	if err != nil {
		return "", fmt.Errorf("resources: read %s: %w", file, err)
	}
	return string(data), nil
}
