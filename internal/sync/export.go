package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/alfredjeanlab/mcpgate/internal/model"
	"github.com/alfredjeanlab/mcpgate/internal/store"
)

// Source is the read side of the profile store the exporter pages through.
// *postgres.PostgresStore satisfies it.
type Source interface {
	// ListProfilesAfter returns up to limit profiles with IDs after afterID,
	// in ID order.
	ListProfilesAfter(ctx context.Context, afterID string, limit int) ([]*model.CompanyProfile, error)
}

// header is the first JSONL record written by ExportJSONL.
type header struct {
	Version      string    `json:"version"`
	Type         string    `json:"type"`
	Timestamp    time.Time `json:"timestamp"`
	ProfileCount int       `json:"profile_count"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ExportJSONL writes every company profile in s as JSONL to w, in company ID
// order. Pages are keyed on the last ID seen, so a profile updated mid-export
// is written exactly once.
func ExportJSONL(ctx context.Context, s Source, w io.Writer) error {
	var profiles []*model.CompanyProfile
	for after := ""; ; {
		page, err := s.ListProfilesAfter(ctx, after, store.MaxListLimit)
		if err != nil {
			return fmt.Errorf("list profiles after %q: %w", after, err)
		}
		profiles = append(profiles, page...)
		if len(page) < store.MaxListLimit {
			break
		}
		after = page[len(page)-1].CompanyID
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:      "1",
		Type:         "header",
		Timestamp:    time.Now().UTC(),
		ProfileCount: len(profiles),
	}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	for _, p := range profiles {
		if err := enc.Encode(record{Type: "company_profile", Data: p}); err != nil {
			return fmt.Errorf("encode profile %s: %w", p.CompanyID, err)
		}
	}

	return nil
}
