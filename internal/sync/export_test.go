package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/alfredjeanlab/mcpgate/internal/model"
	"github.com/alfredjeanlab/mcpgate/internal/store"
)

func TestExportJSONL_Empty(t *testing.T) {
	ms := newMockStore()
	var buf bytes.Buffer
	if err := ExportJSONL(context.Background(), ms, &buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lines := nonEmptyLines(buf.String())
	if len(lines) != 1 {
		t.Fatalf("expected 1 line (header only), got %d", len(lines))
	}

	var h header
	if err := json.Unmarshal([]byte(lines[0]), &h); err != nil {
		t.Fatalf("unmarshal header: %v", err)
	}
	if h.Version != "1" || h.Type != "header" || h.ProfileCount != 0 {
		t.Fatalf("unexpected header: %+v", h)
	}
}

func TestExportJSONL_WithProfiles(t *testing.T) {
	ms := newMockStore()
	now := time.Now().UTC()

	// Insert out of ID order to verify sorting.
	ms.profiles["zeta"] = &model.CompanyProfile{CompanyID: "zeta", JSONData: json.RawMessage(`{"name":"Zeta"}`), UpdatedAt: now}
	ms.profiles["acme"] = &model.CompanyProfile{CompanyID: "acme", JSONData: json.RawMessage(`{"name":"Acme <&>"}`), UpdatedAt: now.Add(-time.Hour)}

	var buf bytes.Buffer
	if err := ExportJSONL(context.Background(), ms, &buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lines := nonEmptyLines(buf.String())
	// 1 header + 2 profiles
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d:\n%s", len(lines), buf.String())
	}

	var h header
	if err := json.Unmarshal([]byte(lines[0]), &h); err != nil {
		t.Fatalf("unmarshal header: %v", err)
	}
	if h.ProfileCount != 2 {
		t.Fatalf("header count = %d, want 2", h.ProfileCount)
	}

	var got []model.CompanyProfile
	for _, line := range lines[1:] {
		var rec struct {
			Type string               `json:"type"`
			Data model.CompanyProfile `json:"data"`
		}
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("unmarshal %q: %v", line, err)
		}
		if rec.Type != "company_profile" {
			t.Fatalf("type = %q, want company_profile", rec.Type)
		}
		got = append(got, rec.Data)
	}
	if got[0].CompanyID != "acme" || got[1].CompanyID != "zeta" {
		t.Fatalf("profiles not sorted: got %q, %q", got[0].CompanyID, got[1].CompanyID)
	}
	if !strings.Contains(lines[1], "<&>") {
		t.Errorf("expected unescaped HTML characters, got %s", lines[1])
	}
}

func TestExportJSONL_Pages(t *testing.T) {
	ms := newMockStore()
	now := time.Now().UTC()
	n := store.MaxListLimit + 3
	for i := range n {
		id := fmt.Sprintf("c-%04d", i)
		ms.profiles[id] = &model.CompanyProfile{CompanyID: id, JSONData: json.RawMessage(`{}`), UpdatedAt: now.Add(time.Duration(i) * time.Second)}
	}

	var buf bytes.Buffer
	if err := ExportJSONL(context.Background(), ms, &buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := len(nonEmptyLines(buf.String())); got != n+1 {
		t.Fatalf("expected %d lines, got %d", n+1, got)
	}
	if ms.calls != 2 {
		t.Errorf("ListProfilesAfter calls = %d, want 2", ms.calls)
	}
}

func TestExportJSONL_UpdatedDuringExport(t *testing.T) {
	ms := newMockStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	n := store.MaxListLimit + 10
	for i := range n {
		id := fmt.Sprintf("c-%04d", i)
		ms.profiles[id] = &model.CompanyProfile{CompanyID: id, JSONData: json.RawMessage(`{}`), UpdatedAt: base.Add(time.Duration(i) * time.Second)}
	}
	// Between pages, touch a profile from each page so recency order shifts.
	ms.onList = func(call int) {
		if call != 2 {
			return
		}
		for _, id := range []string{"c-0003", fmt.Sprintf("c-%04d", n-1)} {
			p := *ms.profiles[id]
			p.UpdatedAt = base.Add(time.Hour)
			ms.profiles[id] = &p
		}
	}

	var buf bytes.Buffer
	if err := ExportJSONL(context.Background(), ms, &buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	seen := make(map[string]int)
	for _, line := range nonEmptyLines(buf.String())[1:] {
		var rec struct {
			Data model.CompanyProfile `json:"data"`
		}
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("unmarshal %q: %v", line, err)
		}
		seen[rec.Data.CompanyID]++
	}
	if len(seen) != n {
		t.Errorf("exported %d distinct profiles, want %d", len(seen), n)
	}
	for id, count := range seen {
		if count != 1 {
			t.Errorf("profile %s exported %d times", id, count)
		}
	}
}

func TestExportJSONL_StoreError(t *testing.T) {
	ms := newMockStore()
	ms.err = errStoreDown
	var buf bytes.Buffer
	err := ExportJSONL(context.Background(), ms, &buf)
	if !errors.Is(err, errStoreDown) {
		t.Fatalf("err = %v, want errStoreDown", err)
	}
	if buf.Len() != 0 {
		t.Errorf("expected nothing written, got %q", buf.String())
	}
}

func nonEmptyLines(s string) []string {
	var result []string
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			result = append(result, line)
		}
	}
	return result
}
