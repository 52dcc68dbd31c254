package sync

import (
	"context"
	"errors"
	"sort"

	"github.com/alfredjeanlab/mcpgate/internal/model"
)

// mockStore is a minimal in-memory profile source for sync tests.
type mockStore struct {
	profiles map[string]*model.CompanyProfile
	err      error
	calls    int
	onList   func(call int) // runs before each page is read
}

func newMockStore() *mockStore {
	return &mockStore{profiles: make(map[string]*model.CompanyProfile)}
}

func (m *mockStore) ListProfilesAfter(_ context.Context, afterID string, limit int) ([]*model.CompanyProfile, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if m.onList != nil {
		m.onList(m.calls)
	}
	var ids []string
	for id := range m.profiles {
		if id > afterID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	var out []*model.CompanyProfile
	for _, id := range ids[:min(limit, len(ids))] {
		out = append(out, m.profiles[id])
	}
	return out, nil
}

var errStoreDown = errors.New("store down")
