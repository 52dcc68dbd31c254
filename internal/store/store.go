package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/alfredjeanlab/mcpgate/internal/model"
)

// List paging bounds.
const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// ErrNotFound is returned when a company has no durable profile.
var ErrNotFound = errors.New("profile not found")

// Store defines the durable persistence interface for company profiles.
type Store interface {
	GetProfile(ctx context.Context, companyID string) (*model.CompanyProfile, error)
	// UpsertProfile replaces the profile data for companyID, creating the
	// record if needed, and returns the stored record.
	UpsertProfile(ctx context.Context, companyID string, data json.RawMessage) (*model.CompanyProfile, error)
	// DeleteProfile reports whether a record existed.
	DeleteProfile(ctx context.Context, companyID string) (bool, error)
	// ListProfiles returns profiles most recently updated first, plus the
	// total number of profiles.
	ListProfiles(ctx context.Context, limit, offset int) ([]*model.CompanyProfile, int, error)

	Ping(ctx context.Context) error
	Close() error
}

// ClampPage applies the default and maximum page size and rejects negative
// offsets.
func ClampPage(limit, offset int) (int, int) {
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}
	return limit, max(offset, 0)
}
