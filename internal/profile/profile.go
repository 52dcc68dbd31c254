// Package profile serves company profiles from a Redis cache backed by the
// durable store. Reads go cache, then store, then a synthesized default.
// Writes go to the store first; the cache only ever holds copies of stored
// records.
package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alfredjeanlab/mcpgate/internal/events"
	"github.com/alfredjeanlab/mcpgate/internal/metrics"
	"github.com/alfredjeanlab/mcpgate/internal/model"
	"github.com/alfredjeanlab/mcpgate/internal/store"
)

// ErrUnavailable wraps durable store failures.
var ErrUnavailable = errors.New("profile store unavailable")

// Cache is the fast, expiring copy of stored profiles.
type Cache interface {
	Get(ctx context.Context, companyID string) (*model.CompanyProfile, error)
	Set(ctx context.Context, p *model.CompanyProfile) error
	Delete(ctx context.Context, companyID string) error
}

// Lookup is the result of Get. Profile already carries the "source" key.
type Lookup struct {
	Profile map[string]any
	Source  model.ProfileSource
}

// Saved is the result of Update. Warning is set when the record was stored
// but the cache could not be refreshed.
type Saved struct {
	CompanyID string    `json:"companyId"`
	UpdatedAt time.Time `json:"updatedAt"`
	Warning   string    `json:"warning,omitempty"`
}

// Page is one page of List results.
type Page struct {
	Profiles []map[string]any `json:"profiles"`
	Count    int              `json:"count"`
	Total    int              `json:"total"`
	Limit    int              `json:"limit"`
	Offset   int              `json:"offset"`
}

type Service struct {
	store   store.Store
	cache   Cache
	events  events.Publisher
	metrics metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

func NewService(s store.Store, c Cache, pub events.Publisher, m metrics.Metrics, logger *slog.Logger) *Service {
	if pub == nil {
		pub = &events.NoopPublisher{}
	}
	if m == nil {
		m = metrics.Noop{}
	}
	return &Service{store: s, cache: c, events: pub, metrics: m, logger: logger, now: time.Now}
}

// Get returns the profile for companyID. A cache failure is treated as a
// miss; a failed cache populate is logged only.
func (s *Service) Get(ctx context.Context, companyID string) (*Lookup, error) {
	cached, err := s.cache.Get(ctx, companyID)
	if err != nil {
		s.logger.Warn("profile cache read failed", "company_id", companyID, "err", err)
	}
	if cached != nil {
		return s.lookup(cached, model.SourceCache)
	}

	stored, err := s.store.GetProfile(ctx, companyID)
	if errors.Is(err, store.ErrNotFound) {
		s.metrics.IncProfileRead(string(model.SourceDefault))
		p := model.DefaultProfile(companyID, s.now())
		p["source"] = string(model.SourceDefault)
		return &Lookup{Profile: p, Source: model.SourceDefault}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if err := s.cache.Set(ctx, stored); err != nil {
		s.logger.Warn("profile cache populate failed", "company_id", companyID, "err", err)
	}
	return s.lookup(stored, model.SourceDatabase)
}

func (s *Service) lookup(p *model.CompanyProfile, src model.ProfileSource) (*Lookup, error) {
	flat, err := p.Flatten()
	if err != nil {
		return nil, fmt.Errorf("decode profile %s: %w", p.CompanyID, err)
	}
	flat["source"] = string(src)
	s.metrics.IncProfileRead(string(src))
	return &Lookup{Profile: flat, Source: src}, nil
}

// Update replaces the profile data for companyID.
func (s *Service) Update(ctx context.Context, companyID string, data map[string]any) (*Saved, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode profile data: %w", err)
	}
	stored, err := s.store.UpsertProfile(ctx, companyID, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	saved := &Saved{CompanyID: stored.CompanyID, UpdatedAt: stored.UpdatedAt}
	if err := s.cache.Set(ctx, stored); err != nil {
		s.logger.Warn("profile cache refresh failed", "company_id", companyID, "err", err)
		saved.Warning = "profile saved but cache refresh failed; cached reads may be stale for up to an hour"
		// A stale entry must not outlive a failed refresh if it can be evicted.
		if derr := s.cache.Delete(ctx, companyID); derr == nil {
			saved.Warning = "profile saved but cache refresh failed"
		}
	}

	s.publish(ctx, events.TopicProfileUpdated, events.ProfileUpdated{CompanyID: stored.CompanyID, UpdatedAt: stored.UpdatedAt})
	s.logger.Info("updated company profile", "company_id", companyID)
	return saved, nil
}

// Delete removes the durable record and, when one existed, its cache entry.
func (s *Service) Delete(ctx context.Context, companyID string) (bool, error) {
	deleted, err := s.store.DeleteProfile(ctx, companyID)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !deleted {
		return false, nil
	}
	if err := s.cache.Delete(ctx, companyID); err != nil {
		s.logger.Warn("profile cache eviction failed", "company_id", companyID, "err", err)
	}
	s.publish(ctx, events.TopicProfileDeleted, events.ProfileDeleted{CompanyID: companyID})
	s.logger.Info("deleted company profile", "company_id", companyID)
	return true, nil
}

// List pages through stored profiles, most recently updated first. The cache
// is not consulted.
func (s *Service) List(ctx context.Context, limit, offset int) (*Page, error) {
	limit, offset = store.ClampPage(limit, offset)
	profiles, total, err := s.store.ListProfiles(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	page := &Page{Profiles: make([]map[string]any, 0, len(profiles)), Total: total, Limit: limit, Offset: offset}
	for _, p := range profiles {
		flat, err := p.Flatten()
		if err != nil {
			s.logger.Warn("skipping undecodable profile", "company_id", p.CompanyID, "err", err)
			continue
		}
		page.Profiles = append(page.Profiles, flat)
	}
	page.Count = len(page.Profiles)
	return page, nil
}

func (s *Service) publish(ctx context.Context, topic string, event any) {
	if err := s.events.Publish(ctx, topic, event); err != nil {
		s.logger.Warn("publishing event", "topic", topic, "err", err)
	}
}
