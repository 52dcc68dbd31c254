// Package events publishes gateway lifecycle and profile events to the bus.
package events

import (
	"context"
	"time"
)

// Event topic constants
const (
	TopicBridgeState    = "gateway.bridge.state"
	TopicToolCalled     = "gateway.tool.called"
	TopicProfileUpdated = "gateway.profile.updated"
	TopicProfileDeleted = "gateway.profile.deleted"

	// TopicAll matches every gateway topic.
	TopicAll = "gateway.>"
)

// Event types

type BridgeStateChanged struct {
	Upstream string    `json:"upstream"`
	From     string    `json:"from"`
	To       string    `json:"to"`
	Error    string    `json:"error,omitempty"`
	At       time.Time `json:"at"`
}

type ToolCalled struct {
	Tool       string `json:"tool"`
	Upstream   string `json:"upstream,omitempty"` // empty for local tools
	Caller     string `json:"caller"`
	IsError    bool   `json:"is_error"`
	DurationMS int64  `json:"duration_ms"`
}

type ProfileUpdated struct {
	CompanyID string    `json:"company_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ProfileDeleted struct {
	CompanyID string `json:"company_id"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
