package model

import (
	"encoding/json"
	"time"
)

// ProfileSource records where a profile read was served from.
type ProfileSource string

const (
	SourceCache    ProfileSource = "cache"
	SourceDatabase ProfileSource = "database"
	SourceDefault  ProfileSource = "default"
)

// CompanyProfile is the durable record for one company. JSONData is opaque to
// the gateway.
type CompanyProfile struct {
	CompanyID string          `json:"companyId"`
	JSONData  json.RawMessage `json:"jsonData"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Data decodes JSONData into a map. Missing or null data yields an empty map.
func (p *CompanyProfile) Data() (map[string]any, error) {
	out := make(map[string]any)
	if len(p.JSONData) == 0 || string(p.JSONData) == "null" {
		return out, nil
	}
	if err := json.Unmarshal(p.JSONData, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Flatten merges the profile's data with its identity fields, the shape
// returned to callers. Identity fields win over same-named data keys.
func (p *CompanyProfile) Flatten() (map[string]any, error) {
	out, err := p.Data()
	if err != nil {
		return nil, err
	}
	out["companyId"] = p.CompanyID
	if !p.UpdatedAt.IsZero() {
		out["updatedAt"] = p.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}
	return out, nil
}

// DefaultProfile synthesizes the placeholder returned for unknown companies.
// It is never persisted.
func DefaultProfile(companyID string, now time.Time) map[string]any {
	return map[string]any{
		"companyId":   companyID,
		"name":        "New Company",
		"industry":    "Not specified",
		"description": "Company profile not yet configured",
		"settings": map[string]any{
			"timezone": "UTC",
			"currency": "USD",
			"language": "en",
		},
		"createdAt": now.UTC().Format(time.RFC3339),
	}
}
