package postgres

import (
	"encoding/json"

	"github.com/alfredjeanlab/mcpgate/internal/model"
)

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// scanProfile scans a single row into a model.CompanyProfile.
// The row must contain columns in the order defined by profileColumns.
func scanProfile(row scannable) (*model.CompanyProfile, error) {
	var (
		p    model.CompanyProfile
		data []byte
	)
	if err := row.Scan(&p.CompanyID, &data, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.JSONData = json.RawMessage(data)
	return &p, nil
}

// scanProfileWithTotal scans a row with a leading total_count column.
func scanProfileWithTotal(row scannable) (*model.CompanyProfile, int, error) {
	var (
		p     model.CompanyProfile
		total int
		data  []byte
	)
	if err := row.Scan(&total, &p.CompanyID, &data, &p.UpdatedAt); err != nil {
		return nil, 0, err
	}
	p.JSONData = json.RawMessage(data)
	return &p, total, nil
}

// jsonbBytes converts json.RawMessage to a []byte suitable for a JSONB
// NOT NULL column; empty data is stored as an empty object.
func jsonbBytes(m json.RawMessage) []byte {
	if len(m) == 0 || string(m) == "null" {
		return []byte("{}")
	}
	return []byte(m)
}
