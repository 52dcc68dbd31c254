package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/alfredjeanlab/mcpgate/internal/model"
	"github.com/alfredjeanlab/mcpgate/internal/store"
)

// profileColumns is the column list used for SELECT statements on the
// company_profiles table.
const profileColumns = `company_id, json_data, updated_at`

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func queryGetProfile(ctx context.Context, db executor, companyID string) (*model.CompanyProfile, error) {
	row := db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM company_profiles WHERE company_id = $1`, companyID)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get profile %s: %w", companyID, err)
	}
	return p, nil
}

func queryUpsertProfile(ctx context.Context, db executor, companyID string, data json.RawMessage) (*model.CompanyProfile, error) {
	row := db.QueryRowContext(ctx, `
		INSERT INTO company_profiles (company_id, json_data, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (company_id) DO UPDATE SET json_data = EXCLUDED.json_data, updated_at = NOW()
		RETURNING `+profileColumns,
		companyID, jsonbBytes(data),
	)
	p, err := scanProfile(row)
	if err != nil {
		return nil, fmt.Errorf("upsert profile %s: %w", companyID, err)
	}
	return p, nil
}

func queryDeleteProfile(ctx context.Context, db executor, companyID string) (bool, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM company_profiles WHERE company_id = $1`, companyID)
	if err != nil {
		return false, fmt.Errorf("delete profile %s: %w", companyID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func queryListProfiles(ctx context.Context, db executor, limit, offset int) ([]*model.CompanyProfile, int, error) {
	limit, offset = store.ClampPage(limit, offset)
	rows, err := db.QueryContext(ctx, `
		SELECT COUNT(*) OVER() AS total_count, `+profileColumns+`
		FROM company_profiles
		ORDER BY updated_at DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	var (
		profiles []*model.CompanyProfile
		total    int
	)
	for rows.Next() {
		p, t, err := scanProfileWithTotal(rows)
		if err != nil {
			return nil, 0, err
		}
		total = t
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return profiles, total, nil
}

func queryListProfilesAfter(ctx context.Context, db executor, afterID string, limit int) ([]*model.CompanyProfile, error) {
	limit, _ = store.ClampPage(limit, 0)
	rows, err := db.QueryContext(ctx, `
		SELECT `+profileColumns+`
		FROM company_profiles
		WHERE company_id > $1
		ORDER BY company_id
		LIMIT $2`, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("list profiles after %q: %w", afterID, err)
	}
	defer rows.Close()

	var profiles []*model.CompanyProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return profiles, nil
}
