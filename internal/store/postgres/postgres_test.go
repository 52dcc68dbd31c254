package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/alfredjeanlab/mcpgate/internal/store"
)

// newMockDB creates a sqlmock database with automatic cleanup and expectation checking.
func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unfulfilled expectations: %v", err)
		}
		db.Close()
	})
	return db, mock
}

var profileRowColumns = []string{"company_id", "json_data", "updated_at"}

var profileWithTotalColumns = []string{"total_count", "company_id", "json_data", "updated_at"}

func TestJSONBBytes(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want string
	}{
		{"", "{}"},
		{"null", "{}"},
		{`{"a":1}`, `{"a":1}`},
	} {
		if got := string(jsonbBytes(json.RawMessage(tc.in))); got != tc.want {
			t.Errorf("jsonbBytes(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestGetProfile(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewWithDB(db)
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT company_id, json_data, updated_at FROM company_profiles WHERE company_id = \\$1").
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows(profileRowColumns).AddRow("c1", []byte(`{"name":"Acme"}`), now))

	p, err := s.GetProfile(context.Background(), "c1")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if p.CompanyID != "c1" || string(p.JSONData) != `{"name":"Acme"}` || !p.UpdatedAt.Equal(now) {
		t.Errorf("profile = %+v", p)
	}
}

func TestGetProfileNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewWithDB(db)

	mock.ExpectQuery("SELECT .+ FROM company_profiles WHERE company_id = \\$1").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(profileRowColumns))

	_, err := s.GetProfile(context.Background(), "missing")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want store.ErrNotFound", err)
	}
}

func TestGetProfileDBError(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewWithDB(db)

	mock.ExpectQuery("SELECT .+ FROM company_profiles").
		WithArgs("c1").
		WillReturnError(errors.New("connection refused"))

	_, err := s.GetProfile(context.Background(), "c1")
	if err == nil || errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want a store failure", err)
	}
}

func TestUpsertProfile(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewWithDB(db)
	now := time.Now().UTC()
	data := json.RawMessage(`{"name":"Acme","industry":"Retail"}`)

	mock.ExpectQuery("INSERT INTO company_profiles .+ ON CONFLICT \\(company_id\\) DO UPDATE .+ RETURNING company_id, json_data, updated_at").
		WithArgs("c1", []byte(data)).
		WillReturnRows(sqlmock.NewRows(profileRowColumns).AddRow("c1", []byte(data), now))

	p, err := s.UpsertProfile(context.Background(), "c1", data)
	if err != nil {
		t.Fatalf("UpsertProfile: %v", err)
	}
	if p.CompanyID != "c1" || string(p.JSONData) != string(data) || !p.UpdatedAt.Equal(now) {
		t.Errorf("profile = %+v", p)
	}
}

func TestDeleteProfile(t *testing.T) {
	for _, tc := range []struct {
		name     string
		affected int64
		want     bool
	}{
		{"Existing", 1, true},
		{"Missing", 0, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			s := NewWithDB(db)

			mock.ExpectExec("DELETE FROM company_profiles WHERE company_id = \\$1").
				WithArgs("c1").
				WillReturnResult(sqlmock.NewResult(0, tc.affected))

			got, err := s.DeleteProfile(context.Background(), "c1")
			if err != nil {
				t.Fatalf("DeleteProfile: %v", err)
			}
			if got != tc.want {
				t.Errorf("deleted = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestListProfiles(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewWithDB(db)
	newer := time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC)
	older := newer.Add(-time.Hour)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) OVER\\(\\) AS total_count, .+ FROM company_profiles\\s+ORDER BY updated_at DESC\\s+LIMIT \\$1 OFFSET \\$2").
		WithArgs(50, 0).
		WillReturnRows(sqlmock.NewRows(profileWithTotalColumns).
			AddRow(7, "c2", []byte(`{"name":"B"}`), newer).
			AddRow(7, "c1", []byte(`{"name":"A"}`), older))

	profiles, total, err := s.ListProfiles(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("ListProfiles: %v", err)
	}
	if total != 7 {
		t.Errorf("total = %d, want 7", total)
	}
	if len(profiles) != 2 || profiles[0].CompanyID != "c2" || profiles[1].CompanyID != "c1" {
		t.Errorf("profiles = %+v", profiles)
	}
}

func TestListProfilesAfter(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewWithDB(db)
	ts := time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT .+ FROM company_profiles\\s+WHERE company_id > \\$1\\s+ORDER BY company_id\\s+LIMIT \\$2").
		WithArgs("c1", store.MaxListLimit).
		WillReturnRows(sqlmock.NewRows(profileRowColumns).
			AddRow("c2", []byte(`{"name":"B"}`), ts).
			AddRow("c3", []byte(`{"name":"C"}`), ts.Add(-time.Hour)))

	profiles, err := s.ListProfilesAfter(context.Background(), "c1", store.MaxListLimit+1)
	if err != nil {
		t.Fatalf("ListProfilesAfter: %v", err)
	}
	if len(profiles) != 2 || profiles[0].CompanyID != "c2" || profiles[1].CompanyID != "c3" {
		t.Errorf("profiles = %+v", profiles)
	}
}

func TestListProfilesEmpty(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewWithDB(db)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) OVER\\(\\)").
		WithArgs(10, 100).
		WillReturnRows(sqlmock.NewRows(profileWithTotalColumns))

	profiles, total, err := s.ListProfiles(context.Background(), 10, 100)
	if err != nil {
		t.Fatalf("ListProfiles: %v", err)
	}
	if len(profiles) != 0 || total != 0 {
		t.Errorf("got %d profiles, total %d", len(profiles), total)
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		t.Fatalf("read migrations: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("got %d migration files, want 2", len(entries))
	}
}
