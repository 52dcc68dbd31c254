package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/alfredjeanlab/mcpgate/internal/auth"
)

// stubHandler is a no-op gRPC handler used in interceptor tests.
func stubHandler(_ context.Context, _ any) (any, error) {
	return "ok", nil
}

func TestRecoveryInterceptor(t *testing.T) {
	panicking := func(context.Context, any) (any, error) { panic("boom") }
	_, err := RecoveryInterceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}, panicking)
	if status.Code(err) != codes.Internal {
		t.Fatalf("expected Internal, got %v", err)
	}
}

func TestLoggingInterceptor(t *testing.T) {
	resp, err := LoggingInterceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}, stubHandler)
	if err != nil || resp != "ok" {
		t.Fatalf("got (%v, %v), want (ok, nil)", resp, err)
	}
}

// fakeVerifier accepts "good" as user u1 and "revoked" as revoked.
type fakeVerifier struct{}

func (fakeVerifier) Verify(_ context.Context, token string) (*auth.Claims, error) {
	switch token {
	case "good":
		return &auth.Claims{UserID: "u1"}, nil
	case "revoked":
		return nil, auth.ErrRevoked
	case "redis-down":
		return nil, errors.New("auth: check revocation: connection refused")
	}
	return nil, auth.ErrInvalidToken
}

func TestAuthMiddleware(t *testing.T) {
	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c := CallerFromContext(r.Context()); c != nil {
			seen = c.UserID
		}
		w.WriteHeader(http.StatusOK)
	})
	handler := AuthMiddleware(fakeVerifier{}, next)

	for _, tc := range []struct {
		name     string
		method   string
		path     string
		header   string
		wantCode int
		wantUser string
	}{
		{"no header", http.MethodPost, "/v1/mcp", "", http.StatusUnauthorized, ""},
		{"invalid scheme", http.MethodPost, "/v1/mcp", "Basic good", http.StatusUnauthorized, ""},
		{"wrong token", http.MethodPost, "/v1/mcp", "Bearer wrong", http.StatusUnauthorized, ""},
		{"revoked", http.MethodPost, "/v1/mcp", "Bearer revoked", http.StatusUnauthorized, ""},
		{"verifier error", http.MethodPost, "/v1/mcp", "Bearer redis-down", http.StatusUnauthorized, ""},
		{"correct token", http.MethodPost, "/v1/mcp", "Bearer good", http.StatusOK, "u1"},
		{"health exempt", http.MethodGet, "/v1/health", "", http.StatusOK, ""},
		{"manifest exempt", http.MethodGet, "/v1/manifest", "", http.StatusOK, ""},
		{"metrics exempt", http.MethodGet, "/metrics", "", http.StatusOK, ""},
		{"exemption is per method", http.MethodPost, "/v1/health", "", http.StatusUnauthorized, ""},
	} {
		t.Run(tc.name, func(t *testing.T) {
			seen = ""
			req := httptest.NewRequest(tc.method, tc.path, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tc.wantCode {
				t.Fatalf("expected %d, got %d; body: %s", tc.wantCode, rec.Code, rec.Body.String())
			}
			if seen != tc.wantUser {
				t.Errorf("caller = %q, want %q", seen, tc.wantUser)
			}
		})
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	handler := AuthMiddleware(nil, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/mcp", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d; body: %s", rec.Code, rec.Body.String())
	}
}
