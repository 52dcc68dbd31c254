package main

import (
	"strings"
	"testing"
)

func TestParseCallArgs(t *testing.T) {
	for _, tc := range []struct {
		name    string
		inline  []string
		pairs   []string
		want    map[string]any
		wantErr bool
	}{
		{"none", nil, nil, map[string]any{}, false},
		{"inline", []string{`{"companyId":"acme","limit":5}`}, nil, map[string]any{"companyId": "acme", "limit": float64(5)}, false},
		{"pairs", nil, []string{"sql=SELECT 1", "limit=10", "strict=true"}, map[string]any{"sql": "SELECT 1", "limit": float64(10), "strict": true}, false},
		{"pair wins", []string{`{"a":1}`}, []string{"a=2"}, map[string]any{"a": float64(2)}, false},
		{"pair with equals in value", nil, []string{"q=a=b"}, map[string]any{"q": "a=b"}, false},
		{"inline not object", []string{`[1,2]`}, nil, nil, true},
		{"bad pair", nil, []string{"novalue"}, nil, true},
		{"empty key", nil, []string{"=x"}, nil, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseCallArgs(tc.inline, tc.pairs)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
			for k, v := range tc.want {
				if got[k] != v {
					t.Errorf("%s = %#v, want %#v", k, got[k], v)
				}
			}
		})
	}
}

func TestColorizeHelpOutput(t *testing.T) {
	in := "Gateway:\n  tools       List the aggregated tool catalog\n\nFlags:\n      --url string   gateway base URL (default \"http://localhost:8443\")\n"
	out := colorizeHelpOutput(in)
	if !strings.Contains(out, "\x1b[38;5;74mGateway:\x1b[0m") {
		t.Errorf("group header not colored:\n%q", out)
	}
	if !strings.Contains(out, "\x1b[38;5;250mtools\x1b[0m") {
		t.Errorf("command not colored:\n%q", out)
	}
	if !strings.Contains(out, "\x1b[38;5;245mstring\x1b[0m") {
		t.Errorf("flag type not colored:\n%q", out)
	}
}
