package redisutil

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
)

func TestDial(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := Dial(context.Background(), "redis://"+mr.Addr()+"/0")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	if err := client.Set(context.Background(), "k", "v", 0).Err(); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got, _ := mr.Get("k"); got != "v" {
		t.Errorf("stored %q, want v", got)
	}
}

func TestDialErrors(t *testing.T) {
	for _, tc := range []struct {
		name string
		url  string
	}{
		{"BadScheme", "http://localhost:6379"},
		{"Unreachable", "redis://127.0.0.1:1"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Dial(context.Background(), tc.url); err == nil {
				t.Fatalf("expected error for %s", tc.url)
			}
		})
	}
}
