package sync

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type fakePutter struct {
	keys   []string
	bodies []string
	types  []string
	err    error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, _ := io.ReadAll(in.Body)
	f.keys = append(f.keys, aws.ToString(in.Key))
	f.bodies = append(f.bodies, string(body))
	f.types = append(f.types, aws.ToString(in.ContentType))
	return &s3.PutObjectOutput{}, nil
}

func TestS3DestinationWrite(t *testing.T) {
	fp := &fakePutter{}
	d := newS3Destination(fp, "bucket", "mcpgate/company_profiles.jsonl")

	if err := d.Write(context.Background(), []byte("line\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if len(fp.keys) != 1 || fp.keys[0] != "mcpgate/company_profiles.jsonl" {
		t.Fatalf("keys = %v", fp.keys)
	}
	if fp.bodies[0] != "line\n" || fp.types[0] != "application/x-ndjson" {
		t.Errorf("body = %q type = %q", fp.bodies[0], fp.types[0])
	}
	if got := d.Name(); got != "s3://bucket/mcpgate/company_profiles.jsonl" {
		t.Errorf("Name = %q", got)
	}
}

func TestS3DestinationSnapshots(t *testing.T) {
	fp := &fakePutter{}
	d := newS3Destination(fp, "bucket", "mcpgate/company_profiles.jsonl").WithSnapshots()
	d.now = func() time.Time { return time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC) }

	if err := d.Write(context.Background(), []byte("x")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	want := []string{
		"mcpgate/company_profiles.jsonl",
		"mcpgate/snapshots/company_profiles-20260304T050607Z.jsonl",
	}
	if len(fp.keys) != 2 || fp.keys[0] != want[0] || fp.keys[1] != want[1] {
		t.Fatalf("keys = %v, want %v", fp.keys, want)
	}
}

func TestS3DestinationError(t *testing.T) {
	boom := errors.New("access denied")
	d := newS3Destination(&fakePutter{err: boom}, "bucket", "k.jsonl")
	if err := d.Write(context.Background(), []byte("x")); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped access denied", err)
	}
}
