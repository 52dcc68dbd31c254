package sync

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// objectPutter is the subset of *s3.Client the destination uses.
type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Destination uploads profile exports to an S3-compatible bucket. Each
// write replaces the object at key and, when snapshots are enabled, also
// keeps a timestamped copy next to it.
type S3Destination struct {
	client    objectPutter
	bucket    string
	key       string
	snapshots bool
	now       func() time.Time
}

// NewS3Destination creates an S3 destination. If endpoint is non-empty,
// path-style addressing is enabled (for MinIO and similar).
func NewS3Destination(ctx context.Context, bucket, key, region, endpoint string) (*S3Destination, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var s3opts []func(*s3.Options)
	if endpoint != "" {
		s3opts = append(s3opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		})
	}

	return newS3Destination(s3.NewFromConfig(cfg, s3opts...), bucket, key), nil
}

func newS3Destination(client objectPutter, bucket, key string) *S3Destination {
	return &S3Destination{client: client, bucket: bucket, key: key, now: time.Now}
}

// WithSnapshots enables timestamped copies under <dir>/snapshots/.
func (d *S3Destination) WithSnapshots() *S3Destination {
	d.snapshots = true
	return d
}

// Name returns the s3:// URL of the export object.
func (d *S3Destination) Name() string { return "s3://" + d.bucket + "/" + d.key }

// Write uploads data to the configured key, then to the snapshot key if
// enabled.
func (d *S3Destination) Write(ctx context.Context, data []byte) error {
	if err := d.put(ctx, d.key, data); err != nil {
		return err
	}
	if d.snapshots {
		return d.put(ctx, d.snapshotKey(), data)
	}
	return nil
}

func (d *S3Destination) snapshotKey() string {
	dir, file := path.Split(d.key)
	ext := path.Ext(file)
	stamp := d.now().UTC().Format("20060102T150405Z")
	return dir + "snapshots/" + strings.TrimSuffix(file, ext) + "-" + stamp + ext
}

func (d *S3Destination) put(ctx context.Context, key string, data []byte) error {
	_, err := d.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(d.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("s3 put object %s: %w", key, err)
	}
	return nil
}
