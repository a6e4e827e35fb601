// Package archive uploads settled-window snapshots to S3 for offline
// analysis. Credentials come from the standard AWS chain (env, shared
// config, instance role).
package archive

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Bucket string
	Prefix string
	Region string
}

// Archiver writes one JSON object per settled window:
//
//	{prefix}windows/{asset}/{YYYY-MM-DD}/{slug}.json
type Archiver struct {
	client *s3.Client
	bucket string
	prefix string
}

func New(ctx context.Context, cfg Config) (*Archiver, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("archive: bucket name is required")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("archive: load aws config: %w", err)
	}

	return &Archiver{
		client: s3.NewFromConfig(awsCfg),
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

// Health performs a HeadBucket call to verify connectivity and permissions.
func (a *Archiver) Health(ctx context.Context) error {
	_, err := a.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(a.bucket),
	})
	if err != nil {
		return fmt.Errorf("archive: bucket %s not accessible: %w", a.bucket, err)
	}
	return nil
}

// ArchiveWindow uploads the final snapshot payload of a settled window.
func (a *Archiver) ArchiveWindow(ctx context.Context, asset, slug string, windowStartMs int64, payload []byte) error {
	key := a.objectKey(asset, slug, windowStartMs)

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("archive: put object %s: %w", key, err)
	}

	log.Debug().Str("key", key).Int("bytes", len(payload)).Msg("📦 Window archived")
	return nil
}

func (a *Archiver) objectKey(asset, slug string, windowStartMs int64) string {
	day := time.UnixMilli(windowStartMs).UTC().Format("2006-01-02")
	return fmt.Sprintf("%swindows/%s/%s/%s.json", a.prefix, asset, day, slug)
}
