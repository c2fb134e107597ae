// Package archive uploads raw option-chain snapshots to S3 for audit
// retention, beyond the lifetime of the local sqlite database.
package archive

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/optionagent/agent/internal/domain"
)

// Archiver uploads RawOptionSnapshots to a configured S3 bucket, msgpack-
// encoded for compactness relative to JSON.
type Archiver struct {
	bucket   string
	uploader *manager.Uploader
	log      zerolog.Logger
}

// New builds an Archiver from the default AWS config chain (environment,
// shared config file, or instance role), scoped to region and bucket.
// Returns (nil, nil) when bucket is empty, meaning archival is disabled.
func New(ctx context.Context, bucket, region string, log zerolog.Logger) (*Archiver, error) {
	if bucket == "" {
		return nil, nil
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("archive: load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	return &Archiver{
		bucket:   bucket,
		uploader: manager.NewUploader(client),
		log:      log.With().Str("component", "archive").Logger(),
	}, nil
}

// PersistRawOptions uploads one snapshot to
// s3://<bucket>/runs/<run_id>/<symbol>/<unix_nanos>.msgpack. A failed
// upload is logged and swallowed: archival is best-effort audit trail,
// never a reason to fail a run.
func (a *Archiver) PersistRawOptions(ctx context.Context, snapshot domain.RawOptionSnapshot) error {
	if a == nil {
		return nil
	}
	payload, err := msgpack.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("archive: encode snapshot: %w", err)
	}
	key := fmt.Sprintf("runs/%s/%s/%d.msgpack", snapshot.RunID, snapshot.Symbol, snapshot.AsOf.UnixNano())

	_, err = a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(payload),
	})
	if err != nil {
		a.log.Warn().Err(err).Str("run_id", snapshot.RunID).Str("symbol", snapshot.Symbol).Msg("snapshot archival failed")
	}
	return nil
}
