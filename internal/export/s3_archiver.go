package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog/log"
)

// Uploader is the subset of manager.Uploader used by S3Archiver.
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Archiver uploads ledger snapshots to paths like:
//
//	s3://<bucket>/<prefix>/exports/YYYY/MM/DD/<unix>-processed.csv
type S3Archiver struct {
	bucket   string
	prefix   string
	exporter *Exporter
	uploader Uploader
	now      func() time.Time
}

// NewS3Archiver loads the default AWS config (AWS_REGION, AWS_PROFILE, ...).
func NewS3Archiver(ctx context.Context, exporter *Exporter, bucket, prefix string) (*S3Archiver, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket required")
	}
	cfg, err := awsConfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewS3ArchiverWithUploader(manager.NewUploader(s3.NewFromConfig(cfg)), exporter, bucket, prefix), nil
}

func NewS3ArchiverWithUploader(u Uploader, exporter *Exporter, bucket, prefix string) *S3Archiver {
	return &S3Archiver{
		bucket:   bucket,
		prefix:   prefix,
		exporter: exporter,
		uploader: u,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Archive uploads both ledgers and returns the written keys. A ledger with
// no records is skipped.
func (a *S3Archiver) Archive(ctx context.Context) ([]string, error) {
	ts := a.now()
	var keys []string
	for _, part := range []struct {
		name   string
		render func(context.Context) ([]byte, error)
	}{
		{"processed", a.exporter.ExportHistory},
		{"accepted", a.exporter.ExportAccepted},
	} {
		body, err := part.render(ctx)
		if errors.Is(err, ErrExportUnavailable) {
			log.Info().Str("ledger", part.name).Msg("ledger empty, not archived")
			continue
		}
		if err != nil {
			return keys, err
		}
		key := a.objectKey(ts, part.name)
		_, err = a.uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket:               aws.String(a.bucket),
			Key:                  aws.String(key),
			Body:                 bytes.NewReader(body),
			ContentType:          aws.String("text/csv"),
			ServerSideEncryption: s3types.ServerSideEncryptionAes256,
		})
		if err != nil {
			return keys, fmt.Errorf("s3 upload %s: %w", key, err)
		}
		log.Info().Str("bucket", a.bucket).Str("key", key).Int("bytes", len(body)).Msg("ledger archived")
		keys = append(keys, key)
	}
	return keys, nil
}

func (a *S3Archiver) objectKey(ts time.Time, name string) string {
	year, month, day := ts.Date()
	return path.Join(a.prefix, "exports",
		fmt.Sprintf("%04d", year),
		fmt.Sprintf("%02d", int(month)),
		fmt.Sprintf("%02d", day),
		fmt.Sprintf("%d-%s.csv", ts.Unix(), name),
	)
}
