package audit

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/optiforge/platform/optiforge/internal/canonical"
	"github.com/optiforge/platform/optiforge/internal/models"
)

type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Archiver writes finished runs as canonical JSON to
//
//	s3://<bucket>/<prefix>/runs/YYYY/MM/DD/<runID>.json
//
// dated by the run's last update.
type S3Archiver struct {
	bucket   string
	prefix   string
	uploader uploader
}

// NewS3Archiver loads AWS settings from the environment. A non-empty
// endpoint targets an S3-compatible store with path-style addressing.
func NewS3Archiver(ctx context.Context, bucket, prefix, endpoint string) (*S3Archiver, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket required")
	}
	cfg, err := awsConfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Archiver{bucket: bucket, prefix: prefix, uploader: manager.NewUploader(client)}, nil
}

// ObjectKey is the key a run is archived under.
func (s *S3Archiver) ObjectKey(rec models.RunRecord) string {
	ts := rec.UpdatedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	year, month, day := ts.UTC().Date()
	return path.Join(s.prefix, "runs",
		fmt.Sprintf("%04d", year),
		fmt.Sprintf("%02d", int(month)),
		fmt.Sprintf("%02d", day),
		rec.ID+".json",
	)
}

func (s *S3Archiver) ArchiveRun(ctx context.Context, rec models.RunRecord) (string, error) {
	if rec.ID == "" {
		return "", fmt.Errorf("run id required")
	}
	body, err := canonical.Run(rec)
	if err != nil {
		return "", fmt.Errorf("encode archive: %w", err)
	}
	key := s.ObjectKey(rec)
	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(s.bucket),
		Key:                  aws.String(key),
		Body:                 bytes.NewReader(body),
		ContentType:          aws.String("application/json"),
		ServerSideEncryption: s3types.ServerSideEncryptionAes256,
		Metadata: map[string]string{
			"run-status": string(rec.Status),
		},
	})
	if err != nil {
		return "", fmt.Errorf("s3 upload failed: %w", err)
	}
	return key, nil
}
