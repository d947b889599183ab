// storage/archive.go
package storage

import (
	"bytes"
	"context"
	"fmt"
	"log"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"whoosh-backend/config"
)

// MatchArchive writes finished matches as JSON objects to an S3-compatible
// bucket. Cloudflare R2 works with Region "auto" and its account endpoint.
type MatchArchive struct {
	client *s3.Client
	bucket string
}

func NewMatchArchive(ctx context.Context, cfg config.ArchiveConfig) (*MatchArchive, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("archive bucket not configured")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load archive config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	log.Printf("🗄️ [ARCHIVE] archiving matches to bucket %s", cfg.Bucket)
	return &MatchArchive{client: client, bucket: cfg.Bucket}, nil
}

// Upload stores payload under key.
func (a *MatchArchive) Upload(ctx context.Context, key string, payload []byte) error {
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return nil
}
