package history

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/jvreagan/ssh-deploy/pkg/logging"
	"github.com/jvreagan/ssh-deploy/pkg/manifest"
)

type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store writes records to an Amazon S3 bucket.
type S3Store struct {
	client s3API
	bucket string
}

// NewS3Store creates an S3 store for cfg.Bucket.
// If credentials are set in the manifest they are used. Otherwise the AWS
// SDK default credential chain applies (environment variables, shared
// credentials file, or IAM role).
func NewS3Store(ctx context.Context, cfg *manifest.HistoryConfig) (*S3Store, error) {
	opts := []func(*config.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		logging.Debug("using S3 credentials from manifest")
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &S3Store{client: s3.NewFromConfig(awsCfg), bucket: cfg.Bucket}, nil
}

// Put uploads data to bucket/key.
func (s *S3Store) Put(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload to s3://%s/%s: %w", s.bucket, key, err)
	}
	return nil
}
