package history

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/jvreagan/ssh-deploy/pkg/manifest"
)

// GCSStore writes records to a Google Cloud Storage bucket.
type GCSStore struct {
	client *storage.Client
	bucket string
}

// NewGCSStore creates a GCS store for cfg.Bucket. A service account key
// file is used when cfg.CredentialsFile is set, otherwise Application
// Default Credentials.
func NewGCSStore(ctx context.Context, cfg *manifest.HistoryConfig) (*GCSStore, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &GCSStore{client: client, bucket: cfg.Bucket}, nil
}

// Put uploads data to gs://bucket/key.
func (s *GCSStore) Put(ctx context.Context, key string, data []byte) error {
	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = "application/json"

	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("failed to upload to gs://%s/%s: %w", s.bucket, key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize gs://%s/%s: %w", s.bucket, key, err)
	}
	return nil
}

// Close closes the storage client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}
