//go:build integration

package history

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"

	"github.com/jvreagan/ssh-deploy/pkg/manifest"
)

// TestStoreIntegration writes a record to each cloud store that has
// credentials available.
//
// Environment variables:
//   - HISTORY_S3_BUCKET (and AWS_REGION plus the usual AWS credentials)
//   - HISTORY_GCS_BUCKET (and GOOGLE_APPLICATION_CREDENTIALS)
//   - HISTORY_AZURE_ACCOUNT_URL and HISTORY_AZURE_CONTAINER
//
// Run with: go test -tags=integration ./pkg/history -v
func TestStoreIntegration(t *testing.T) {
	configs := map[string]*manifest.HistoryConfig{}
	if b := os.Getenv("HISTORY_S3_BUCKET"); b != "" {
		configs["s3"] = &manifest.HistoryConfig{Provider: manifest.HistoryS3, Bucket: b, Region: os.Getenv("AWS_REGION")}
	}
	if b := os.Getenv("HISTORY_GCS_BUCKET"); b != "" {
		configs["gcs"] = &manifest.HistoryConfig{Provider: manifest.HistoryGCS, Bucket: b}
	}
	if u := os.Getenv("HISTORY_AZURE_ACCOUNT_URL"); u != "" {
		configs["azure"] = &manifest.HistoryConfig{Provider: manifest.HistoryAzure, AccountURL: u, Container: os.Getenv("HISTORY_AZURE_CONTAINER")}
	}
	if len(configs) == 0 {
		t.Skip("Skipping history integration test: no store configured")
	}

	for name, cfg := range configs {
		t.Run(name, func(t *testing.T) {
			cfg.Prefix = "ssh-deploy-integration"
			ctx := context.Background()

			r, err := NewRecorder(ctx, &manifest.Manifest{History: cfg})
			if err != nil {
				t.Fatalf("NewRecorder() failed: %v", err)
			}
			defer r.Close()

			result := sampleResult()
			result.ID = uuid.NewString()
			if err := r.Record(ctx, result); err != nil {
				t.Fatalf("Record() failed: %v", err)
			}
			t.Logf("Recorded %s", r.Key(result))
		})
	}
}
