// Package history stores a JSON record of every deployment run.
//
// Records are written to {prefix}/{app}/{deployDir}.json in one of the
// supported stores: a local directory, Amazon S3, Google Cloud Storage or
// Azure Blob Storage.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"

	"github.com/jvreagan/ssh-deploy/pkg/logging"
	"github.com/jvreagan/ssh-deploy/pkg/manifest"
	"github.com/jvreagan/ssh-deploy/pkg/types"
)

// Store writes an object under a slash-separated key.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
}

// Recorder serializes deployment results into a Store.
type Recorder struct {
	store  Store
	name   string
	prefix string
}

// NewRecorderWithStore creates a Recorder backed by store.
func NewRecorderWithStore(store Store, name, prefix string) *Recorder {
	return &Recorder{store: store, name: name, prefix: prefix}
}

// NewRecorder creates a Recorder for the history section of m.
//
// Supported providers: local, s3, gcs, azure
//
// Returns an error if m has no history section or the store cannot be
// initialized.
func NewRecorder(ctx context.Context, m *manifest.Manifest) (*Recorder, error) {
	cfg := m.History
	if cfg == nil {
		return nil, fmt.Errorf("history is not configured")
	}

	var (
		store Store
		err   error
	)
	switch cfg.Provider {
	case manifest.HistoryLocal:
		var dir string
		if dir, err = m.ResolvePath(cfg.Path); err == nil {
			store = NewLocalStore(dir)
		}
	case manifest.HistoryS3:
		store, err = NewS3Store(ctx, cfg)
	case manifest.HistoryGCS:
		store, err = NewGCSStore(ctx, cfg)
	case manifest.HistoryAzure:
		store, err = NewAzureStore(cfg)
	default:
		return nil, fmt.Errorf("unknown history provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return NewRecorderWithStore(store, cfg.Provider, cfg.Prefix), nil
}

// Key returns the object key for a deployment result.
func (r *Recorder) Key(result *types.DeploymentResult) string {
	return path.Join(r.prefix, result.ApplicationName, result.DeployDir+".json")
}

// Record stores result as indented JSON.
func (r *Recorder) Record(ctx context.Context, result *types.DeploymentResult) error {
	if result == nil || result.DeployDir == "" {
		return fmt.Errorf("deployment result has no deploy directory")
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode deployment result: %w", err)
	}

	key := r.Key(result)
	if err := r.store.Put(ctx, key, data); err != nil {
		return fmt.Errorf("failed to write %s history record %s: %w", r.name, key, err)
	}
	logging.Debug("deployment recorded", "store", r.name, "key", key)
	return nil
}

// Close releases the underlying store's client, if it holds one.
func (r *Recorder) Close() error {
	if c, ok := r.store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
