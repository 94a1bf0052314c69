package history

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// LocalStore keeps records in a directory on the machine running the deploy.
type LocalStore struct {
	root string
}

// NewLocalStore creates a store rooted at dir. The directory is created on
// the first write.
func NewLocalStore(dir string) *LocalStore {
	return &LocalStore{root: dir}
}

// Put writes data to root/key.
func (s *LocalStore) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}
	if err := os.WriteFile(p, data, 0644); err != nil {
		return fmt.Errorf("failed to write history file: %w", err)
	}
	return nil
}
