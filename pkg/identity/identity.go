// Package identity locates the SSH private key used for a deployment.
//
// Keys can come from a file on disk, an environment variable, HashiCorp
// Vault or AWS Secrets Manager. Keys fetched from anywhere but a file are
// written to a private temporary file, because ssh and rsync only accept
// a key path; Close removes it.
package identity

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"

	"golang.org/x/crypto/ssh"

	"github.com/jvreagan/ssh-deploy/pkg/logging"
	"github.com/jvreagan/ssh-deploy/pkg/manifest"
)

// Identity is a private key file ready to be passed to ssh -i.
type Identity struct {
	// Path to the key file
	Path string

	// Source the key was loaded from
	Source string

	temporary bool
}

// Close removes the key file if it was created by Resolve.
func (i *Identity) Close() error {
	if i == nil || !i.temporary {
		return nil
	}
	if err := os.Remove(i.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove temporary key: %w", err)
	}
	return nil
}

// Resolve loads the private key described by m.Identity and validates it.
// The caller must Close the returned Identity.
func Resolve(ctx context.Context, m *manifest.Manifest) (*Identity, error) {
	cfg := m.Identity

	var (
		id  *Identity
		err error
	)
	switch cfg.Source {
	case manifest.IdentityFile:
		var p string
		if p, err = m.ResolvePath(cfg.Path); err == nil {
			id = &Identity{Path: p, Source: cfg.Source}
		}
	case manifest.IdentityEnvironment:
		id, err = fromEnvironment(cfg.EnvVar)
	case manifest.IdentityVault:
		id, err = fromVault(ctx, cfg.Vault)
	case manifest.IdentitySecretsManager:
		id, err = fromSecretsManager(ctx, cfg.SecretsManager)
	default:
		return nil, fmt.Errorf("unknown identity source: %s", cfg.Source)
	}
	if err != nil {
		return nil, err
	}

	if err := Validate(id.Path); err != nil {
		id.Close()
		return nil, err
	}
	logging.Debug("identity resolved", "source", id.Source, "temporary", id.temporary)
	return id, nil
}

func fromEnvironment(name string) (*Identity, error) {
	key := os.Getenv(name)
	if strings.TrimSpace(key) == "" {
		return nil, fmt.Errorf("environment variable %s is empty", name)
	}
	return writeTemp([]byte(key), manifest.IdentityEnvironment)
}

// writeTemp stores key material in a file only the current user can read.
func writeTemp(key []byte, source string) (*Identity, error) {
	f, err := os.CreateTemp("", "ssh-deploy-key-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary key file: %w", err)
	}
	id := &Identity{Path: f.Name(), Source: source, temporary: true}

	// OpenSSH rejects keys without a final newline
	if len(key) > 0 && key[len(key)-1] != '\n' {
		key = append(key, '\n')
	}

	if err := f.Chmod(0600); err != nil && runtime.GOOS != "windows" {
		f.Close()
		id.Close()
		return nil, fmt.Errorf("failed to restrict key file permissions: %w", err)
	}
	if _, err := f.Write(key); err != nil {
		f.Close()
		id.Close()
		return nil, fmt.Errorf("failed to write temporary key file: %w", err)
	}
	if err := f.Close(); err != nil {
		id.Close()
		return nil, fmt.Errorf("failed to write temporary key file: %w", err)
	}
	return id, nil
}

// Validate checks that path is a readable private key that ssh will accept.
// Encrypted keys are accepted; ssh prompts for their passphrase.
func Validate(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("identity file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("identity file %s is a directory", path)
	}
	if runtime.GOOS != "windows" && info.Mode().Perm()&0077 != 0 {
		return fmt.Errorf("identity file %s has permissions %#o; ssh requires 0600 or stricter", path, info.Mode().Perm())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read identity file: %w", err)
	}
	if _, err := ssh.ParsePrivateKey(data); err != nil {
		var missing *ssh.PassphraseMissingError
		if errors.As(err, &missing) {
			return nil
		}
		return fmt.Errorf("identity file %s is not a valid private key: %w", path, err)
	}
	return nil
}
