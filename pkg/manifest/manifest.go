// Package manifest provides types and functions for parsing and validating
// ssh-deploy manifest files. A manifest is a YAML file describing one
// application, the host it is deployed to, how to authenticate, and the
// commands that stop and start it.
package manifest

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"

	"github.com/jvreagan/ssh-deploy/pkg/deployer"
)

// Identity sources
const (
	IdentityFile           = "file"
	IdentityEnvironment    = "environment"
	IdentityVault          = "vault"
	IdentitySecretsManager = "secrets-manager"
)

// History providers
const (
	HistoryLocal = "local"
	HistoryS3    = "s3"
	HistoryGCS   = "gcs"
	HistoryAzure = "azure"
)

var appNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Manifest represents the complete deployment configuration.
//
// Example:
//
//	version: "1.0"
//	application:
//	  name: api
//	  dir: ./api
//	target:
//	  user: deploy
//	  host: 203.0.113.10
//	  root: /srv/apps
//	identity:
//	  source: file
//	  path: ~/.ssh/deploy_ed25519
//	commands:
//	  down: pm2 delete api || true
//	  up: cd {{.DeployPath}} && pm2 start ecosystem.config.js
type Manifest struct {
	// Version of the manifest schema (currently "1.0")
	Version string `yaml:"version"`

	// Application being deployed
	Application ApplicationConfig `yaml:"application"`

	// Remote host and directory
	Target TargetConfig `yaml:"target"`

	// Where the SSH private key comes from
	Identity IdentityConfig `yaml:"identity"`

	// Stop and start commands
	Commands CommandsConfig `yaml:"commands"`

	// Pruning behavior - optional
	Prune PruneConfig `yaml:"prune,omitempty"`

	// Deployment history storage - optional
	History *HistoryConfig `yaml:"history,omitempty"`

	// Directory of the manifest file; relative paths resolve against it
	baseDir string
}

// ApplicationConfig defines the application being deployed.
type ApplicationConfig struct {
	// Name of the application; prefixes every deployment directory
	Name string `yaml:"name"`

	// Local directory uploaded to the host
	Dir string `yaml:"dir"`
}

// TargetConfig defines the host the application is deployed to.
type TargetConfig struct {
	// Remote login user
	User string `yaml:"user"`

	// Remote host name or address
	Host string `yaml:"host"`

	// Absolute remote directory holding all deployment directories
	Root string `yaml:"root"`
}

// IdentityConfig specifies where the SSH private key is loaded from.
type IdentityConfig struct {
	// Source of the key: file, environment, vault, secrets-manager (default: file)
	Source string `yaml:"source"`

	// file: path to the private key
	Path string `yaml:"path,omitempty"`

	// environment: variable holding the PEM-encoded key
	EnvVar string `yaml:"env_var,omitempty"`

	// vault: KV v2 location of the key
	Vault *VaultConfig `yaml:"vault,omitempty"`

	// secrets-manager: AWS Secrets Manager location of the key
	SecretsManager *SecretsManagerConfig `yaml:"secrets_manager,omitempty"`
}

// VaultConfig locates a private key in HashiCorp Vault.
type VaultConfig struct {
	// Vault server address (e.g., "https://vault.example.com:8200")
	Address string `yaml:"address"`

	// Authentication settings
	Auth VaultAuthConfig `yaml:"auth"`

	// Full KV v2 path, including "/data/" (e.g., "secret/data/deploy/api")
	Path string `yaml:"path"`

	// Key within the secret holding the PEM text (default: "private_key")
	Key string `yaml:"key,omitempty"`

	// Skip TLS verification (not recommended for production)
	TLSSkipVerify bool `yaml:"tls_skip_verify,omitempty"`
}

// VaultAuthConfig holds Vault credentials. Token falls back to VAULT_TOKEN.
type VaultAuthConfig struct {
	// token or approle (default: token)
	Method   string `yaml:"method"`
	Token    string `yaml:"token,omitempty"`
	RoleID   string `yaml:"role_id,omitempty"`
	SecretID string `yaml:"secret_id,omitempty"`
}

// SecretsManagerConfig locates a private key in AWS Secrets Manager.
type SecretsManagerConfig struct {
	// Secret name or ARN
	SecretID string `yaml:"secret_id"`

	// AWS region - optional, defaults to the SDK's configuration
	Region string `yaml:"region,omitempty"`

	// Field of a JSON secret holding the key; empty means the secret is the raw key
	Key string `yaml:"key,omitempty"`
}

// CommandsConfig holds the stop and start commands. Both are Go templates
// rendered with DeployPath, DeployDir, AppName and Root.
type CommandsConfig struct {
	Down string `yaml:"down"`
	Up   string `yaml:"up"`
}

// PruneConfig controls removal of old deployment directories.
type PruneConfig struct {
	// Remove directories with sudo (default: true)
	Sudo *bool `yaml:"sudo,omitempty"`
}

// HistoryConfig selects where deployment records are stored.
type HistoryConfig struct {
	// local, s3, gcs or azure
	Provider string `yaml:"provider"`

	// local: directory for records
	Path string `yaml:"path,omitempty"`

	// s3, gcs: bucket name
	Bucket string `yaml:"bucket,omitempty"`

	// Key prefix inside the bucket, container or directory - optional
	Prefix string `yaml:"prefix,omitempty"`

	// s3: region - optional
	Region string `yaml:"region,omitempty"`

	// s3: static credentials - optional, the default credential chain is used otherwise
	AccessKeyID     string `yaml:"access_key_id,omitempty"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty"`

	// gcs: service account key file - optional, application default credentials otherwise
	CredentialsFile string `yaml:"credentials_file,omitempty"`

	// azure: storage account URL (e.g., "https://acct.blob.core.windows.net/")
	AccountURL string `yaml:"account_url,omitempty"`

	// azure: blob container
	Container string `yaml:"container,omitempty"`
}

// Load reads a manifest file from disk, parses it, and validates it.
// Returns an error if the file cannot be read, is invalid YAML, or fails validation.
//
// Example:
//
//	m, err := manifest.Load("deploy-manifest.yaml")
//	if err != nil {
//	  log.Fatal(err)
//	}
func Load(filename string) (*Manifest, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest file: %w", err)
	}

	m, err := Parse(data)
	if err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve manifest path: %w", err)
	}
	m.baseDir = filepath.Dir(abs)
	return m, nil
}

// Parse decodes and validates manifest YAML. Relative paths in the result
// resolve against the current directory.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	m.applyDefaults()

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	return &m, nil
}

func (m *Manifest) applyDefaults() {
	if m.Identity.Source == "" {
		m.Identity.Source = IdentityFile
	}
	if m.Identity.Vault != nil {
		if m.Identity.Vault.Key == "" {
			m.Identity.Vault.Key = "private_key"
		}
		if m.Identity.Vault.Auth.Method == "" {
			m.Identity.Vault.Auth.Method = "token"
		}
	}
}

// Validate checks if the manifest has all required fields and valid values.
// Returns an error describing what is invalid.
func (m *Manifest) Validate() error {
	if m.Application.Name == "" {
		return fmt.Errorf("application.name is required")
	}
	if !appNamePattern.MatchString(m.Application.Name) {
		return fmt.Errorf("application.name %q may only contain letters, digits, '.', '_' and '-'", m.Application.Name)
	}
	if m.Application.Dir == "" {
		return fmt.Errorf("application.dir is required")
	}
	if m.Target.User == "" {
		return fmt.Errorf("target.user is required")
	}
	if m.Target.Host == "" {
		return fmt.Errorf("target.host is required")
	}
	if m.Target.Root == "" {
		return fmt.Errorf("target.root is required")
	}
	if !path.IsAbs(m.Target.Root) || path.Clean(m.Target.Root) == "/" {
		return fmt.Errorf("target.root must be an absolute path below /")
	}
	if m.Commands.Down == "" {
		return fmt.Errorf("commands.down is required")
	}
	if m.Commands.Up == "" {
		return fmt.Errorf("commands.up is required")
	}

	if err := m.validateIdentity(); err != nil {
		return err
	}
	if m.History != nil {
		if err := m.History.validate(); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manifest) validateIdentity() error {
	id := m.Identity
	switch id.Source {
	case IdentityFile:
		if id.Path == "" {
			return fmt.Errorf("identity.path is required for file identities")
		}
	case IdentityEnvironment:
		if id.EnvVar == "" {
			return fmt.Errorf("identity.env_var is required for environment identities")
		}
	case IdentityVault:
		if id.Vault == nil {
			return fmt.Errorf("identity.vault is required for vault identities")
		}
		if id.Vault.Address == "" {
			return fmt.Errorf("identity.vault.address is required")
		}
		if id.Vault.Path == "" {
			return fmt.Errorf("identity.vault.path is required")
		}
		switch id.Vault.Auth.Method {
		case "token":
		case "approle":
			if id.Vault.Auth.RoleID == "" || id.Vault.Auth.SecretID == "" {
				return fmt.Errorf("identity.vault.auth.role_id and secret_id are required for approle")
			}
		default:
			return fmt.Errorf("unsupported vault auth method: %s", id.Vault.Auth.Method)
		}
	case IdentitySecretsManager:
		if id.SecretsManager == nil || id.SecretsManager.SecretID == "" {
			return fmt.Errorf("identity.secrets_manager.secret_id is required for secrets-manager identities")
		}
	default:
		return fmt.Errorf("unknown identity source: %s", id.Source)
	}
	return nil
}

func (h *HistoryConfig) validate() error {
	switch h.Provider {
	case HistoryLocal:
		if h.Path == "" {
			return fmt.Errorf("history.path is required for local history")
		}
	case HistoryS3, HistoryGCS:
		if h.Bucket == "" {
			return fmt.Errorf("history.bucket is required for %s history", h.Provider)
		}
	case HistoryAzure:
		if h.AccountURL == "" || h.Container == "" {
			return fmt.Errorf("history.account_url and history.container are required for azure history")
		}
	default:
		return fmt.Errorf("unknown history provider: %s", h.Provider)
	}
	return nil
}

// SudoPrune reports whether old deployments are removed with sudo.
func (m *Manifest) SudoPrune() bool {
	return m.Prune.Sudo == nil || *m.Prune.Sudo
}

// ResolvePath expands a leading ~ and makes p absolute relative to the
// manifest's directory.
func (m *Manifest) ResolvePath(p string) (string, error) {
	expanded, err := homedir.Expand(p)
	if err != nil {
		return "", fmt.Errorf("failed to expand %s: %w", p, err)
	}
	if filepath.IsAbs(expanded) {
		return expanded, nil
	}
	base := m.baseDir
	if base == "" {
		if base, err = os.Getwd(); err != nil {
			return "", fmt.Errorf("failed to get working directory: %w", err)
		}
	}
	return filepath.Join(base, expanded), nil
}

// Config builds the deployer configuration for this manifest, using the
// already resolved identity file.
func (m *Manifest) Config(identityFile string) (deployer.Config, error) {
	appDir, err := m.ResolvePath(m.Application.Dir)
	if err != nil {
		return deployer.Config{}, err
	}
	down, err := deployer.NewTemplateCommand("down", m.Commands.Down)
	if err != nil {
		return deployer.Config{}, err
	}
	up, err := deployer.NewTemplateCommand("up", m.Commands.Up)
	if err != nil {
		return deployer.Config{}, err
	}

	return deployer.Config{
		AppName:      m.Application.Name,
		AppDir:       appDir,
		User:         m.Target.User,
		Host:         m.Target.Host,
		Root:         m.Target.Root,
		IdentityFile: identityFile,
		Down:         down,
		Up:           up,
	}, nil
}

// CheckAppDir verifies that the application directory exists and is a
// directory.
func (m *Manifest) CheckAppDir() error {
	dir, err := m.ResolvePath(m.Application.Dir)
	if err != nil {
		return err
	}
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("application directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("application directory %s is not a directory", dir)
	}
	return nil
}
