package identity

import (
	"context"
	"fmt"

	vault "github.com/hashicorp/vault/api"

	"github.com/jvreagan/ssh-deploy/pkg/manifest"
)

// vaultClient wraps the Vault API client for reading one KV v2 secret.
type vaultClient struct {
	client *vault.Client
	config *manifest.VaultConfig
}

// newVaultClient creates a client for cfg but does not authenticate yet.
func newVaultClient(cfg *manifest.VaultConfig) (*vaultClient, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("vault address is required")
	}

	vaultConfig := vault.DefaultConfig()
	vaultConfig.Address = cfg.Address

	if cfg.TLSSkipVerify {
		if err := vaultConfig.ConfigureTLS(&vault.TLSConfig{Insecure: true}); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := vault.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	return &vaultClient{client: client, config: cfg}, nil
}

// authenticate logs in with the configured method.
//
// Supported authentication methods:
//   - token: uses auth.token, or VAULT_TOKEN when unset
//   - approle: uses AppRole role_id and secret_id
func (c *vaultClient) authenticate(ctx context.Context) error {
	switch c.config.Auth.Method {
	case "", "token":
		if c.config.Auth.Token != "" {
			c.client.SetToken(c.config.Auth.Token)
		}
		if c.client.Token() == "" {
			return fmt.Errorf("vault token is required for token authentication")
		}
		return nil

	case "approle":
		if c.config.Auth.RoleID == "" || c.config.Auth.SecretID == "" {
			return fmt.Errorf("role_id and secret_id are required for approle authentication")
		}
		resp, err := c.client.Logical().WriteWithContext(ctx, "auth/approle/login", map[string]interface{}{
			"role_id":   c.config.Auth.RoleID,
			"secret_id": c.config.Auth.SecretID,
		})
		if err != nil {
			return fmt.Errorf("approle login failed: %w", err)
		}
		if resp == nil || resp.Auth == nil {
			return fmt.Errorf("approle login returned no auth token")
		}
		c.client.SetToken(resp.Auth.ClientToken)
		return nil

	default:
		return fmt.Errorf("unsupported auth method: %s", c.config.Auth.Method)
	}
}

// readKey fetches the configured key from the KV v2 secret.
// The path must include "/data/" after the mount point.
func (c *vaultClient) readKey(ctx context.Context) (string, error) {
	secret, err := c.client.Logical().ReadWithContext(ctx, c.config.Path)
	if err != nil {
		return "", fmt.Errorf("failed to read secret at %s: %w", c.config.Path, err)
	}
	if secret == nil {
		return "", fmt.Errorf("secret not found at path: %s", c.config.Path)
	}

	// For KV v2, secrets are nested under "data"
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return "", fmt.Errorf("unexpected secret format at path: %s", c.config.Path)
	}
	value, ok := data[c.config.Key]
	if !ok {
		return "", fmt.Errorf("key %s not found in secret at path: %s", c.config.Key, c.config.Path)
	}
	valueStr, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("value for key %s is not a string at path: %s", c.config.Key, c.config.Path)
	}
	return valueStr, nil
}

func fromVault(ctx context.Context, cfg *manifest.VaultConfig) (*Identity, error) {
	if cfg == nil {
		return nil, fmt.Errorf("vault configuration is required")
	}
	client, err := newVaultClient(cfg)
	if err != nil {
		return nil, err
	}
	if err := client.authenticate(ctx); err != nil {
		return nil, err
	}
	key, err := client.readKey(ctx)
	if err != nil {
		return nil, err
	}
	return writeTemp([]byte(key), manifest.IdentityVault)
}
