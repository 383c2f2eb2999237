package config

import (
	"context"
	"fmt"

	vault "github.com/hashicorp/vault/api"
)

// VaultClient wraps HashiCorp Vault client
type VaultClient struct {
	client *vault.Client
	config *VaultConfig
}

// NewVaultClient creates a new Vault client. It returns nil when Vault is disabled.
func NewVaultClient(cfg *VaultConfig) (*VaultClient, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	vaultCfg := vault.DefaultConfig()
	vaultCfg.Address = cfg.Address

	client, err := vault.NewClient(vaultCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}

	token, err := cfg.GetVaultToken()
	if err != nil {
		return nil, err
	}
	client.SetToken(token)

	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}

	return &VaultClient{
		client: client,
		config: cfg,
	}, nil
}

// GetSecret reads a KV v2 secret under the "secret" mount.
func (vc *VaultClient) GetSecret(ctx context.Context, path string) (map[string]interface{}, error) {
	if vc == nil {
		return nil, fmt.Errorf("vault client is not initialized")
	}

	secret, err := vc.client.KVv2("secret").Get(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secret from vault: %w", err)
	}

	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("secret not found: %s", path)
	}

	return secret.Data, nil
}

// SecretReader reads one secret. *VaultClient implements it.
type SecretReader interface {
	GetSecret(ctx context.Context, path string) (map[string]interface{}, error)
}

// ApplyVaultSecrets overlays the broker address and trace stream stored at
// broker.vault_path. A nil reader leaves cfg untouched.
func ApplyVaultSecrets(ctx context.Context, cfg *Config, reader SecretReader) error {
	if reader == nil || cfg.Broker.VaultPath == "" {
		return nil
	}
	if vc, ok := reader.(*VaultClient); ok && vc == nil {
		return nil
	}

	secret, err := reader.GetSecret(ctx, cfg.Broker.VaultPath)
	if err != nil {
		return fmt.Errorf("failed to get broker secrets: %w", err)
	}

	if address, ok := secret["address"].(string); ok && address != "" {
		cfg.Broker.Address = address
	}
	if stream, ok := secret["trace_stream"].(string); ok && stream != "" {
		cfg.Broker.TraceStream = stream
	}

	return cfg.Validate()
}
