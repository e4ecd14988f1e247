// Copyright 2026 fanjia1024
// HashiCorp Vault secret store

package secrets

import (
	"context"
	"fmt"
	"strings"

	vault "github.com/hashicorp/vault/api"
)

// VaultConfig Vault 配置
type VaultConfig struct {
	Address    string // Vault server address (e.g., http://vault:8200)
	Token      string
	PathPrefix string // 默认 "secret"
	KVVersion  string // "1" | "2"，默认 2
}

type vaultStore struct {
	client     *vault.Client
	pathPrefix string
	kv2        bool
}

// NewVaultStore 创建 Vault secret store 并检查连通性
func NewVaultStore(ctx context.Context, config VaultConfig) (Store, error) {
	if config.Address == "" {
		config.Address = "http://localhost:8200"
	}

	cfg := vault.DefaultConfig()
	cfg.Address = config.Address

	client, err := vault.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	if config.Token != "" {
		client.SetToken(config.Token)
	}
	if _, err := client.Sys().HealthWithContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to vault: %w", err)
	}

	prefix := "secret"
	if config.PathPrefix != "" {
		prefix = strings.TrimSuffix(config.PathPrefix, "/")
	}
	return &vaultStore{client: client, pathPrefix: prefix, kv2: config.KVVersion != "1"}, nil
}

func (v *vaultStore) Get(ctx context.Context, key string) (string, error) {
	secret, err := v.client.Logical().ReadWithContext(ctx, v.buildPath(key))
	if err != nil {
		return "", fmt.Errorf("failed to read secret from vault: %w", err)
	}
	if secret == nil {
		return "", fmt.Errorf("secret not found: %s", key)
	}

	data := secret.Data
	if v.kv2 {
		if inner, ok := data["data"].(map[string]interface{}); ok {
			data = inner
		}
	}
	if val, ok := data["value"].(string); ok {
		return val, nil
	}
	for _, val := range data {
		if str, ok := val.(string); ok {
			return str, nil
		}
	}
	return "", fmt.Errorf("secret value not found: %s", key)
}

func (v *vaultStore) buildPath(key string) string {
	if v.kv2 {
		return fmt.Sprintf("%s/data/%s", v.pathPrefix, key)
	}
	return fmt.Sprintf("%s/%s", v.pathPrefix, key)
}
