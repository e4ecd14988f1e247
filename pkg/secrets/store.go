// Copyright 2026 fanjia1024
// Secret resolution for model and retrieval API credentials

package secrets

import (
	"context"
	"fmt"
	"strings"
)

// RefPrefix 配置值以此前缀开头时从 Store 解析，例如 "secret:serper_api_key"
const RefPrefix = "secret:"

// Store 只读 Secret 存储接口
type Store interface {
	// Get 获取 secret 值
	Get(ctx context.Context, key string) (string, error)
}

// Config Secret Store 配置
type Config struct {
	Provider string            `mapstructure:"provider"` // vault | env | memory
	Config   map[string]string `mapstructure:"config"`   // Provider-specific config
}

// NewStore 创建 Secret Store
func NewStore(ctx context.Context, config Config) (Store, error) {
	switch config.Provider {
	case "", "env":
		return EnvStore{}, nil
	case "memory":
		return NewMemoryStore(config.Config), nil
	case "vault":
		return NewVaultStore(ctx, VaultConfig{
			Address:    config.Config["address"],
			Token:      config.Config["token"],
			PathPrefix: config.Config["path_prefix"],
			KVVersion:  config.Config["kv_version"],
		})
	default:
		return nil, fmt.Errorf("unsupported secret provider: %s", config.Provider)
	}
}

// Resolve 解析配置值：RefPrefix 引用从 store 读取，未展开的 ${VAR} 视为空，其余原样返回
func Resolve(ctx context.Context, store Store, value string) (string, error) {
	switch {
	case strings.HasPrefix(value, RefPrefix):
		if store == nil {
			return "", fmt.Errorf("secret reference %q without a store", value)
		}
		return store.Get(ctx, strings.TrimPrefix(value, RefPrefix))
	case strings.HasPrefix(value, "${"):
		return "", nil
	default:
		return value, nil
	}
}
