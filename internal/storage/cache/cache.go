package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"search-agent/pkg/config"
)

// NewCache 根据配置创建缓存；type=none 返回 nil（调用方视为不缓存）
func NewCache(ctx context.Context, cfg config.CacheConfig) (Store, error) {
	switch cfg.Type {
	case "none":
		return nil, nil
	case "", "memory":
		return NewMemoryStore(), nil
	case "redis":
		s, err := NewRedisStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}

// Key 由工具名与参数生成缓存键；encoding/json 对 map 键排序，参数顺序不影响结果
func Key(toolName string, args map[string]any) (string, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(append([]byte(toolName+"\x00"), raw...))
	return "tool:" + toolName + ":" + hex.EncodeToString(sum[:16]), nil
}
