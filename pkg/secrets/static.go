// Copyright 2026 fanjia1024
// Environment and in-memory secret stores

package secrets

import (
	"context"
	"fmt"
	"os"
	"sync"
)

// EnvStore 从环境变量读取
type EnvStore struct{}

func (EnvStore) Get(ctx context.Context, key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("environment variable not set: %s", key)
	}
	return value, nil
}

// MemoryStore 内存 secret store（测试与单次 ask 注入）
type MemoryStore struct {
	mu      sync.RWMutex
	secrets map[string]string
}

// NewMemoryStore 创建内存 secret store，seed 可为 nil
func NewMemoryStore(seed map[string]string) *MemoryStore {
	m := &MemoryStore{secrets: make(map[string]string, len(seed))}
	for k, v := range seed {
		m.secrets[k] = v
	}
	return m
}

func (m *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.secrets[key]
	if !ok {
		return "", fmt.Errorf("secret not found: %s", key)
	}
	return value, nil
}

// Set 写入 secret
func (m *MemoryStore) Set(key, value string) {
	m.mu.Lock()
	m.secrets[key] = value
	m.mu.Unlock()
}
