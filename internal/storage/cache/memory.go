package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// MemoryStore 内存缓存存储实现
type MemoryStore struct {
	items map[string]*cacheItem
	mu    sync.RWMutex
	now   func() time.Time
}

// cacheItem 缓存项
type cacheItem struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryStore 创建新的内存缓存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items: make(map[string]*cacheItem),
		now:   time.Now,
	}
}

// Set 设置缓存
func (s *MemoryStore) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	item := &cacheItem{value: data}
	if expiration > 0 {
		item.expiresAt = s.now().Add(expiration)
	}

	s.mu.Lock()
	s.items[key] = item
	s.mu.Unlock()
	return nil
}

// Get 获取缓存；过期项在读取时惰性删除
func (s *MemoryStore) Get(ctx context.Context, key string, dest interface{}) error {
	s.mu.RLock()
	item, exists := s.items[key]
	s.mu.RUnlock()
	if !exists {
		return ErrMiss
	}
	if !item.expiresAt.IsZero() && s.now().After(item.expiresAt) {
		s.mu.Lock()
		if cur, ok := s.items[key]; ok && cur == item {
			delete(s.items, key)
		}
		s.mu.Unlock()
		return ErrMiss
	}
	if err := json.Unmarshal(item.value, dest); err != nil {
		return fmt.Errorf("failed to unmarshal cache value: %w", err)
	}
	return nil
}

// Len 当前条目数（含未清理的过期项）
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Close 关闭缓存连接
func (s *MemoryStore) Close() error {
	return nil
}
