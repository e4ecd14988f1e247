package cache

import (
	"context"
	"time"

	perrors "search-agent/pkg/errors"
)

// ErrMiss 键不存在或已过期
var ErrMiss = perrors.ErrNotFound

// Store 工具结果缓存接口；值以 JSON 存储
type Store interface {
	// Set 设置缓存，expiration<=0 表示不过期
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	// Get 获取缓存，未命中返回 ErrMiss
	Get(ctx context.Context, key string, dest interface{}) error
	// Close 关闭缓存连接
	Close() error
}
