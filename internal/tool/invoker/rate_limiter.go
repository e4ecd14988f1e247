// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package invoker

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// LimitConfig 单个工具的限流配置
type LimitConfig struct {
	QPS           float64 // 每秒请求数，<=0 不限
	MaxConcurrent int     // 最大并发，<=0 不限
	Burst         int     // 令牌桶容量，默认取 QPS
}

// RateLimiter 工具维度的限流器（QPS + 并发），同一 API 凭证下的所有 worker 共享
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*toolLimiter
	defaults LimitConfig
}

type toolLimiter struct {
	rateLimiter *rate.Limiter
	semaphore   chan struct{}
}

// NewRateLimiter 创建限流器；未单独配置的工具使用 defaults
func NewRateLimiter(configs map[string]LimitConfig, defaults LimitConfig) *RateLimiter {
	l := &RateLimiter{limiters: make(map[string]*toolLimiter), defaults: defaults}
	for name, cfg := range configs {
		l.limiters[name] = newToolLimiter(cfg)
	}
	return l
}

func newToolLimiter(cfg LimitConfig) *toolLimiter {
	tl := &toolLimiter{}
	if cfg.QPS > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = int(cfg.QPS)
		}
		if burst < 1 {
			burst = 1
		}
		tl.rateLimiter = rate.NewLimiter(rate.Limit(cfg.QPS), burst)
	}
	if cfg.MaxConcurrent > 0 {
		tl.semaphore = make(chan struct{}, cfg.MaxConcurrent)
	}
	return tl
}

func (l *RateLimiter) get(name string) *toolLimiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	tl, ok := l.limiters[name]
	if !ok {
		tl = newToolLimiter(l.defaults)
		l.limiters[name] = tl
	}
	return tl
}

// Wait 阻塞直到获得执行许可；返回的 release 必须在调用结束后执行
func (l *RateLimiter) Wait(ctx context.Context, name string) (release func(), err error) {
	tl := l.get(name)
	if tl.rateLimiter != nil {
		if err := tl.rateLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait failed: %w", err)
		}
	}
	if tl.semaphore == nil {
		return func() {}, nil
	}
	select {
	case tl.semaphore <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	var once sync.Once
	return func() {
		once.Do(func() { <-tl.semaphore })
	}, nil
}

// InFlight 当前占用的并发槽位
func (l *RateLimiter) InFlight(name string) int {
	tl := l.get(name)
	if tl.semaphore == nil {
		return 0
	}
	return len(tl.semaphore)
}
