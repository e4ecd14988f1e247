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

package llm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"search-agent/pkg/metrics"
)

// LLMLimitConfig 补全服务限流配置
type LLMLimitConfig struct {
	RequestsPerMinute float64 // 每分钟请求数，<=0 不限
	MaxConcurrent     int     // 最大并发请求数，<=0 不限
}

// LLMRateLimiter Provider 维度的限流器，RPM + 并发控制；所有 worker 共享
type LLMRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*llmLimiter // provider -> limiter
	config   LLMLimitConfig
}

type llmLimiter struct {
	requestLimiter *rate.Limiter
	semaphore      chan struct{}
}

// NewLLMRateLimiter 创建补全限流器
func NewLLMRateLimiter(config LLMLimitConfig) *LLMRateLimiter {
	return &LLMRateLimiter{limiters: make(map[string]*llmLimiter), config: config}
}

func (l *LLMRateLimiter) get(provider string) *llmLimiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok := l.limiters[provider]; ok {
		return lim
	}
	lim := &llmLimiter{}
	if l.config.RequestsPerMinute > 0 {
		rps := l.config.RequestsPerMinute / 60.0
		burst := int(rps * 2) // burst = 2 秒的配额
		if burst < 1 {
			burst = 1
		}
		lim.requestLimiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	if l.config.MaxConcurrent > 0 {
		lim.semaphore = make(chan struct{}, l.config.MaxConcurrent)
	}
	l.limiters[provider] = lim
	return lim
}

// Wait 等待执行许可；返回的 release 在调用结束后必须执行
func (l *LLMRateLimiter) Wait(ctx context.Context, provider string) (release func(), err error) {
	if l == nil {
		return func() {}, nil
	}
	lim := l.get(provider)
	start := time.Now()
	defer func() {
		if waited := time.Since(start); waited > 100*time.Millisecond {
			metrics.CompletionRateLimitWait.WithLabelValues(provider).Observe(waited.Seconds())
		}
	}()

	if lim.requestLimiter != nil {
		if err := lim.requestLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("request rate limit wait failed: %w", err)
		}
	}
	if lim.semaphore == nil {
		return func() {}, nil
	}
	select {
	case lim.semaphore <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	var once sync.Once
	return func() {
		once.Do(func() { <-lim.semaphore })
	}, nil
}
