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

// Package retry 瞬时失败的指数退避重试；工具调用与补全调用共用
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net"
	"net/http"
	"time"

	perrors "search-agent/pkg/errors"
)

// Policy 重试策略
type Policy struct {
	// MaxRetries 最大重试次数（不含首次）
	MaxRetries int
	// AttemptTimeout 单次尝试超时，<=0 表示沿用调用方 ctx
	AttemptTimeout time.Duration
	Initial        time.Duration
	Max            time.Duration
	Multiplier     float64
	// Jitter 0.1 表示 ±10% 抖动
	Jitter float64
	// OnRetry 每次退避前回调（日志与指标）
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultPolicy 默认：重试 2 次，500ms 起步，上限 5s
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 2,
		Initial:    500 * time.Millisecond,
		Max:        5 * time.Second,
		Multiplier: 2.0,
		Jitter:     0.1,
	}
}

// ExhaustedError 重试次数耗尽
type ExhaustedError struct {
	Attempts      int
	TotalDuration time.Duration
	LastError     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry exhausted after %d attempts over %v: %v", e.Attempts, e.TotalDuration, e.LastError)
}

func (e *ExhaustedError) Unwrap() error { return e.LastError }

// HTTPStatusError 上游返回的非 2xx 状态
type HTTPStatusError struct {
	StatusCode int
	Message    string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// Kind 429 视为限流，其余归为上游错误
func (e *HTTPStatusError) Kind() perrors.Kind {
	if e.StatusCode == http.StatusTooManyRequests {
		return perrors.KindRateLimited
	}
	return perrors.KindUpstream
}

// Transienter 由可自行声明是否瞬时的错误实现
type Transienter interface {
	Transient() bool
}

// IsTransient 判断错误是否值得重试：超时、网络超时、429/502/503/504；取消不重试
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var t Transienter
	if errors.As(err, &t) {
		return t.Transient()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var httpErr *HTTPStatusError
	if errors.As(err, &httpErr) {
		switch httpErr.StatusCode {
		case http.StatusTooManyRequests,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Timeout() || dnsErr.IsTemporary
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// Do 执行 fn，瞬时失败按策略退避重试；返回实际尝试次数。
// 父 ctx 结束后不再重试。
func Do(ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) error) (int, error) {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	start := time.Now()
	var lastErr error
	maxAttempts := p.MaxRetries + 1

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := runAttempt(ctx, p, attempt, fn)
		if err == nil {
			return attempt, nil
		}
		lastErr = err

		if ctx.Err() != nil || !IsTransient(err) {
			return attempt, err
		}
		if attempt == maxAttempts {
			break
		}

		delay := Backoff(p, attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, delay)
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, fmt.Errorf("%w (last error: %v)", ctx.Err(), lastErr)
		case <-timer.C:
		}
	}
	return maxAttempts, &ExhaustedError{
		Attempts:      maxAttempts,
		TotalDuration: time.Since(start),
		LastError:     lastErr,
	}
}

func runAttempt(ctx context.Context, p Policy, attempt int, fn func(ctx context.Context, attempt int) error) error {
	if p.AttemptTimeout <= 0 {
		return fn(ctx, attempt)
	}
	actx, cancel := context.WithTimeout(ctx, p.AttemptTimeout)
	defer cancel()
	err := fn(actx, attempt)
	if err != nil && ctx.Err() == nil && errors.Is(actx.Err(), context.DeadlineExceeded) && !errors.Is(err, context.DeadlineExceeded) {
		// 部分客户端把超时包装成自有错误，统一为 DeadlineExceeded
		err = fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
	}
	return err
}

// Backoff 第 attempt 次失败后的等待时长：Initial * Multiplier^(attempt-1)，封顶 Max，叠加抖动
func Backoff(p Policy, attempt int) time.Duration {
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	backoff := float64(p.Initial) * math.Pow(mult, float64(attempt-1))
	if p.Max > 0 && backoff > float64(p.Max) {
		backoff = float64(p.Max)
	}
	if p.Jitter > 0 {
		backoff += backoff * p.Jitter * (rand.Float64()*2 - 1) //nolint:gosec // jitter doesn't need crypto rand
	}
	if backoff < 0 {
		backoff = 0
	}
	return time.Duration(backoff)
}
