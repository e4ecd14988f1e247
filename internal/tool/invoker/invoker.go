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

// Package invoker 执行单次工具调用：超时、瞬时失败重试、限流、结果缓存，所有失败都归一为结果中的失败描述符
package invoker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"search-agent/internal/storage/cache"
	"search-agent/internal/tool"
	perrors "search-agent/pkg/errors"
	"search-agent/pkg/log"
	"search-agent/pkg/metrics"
	"search-agent/pkg/retry"
	"search-agent/pkg/tracing"
)

// Resolver 按名称解析工具（registry.Registry 满足）
type Resolver interface {
	Resolve(name string) (tool.Tool, error)
}

// ClassPolicy 一类工具的超时与重试次数
type ClassPolicy struct {
	Timeout    time.Duration
	MaxRetries int
}

// Options Invoker 配置
type Options struct {
	// Classes 按能力类别的超时与重试；缺省类别使用 Fallback
	Classes  map[tool.Capability]ClassPolicy
	Fallback ClassPolicy
	// Backoff 退避参数（MaxRetries/AttemptTimeout 由类别决定）
	Backoff  retry.Policy
	Limiter  *RateLimiter
	Cache    cache.Store
	CacheTTL time.Duration
	Logger   *log.Logger
}

// Invoker 工具调用执行器，可被多个 worker 并发使用
type Invoker struct {
	resolver Resolver
	opts     Options
	logger   *log.Logger
}

// New 创建 Invoker
func New(resolver Resolver, opts Options) *Invoker {
	def := retry.DefaultPolicy()
	if opts.Fallback.Timeout <= 0 {
		opts.Fallback = ClassPolicy{Timeout: 15 * time.Second, MaxRetries: def.MaxRetries}
	}
	if opts.Backoff.Initial <= 0 {
		opts.Backoff = def
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Nop()
	}
	return &Invoker{resolver: resolver, opts: opts, logger: logger}
}

// Policy 返回某能力类别生效的调用预算
func (i *Invoker) Policy(c tool.Capability) ClassPolicy {
	if p, ok := i.opts.Classes[c]; ok && p.Timeout > 0 {
		return p
	}
	return i.opts.Fallback
}

// Invoke 执行调用，从不向调用方返回错误：超时、限流、上游错误、传输错误、panic 都写入 Result.Failure
func (i *Invoker) Invoke(ctx context.Context, call tool.Call) (res tool.Result) {
	start := time.Now()
	ctx, span := tracing.StartToolSpan(ctx, call.Tool, call.Seq)
	res = tool.Result{Seq: call.Seq, Tool: call.Tool}

	defer func() {
		if r := recover(); r != nil {
			res.Output = nil
			res.Failure = &tool.Failure{Kind: perrors.KindInternal, Message: fmt.Sprintf("tool panicked: %v", r)}
		}
		res.Duration = time.Since(start)
		outcome := "ok"
		var spanErr error
		if res.Failure != nil {
			outcome = string(res.Failure.Kind)
			spanErr = errors.New(res.Failure.Message)
		}
		metrics.ToolCallTotal.WithLabelValues(call.Tool, outcome).Inc()
		metrics.ToolDuration.WithLabelValues(call.Tool).Observe(res.Duration.Seconds())
		tracing.EndSpan(span, spanErr,
			attribute.Int("tool.attempts", res.Attempts),
			attribute.Bool("tool.cached", res.Cached),
		)
	}()

	t, err := i.resolver.Resolve(call.Tool)
	if err != nil {
		res.Failure = failureFrom(err)
		return res
	}
	spec := t.Spec()

	key := i.cacheKey(call)
	if key != "" {
		var cached tool.Output
		if err := i.opts.Cache.Get(ctx, key, &cached); err == nil {
			metrics.CacheTotal.WithLabelValues("hit").Inc()
			res.Output = &cached
			res.Cached = true
			return res
		}
		metrics.CacheTotal.WithLabelValues("miss").Inc()
	}

	class := i.Policy(spec.Capability)
	policy := i.opts.Backoff
	policy.MaxRetries = class.MaxRetries
	policy.AttemptTimeout = class.Timeout
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		metrics.ToolRetryTotal.WithLabelValues(call.Tool).Inc()
		i.logger.Warn("工具调用瞬时失败，准备重试",
			"tool", call.Tool, "seq", call.Seq, "attempt", attempt, "delay", delay, "error", err)
	}

	var out tool.Output
	attempts, err := retry.Do(ctx, policy, func(actx context.Context, attempt int) error {
		release, werr := i.wait(actx, call.Tool)
		if werr != nil {
			return werr
		}
		defer release()
		o, xerr := t.Execute(actx, tool.CloneArgs(call.Args))
		if xerr != nil {
			return xerr
		}
		out = o
		return nil
	})
	res.Attempts = attempts
	if err != nil {
		res.Failure = failureFrom(err)
		i.logger.Warn("工具调用失败", "tool", call.Tool, "seq", call.Seq,
			"attempts", attempts, "kind", res.Failure.Kind, "error", err)
		return res
	}

	res.Output = &out
	if key != "" {
		if err := i.opts.Cache.Set(ctx, key, out, i.opts.CacheTTL); err != nil {
			i.logger.Debug("写入工具结果缓存失败", "tool", call.Tool, "error", err)
		}
	}
	return res
}

func (i *Invoker) wait(ctx context.Context, name string) (func(), error) {
	if i.opts.Limiter == nil {
		return func() {}, nil
	}
	waitStart := time.Now()
	release, err := i.opts.Limiter.Wait(ctx, name)
	metrics.ToolRateLimitWait.WithLabelValues(name).Observe(time.Since(waitStart).Seconds())
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, tool.NewExecutionError(name, perrors.KindRateLimited, true, err)
	}
	return release, nil
}

func (i *Invoker) cacheKey(call tool.Call) string {
	if i.opts.Cache == nil {
		return ""
	}
	key, err := cache.Key(call.Tool, call.Args)
	if err != nil {
		return ""
	}
	return key
}

// failureFrom 将错误归一为失败描述符
func failureFrom(err error) *tool.Failure {
	var ex *retry.ExhaustedError
	transient := retry.IsTransient(err)
	if errors.As(err, &ex) {
		transient = true
	}
	kind := perrors.KindOf(err)
	if kind == perrors.KindCanceled && errors.Is(err, context.DeadlineExceeded) {
		kind = perrors.KindTimeout
	}
	return &tool.Failure{Kind: kind, Message: err.Error(), Transient: transient}
}
