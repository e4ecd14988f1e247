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

package completion

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"search-agent/internal/model/llm"
	"search-agent/pkg/log"
	"search-agent/pkg/metrics"
	"search-agent/pkg/retry"
	"search-agent/pkg/tracing"
)

// Options 两种后端共用的调用参数
type Options struct {
	// Provider 限流维度
	Provider string
	Prompt   PromptOptions
	// Retry 补全调用的重试策略；MaxRetries = 尝试次数 - 1，AttemptTimeout 为单次超时
	Retry   retry.Policy
	Limiter *llm.LLMRateLimiter
	// ObservationChars 工具结果回填给模型时的最大字符数，<=0 不截断
	ObservationChars int
	Logger           *log.Logger
}

type caller struct {
	opts Options
}

func newCaller(opts Options) caller {
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	return caller{opts: opts}
}

// call 在限流与重试下执行一次补全；重试耗尽或不可重试时返回 FatalAdapterError
func (c caller) call(ctx context.Context, questionID string, finishOnly bool, fn func(ctx context.Context) error) error {
	ctx, span := tracing.StartCompletionSpan(ctx, questionID, finishOnly)
	start := time.Now()

	policy := c.opts.Retry
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		c.opts.Logger.Warn("补全调用失败，准备重试", "question_id", questionID, "attempt", attempt, "delay", delay, "error", err)
	}
	attempts, err := retry.Do(ctx, policy, func(actx context.Context, _ int) error {
		release, err := c.opts.Limiter.Wait(actx, c.opts.Provider)
		if err != nil {
			return err
		}
		defer release()
		return fn(actx)
	})
	metrics.CompletionDuration.Observe(time.Since(start).Seconds())
	tracing.EndSpan(span, err, attribute.Int("attempts", attempts))
	if err != nil {
		metrics.CompletionTotal.WithLabelValues("fatal").Inc()
		return &FatalAdapterError{Attempts: attempts, Cause: err}
	}
	return nil
}

// observe 记录解析结果
func observe(a Action, err error) {
	switch a.(type) {
	case Reason:
		metrics.CompletionTotal.WithLabelValues("reason").Inc()
	case Act:
		metrics.CompletionTotal.WithLabelValues("act").Inc()
	case Finish:
		metrics.CompletionTotal.WithLabelValues("finish").Inc()
	default:
		if err != nil {
			metrics.CompletionTotal.WithLabelValues("malformed").Inc()
		}
	}
}
