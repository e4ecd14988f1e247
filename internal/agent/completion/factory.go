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
	"fmt"

	"search-agent/internal/model/llm"
	"search-agent/pkg/config"
	"search-agent/pkg/log"
	"search-agent/pkg/retry"
)

// observationChars 工具结果回填给模型的默认上限
const observationChars = 20000

// NewFromConfig 按配置创建适配器；apiKey 已由调用方解析
func NewFromConfig(ctx context.Context, cfg *config.Config, apiKey string, logger *log.Logger) (Adapter, error) {
	m := cfg.Model
	policy := retry.Policy{
		MaxRetries:     m.MaxAttempts - 1,
		AttemptTimeout: m.Timeout,
		Initial:        cfg.Tools.Backoff.Initial,
		Max:            cfg.Tools.Backoff.Max,
		Multiplier:     cfg.Tools.Backoff.Multiplier,
		Jitter:         cfg.Tools.Backoff.Jitter,
	}
	opts := Options{
		Provider: m.Provider,
		Prompt:   PromptOptions{ReferenceDate: cfg.Prompt.ReferenceDate},
		Retry:    policy,
		Limiter: llm.NewLLMRateLimiter(llm.LLMLimitConfig{
			RequestsPerMinute: cfg.RateLimits.LLM.RequestsPerMinute,
			MaxConcurrent:     cfg.RateLimits.LLM.MaxConcurrent,
		}),
		ObservationChars: observationChars,
		Logger:           logger,
	}

	switch m.Provider {
	case "", "eino":
		cm, err := NewChatModel(ctx, ChatModelConfig{
			BaseURL:     m.BaseURL,
			APIKey:      apiKey,
			Model:       m.Model,
			Temperature: m.Temperature,
			MaxTokens:   m.MaxTokens,
		})
		if err != nil {
			return nil, err
		}
		return NewEinoAdapter(cm, opts), nil
	case "text":
		client, err := llm.NewClient(llm.Config{
			Provider: m.Provider,
			Model:    m.Model,
			APIKey:   apiKey,
			BaseURL:  m.BaseURL,
		})
		if err != nil {
			return nil, err
		}
		gen := llm.GenerateOptions{Temperature: m.Temperature, MaxTokens: m.MaxTokens, JSONMode: true}
		return NewTextAdapter(client, gen, opts), nil
	default:
		return nil, fmt.Errorf("unsupported model provider %q", m.Provider)
	}
}
