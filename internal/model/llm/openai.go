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
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"

	perrors "search-agent/pkg/errors"
	"search-agent/pkg/retry"
)

// OpenAIClient OpenAI 兼容客户端。
// 不在客户端层重试：超时与重试由补全适配器统一控制。
type OpenAIClient struct {
	provider string
	model    string
	apiKey   string
	baseURL  string
	client   *resty.Client
}

// NewOpenAIClient 创建 OpenAI 兼容客户端；baseURL 为空时用 DeepSeek 默认端点
func NewOpenAIClient(cfg Config) *OpenAIClient {
	if cfg.Model == "" {
		cfg.Model = "deepseek-chat"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.deepseek.com/v1"
	}
	if cfg.Provider == "" {
		cfg.Provider = "openai"
	}
	client := resty.New()
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	return &OpenAIClient{
		provider: cfg.Provider,
		model:    cfg.Model,
		apiKey:   cfg.APIKey,
		baseURL:  strings.TrimSuffix(cfg.BaseURL, "/"),
		client:   client,
	}
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// ChatWithContext 使用上下文聊天
func (c *OpenAIClient) ChatWithContext(ctx context.Context, messages []Message, options GenerateOptions) (string, error) {
	request := map[string]interface{}{
		"model":       c.model,
		"messages":    messages,
		"temperature": options.Temperature,
	}
	if options.MaxTokens > 0 {
		request["max_tokens"] = options.MaxTokens
	}
	if len(options.Stop) > 0 {
		request["stop"] = options.Stop
	}
	if options.JSONMode {
		request["response_format"] = map[string]string{"type": "json_object"}
	}

	response, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Authorization", "Bearer "+c.apiKey).
		SetBody(request).
		Post(c.baseURL + "/chat/completions")
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", perrors.WithKind(fmt.Errorf("调用补全服务 failed: %w", err), perrors.KindTransport)
	}

	if response.StatusCode() != http.StatusOK {
		return "", &retry.HTTPStatusError{StatusCode: response.StatusCode(), Message: truncate(response.String(), 300)}
	}

	var result chatResponse
	if err := json.Unmarshal(response.Body(), &result); err != nil {
		return "", perrors.WithKind(fmt.Errorf("解析补全响应 failed: %w", err), perrors.KindUpstream)
	}
	if len(result.Choices) == 0 {
		return "", perrors.WithKind(fmt.Errorf("补全服务没有返回结果"), perrors.KindUpstream)
	}
	return result.Choices[0].Message.Content, nil
}

// Model 返回模型名称
func (c *OpenAIClient) Model() string {
	return c.model
}

// Provider 返回提供商名称
func (c *OpenAIClient) Provider() string {
	return c.provider
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
