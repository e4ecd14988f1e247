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
	"time"
)

// Client 文本补全客户端接口（OpenAI 兼容 chat/completions）
type Client interface {
	// ChatWithContext 使用上下文聊天，返回助手消息正文
	ChatWithContext(ctx context.Context, messages []Message, options GenerateOptions) (string, error)
	// Model 返回模型名称
	Model() string
	// Provider 返回提供商名称
	Provider() string
}

// GenerateOptions 生成选项
type GenerateOptions struct {
	Temperature float64  `json:"temperature"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Stop        []string `json:"stop,omitempty"`
	// JSONMode 要求服务端返回 JSON 对象（response_format=json_object）
	JSONMode bool `json:"-"`
}

// Message 聊天消息
type Message struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}

// Config 客户端配置；凭证在构造时显式传入
type Config struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
	Timeout  time.Duration
}

// NewClient 创建 LLM 客户端；openai / deepseek / qwen 均走 OpenAI 兼容协议
func NewClient(cfg Config) (Client, error) {
	switch cfg.Provider {
	case "", "openai", "deepseek", "qwen", "text":
		return NewOpenAIClient(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}
