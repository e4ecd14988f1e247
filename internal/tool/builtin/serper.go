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

package builtin

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"

	"search-agent/internal/tool"
	perrors "search-agent/pkg/errors"
	"search-agent/pkg/retry"
)

// SerperConfig google.serper.dev 客户端配置；凭证在构造时显式传入
type SerperConfig struct {
	BaseURL string
	APIKey  string
	GL      string
	HL      string
}

// SerperClient Serper API 客户端，search / shopping / maps / scholar 共用。
// 不在客户端层重试，超时与重试由 Invoker 统一控制。
type SerperClient struct {
	cfg    SerperConfig
	client *resty.Client
}

// NewSerperClient 创建 Serper 客户端
func NewSerperClient(cfg SerperConfig) *SerperClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://google.serper.dev"
	}
	if cfg.GL == "" {
		cfg.GL = "hk"
	}
	client := resty.New().
		SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
		SetHeader("Content-Type", "application/json")
	return &SerperClient{cfg: cfg, client: client}
}

// post 调用 Serper 端点并把响应解码到 out
func (c *SerperClient) post(ctx context.Context, toolName, endpoint string, payload any, out any) error {
	if c.cfg.APIKey == "" {
		return tool.Terminal(toolName, perrors.KindInvalidArguments, "serper api key is not configured")
	}
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("X-API-KEY", c.cfg.APIKey).
		SetBody(payload).
		Post(endpoint)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return perrors.WithKind(err, perrors.KindTransport)
	}
	if resp.StatusCode() != http.StatusOK {
		return &retry.HTTPStatusError{StatusCode: resp.StatusCode(), Message: tool.Truncate(resp.String(), 300)}
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return tool.Terminal(toolName, perrors.KindUpstream, "decode serper response: %v", err)
	}
	return nil
}

// basePayload 每个请求都带上地区参数
func (c *SerperClient) basePayload(q string) map[string]any {
	p := map[string]any{"q": q, "gl": c.cfg.GL}
	if c.cfg.HL != "" {
		p["hl"] = c.cfg.HL
	}
	return p
}

func str(m map[string]any, key string) string {
	if v, ok := m[key]; ok && v != nil {
		switch x := v.(type) {
		case string:
			return x
		default:
			b, _ := json.Marshal(x)
			return string(b)
		}
	}
	return ""
}

// pick 复制 m 中非空的字段到新 map，outKey 为空时沿用原键名
func pick(m map[string]any, pairs ...[2]string) map[string]any {
	out := make(map[string]any)
	for _, p := range pairs {
		v, ok := m[p[0]]
		if !ok || v == nil || v == "" {
			continue
		}
		key := p[1]
		if key == "" {
			key = p[0]
		}
		out[key] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
