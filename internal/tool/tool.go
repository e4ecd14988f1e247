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

package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	perrors "search-agent/pkg/errors"
)

// Capability 工具所属能力类别，同时决定调用超时档位
type Capability string

const (
	CapabilitySearch   Capability = "search"
	CapabilityBrowse   Capability = "browse"
	CapabilityShopping Capability = "shopping"
	CapabilityMaps     Capability = "maps"
	CapabilityScholar  Capability = "scholar"
)

// SchemaProperty 表示 Schema 中单个参数的约束（JSON Schema 子集）
type SchemaProperty struct {
	Type        string           `json:"type,omitempty"` // string | integer | number | boolean | array
	Description string           `json:"description,omitempty"`
	Enum        []any            `json:"enum,omitempty"`
	Minimum     *float64         `json:"minimum,omitempty"`
	Maximum     *float64         `json:"maximum,omitempty"`
	MinLength   *int             `json:"minLength,omitempty"`
	MinItems    *int             `json:"minItems,omitempty"`
	Pattern     string           `json:"pattern,omitempty"`
	Items       *SchemaProperty  `json:"items,omitempty"`
	AnyOf       []SchemaProperty `json:"anyOf,omitempty"`
	Default     any              `json:"default,omitempty"`
}

// Schema 工具参数 Schema（object）
type Schema struct {
	Type                 string                    `json:"type"`
	Properties           map[string]SchemaProperty `json:"properties"`
	Required             []string                  `json:"required,omitempty"`
	AdditionalProperties bool                      `json:"additionalProperties"`
}

// Spec 工具规格：进程启动时注册一次，之后不可变
type Spec struct {
	Name        string     `json:"name"`
	Capability  Capability `json:"capability"`
	Description string     `json:"description"`
	Schema      Schema     `json:"parameters"`
}

// Tool 检索工具接口；Execute 只负责一次网络往返，超时与重试由 Invoker 负责
type Tool interface {
	Spec() Spec
	Execute(ctx context.Context, args map[string]any) (Output, error)
}

// Item 统一结果条目：网页、地点、商品、论文都至少带标题与链接
type Item struct {
	Title   string         `json:"title"`
	Link    string         `json:"link,omitempty"`
	Snippet string         `json:"snippet,omitempty"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// Output 工具成功载荷：条目列表或页面正文
type Output struct {
	Items []Item `json:"items,omitempty"`
	Text  string `json:"text,omitempty"`
}

// Call 一次工具调用，创建后不再修改
type Call struct {
	Seq  int            `json:"seq"`
	ID   string         `json:"id"`
	Tool string         `json:"tool"`
	Args map[string]any `json:"args"`
}

// NewCall 创建调用并深拷贝参数，调用方后续修改不影响已记录的调用
func NewCall(seq int, name string, args map[string]any) Call {
	return Call{
		Seq:  seq,
		ID:   fmt.Sprintf("call_%d", seq),
		Tool: name,
		Args: CloneArgs(args),
	}
}

// Failure 失败描述符
type Failure struct {
	Kind      perrors.Kind `json:"kind"`
	Message   string       `json:"message"`
	Transient bool         `json:"transient"`
}

// Result 一次调用的结果；Output 与 Failure 恰有一个非空
type Result struct {
	Seq      int           `json:"seq"`
	Tool     string        `json:"tool"`
	Output   *Output       `json:"output,omitempty"`
	Failure  *Failure      `json:"failure,omitempty"`
	Attempts int           `json:"attempts"`
	Cached   bool          `json:"cached,omitempty"`
	Duration time.Duration `json:"-"`
}

// OK 是否成功
func (r Result) OK() bool { return r.Failure == nil && r.Output != nil }

// Observation 将结果渲染为给模型阅读的文本，maxChars<=0 表示不截断
func (r Result) Observation(maxChars int) string {
	var b strings.Builder
	switch {
	case r.Failure != nil:
		fmt.Fprintf(&b, "Tool %s failed (%s): %s", r.Tool, r.Failure.Kind, r.Failure.Message)
		if r.Failure.Transient {
			b.WriteString("\nThe failure was transient and retries were exhausted; you may try again later or use another tool.")
		}
	case r.Output == nil:
		fmt.Fprintf(&b, "Tool %s returned nothing.", r.Tool)
	case r.Output.Text != "":
		b.WriteString(r.Output.Text)
	case len(r.Output.Items) == 0:
		fmt.Fprintf(&b, "Tool %s returned no results.", r.Tool)
	default:
		for i, it := range r.Output.Items {
			fmt.Fprintf(&b, "[%d] %s\n", i+1, it.Title)
			if it.Link != "" {
				fmt.Fprintf(&b, "    link: %s\n", it.Link)
			}
			if it.Snippet != "" {
				fmt.Fprintf(&b, "    %s\n", it.Snippet)
			}
			if len(it.Fields) > 0 {
				fields, _ := json.Marshal(it.Fields)
				fmt.Fprintf(&b, "    %s\n", fields)
			}
		}
	}
	out := b.String()
	if maxChars > 0 && len(out) > maxChars {
		out = Truncate(out, maxChars) + "\n[TRUNCATED]"
	}
	return strings.TrimRight(out, "\n")
}

// CloneArgs 深拷贝参数（map / slice 递归复制）
func CloneArgs(args map[string]any) map[string]any {
	if args == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return CloneArgs(x)
	case []any:
		c := make([]any, len(x))
		for i := range x {
			c[i] = cloneValue(x[i])
		}
		return c
	case []string:
		return append([]string(nil), x...)
	default:
		return v
	}
}
