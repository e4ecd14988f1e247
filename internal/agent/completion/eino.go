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
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"search-agent/internal/agent/trajectory"
	"search-agent/internal/tool"
)

// ChatModelConfig OpenAI 兼容 ChatModel 配置
type ChatModelConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
}

// NewChatModel 创建 eino OpenAI ChatModel；超时由重试策略逐次控制
func NewChatModel(ctx context.Context, cfg ChatModelConfig) (model.ToolCallingChatModel, error) {
	temp := float32(cfg.Temperature)
	mc := &openai.ChatModelConfig{
		BaseURL:     cfg.BaseURL,
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		Temperature: &temp,
	}
	if cfg.MaxTokens > 0 {
		mc.MaxTokens = &cfg.MaxTokens
	}
	cm, err := openai.NewChatModel(ctx, mc)
	if err != nil {
		return nil, fmt.Errorf("创建 OpenAI ChatModel failed: %w", err)
	}
	return cm, nil
}

// EinoAdapter 原生工具调用后端：工具以 function calling 方式绑定
type EinoAdapter struct {
	base   model.ToolCallingChatModel
	caller caller

	mu    sync.Mutex
	bound map[string]model.ToolCallingChatModel // 工具集合 -> 已绑定模型
}

// NewEinoAdapter 创建 eino 后端适配器
func NewEinoAdapter(base model.ToolCallingChatModel, opts Options) *EinoAdapter {
	return &EinoAdapter{base: base, caller: newCaller(opts), bound: make(map[string]model.ToolCallingChatModel)}
}

// Advance 实现 Adapter
func (a *EinoAdapter) Advance(ctx context.Context, t *trajectory.Trajectory, req Request) (Action, error) {
	chat := a.base
	if len(req.Tools) > 0 && !req.FinishOnly {
		var err error
		if chat, err = a.bind(req.Tools); err != nil {
			return nil, &FatalAdapterError{Cause: err}
		}
	}

	system := SystemPrompt(req.Tools, a.caller.opts.Prompt)
	msgs := ToEinoMessages(BuildTurns(system, t, req, a.caller.opts.ObservationChars))

	var resp *schema.Message
	err := a.caller.call(ctx, t.ID, req.FinishOnly, func(actx context.Context) error {
		var err error
		resp, err = chat.Generate(actx, msgs)
		return err
	})
	if err != nil {
		return nil, err
	}
	action, perr := a.parse(t.ID, resp, req)
	observe(action, perr)
	return action, perr
}

func (a *EinoAdapter) parse(questionID string, resp *schema.Message, req Request) (Action, error) {
	if resp == nil {
		return nil, malformed("", "empty response")
	}
	content := strings.TrimSpace(resp.Content)
	if len(resp.ToolCalls) > 0 {
		tc := resp.ToolCalls[0]
		if req.FinishOnly {
			return nil, malformed(tc.Function.Arguments, "tool call %q while only a final answer is allowed", tc.Function.Name)
		}
		if len(resp.ToolCalls) > 1 {
			a.caller.opts.Logger.Warn("模型一次返回多个工具调用，仅执行第一个",
				"question_id", questionID, "count", len(resp.ToolCalls), "tool", tc.Function.Name)
		}
		args := map[string]any{}
		if raw := strings.TrimSpace(tc.Function.Arguments); raw != "" {
			if err := json.Unmarshal([]byte(raw), &args); err != nil {
				return nil, malformed(raw, "arguments for %s are not a JSON object: %v", tc.Function.Name, err)
			}
		}
		if tc.Function.Name == "" {
			return nil, malformed(tc.Function.Arguments, "tool call without a tool name")
		}
		return Act{Tool: tc.Function.Name, Args: args, Rationale: content}, nil
	}
	// 没有工具调用的非空回复即最终答案
	if content == "" {
		return nil, malformed(resp.Content, "response has neither content nor tool calls")
	}
	return Finish{Answer: content}, nil
}

// bind 绑定工具；同一工具集合复用同一实例
func (a *EinoAdapter) bind(specs []tool.Spec) (model.ToolCallingChatModel, error) {
	names := make([]string, len(specs))
	for i, s := range specs {
		names[i] = s.Name
	}
	sort.Strings(names)
	key := strings.Join(names, ",")

	a.mu.Lock()
	defer a.mu.Unlock()
	if m, ok := a.bound[key]; ok {
		return m, nil
	}
	infos := make([]*schema.ToolInfo, 0, len(specs))
	for _, s := range specs {
		infos = append(infos, ToolInfo(s))
	}
	m, err := a.base.WithTools(infos)
	if err != nil {
		return nil, fmt.Errorf("bind tools: %w", err)
	}
	a.bound[key] = m
	return m, nil
}

// ToolInfo 工具规格转 eino ToolInfo
func ToolInfo(s tool.Spec) *schema.ToolInfo {
	required := make(map[string]bool, len(s.Schema.Required))
	for _, r := range s.Schema.Required {
		required[r] = true
	}
	params := make(map[string]*schema.ParameterInfo, len(s.Schema.Properties))
	for name, p := range s.Schema.Properties {
		info := parameterInfo(p)
		info.Required = required[name]
		params[name] = info
	}
	return &schema.ToolInfo{
		Name:        s.Name,
		Desc:        s.Description,
		ParamsOneOf: schema.NewParamsOneOfByParams(params),
	}
}

func parameterInfo(p tool.SchemaProperty) *schema.ParameterInfo {
	desc := p.Description
	// anyOf 无法用 ParameterInfo 表达：取第一个候选类型，其余写进描述
	if len(p.AnyOf) > 0 {
		first := p.AnyOf[0]
		if p.Type == "" {
			p.Type = first.Type
		}
		if len(p.AnyOf) > 1 {
			alts := make([]string, 0, len(p.AnyOf)-1)
			for _, alt := range p.AnyOf[1:] {
				alts = append(alts, alt.Type)
			}
			desc = strings.TrimSpace(desc + " (also accepts: " + strings.Join(alts, ", ") + ")")
		}
	}
	info := &schema.ParameterInfo{Type: dataType(p.Type), Desc: desc}
	for _, e := range p.Enum {
		info.Enum = append(info.Enum, fmt.Sprint(e))
	}
	if p.Items != nil {
		info.ElemInfo = parameterInfo(*p.Items)
	}
	return info
}

func dataType(t string) schema.DataType {
	switch t {
	case "integer":
		return schema.Integer
	case "number":
		return schema.Number
	case "boolean":
		return schema.Boolean
	case "array":
		return schema.Array
	case "object":
		return schema.Object
	default:
		return schema.String
	}
}

// ToEinoMessages 会话转为 eino 消息
func ToEinoMessages(turns []Turn) []*schema.Message {
	msgs := make([]*schema.Message, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case RoleSystem:
			msgs = append(msgs, schema.SystemMessage(t.Content))
		case RoleUser:
			msgs = append(msgs, schema.UserMessage(t.Content))
		case RoleAssistant:
			var calls []schema.ToolCall
			if t.Call != nil {
				args, _ := json.Marshal(t.Call.Args)
				calls = []schema.ToolCall{{
					ID:   t.Call.ID,
					Type: "function",
					Function: schema.FunctionCall{
						Name:      t.Call.Tool,
						Arguments: string(args),
					},
				}}
			}
			msgs = append(msgs, schema.AssistantMessage(t.Content, calls))
		case RoleTool:
			msgs = append(msgs, schema.ToolMessage(t.Content, t.CallID))
		}
	}
	return msgs
}
