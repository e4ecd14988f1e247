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
	"strings"

	"search-agent/internal/agent/trajectory"
	"search-agent/internal/model/llm"
)

// 文本协议说明，附加在系统提示词之后
const textProtocol = `RESPONSE PROTOCOL:
Reply with exactly ONE JSON object and nothing else.
- To call a tool: {"thought": "<why>", "action": "<tool name>", "args": {<arguments>}}
- To think without acting: {"thought": "<reasoning>"}
- To answer: {"thought": "<why>", "final_answer": "<explanation ending with <answer>...</answer>>"}

AVAILABLE TOOLS (JSON schema of the arguments):
`

const finishProtocol = `RESPONSE PROTOCOL:
Reply with exactly ONE JSON object: {"thought": "<why>", "final_answer": "<explanation ending with <answer>...</answer>>"}
`

// textReply 文本协议的响应
type textReply struct {
	Thought     string         `json:"thought"`
	Action      string         `json:"action"`
	Args        map[string]any `json:"args"`
	FinalAnswer *string        `json:"final_answer"`
}

// TextAdapter JSON 文本协议后端，适用于不支持 function calling 的服务
type TextAdapter struct {
	client llm.Client
	gen    llm.GenerateOptions
	caller caller
}

// NewTextAdapter 创建文本协议适配器
func NewTextAdapter(client llm.Client, gen llm.GenerateOptions, opts Options) *TextAdapter {
	if opts.Provider == "" {
		opts.Provider = client.Provider()
	}
	return &TextAdapter{client: client, gen: gen, caller: newCaller(opts)}
}

// Advance 实现 Adapter
func (a *TextAdapter) Advance(ctx context.Context, t *trajectory.Trajectory, req Request) (Action, error) {
	system, err := a.systemPrompt(req)
	if err != nil {
		return nil, &FatalAdapterError{Cause: err}
	}
	msgs := ToTextMessages(BuildTurns(system, t, req, a.caller.opts.ObservationChars))

	var raw string
	err = a.caller.call(ctx, t.ID, req.FinishOnly, func(actx context.Context) error {
		var err error
		raw, err = a.client.ChatWithContext(actx, msgs, a.gen)
		return err
	})
	if err != nil {
		return nil, err
	}
	action, perr := ParseTextReply(raw, req.FinishOnly)
	observe(action, perr)
	return action, perr
}

func (a *TextAdapter) systemPrompt(req Request) (string, error) {
	var b strings.Builder
	b.WriteString(SystemPrompt(req.Tools, a.caller.opts.Prompt))
	b.WriteString("\n")
	if req.FinishOnly || len(req.Tools) == 0 {
		b.WriteString(finishProtocol)
		return b.String(), nil
	}
	b.WriteString(textProtocol)
	for _, s := range req.Tools {
		params, err := json.Marshal(s.Schema)
		if err != nil {
			return "", fmt.Errorf("marshal schema for %s: %w", s.Name, err)
		}
		fmt.Fprintf(&b, "- %s: %s\n  args: %s\n", s.Name, s.Description, params)
	}
	return b.String(), nil
}

// ParseTextReply 解析文本协议响应；允许 ```json 代码块包裹。
// finishOnly 时纯文本也视为最终答案。
func ParseTextReply(raw string, finishOnly bool) (Action, error) {
	body := stripFence(strings.TrimSpace(raw))
	start, end := strings.Index(body, "{"), strings.LastIndex(body, "}")
	if start < 0 || end <= start {
		if finishOnly && body != "" {
			return Finish{Answer: body}, nil
		}
		return nil, malformed(raw, "no JSON object found")
	}

	var r textReply
	if err := json.Unmarshal([]byte(body[start:end+1]), &r); err != nil {
		if finishOnly && body != "" {
			return Finish{Answer: body}, nil
		}
		return nil, malformed(raw, "invalid JSON: %v", err)
	}

	switch {
	case r.FinalAnswer != nil && strings.TrimSpace(*r.FinalAnswer) != "":
		return Finish{Answer: strings.TrimSpace(*r.FinalAnswer)}, nil
	case finishOnly:
		return nil, malformed(raw, "final_answer is required")
	case r.Action != "":
		if r.Args == nil {
			r.Args = map[string]any{}
		}
		return Act{Tool: r.Action, Args: r.Args, Rationale: strings.TrimSpace(r.Thought)}, nil
	case strings.TrimSpace(r.Thought) != "":
		return Reason{Text: strings.TrimSpace(r.Thought)}, nil
	default:
		return nil, malformed(raw, "object has none of action, final_answer or thought")
	}
}

func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}

// ToTextMessages 会话转为文本协议消息：助手调用还原为 JSON，工具结果作为用户消息回填
func ToTextMessages(turns []Turn) []llm.Message {
	msgs := make([]llm.Message, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case RoleAssistant:
			reply := map[string]any{"thought": t.Content}
			if t.Call != nil {
				reply["action"] = t.Call.Tool
				reply["args"] = t.Call.Args
			}
			b, _ := json.Marshal(reply)
			msgs = append(msgs, llm.Message{Role: string(RoleAssistant), Content: string(b)})
		case RoleTool:
			msgs = append(msgs, llm.Message{
				Role:    string(RoleUser),
				Content: fmt.Sprintf("Observation from %s (%s):\n%s", t.ToolName, t.CallID, t.Content),
			})
		default:
			msgs = append(msgs, llm.Message{Role: string(t.Role), Content: t.Content})
		}
	}
	return msgs
}
