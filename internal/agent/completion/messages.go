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
	"search-agent/internal/agent/trajectory"
	"search-agent/internal/tool"
)

// Role 会话角色
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Turn 与后端无关的一轮消息；Call 非空表示助手发起的工具调用
type Turn struct {
	Role    Role
	Content string
	Call    *tool.Call
	// CallID RoleTool 时对应的调用 ID
	CallID string
	// ToolName RoleTool 时对应的工具名
	ToolName string
}

// BuildTurns 由轨迹重建完整会话：系统提示、问题，再按事件顺序展开
func BuildTurns(system string, t *trajectory.Trajectory, req Request, observationChars int) []Turn {
	turns := []Turn{
		{Role: RoleSystem, Content: system},
		{Role: RoleUser, Content: t.Question},
	}
	events := t.Events
	for i := 0; i < len(events); i++ {
		e := events[i]
		switch e.Type {
		case trajectory.EventReasoning:
			// 推理后紧跟调用时合并为一条带调用的助手消息
			if i+1 < len(events) && events[i+1].Type == trajectory.EventToolCall {
				turns = append(turns, Turn{Role: RoleAssistant, Content: e.Text, Call: events[i+1].Call})
				i++
				continue
			}
			turns = append(turns, Turn{Role: RoleAssistant, Content: e.Text})
			// 紧跟纠正说明时由说明代替追问
			if i+1 >= len(events) || events[i+1].Type != trajectory.EventNote {
				turns = append(turns, Turn{Role: RoleUser, Content: continueInstruction})
			}
		case trajectory.EventToolCall:
			turns = append(turns, Turn{Role: RoleAssistant, Call: e.Call})
		case trajectory.EventToolResult:
			turns = append(turns, Turn{
				Role:     RoleTool,
				Content:  e.Result.Observation(observationChars),
				CallID:   callID(events, e.Result.Seq),
				ToolName: e.Result.Tool,
			})
		case trajectory.EventNote:
			turns = append(turns, Turn{Role: RoleUser, Content: e.Text})
		}
	}
	if req.FinishOnly {
		turns = append(turns, Turn{Role: RoleUser, Content: finishInstruction})
	}
	return turns
}

func callID(events []trajectory.Event, seq int) string {
	for i := len(events) - 1; i >= 0; i-- {
		if c := events[i].Call; c != nil && c.Seq == seq {
			return c.ID
		}
	}
	return ""
}
