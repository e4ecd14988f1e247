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

package trajectory

import (
	"errors"
	"fmt"
	"time"

	"search-agent/internal/tool"
	perrors "search-agent/pkg/errors"
)

// State 轨迹状态机状态
type State string

const (
	StateInit           State = "INIT"
	StateReasoning      State = "REASONING"
	StateToolExecuting  State = "TOOL_EXECUTING"
	StateSucceeded      State = "SUCCEEDED"
	StateBudgetExceeded State = "BUDGET_EXCEEDED"
	StateFailed         State = "FAILED"
)

// Terminal 是否为终态
func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateBudgetExceeded, StateFailed:
		return true
	default:
		return false
	}
}

// EventType 事件类型
type EventType string

const (
	EventReasoning  EventType = "reasoning"
	EventToolCall   EventType = "tool_call"
	EventToolResult EventType = "tool_result"
	// EventNote 控制器写给模型的纠正说明
	EventNote   EventType = "corrective_note"
	EventAnswer EventType = "final_answer"
)

// Event 轨迹中的一条记录；写入后不再修改
type Event struct {
	Index  int          `json:"index"`
	Type   EventType    `json:"type"`
	Text   string       `json:"text,omitempty"`
	Call   *tool.Call   `json:"call,omitempty"`
	Result *tool.Result `json:"result,omitempty"`
	At     time.Time    `json:"at"`
}

// Counters 预算计数
type Counters struct {
	Steps            int `json:"steps"`
	ToolCalls        int `json:"tool_calls"`
	MalformedRetries int `json:"malformed_retries"`
}

// Failure 轨迹失败描述
type Failure struct {
	Kind    perrors.Kind `json:"kind"`
	Message string       `json:"message"`
}

var (
	// ErrFrozen 轨迹已冻结
	ErrFrozen = errors.New("trajectory is frozen")
	// ErrOrphanResult 工具结果没有紧跟对应的调用
	ErrOrphanResult = errors.New("tool result does not follow its call")
	// ErrPendingCall 上一个工具调用尚未写入结果
	ErrPendingCall = errors.New("previous tool call has no result")
)

// Trajectory 单个问题的完整推理记录。
// 只由驱动它的控制器修改；事件只追加，终态后冻结。
type Trajectory struct {
	ID           string
	Question     string
	GroundTruths []string
	// Tools 本轨迹向模型公布的工具
	Tools     []tool.Spec
	Events    []Event
	State     State
	Answer    *string
	Failure   *Failure
	Counters  Counters
	StartedAt time.Time
	EndedAt   time.Time

	frozen bool
	now    func() time.Time
}

// New 创建轨迹（INIT）
func New(id, question string, groundTruths []string, tools []tool.Spec) *Trajectory {
	return &Trajectory{
		ID:           id,
		Question:     question,
		GroundTruths: groundTruths,
		Tools:        tools,
		State:        StateInit,
		StartedAt:    time.Now(),
		now:          time.Now,
	}
}

func (t *Trajectory) append(e Event) error {
	if t.frozen {
		return ErrFrozen
	}
	e.Index = len(t.Events)
	if t.now != nil {
		e.At = t.now()
	} else {
		e.At = time.Now()
	}
	t.Events = append(t.Events, e)
	return nil
}

// AppendReasoning 追加推理文本
func (t *Trajectory) AppendReasoning(text string) error {
	if t.PendingCall() != nil {
		return ErrPendingCall
	}
	return t.append(Event{Type: EventReasoning, Text: text})
}

// AppendNote 追加纠正说明
func (t *Trajectory) AppendNote(text string) error {
	if t.PendingCall() != nil {
		return ErrPendingCall
	}
	return t.append(Event{Type: EventNote, Text: text})
}

// AppendToolCall 追加工具调用；上一个调用必须已有结果
func (t *Trajectory) AppendToolCall(call tool.Call) error {
	if t.PendingCall() != nil {
		return ErrPendingCall
	}
	c := call
	return t.append(Event{Type: EventToolCall, Call: &c})
}

// AppendToolResult 追加工具结果；必须紧跟同序号的调用
func (t *Trajectory) AppendToolResult(res tool.Result) error {
	pending := t.PendingCall()
	if pending == nil || pending.Seq != res.Seq {
		return fmt.Errorf("%w: seq %d", ErrOrphanResult, res.Seq)
	}
	r := res
	return t.append(Event{Type: EventToolResult, Result: &r})
}

// PendingCall 最后一条事件是未得到结果的调用时返回它
func (t *Trajectory) PendingCall() *tool.Call {
	if n := len(t.Events); n > 0 && t.Events[n-1].Type == EventToolCall {
		return t.Events[n-1].Call
	}
	return nil
}

// SetState 切换非终态状态
func (t *Trajectory) SetState(s State) error {
	if t.frozen {
		return ErrFrozen
	}
	if s.Terminal() {
		return fmt.Errorf("use Succeed or Terminate to enter %s", s)
	}
	t.State = s
	return nil
}

// Succeed 记录最终答案并进入 SUCCEEDED，随后冻结
func (t *Trajectory) Succeed(answer string) error {
	if err := t.append(Event{Type: EventAnswer, Text: answer}); err != nil {
		return err
	}
	a := answer
	t.Answer = &a
	t.State = StateSucceeded
	t.freeze()
	return nil
}

// Terminate 以 BUDGET_EXCEEDED 或 FAILED 结束并冻结；答案为空
func (t *Trajectory) Terminate(s State, failure *Failure) error {
	if t.frozen {
		return ErrFrozen
	}
	if s != StateBudgetExceeded && s != StateFailed {
		return fmt.Errorf("terminate with non-failure state %s", s)
	}
	t.State = s
	t.Failure = failure
	t.freeze()
	return nil
}

// ExhaustBudget 预算耗尽后以 BUDGET_EXCEEDED 结束，附带强制收尾得到的尽力答案
func (t *Trajectory) ExhaustBudget(answer string, failure *Failure) error {
	if err := t.append(Event{Type: EventAnswer, Text: answer}); err != nil {
		return err
	}
	a := answer
	t.Answer = &a
	t.State = StateBudgetExceeded
	t.Failure = failure
	t.freeze()
	return nil
}

func (t *Trajectory) freeze() {
	t.frozen = true
	if t.now != nil {
		t.EndedAt = t.now()
	} else {
		t.EndedAt = time.Now()
	}
}

// Frozen 是否已冻结
func (t *Trajectory) Frozen() bool { return t.frozen }

// Duration 从创建到冻结的耗时；未冻结时为到当前的耗时
func (t *Trajectory) Duration() time.Duration {
	if t.EndedAt.IsZero() {
		return time.Since(t.StartedAt)
	}
	return t.EndedAt.Sub(t.StartedAt)
}

// ToolCalls 按顺序返回全部调用与结果
func (t *Trajectory) ToolCalls() []CallRecord {
	var out []CallRecord
	for i, e := range t.Events {
		if e.Type != EventToolCall {
			continue
		}
		rec := CallRecord{Call: *e.Call}
		if i+1 < len(t.Events) && t.Events[i+1].Type == EventToolResult {
			rec.Result = t.Events[i+1].Result
		}
		out = append(out, rec)
	}
	return out
}

// CallRecord 调用及其结果
type CallRecord struct {
	Call   tool.Call
	Result *tool.Result
}
