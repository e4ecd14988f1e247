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

// Package controller 单条轨迹的状态机：
// INIT → REASONING ⇄ TOOL_EXECUTING → SUCCEEDED | BUDGET_EXCEEDED | FAILED。
// 同一轨迹内严格串行：工具调用完成后才请求下一步。
package controller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"search-agent/internal/agent/completion"
	"search-agent/internal/agent/trajectory"
	"search-agent/internal/tool"
	perrors "search-agent/pkg/errors"
	"search-agent/pkg/log"
	"search-agent/pkg/metrics"
	"search-agent/pkg/tracing"
)

// 预算名称
const (
	BudgetSteps     = "steps"
	BudgetToolCalls = "tool_calls"
	BudgetMalformed = "malformed_retries"
)

// BudgetExceededError 预算耗尽：受控的降级结束，不是正确性错误
type BudgetExceededError struct {
	Budget string
	Limit  int
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("%s budget of %d exhausted", e.Budget, e.Limit)
}

func (e *BudgetExceededError) Kind() perrors.Kind { return perrors.KindBudgetExceeded }

// Config 单条轨迹的预算与超时
type Config struct {
	MaxSteps            int
	MaxToolCalls        int
	MaxMalformedRetries int
	// FinalizeOnBudget 预算耗尽时发起一次只允许 Finish 的收尾调用
	FinalizeOnBudget bool
	// TrajectoryTimeout 单条轨迹超时，<=0 不限
	TrajectoryTimeout time.Duration
}

// ToolSet 本次运行公布给模型的工具（已按能力过滤）
type ToolSet interface {
	Specs() []tool.Spec
	Validate(name string, args map[string]any) error
}

// Invoker 工具执行器；从不返回错误
type Invoker interface {
	Invoke(ctx context.Context, call tool.Call) tool.Result
}

// Question 输入问题
type Question struct {
	ID      string   `json:"id"`
	Text    string   `json:"question"`
	Answers []string `json:"answers,omitempty"`
}

// Controller 轨迹状态机；无内部可变状态，可被多个 worker 并发使用
type Controller struct {
	adapter completion.Adapter
	tools   ToolSet
	invoker Invoker
	cfg     Config
	logger  *log.Logger
}

// New 创建控制器
func New(adapter completion.Adapter, tools ToolSet, invoker Invoker, cfg Config, logger *log.Logger) *Controller {
	if logger == nil {
		logger = log.Nop()
	}
	return &Controller{adapter: adapter, tools: tools, invoker: invoker, cfg: cfg, logger: logger}
}

// run 单条轨迹的运行态
type run struct {
	c      *Controller
	t      *trajectory.Trajectory
	specs  []tool.Spec
	logger *log.Logger
}

// Run 处理一个问题直到终态，返回已冻结的轨迹。
// ctx 结束时轨迹以 FAILED（timeout / canceled）结束，已记录的事件保留。
func (c *Controller) Run(ctx context.Context, q Question) *trajectory.Trajectory {
	t := c.Start(q)
	c.Drive(ctx, t)
	return t
}

// Start 为问题创建 INIT 轨迹，公布当前工具集
func (c *Controller) Start(q Question) *trajectory.Trajectory {
	return trajectory.New(q.ID, q.Text, q.Answers, c.tools.Specs())
}

// Drive 推进 Start 创建的轨迹直到终态。
// 中途 panic 时已追加的事件仍留在 t 中。
func (c *Controller) Drive(ctx context.Context, t *trajectory.Trajectory) {
	ctx, span := tracing.StartTrajectorySpan(ctx, t.ID)
	if c.cfg.TrajectoryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.TrajectoryTimeout)
		defer cancel()
	}

	r := &run{
		c:      c,
		t:      t,
		specs:  t.Tools,
		logger: c.logger.With("question_id", t.ID),
	}
	r.loop(ctx)

	status := string(t.State)
	metrics.TrajectoryTotal.WithLabelValues(status).Inc()
	metrics.TrajectoryDuration.WithLabelValues(status).Observe(t.Duration().Seconds())
	metrics.TrajectorySteps.Observe(float64(t.Counters.Steps))

	var spanErr error
	if t.Failure != nil && t.State == trajectory.StateFailed {
		spanErr = errors.New(t.Failure.Message)
	}
	tracing.EndSpan(span, spanErr,
		attribute.String("status", status),
		attribute.Int("steps", t.Counters.Steps),
		attribute.Int("tool_calls", t.Counters.ToolCalls),
	)
	r.logger.Info("轨迹结束",
		"status", status,
		"steps", t.Counters.Steps,
		"tool_calls", t.Counters.ToolCalls,
		"malformed_retries", t.Counters.MalformedRetries,
		"duration", t.Duration(),
	)
}

func (r *run) loop(ctx context.Context) {
	cfg := r.c.cfg
	r.transition(trajectory.StateReasoning)

	for !r.t.State.Terminal() {
		if err := ctx.Err(); err != nil {
			r.fail(err)
			return
		}
		if r.t.Counters.Steps >= cfg.MaxSteps {
			r.exhaust(ctx, &BudgetExceededError{Budget: BudgetSteps, Limit: cfg.MaxSteps})
			return
		}

		action, err := r.c.adapter.Advance(ctx, r.t, completion.Request{Tools: r.specs})
		if err != nil {
			if ctx.Err() != nil {
				r.fail(ctx.Err())
				return
			}
			var mr *completion.MalformedResponseError
			if errors.As(err, &mr) {
				r.corrective(ctx, "malformed_response", malformedNote(mr))
				continue
			}
			r.fail(err)
			return
		}

		switch a := action.(type) {
		case completion.Reason:
			r.must(r.t.AppendReasoning(a.Text))
			r.t.Counters.Steps++
			r.logger.Debug("推理", "step", r.t.Counters.Steps)
		case completion.Act:
			r.act(ctx, a)
		case completion.Finish:
			r.must(r.t.Succeed(a.Answer))
		default:
			r.fail(fmt.Errorf("adapter returned unsupported action %T", action))
		}
	}
}

func (r *run) act(ctx context.Context, a completion.Act) {
	cfg := r.c.cfg
	if a.Rationale != "" {
		r.must(r.t.AppendReasoning(a.Rationale))
	}
	if r.t.Counters.ToolCalls >= cfg.MaxToolCalls && len(r.specs) > 0 {
		r.exhaust(ctx, &BudgetExceededError{Budget: BudgetToolCalls, Limit: cfg.MaxToolCalls})
		return
	}
	if err := r.c.tools.Validate(a.Tool, a.Args); err != nil {
		reason := string(perrors.KindOf(err))
		r.corrective(ctx, reason, rejectionNote(a.Tool, err))
		return
	}

	r.t.Counters.Steps++
	r.transition(trajectory.StateToolExecuting)
	call := tool.NewCall(r.t.Counters.ToolCalls+1, a.Tool, a.Args)
	r.must(r.t.AppendToolCall(call))
	r.logger.Debug("调用工具", "tool", call.Tool, "seq", call.Seq)

	res := r.c.invoker.Invoke(ctx, call)
	r.must(r.t.AppendToolResult(res))
	r.t.Counters.ToolCalls++

	if res.Failure != nil {
		r.logger.Warn("工具调用失败", "tool", call.Tool, "seq", call.Seq, "kind", res.Failure.Kind, "message", res.Failure.Message)
		// 校验通过却解析不到工具，说明注册表与公布列表不一致
		if res.Failure.Kind == perrors.KindUnknownTool {
			r.fail(&tool.UnknownToolError{Name: call.Tool})
			return
		}
	}
	if err := ctx.Err(); err != nil {
		r.fail(err)
		return
	}
	r.transition(trajectory.StateReasoning)
}

// corrective 追加纠正说明并计入 malformed 预算；超出预算时强制收尾
func (r *run) corrective(ctx context.Context, reason, note string) {
	limit := r.c.cfg.MaxMalformedRetries
	if r.t.Counters.MalformedRetries >= limit {
		r.exhaust(ctx, &BudgetExceededError{Budget: BudgetMalformed, Limit: limit})
		return
	}
	r.t.Counters.MalformedRetries++
	metrics.CorrectiveRetryTotal.WithLabelValues(reason).Inc()
	r.logger.Warn("模型输出无效，纠正后重试", "reason", reason, "retry", r.t.Counters.MalformedRetries, "limit", limit)
	r.must(r.t.AppendNote(note))
}

// exhaust 预算耗尽：可选地发起一次只允许 Finish 的收尾调用
func (r *run) exhaust(ctx context.Context, budget *BudgetExceededError) {
	failure := &trajectory.Failure{Kind: perrors.KindBudgetExceeded, Message: budget.Error()}
	r.logger.Info("预算耗尽", "budget", budget.Budget, "limit", budget.Limit, "finalize", r.c.cfg.FinalizeOnBudget)
	if !r.c.cfg.FinalizeOnBudget {
		r.must(r.t.Terminate(trajectory.StateBudgetExceeded, failure))
		return
	}

	action, err := r.c.adapter.Advance(ctx, r.t, completion.Request{Tools: r.specs, FinishOnly: true})
	if err != nil && ctx.Err() != nil {
		r.fail(ctx.Err())
		return
	}
	if fin, ok := action.(completion.Finish); ok && err == nil {
		r.must(r.t.ExhaustBudget(fin.Answer, failure))
		return
	}
	if err != nil {
		failure.Message = fmt.Sprintf("%s; forced finish failed: %v", failure.Message, err)
	} else {
		failure.Message = fmt.Sprintf("%s; forced finish returned %T", failure.Message, action)
	}
	r.must(r.t.Terminate(trajectory.StateBudgetExceeded, failure))
}

// fail 以 FAILED 结束
func (r *run) fail(err error) {
	kind := perrors.KindOf(err)
	r.logger.Error("轨迹失败", "kind", kind, "error", err)
	r.must(r.t.Terminate(trajectory.StateFailed, &trajectory.Failure{Kind: kind, Message: err.Error()}))
}

func (r *run) transition(s trajectory.State) {
	r.logger.Debug("状态切换", "from", r.t.State, "to", s)
	r.must(r.t.SetState(s))
}

// must 轨迹写入只会因控制器自身的顺序错误失败
func (r *run) must(err error) {
	if err != nil {
		panic(fmt.Sprintf("trajectory %s: %v", r.t.ID, err))
	}
}

func malformedNote(err *completion.MalformedResponseError) string {
	return fmt.Sprintf("Your previous reply could not be understood (%s). "+
		"Reply again: either call one of the available tools with valid arguments, "+
		"or give the final answer wrapped in <answer></answer> tags.", err.Reason)
}

func rejectionNote(name string, err error) string {
	var unknown *tool.UnknownToolError
	if errors.As(err, &unknown) {
		if len(unknown.Available) == 0 {
			return fmt.Sprintf("The tool %q is not available and no tools can be used for this question. "+
				"Answer from your own knowledge with the final answer wrapped in <answer></answer> tags.", name)
		}
		return fmt.Sprintf("The tool %q is not available. Available tools: %s.", name, strings.Join(unknown.Available, ", "))
	}
	var invalid *tool.InvalidArgumentsError
	if errors.As(err, &invalid) {
		return fmt.Sprintf("Your call to %s was rejected because of invalid arguments:\n- %s\n"+
			"Fix all of them and call the tool again, or answer if you already know.", name, strings.Join(invalid.Violations, "\n- "))
	}
	return fmt.Sprintf("Your call to %s was rejected: %v.", name, err)
}
