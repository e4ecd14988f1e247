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

// Package batch 以有界 worker 池并发处理一批问题，每个问题一条独立轨迹。
package batch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"search-agent/internal/agent/controller"
	"search-agent/internal/agent/recorder"
	"search-agent/internal/agent/trajectory"
	perrors "search-agent/pkg/errors"
	"search-agent/pkg/log"
	"search-agent/pkg/metrics"
)

// Runner 处理单个问题直到终态；*controller.Controller 实现该接口。
// Start 创建轨迹，Drive 原地推进它，panic 时编排器仍持有已记录的事件。
type Runner interface {
	Start(q controller.Question) *trajectory.Trajectory
	Drive(ctx context.Context, t *trajectory.Trajectory)
}

// Config 批量运行参数
type Config struct {
	Workers int
	// RunTimeout 全局截止；到期后进行中的轨迹以 timeout 失败结束，未开始的问题直接记为失败
	RunTimeout time.Duration
	// ProgressInterval 进度日志间隔，0 表示不输出
	ProgressInterval time.Duration
}

// Result 一条完成的轨迹，按完成顺序发出
type Result struct {
	QuestionID string
	Trajectory *trajectory.Trajectory
	// PersistErr 写入 Recorder 失败时非空；不影响批次继续
	PersistErr error
}

// Orchestrator 批量编排器
type Orchestrator struct {
	runner   Runner
	recorder recorder.Recorder
	cfg      Config
	progress *Progress
	logger   *log.Logger
}

// New 创建编排器；rec 为 nil 时不持久化；workers<=0 时默认 1
func New(runner Runner, rec recorder.Recorder, cfg Config, logger *log.Logger) *Orchestrator {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Orchestrator{runner: runner, recorder: rec, cfg: cfg, progress: NewProgress(), logger: logger}
}

// Progress 运行进度，可在运行期间并发读取
func (o *Orchestrator) Progress() *Progress { return o.progress }

// Run 启动批次并立即返回结果通道；每个问题恰好发出一个结果，全部完成后通道关闭。
// 调用方必须读完通道。
func (o *Orchestrator) Run(ctx context.Context, questions []controller.Question) <-chan Result {
	out := make(chan Result, o.cfg.Workers)
	o.progress.start(len(questions))

	go func() {
		defer close(out)

		runCtx := ctx
		if o.cfg.RunTimeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(ctx, o.cfg.RunTimeout)
			defer cancel()
		}

		stopLog := o.logProgress()
		defer stopLog()

		o.logger.Info("批次开始", "questions", len(questions), "workers", o.cfg.Workers)
		g := new(errgroup.Group)
		g.SetLimit(o.cfg.Workers)
		for _, q := range questions {
			q := q
			if runCtx.Err() != nil {
				// 截止后不再占用 worker，直接补齐失败记录
				o.emit(ctx, out, q, abandoned(q, runCtx.Err()))
				continue
			}
			g.Go(func() error {
				o.emit(ctx, out, q, o.process(runCtx, q))
				return nil
			})
		}
		_ = g.Wait()

		snap := o.progress.Snapshot()
		o.logger.Info("批次结束", "completed", snap.Completed, "by_status", snap.ByStatus, "elapsed", snap.Elapsed)
	}()
	return out
}

// Collect 运行批次并按输入顺序返回全部结果
func (o *Orchestrator) Collect(ctx context.Context, questions []controller.Question) []Result {
	order := make(map[string][]int, len(questions))
	for i, q := range questions {
		order[q.ID] = append(order[q.ID], i)
	}
	results := make([]Result, len(questions))
	for r := range o.Run(ctx, questions) {
		idx := order[r.QuestionID]
		results[idx[0]] = r
		order[r.QuestionID] = idx[1:]
	}
	return results
}

// process 在一个 worker 内运行单个问题；panic 被记录为 internal 失败
func (o *Orchestrator) process(ctx context.Context, q controller.Question) (t *trajectory.Trajectory) {
	o.progress.begin()
	defer o.progress.end()
	metrics.WorkerBusy.Inc()
	defer metrics.WorkerBusy.Dec()

	defer func() {
		r := recover()
		if r == nil {
			return
		}
		o.logger.Error("轨迹 panic", "question_id", q.ID, "panic", r, "stack", string(debug.Stack()))
		if t == nil {
			t = trajectory.New(q.ID, q.Text, q.Answers, nil)
		}
		if !t.Frozen() {
			_ = t.Terminate(trajectory.StateFailed, &trajectory.Failure{
				Kind:    perrors.KindInternal,
				Message: fmt.Sprintf("panic: %v", r),
			})
		}
	}()
	t = o.runner.Start(q)
	o.runner.Drive(ctx, t)
	return t
}

// emit 持久化并发出结果；持久化不受运行截止影响
func (o *Orchestrator) emit(ctx context.Context, out chan<- Result, q controller.Question, t *trajectory.Trajectory) {
	res := Result{QuestionID: q.ID, Trajectory: t}
	if o.recorder != nil {
		if err := o.recorder.Persist(context.WithoutCancel(ctx), t); err != nil {
			o.logger.Error("轨迹写入失败", "question_id", q.ID, "error", err)
			res.PersistErr = err
		}
	}
	o.progress.finish(t.State)
	out <- res
}

// abandoned 运行截止后尚未开始的问题
func abandoned(q controller.Question, cause error) *trajectory.Trajectory {
	t := trajectory.New(q.ID, q.Text, q.Answers, nil)
	kind := perrors.KindTimeout
	if errors.Is(cause, context.Canceled) {
		kind = perrors.KindCanceled
	}
	_ = t.Terminate(trajectory.StateFailed, &trajectory.Failure{
		Kind:    kind,
		Message: fmt.Sprintf("not started before run stopped: %v", cause),
	})
	return t
}

func (o *Orchestrator) logProgress() func() {
	if o.cfg.ProgressInterval <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(o.cfg.ProgressInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				s := o.progress.Snapshot()
				o.logger.Info("批次进度", "completed", s.Completed, "total", s.Total, "in_flight", s.InFlight, "by_status", s.ByStatus)
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}
