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

package app

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"search-agent/internal/agent/batch"
	"search-agent/internal/agent/controller"
	"search-agent/internal/agent/recorder"
	"search-agent/internal/agent/trajectory"
	"search-agent/internal/dataset"
)

// RunOptions 单次批量运行的输入输出
type RunOptions struct {
	DataPath string
	// Questions 非空时忽略 DataPath
	Questions    []controller.Question
	Predictions  string
	Trajectories string
	Append       bool
	// OnProgress 批次创建后回调，供监控服务读取进度
	OnProgress func(runID string, p *batch.Progress)
}

// Summary 批量运行汇总
type Summary struct {
	RunID         string         `json:"run_id"`
	Total         int            `json:"total"`
	ByStatus      map[string]int `json:"by_status"`
	PersistErrors int            `json:"persist_errors"`
	ToolCalls     int            `json:"tool_calls"`
	Duration      time.Duration  `json:"duration"`
}

// NewRecorder 按输出配置创建 Recorder：JSONL 文件必选，配置了 postgres_dsn 时额外写入 Postgres
func (b *Bootstrap) NewRecorder(ctx context.Context, runID string, opts RunOptions) (recorder.Recorder, error) {
	out := b.Config.Output
	predPath, trajPath := out.Predictions, out.Trajectories
	if opts.Predictions != "" {
		predPath = opts.Predictions
	}
	if opts.Trajectories != "" {
		trajPath = opts.Trajectories
	}
	jsonl, err := recorder.NewJSONLRecorder(runID, predPath, trajPath, opts.Append)
	if err != nil {
		return nil, err
	}
	if out.PostgresDSN == "" {
		return jsonl, nil
	}
	pg, err := recorder.NewPostgresRecorder(ctx, out.PostgresDSN, out.Table, runID)
	if err != nil {
		_ = jsonl.Close()
		return nil, fmt.Errorf("初始化 postgres recorder 失败: %w", err)
	}
	return recorder.Multi{jsonl, pg}, nil
}

// RunBatch 加载问题、并发处理并持久化全部轨迹。
// 单个问题的失败只体现在汇总中；返回错误仅表示运行无法开始。
func (b *Bootstrap) RunBatch(ctx context.Context, opts RunOptions) (*Summary, error) {
	if b.Controller == nil {
		return nil, fmt.Errorf("bootstrap created without a completion adapter")
	}
	questions := opts.Questions
	if len(questions) == 0 {
		var err error
		questions, err = dataset.LoadFile(opts.DataPath, b.Config.Run.Limit)
		if err != nil {
			return nil, err
		}
	}

	runID := uuid.NewString()
	rec, err := b.NewRecorder(ctx, runID, opts)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rec.Close(); err != nil {
			b.Logger.Error("关闭 recorder 失败", "error", err)
		}
	}()

	orch := batch.New(b.Controller, rec, batch.Config{
		Workers:          b.Config.Run.Workers,
		RunTimeout:       b.Config.Run.RunTimeout,
		ProgressInterval: 30 * time.Second,
	}, b.Logger.With("run_id", runID))
	if opts.OnProgress != nil {
		opts.OnProgress(runID, orch.Progress())
	}

	start := time.Now()
	sum := &Summary{RunID: runID, ByStatus: map[string]int{}}
	for r := range orch.Run(ctx, questions) {
		sum.Total++
		sum.ByStatus[string(r.Trajectory.State)]++
		sum.ToolCalls += r.Trajectory.Counters.ToolCalls
		if r.PersistErr != nil {
			sum.PersistErrors++
		}
	}
	sum.Duration = time.Since(start)
	b.Logger.Info("批量运行完成",
		"run_id", runID,
		"total", sum.Total,
		"by_status", sum.ByStatus,
		"persist_errors", sum.PersistErrors,
		"duration", sum.Duration,
	)
	return sum, nil
}

// Ask 处理单个问题，不写产物
func (b *Bootstrap) Ask(ctx context.Context, question string) (*trajectory.Trajectory, error) {
	if b.Controller == nil {
		return nil, fmt.Errorf("bootstrap created without a completion adapter")
	}
	return b.Controller.Run(ctx, controller.Question{ID: uuid.NewString(), Text: question}), nil
}

// StatusLines 汇总按状态排序输出，供 CLI 打印
func (s *Summary) StatusLines() []string {
	keys := make([]string, 0, len(s.ByStatus))
	for k := range s.ByStatus {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%-16s %d", k, s.ByStatus[k]))
	}
	return lines
}
