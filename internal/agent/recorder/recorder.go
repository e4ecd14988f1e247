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

// Package recorder 把冻结的轨迹持久化为 prediction / trajectory 两类记录。
// 所有实现都可被多个 worker 并发调用，每次写入一条完整记录。
package recorder

import (
	"context"
	"errors"

	"search-agent/internal/agent/completion"
	"search-agent/internal/agent/trajectory"
	"search-agent/internal/tool"
)

// Recorder 轨迹持久化接口
type Recorder interface {
	Persist(ctx context.Context, t *trajectory.Trajectory) error
	Close() error
}

// PredictionRecord 每个问题一条，供评分脚本读取；无答案时 llm_response 为 null
type PredictionRecord struct {
	ID              string   `json:"id"`
	Question        string   `json:"question"`
	Answers         []string `json:"answers"`
	LLMResponse     *string  `json:"llm_response"`
	ExtractedAnswer *string  `json:"extracted_answer"`
	Status          string   `json:"status"`
}

// TrajectoryRecord 完整轨迹
type TrajectoryRecord struct {
	ID           string              `json:"id"`
	RunID        string              `json:"run_id,omitempty"`
	Question     string              `json:"question"`
	GroundTruths []string            `json:"ground_truths"`
	Status       string              `json:"status"`
	Failure      *trajectory.Failure `json:"failure"`
	DurationMS   int64               `json:"duration_ms"`
	Trajectory   TrajectoryBody      `json:"trajectory"`
}

// TrajectoryBody 轨迹正文：events 为精确事件序列，steps 为每次工具调用的摘要
type TrajectoryBody struct {
	Question         string              `json:"question"`
	Tools            []string            `json:"tools"`
	Events           []trajectory.Event  `json:"events"`
	Steps            []trajectory.Step   `json:"steps"`
	FinalAnswer      *string             `json:"final_answer"`
	TotalSearchSteps int                 `json:"total_search_steps"`
	Counters         trajectory.Counters `json:"counters"`
}

// NewRecords 由冻结轨迹构造两类记录
func NewRecords(runID string, t *trajectory.Trajectory) (PredictionRecord, TrajectoryRecord) {
	answers := t.GroundTruths
	if answers == nil {
		answers = []string{}
	}
	var extracted *string
	if t.Answer != nil {
		a := completion.ExtractAnswer(*t.Answer)
		extracted = &a
	}
	pred := PredictionRecord{
		ID:              t.ID,
		Question:        t.Question,
		Answers:         answers,
		LLMResponse:     t.Answer,
		ExtractedAnswer: extracted,
		Status:          string(t.State),
	}

	events := t.Events
	if events == nil {
		events = []trajectory.Event{}
	}
	traj := TrajectoryRecord{
		ID:           t.ID,
		RunID:        runID,
		Question:     t.Question,
		GroundTruths: answers,
		Status:       string(t.State),
		Failure:      t.Failure,
		DurationMS:   t.Duration().Milliseconds(),
		Trajectory: TrajectoryBody{
			Question:         t.Question,
			Tools:            toolNames(t.Tools),
			Events:           events,
			Steps:            t.Steps(),
			FinalAnswer:      t.Answer,
			TotalSearchSteps: t.Counters.ToolCalls,
			Counters:         t.Counters,
		},
	}
	return pred, traj
}

func toolNames(specs []tool.Spec) []string {
	names := make([]string, 0, len(specs))
	for _, s := range specs {
		names = append(names, s.Name)
	}
	return names
}

// Multi 扇出到多个 Recorder；单个失败不影响其余
type Multi []Recorder

// Persist 实现 Recorder
func (m Multi) Persist(ctx context.Context, t *trajectory.Trajectory) error {
	var errs []error
	for _, r := range m {
		if err := r.Persist(ctx, t); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close 实现 Recorder
func (m Multi) Close() error {
	var errs []error
	for _, r := range m {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
