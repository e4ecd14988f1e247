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

package batch

import (
	"sync"
	"time"

	"search-agent/internal/agent/trajectory"
)

// Progress 批次进度计数
type Progress struct {
	mu        sync.RWMutex
	total     int
	completed int
	inFlight  int
	byStatus  map[string]int
	startedAt time.Time
	endedAt   time.Time
}

// Snapshot 进度快照
type Snapshot struct {
	Total     int            `json:"total"`
	Completed int            `json:"completed"`
	InFlight  int            `json:"in_flight"`
	ByStatus  map[string]int `json:"by_status"`
	StartedAt time.Time      `json:"started_at"`
	Elapsed   time.Duration  `json:"elapsed"`
	Done      bool           `json:"done"`
}

// NewProgress 创建空进度
func NewProgress() *Progress {
	return &Progress{byStatus: map[string]int{}}
}

func (p *Progress) start(total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.total = total
	p.completed = 0
	p.inFlight = 0
	p.byStatus = map[string]int{}
	p.startedAt = time.Now()
	p.endedAt = time.Time{}
}

func (p *Progress) begin() {
	p.mu.Lock()
	p.inFlight++
	p.mu.Unlock()
}

func (p *Progress) end() {
	p.mu.Lock()
	p.inFlight--
	p.mu.Unlock()
}

func (p *Progress) finish(s trajectory.State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completed++
	p.byStatus[string(s)]++
	if p.completed == p.total {
		p.endedAt = time.Now()
	}
}

// Snapshot 返回当前进度的副本
func (p *Progress) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	by := make(map[string]int, len(p.byStatus))
	for k, v := range p.byStatus {
		by[k] = v
	}
	end := p.endedAt
	if end.IsZero() {
		end = time.Now()
	}
	var elapsed time.Duration
	if !p.startedAt.IsZero() {
		elapsed = end.Sub(p.startedAt)
	}
	return Snapshot{
		Total:     p.total,
		Completed: p.completed,
		InFlight:  p.inFlight,
		ByStatus:  by,
		StartedAt: p.startedAt,
		Elapsed:   elapsed,
		Done:      p.total > 0 && p.completed == p.total,
	}
}
