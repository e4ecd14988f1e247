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

package http

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"search-agent/internal/agent/batch"
	"search-agent/pkg/log"
	"search-agent/pkg/metrics"
)

// ProgressSource 批次进度来源（*batch.Progress 满足）
type ProgressSource interface {
	Snapshot() batch.Snapshot
}

// Handler 运行监控 HTTP 处理器
type Handler struct {
	mu        sync.RWMutex
	runID     string
	progress  ProgressSource
	startedAt time.Time
	logger    *log.Logger
}

// NewHandler 创建处理器；尚未开始运行时 /api/run/progress 返回 idle
func NewHandler(logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Nop()
	}
	return &Handler{startedAt: time.Now(), logger: logger}
}

// Track 切换当前跟踪的批次
func (h *Handler) Track(runID string, p ProgressSource) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.runID = runID
	h.progress = p
}

// HealthCheck 健康检查
func (h *Handler) HealthCheck(ctx context.Context, c *app.RequestContext) {
	c.JSON(consts.StatusOK, utils.H{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
		"service":   "search-agent",
		"uptime":    time.Since(h.startedAt).String(),
	})
}

// Metrics Prometheus 文本格式指标
func (h *Handler) Metrics(ctx context.Context, c *app.RequestContext) {
	var buf bytes.Buffer
	if err := metrics.WritePrometheus(&buf); err != nil {
		h.logger.Error("导出指标失败", "error", err)
		c.JSON(consts.StatusInternalServerError, utils.H{"error": err.Error()})
		return
	}
	c.Data(consts.StatusOK, "text/plain; version=0.0.4; charset=utf-8", buf.Bytes())
}

// RunProgress 当前批次进度
func (h *Handler) RunProgress(ctx context.Context, c *app.RequestContext) {
	h.mu.RLock()
	runID, p := h.runID, h.progress
	h.mu.RUnlock()
	if p == nil {
		c.JSON(consts.StatusOK, utils.H{"status": "idle"})
		return
	}
	snap := p.Snapshot()
	status := "running"
	if snap.Done {
		status = "done"
	}
	c.JSON(consts.StatusOK, utils.H{
		"status":    status,
		"run_id":    runID,
		"total":     snap.Total,
		"completed": snap.Completed,
		"in_flight": snap.InFlight,
		"by_status": snap.ByStatus,
		"elapsed":   snap.Elapsed.String(),
	})
}
