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

package recorder

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"search-agent/internal/agent/trajectory"
)

// JSONLRecorder 写两个 JSONL 文件；一把锁保证同一轨迹的两条记录不与其它 worker 交错
type JSONLRecorder struct {
	mu     sync.Mutex
	runID  string
	pred   *os.File
	traj   *os.File
	closed bool
}

// NewJSONLRecorder 打开（截断或追加）两个输出文件，必要时创建目录
func NewJSONLRecorder(runID, predictionsPath, trajectoriesPath string, appendMode bool) (*JSONLRecorder, error) {
	pred, err := openOutput(predictionsPath, appendMode)
	if err != nil {
		return nil, err
	}
	traj, err := openOutput(trajectoriesPath, appendMode)
	if err != nil {
		pred.Close()
		return nil, err
	}
	return &JSONLRecorder{runID: runID, pred: pred, traj: traj}, nil
}

func openOutput(path string, appendMode bool) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output dir: %w", err)
		}
	}
	flags := os.O_CREATE | os.O_WRONLY
	if appendMode {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return f, nil
}

// Persist 实现 Recorder
func (r *JSONLRecorder) Persist(_ context.Context, t *trajectory.Trajectory) error {
	pred, traj := NewRecords(r.runID, t)
	predLine, err := json.Marshal(pred)
	if err != nil {
		return fmt.Errorf("marshal prediction %s: %w", t.ID, err)
	}
	trajLine, err := json.Marshal(traj)
	if err != nil {
		return fmt.Errorf("marshal trajectory %s: %w", t.ID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("recorder closed")
	}
	if _, err := r.traj.Write(append(trajLine, '\n')); err != nil {
		return fmt.Errorf("write trajectory %s: %w", t.ID, err)
	}
	if _, err := r.pred.Write(append(predLine, '\n')); err != nil {
		return fmt.Errorf("write prediction %s: %w", t.ID, err)
	}
	return nil
}

// Close 同步并关闭文件
func (r *JSONLRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	var firstErr error
	for _, f := range []*os.File{r.pred, r.traj} {
		if err := f.Sync(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
