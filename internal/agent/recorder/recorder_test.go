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
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"search-agent/internal/agent/trajectory"
	"search-agent/internal/tool"
)

func finished(t *testing.T, id string) *trajectory.Trajectory {
	t.Helper()
	tr := trajectory.New(id, "who played the joker in 2008?", []string{"Heath Ledger"}, []tool.Spec{{Name: "google_search"}})
	require.NoError(t, tr.AppendReasoning("search first"))
	require.NoError(t, tr.AppendToolCall(tool.NewCall(1, "google_search", map[string]any{"query": "joker 2008"})))
	require.NoError(t, tr.AppendToolResult(tool.Result{Seq: 1, Tool: "google_search", Output: &tool.Output{Text: "Heath Ledger played the Joker"}}))
	tr.Counters = trajectory.Counters{Steps: 2, ToolCalls: 1}
	require.NoError(t, tr.Succeed("<answer>Heath Ledger</answer>"))
	return tr
}

func failed(t *testing.T, id string) *trajectory.Trajectory {
	t.Helper()
	tr := trajectory.New(id, "q", nil, nil)
	require.NoError(t, tr.Terminate(trajectory.StateFailed, &trajectory.Failure{Kind: "fatal_adapter", Message: "boom"}))
	return tr
}

func TestNewRecords(t *testing.T) {
	pred, traj := NewRecords("run-1", finished(t, "q1"))

	assert.Equal(t, "q1", pred.ID)
	require.NotNil(t, pred.LLMResponse)
	assert.Equal(t, "<answer>Heath Ledger</answer>", *pred.LLMResponse)
	require.NotNil(t, pred.ExtractedAnswer)
	assert.Equal(t, "Heath Ledger", *pred.ExtractedAnswer)
	assert.Equal(t, "SUCCEEDED", pred.Status)

	assert.Equal(t, "run-1", traj.RunID)
	assert.Equal(t, 1, traj.Trajectory.TotalSearchSteps)
	assert.Equal(t, []string{"google_search"}, traj.Trajectory.Tools)
	assert.Len(t, traj.Trajectory.Steps, 1)
	assert.Nil(t, traj.Failure)
}

func TestNewRecords_NoAnswerIsNull(t *testing.T) {
	pred, traj := NewRecords("", failed(t, "q2"))

	raw, err := json.Marshal(pred)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Contains(t, m, "llm_response")
	assert.Nil(t, m["llm_response"])
	assert.Equal(t, []any{}, m["answers"])

	require.NotNil(t, traj.Failure)
	assert.Equal(t, "fatal_adapter", traj.Failure.Kind)
	assert.Equal(t, "FAILED", traj.Status)
}

func TestJSONLRecorder_ConcurrentWrites(t *testing.T) {
	dir := t.TempDir()
	predPath := filepath.Join(dir, "out", "predictions.jsonl")
	trajPath := filepath.Join(dir, "out", "trajectories.jsonl")
	rec, err := NewJSONLRecorder("run", predPath, trajPath, false)
	require.NoError(t, err)

	const n = 40
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var tr *trajectory.Trajectory
			if i%2 == 0 {
				tr = finished(t, fmt.Sprintf("q%d", i))
			} else {
				tr = failed(t, fmt.Sprintf("q%d", i))
			}
			assert.NoError(t, rec.Persist(context.Background(), tr))
		}(i)
	}
	wg.Wait()
	require.NoError(t, rec.Close())

	seen := readIDs(t, predPath)
	assert.Len(t, seen, n)
	for id, count := range seen {
		assert.Equal(t, 1, count, id)
	}
	assert.Len(t, readIDs(t, trajPath), n)

	assert.Error(t, rec.Persist(context.Background(), failed(t, "late")))
	assert.NoError(t, rec.Close())
}

func TestJSONLRecorder_AppendMode(t *testing.T) {
	dir := t.TempDir()
	p, tp := filepath.Join(dir, "p.jsonl"), filepath.Join(dir, "t.jsonl")
	for _, id := range []string{"a", "b"} {
		rec, err := NewJSONLRecorder("run", p, tp, true)
		require.NoError(t, err)
		require.NoError(t, rec.Persist(context.Background(), failed(t, id)))
		require.NoError(t, rec.Close())
	}
	assert.Len(t, readIDs(t, p), 2)

	rec, err := NewJSONLRecorder("run", p, tp, false)
	require.NoError(t, err)
	require.NoError(t, rec.Close())
	assert.Empty(t, readIDs(t, p))
}

func readIDs(t *testing.T, path string) map[string]int {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	ids := map[string]int{}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 1<<20), 1<<20)
	for sc.Scan() {
		var rec struct {
			ID string `json:"id"`
		}
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		ids[rec.ID]++
	}
	require.NoError(t, sc.Err())
	return ids
}

type failingRecorder struct{ closed bool }

func (f *failingRecorder) Persist(context.Context, *trajectory.Trajectory) error {
	return errors.New("disk full")
}
func (f *failingRecorder) Close() error { f.closed = true; return nil }

func TestMulti_ContinuesPastFailures(t *testing.T) {
	dir := t.TempDir()
	good, err := NewJSONLRecorder("", filepath.Join(dir, "p.jsonl"), filepath.Join(dir, "t.jsonl"), false)
	require.NoError(t, err)
	bad := &failingRecorder{}
	m := Multi{bad, good}

	err = m.Persist(context.Background(), failed(t, "q"))
	assert.ErrorContains(t, err, "disk full")
	require.NoError(t, m.Close())
	assert.True(t, bad.closed)
	assert.Len(t, readIDs(t, filepath.Join(dir, "p.jsonl")), 1)
}

func TestPostgresRecorder(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set, skipping Postgres recorder tests")
	}
	ctx := context.Background()
	rec, err := NewPostgresRecorder(ctx, dsn, "agent_trajectories_test", fmt.Sprintf("test-%s", t.Name()))
	require.NoError(t, err)
	defer rec.Close()
	_, err = rec.pool.Exec(ctx, `DELETE FROM agent_trajectories_test WHERE run_id = $1`, rec.runID)
	require.NoError(t, err)

	require.NoError(t, rec.Persist(ctx, finished(t, "q1")))
	require.NoError(t, rec.Persist(ctx, finished(t, "q1")))
	require.NoError(t, rec.Persist(ctx, failed(t, "q2")))
	n, err := rec.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestNewPostgresRecorder_RejectsBadTable(t *testing.T) {
	_, err := NewPostgresRecorder(context.Background(), "postgres://x", "bad;drop", "r")
	assert.ErrorContains(t, err, "invalid table name")
}
