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
	"regexp"

	"github.com/jackc/pgx/v5/pgxpool"

	"search-agent/internal/agent/trajectory"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// PostgresRecorder 每条轨迹一行，record 列保存完整轨迹记录（jsonb）
type PostgresRecorder struct {
	pool  *pgxpool.Pool
	runID string
	table string
}

// NewPostgresRecorder 连接数据库并确保表存在
func NewPostgresRecorder(ctx context.Context, dsn, table, runID string) (*PostgresRecorder, error) {
	if table == "" {
		table = "agent_trajectories"
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	r := &PostgresRecorder{pool: pool, runID: runID, table: table}
	if err := r.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return r, nil
}

func (r *PostgresRecorder) ensureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		run_id      TEXT NOT NULL,
		question_id TEXT NOT NULL,
		status      TEXT NOT NULL,
		answer      TEXT,
		tool_calls  INT NOT NULL DEFAULT 0,
		duration_ms BIGINT NOT NULL DEFAULT 0,
		record      JSONB NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (run_id, question_id)
	)`, r.table))
	return err
}

// Persist 实现 Recorder；同一 run 内重复写入覆盖旧记录
func (r *PostgresRecorder) Persist(ctx context.Context, t *trajectory.Trajectory) error {
	_, traj := NewRecords(r.runID, t)
	record, err := json.Marshal(traj)
	if err != nil {
		return fmt.Errorf("marshal trajectory %s: %w", t.ID, err)
	}
	_, err = r.pool.Exec(ctx, fmt.Sprintf(
		`INSERT INTO %s (run_id, question_id, status, answer, tool_calls, duration_ms, record)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (run_id, question_id) DO UPDATE
		 SET status = EXCLUDED.status, answer = EXCLUDED.answer, tool_calls = EXCLUDED.tool_calls,
		     duration_ms = EXCLUDED.duration_ms, record = EXCLUDED.record`, r.table),
		r.runID, t.ID, string(t.State), t.Answer, t.Counters.ToolCalls, traj.DurationMS, record)
	if err != nil {
		return fmt.Errorf("insert trajectory %s: %w", t.ID, err)
	}
	return nil
}

// Close 关闭连接池
func (r *PostgresRecorder) Close() error {
	r.pool.Close()
	return nil
}

// Count 当前 run 已写入的记录数
func (r *PostgresRecorder) Count(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s WHERE run_id = $1`, r.table), r.runID).Scan(&n)
	return n, err
}
