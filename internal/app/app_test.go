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
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"search-agent/internal/agent/batch"
	"search-agent/internal/agent/completion"
	"search-agent/internal/agent/trajectory"
	"search-agent/internal/tool"
	"search-agent/pkg/config"
)

type stubSearch struct{}

func (stubSearch) Spec() tool.Spec {
	return tool.Spec{
		Name:        "google_search",
		Description: "stub search",
		Capability:  tool.CapabilitySearch,
		Schema: tool.Schema{
			Type:       "object",
			Properties: map[string]tool.SchemaProperty{"query": {Type: "string"}},
			Required:   []string{"query"},
		},
	}
}

func (stubSearch) Execute(_ context.Context, args map[string]any) (tool.Output, error) {
	q, _ := args["query"].(string)
	return tool.Output{Items: []tool.Item{{Title: "hit for " + q, Link: "https://example.com"}}}, nil
}

// searchThenAnswer 第一次检索，有结果后给出答案
type searchThenAnswer struct{}

func (searchThenAnswer) Advance(_ context.Context, t *trajectory.Trajectory, _ completion.Request) (completion.Action, error) {
	if len(t.ToolCalls()) == 0 {
		return completion.Act{Tool: "google_search", Args: map[string]any{"query": t.Question}}, nil
	}
	if strings.Contains(t.Question, "explode") {
		return nil, &completion.FatalAdapterError{Attempts: 3, Cause: errors.New("unreachable")}
	}
	return completion.Finish{Answer: "<answer>answer-" + t.ID + "</answer>"}, nil
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Run.Capabilities = []string{config.CapabilitySearch}
	cfg.Run.Workers = 2
	cfg.Cache.Type = "memory"
	return cfg
}

func TestBootstrap_RunBatch(t *testing.T) {
	dir := t.TempDir()
	data := filepath.Join(dir, "data.jsonl")
	require.NoError(t, os.WriteFile(data, []byte(
		`{"id": "a", "question": "first", "answers": ["x"]}
{"id": "b", "question": "please explode", "answers": ["y"]}
{"id": "c", "question": "third", "answers": ["z"]}
`), 0o644))

	b, err := NewBootstrap(context.Background(), testConfig(), nil, Options{
		Adapter: searchThenAnswer{},
		Tools:   []tool.Tool{stubSearch{}},
	})
	require.NoError(t, err)
	defer b.Close()
	assert.Equal(t, []string{"google_search"}, b.Tools.Names())

	var progressed bool
	pred := filepath.Join(dir, "out", "pred.jsonl")
	sum, err := b.RunBatch(context.Background(), RunOptions{
		DataPath:     data,
		Predictions:  pred,
		Trajectories: filepath.Join(dir, "out", "traj.jsonl"),
		OnProgress: func(runID string, _ *batch.Progress) {
			progressed = runID != ""
		},
	})
	require.NoError(t, err)
	assert.True(t, progressed)
	assert.Equal(t, 3, sum.Total)
	assert.Equal(t, 2, sum.ByStatus["SUCCEEDED"])
	assert.Equal(t, 1, sum.ByStatus["FAILED"])
	assert.Equal(t, 3, sum.ToolCalls)
	assert.Len(t, sum.StatusLines(), 2)

	f, err := os.Open(pred)
	require.NoError(t, err)
	defer f.Close()
	got := map[string]*string{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var rec struct {
			ID              string  `json:"id"`
			ExtractedAnswer *string `json:"extracted_answer"`
		}
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		got[rec.ID] = rec.ExtractedAnswer
	}
	require.Len(t, got, 3)
	require.NotNil(t, got["a"])
	assert.Equal(t, "answer-a", *got["a"])
	assert.Nil(t, got["b"])
}

func TestBootstrap_Ask(t *testing.T) {
	b, err := NewBootstrap(context.Background(), testConfig(), nil, Options{
		Adapter: searchThenAnswer{},
		Tools:   []tool.Tool{stubSearch{}},
	})
	require.NoError(t, err)
	defer b.Close()

	tr, err := b.Ask(context.Background(), "who?")
	require.NoError(t, err)
	assert.Equal(t, trajectory.StateSucceeded, tr.State)
	assert.Len(t, tr.ToolCalls(), 1)
}

func TestBootstrap_MissingCapabilityAborts(t *testing.T) {
	cfg := testConfig()
	cfg.Run.Capabilities = []string{config.CapabilitySearch, config.CapabilityScholar}
	_, err := NewBootstrap(context.Background(), cfg, nil, Options{
		Adapter: searchThenAnswer{},
		Tools:   []tool.Tool{stubSearch{}},
	})
	var cfgErr *config.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Error(), "scholar")
}

func TestBootstrap_NoSearchExposesNoTools(t *testing.T) {
	cfg := testConfig()
	require.NoError(t, cfg.Run.ApplySetting(config.SettingNoSearch))
	b, err := NewBootstrap(context.Background(), cfg, nil, Options{SkipAdapter: true})
	require.NoError(t, err)
	defer b.Close()
	assert.Equal(t, 0, b.Tools.Len())
	assert.Equal(t, 6, b.Registry.Len())
	assert.Nil(t, b.Controller)

	_, err = b.Ask(context.Background(), "q")
	assert.Error(t, err)
}

func TestBootstrap_RequiresModelKey(t *testing.T) {
	t.Setenv("DEEPSEEK_API_KEY", "")
	_, err := NewBootstrap(context.Background(), testConfig(), nil, Options{Tools: []tool.Tool{stubSearch{}}})
	var cfgErr *config.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Error(), "model.api_key")
}

func TestBootstrap_SecretReference(t *testing.T) {
	cfg := testConfig()
	cfg.Secrets = config.SecretsConfig{Provider: "memory", Config: map[string]string{"serper": "k-123"}}
	cfg.Tools.Serper.APIKey = "secret:serper"
	b, err := NewBootstrap(context.Background(), cfg, nil, Options{SkipAdapter: true})
	require.NoError(t, err)
	defer b.Close()
	assert.Equal(t, "k-123", b.Config.Tools.Serper.APIKey)
}
