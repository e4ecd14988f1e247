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

package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestToolsCmd_Full(t *testing.T) {
	out, err := execute(t, "tools", "--setting", "full")
	require.NoError(t, err)

	var schemas []struct {
		Name string `json:"name"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &schemas))
	names := make([]string, 0, len(schemas))
	for _, s := range schemas {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"google_search", "browse_website", "google_shopping", "google_maps_search", "recommend_places", "google_scholar"}, names)
}

func TestToolsCmd_NoSearchPrompt(t *testing.T) {
	out, err := execute(t, "tools", "--setting", "nosearch", "--prompt")
	require.NoError(t, err)
	assert.Contains(t, out, "<answer>")
	assert.NotContains(t, out, "google_search")
}

func TestConfigCmd_MasksSecrets(t *testing.T) {
	path := writeConfig(t, `
model:
  api_key: sk-verysecretvalue
run:
  workers: 7
`)
	out, err := execute(t, "config", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "workers: 7")
	assert.NotContains(t, out, "sk-verysecretvalue")
}

func TestUnknownSetting(t *testing.T) {
	_, err := execute(t, "tools", "--setting", "everything")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "unknown setting"))
}

func TestRunCmd_RequiresData(t *testing.T) {
	_, err := execute(t, "run")
	assert.ErrorContains(t, err, "data")
}

func TestAskCmd_RequiresQuestion(t *testing.T) {
	_, err := execute(t, "ask")
	assert.Error(t, err)
}
