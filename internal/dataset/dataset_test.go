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

package dataset

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `{"id": "a1", "question": "Who wrote Dune?", "answers": ["Frank Herbert"]}

{"id": 7, "question": "Capital of France?", "answers": "Paris"}
{"question": "No id here", "answers": []}
`

func TestLoad(t *testing.T) {
	qs, err := Load(strings.NewReader(sample), 0)
	require.NoError(t, err)
	require.Len(t, qs, 3)

	assert.Equal(t, "a1", qs[0].ID)
	assert.Equal(t, []string{"Frank Herbert"}, qs[0].Answers)
	assert.Equal(t, "7", qs[1].ID)
	assert.Equal(t, []string{"Paris"}, qs[1].Answers)
	assert.Equal(t, "4", qs[2].ID)
	assert.Empty(t, qs[2].Answers)
}

func TestLoad_Limit(t *testing.T) {
	qs, err := Load(strings.NewReader(sample), 2)
	require.NoError(t, err)
	assert.Len(t, qs, 2)
}

func TestLoad_Errors(t *testing.T) {
	cases := map[string]string{
		"bad json":       `{"id": "a", "question": `,
		"empty question": `{"id": "a", "question": "  "}`,
		"duplicate id":   "{\"id\": \"a\", \"question\": \"x\"}\n{\"id\": \"a\", \"question\": \"y\"}",
		"bad answers":    `{"id": "a", "question": "x", "answers": [1, 2]}`,
		"bad id":         `{"id": {"x": 1}, "question": "x"}`,
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(strings.NewReader(input), 0)
			assert.Error(t, err)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "q.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))
	qs, err := LoadFile(path, 0)
	require.NoError(t, err)
	assert.Len(t, qs, 3)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.jsonl"), 0)
	assert.Error(t, err)
}
