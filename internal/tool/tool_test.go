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

package tool

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "search-agent/pkg/errors"
)

func TestNewCall_CopiesArgs(t *testing.T) {
	args := map[string]any{"query": "x", "filters": []any{"a"}}
	c := NewCall(3, "google_search", args)
	args["query"] = "mutated"
	args["filters"].([]any)[0] = "b"

	assert.Equal(t, "call_3", c.ID)
	assert.Equal(t, "x", c.Args["query"])
	assert.Equal(t, "a", c.Args["filters"].([]any)[0])
}

func TestResult_Observation(t *testing.T) {
	ok := Result{Tool: "google_search", Output: &Output{Items: []Item{
		{Title: "Go", Link: "https://go.dev", Snippet: "The Go language"},
	}}}
	obs := ok.Observation(0)
	assert.Contains(t, obs, "[1] Go")
	assert.Contains(t, obs, "link: https://go.dev")
	assert.True(t, ok.OK())

	failed := Result{Tool: "browse_website", Failure: &Failure{Kind: perrors.KindTimeout, Message: "deadline", Transient: true}}
	assert.False(t, failed.OK())
	assert.Contains(t, failed.Observation(0), "failed (timeout)")

	text := Result{Tool: "browse_website", Output: &Output{Text: strings.Repeat("é", 100)}}
	got := text.Observation(11)
	assert.True(t, strings.HasSuffix(got, "[TRUNCATED]"))
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, 5, utf8.RuneCountInString(strings.TrimSuffix(got, "\n[TRUNCATED]")))
}

func TestArgHelpers(t *testing.T) {
	args := map[string]any{"page": float64(2), "num": json.Number("5"), "bad": 1.5, "query": []any{"a", " ", "b"}}
	assert.Equal(t, 2, Int(args, "page", 1))
	assert.Equal(t, 5, Int(args, "num", 10))
	assert.Equal(t, 7, Int(args, "bad", 7))
	assert.Equal(t, []string{"a", "b"}, Strings(args, "query"))
	assert.Equal(t, "def", String(args, "missing", "def"))
}

func TestExecutionError(t *testing.T) {
	base := errors.New("503")
	err := NewExecutionError("google_search", perrors.KindUpstream, true, base)
	require.ErrorIs(t, err, base)
	assert.True(t, err.Transient())
	assert.Equal(t, perrors.KindUpstream, perrors.KindOf(err))

	inv := &InvalidArgumentsError{Tool: "google_search", Violations: []string{"a", "b"}}
	assert.Equal(t, "invalid arguments for google_search: a; b", inv.Error())
}
