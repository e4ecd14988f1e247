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

package trajectory

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"search-agent/internal/tool"
	perrors "search-agent/pkg/errors"
)

func TestTrajectory_CallResultPairing(t *testing.T) {
	tr := New("q1", "who?", []string{"Ledger"}, nil)
	require.NoError(t, tr.AppendReasoning("search first"))
	require.NoError(t, tr.AppendToolCall(tool.NewCall(1, "google_search", map[string]any{"query": "joker"})))

	// 调用未完成时不能写入其它事件
	assert.ErrorIs(t, tr.AppendReasoning("x"), ErrPendingCall)
	assert.ErrorIs(t, tr.AppendToolCall(tool.NewCall(2, "google_search", nil)), ErrPendingCall)
	assert.ErrorIs(t, tr.AppendToolResult(tool.Result{Seq: 2}), ErrOrphanResult)

	require.NoError(t, tr.AppendToolResult(tool.Result{Seq: 1, Tool: "google_search", Output: &tool.Output{}}))
	assert.Nil(t, tr.PendingCall())
	assert.ErrorIs(t, tr.AppendToolResult(tool.Result{Seq: 1}), ErrOrphanResult)

	for i, e := range tr.Events {
		assert.Equal(t, i, e.Index)
	}
}

func TestTrajectory_SucceedFreezes(t *testing.T) {
	tr := New("q1", "q", nil, nil)
	require.NoError(t, tr.SetState(StateReasoning))
	require.NoError(t, tr.Succeed("Paris"))

	assert.Equal(t, StateSucceeded, tr.State)
	require.NotNil(t, tr.Answer)
	assert.Equal(t, "Paris", *tr.Answer)
	assert.True(t, tr.Frozen())
	assert.False(t, tr.EndedAt.IsZero())

	assert.ErrorIs(t, tr.AppendReasoning("late"), ErrFrozen)
	assert.ErrorIs(t, tr.SetState(StateReasoning), ErrFrozen)
	assert.ErrorIs(t, tr.Succeed("other"), ErrFrozen)
	assert.Equal(t, "Paris", *tr.Answer)
}

func TestTrajectory_Terminate(t *testing.T) {
	tr := New("q1", "q", nil, nil)
	assert.Error(t, tr.Terminate(StateSucceeded, nil))
	assert.Error(t, tr.SetState(StateFailed))

	require.NoError(t, tr.Terminate(StateFailed, &Failure{Kind: perrors.KindTimeout, Message: "deadline"}))
	assert.Nil(t, tr.Answer)
	assert.Equal(t, perrors.KindTimeout, tr.Failure.Kind)
	assert.True(t, errors.Is(tr.Terminate(StateBudgetExceeded, nil), ErrFrozen))
}

func TestTrajectory_Steps(t *testing.T) {
	tr := New("q1", "q", nil, nil)
	require.NoError(t, tr.AppendToolCall(tool.NewCall(1, "google_search", map[string]any{"query": "x"})))
	require.NoError(t, tr.AppendToolResult(tool.Result{Seq: 1, Tool: "google_search", Output: &tool.Output{
		Items: []tool.Item{{Title: "X", Link: "https://x"}},
	}}))
	require.NoError(t, tr.AppendToolCall(tool.NewCall(2, "browse_website", map[string]any{"url": "https://x"})))
	require.NoError(t, tr.AppendToolResult(tool.Result{Seq: 2, Tool: "browse_website", Output: &tool.Output{
		Text: strings.Repeat("a", 800),
	}}))
	require.NoError(t, tr.AppendToolCall(tool.NewCall(3, "google_scholar", map[string]any{"query": "y"})))
	require.NoError(t, tr.AppendToolResult(tool.Result{Seq: 3, Tool: "google_scholar", Failure: &tool.Failure{Kind: perrors.KindTimeout}}))

	steps := tr.Steps()
	require.Len(t, steps, 3)
	assert.Equal(t, 1, steps[0].StepNumber)
	assert.Equal(t, "x", steps[0].Query)
	assert.Len(t, steps[0].RetrievedDocuments, 1)
	assert.Equal(t, "https://x", steps[1].URL)
	assert.Len(t, steps[1].ContentSnippet, snippetChars)
	assert.Equal(t, perrors.KindTimeout, steps[2].Error.Kind)
}

func TestState_Terminal(t *testing.T) {
	assert.False(t, StateInit.Terminal())
	assert.False(t, StateToolExecuting.Terminal())
	assert.True(t, StateBudgetExceeded.Terminal())
}

func TestTrajectory_ExhaustBudgetKeepsBestEffortAnswer(t *testing.T) {
	tr := New("q1", "q", nil, nil)
	require.NoError(t, tr.ExhaustBudget("guess", &Failure{Kind: perrors.KindBudgetExceeded, Message: "tool_calls"}))
	assert.Equal(t, StateBudgetExceeded, tr.State)
	assert.Equal(t, "guess", *tr.Answer)
	assert.Equal(t, EventAnswer, tr.Events[len(tr.Events)-1].Type)
	assert.ErrorIs(t, tr.ExhaustBudget("again", nil), ErrFrozen)
}
