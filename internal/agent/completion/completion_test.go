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

package completion

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"search-agent/internal/agent/trajectory"
	"search-agent/internal/model/llm"
	"search-agent/internal/tool"
	"search-agent/pkg/retry"
)

type fakeChat struct {
	mu      sync.Mutex
	replies []*schema.Message
	errs    []error
	inputs  [][]*schema.Message
	tools   []*schema.ToolInfo
}

func (f *fakeChat) Generate(_ context.Context, in []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, in)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	if len(f.replies) == 0 {
		return nil, errors.New("no scripted reply")
	}
	r := f.replies[0]
	f.replies = f.replies[1:]
	return r, nil
}

func (f *fakeChat) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("stream not supported")
}

func (f *fakeChat) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tools = tools
	return f, nil
}

func searchSpec() tool.Spec {
	return tool.Spec{
		Name:        "google_search",
		Capability:  tool.CapabilitySearch,
		Description: "search",
		Schema: tool.Schema{
			Type: "object",
			Properties: map[string]tool.SchemaProperty{
				"query": {Description: "q", AnyOf: []tool.SchemaProperty{{Type: "string"}, {Type: "array", Items: &tool.SchemaProperty{Type: "string"}}}},
				"tbs":   {Type: "string", Enum: []any{"anytime", "past_week"}},
			},
			Required: []string{"query"},
		},
	}
}

func fastPolicy(retries int) retry.Policy {
	return retry.Policy{MaxRetries: retries, Initial: time.Millisecond, Max: time.Millisecond, Multiplier: 1}
}

func toolCallMsg(content, name, args string) *schema.Message {
	return &schema.Message{Role: schema.Assistant, Content: content, ToolCalls: []schema.ToolCall{{
		ID: "x", Function: schema.FunctionCall{Name: name, Arguments: args},
	}}}
}

func TestEinoAdapter_ParsesActions(t *testing.T) {
	chat := &fakeChat{replies: []*schema.Message{
		toolCallMsg("let me search", "google_search", `{"query":"joker actor"}`),
		{Role: schema.Assistant, Content: "It was Heath Ledger. <answer>Ledger</answer>"},
	}}
	a := NewEinoAdapter(chat, Options{Retry: fastPolicy(0)})
	tr := trajectory.New("q1", "who played the joker?", nil, nil)
	req := Request{Tools: []tool.Spec{searchSpec()}}

	act, err := a.Advance(context.Background(), tr, req)
	require.NoError(t, err)
	assert.Equal(t, Act{Tool: "google_search", Args: map[string]any{"query": "joker actor"}, Rationale: "let me search"}, act)
	require.Len(t, chat.tools, 1)
	assert.Equal(t, "google_search", chat.tools[0].Name)

	act, err = a.Advance(context.Background(), tr, req)
	require.NoError(t, err)
	assert.Equal(t, Finish{Answer: "It was Heath Ledger. <answer>Ledger</answer>"}, act)

	first := chat.inputs[0]
	require.Len(t, first, 2)
	assert.Equal(t, schema.System, first[0].Role)
	assert.Contains(t, first[0].Content, "Google Search")
	assert.Equal(t, "who played the joker?", first[1].Content)
}

func TestEinoAdapter_PlainContentIsFinal(t *testing.T) {
	cases := map[string][]tool.Spec{
		"no tools":   nil,
		"with tools": {searchSpec()},
	}
	for name, tools := range cases {
		t.Run(name, func(t *testing.T) {
			chat := &fakeChat{replies: []*schema.Message{
				{Role: schema.Assistant, Content: "  The capital of France is Paris.\n"},
			}}
			a := NewEinoAdapter(chat, Options{Retry: fastPolicy(0)})
			act, err := a.Advance(context.Background(), trajectory.New("q", "capital of France?", nil, nil), Request{Tools: tools})
			require.NoError(t, err)
			assert.Equal(t, Finish{Answer: "The capital of France is Paris."}, act)
			assert.Len(t, chat.inputs, 1)
		})
	}
}

func TestEinoAdapter_Malformed(t *testing.T) {
	cases := map[string]*schema.Message{
		"empty":         {Role: schema.Assistant},
		"bad arguments": toolCallMsg("", "google_search", `{"query":`),
		"missing name":  toolCallMsg("", "", `{}`),
		"nil response":  nil,
	}
	for name, reply := range cases {
		t.Run(name, func(t *testing.T) {
			chat := &fakeChat{replies: []*schema.Message{reply}}
			a := NewEinoAdapter(chat, Options{Retry: fastPolicy(0)})
			_, err := a.Advance(context.Background(), trajectory.New("q", "q", nil, nil), Request{Tools: []tool.Spec{searchSpec()}})
			var mr *MalformedResponseError
			require.True(t, errors.As(err, &mr), "got %v", err)
		})
	}
}

func TestEinoAdapter_FinishOnly(t *testing.T) {
	chat := &fakeChat{replies: []*schema.Message{
		toolCallMsg("", "google_search", `{"query":"x"}`),
		{Role: schema.Assistant, Content: "Best guess is Paris"},
	}}
	a := NewEinoAdapter(chat, Options{Retry: fastPolicy(0)})
	tr := trajectory.New("q", "capital?", nil, nil)
	req := Request{Tools: []tool.Spec{searchSpec()}, FinishOnly: true}

	_, err := a.Advance(context.Background(), tr, req)
	var mr *MalformedResponseError
	require.True(t, errors.As(err, &mr))
	assert.Nil(t, chat.tools, "tools are not bound in finish-only mode")

	act, err := a.Advance(context.Background(), tr, req)
	require.NoError(t, err)
	assert.Equal(t, Finish{Answer: "Best guess is Paris"}, act)
	last := chat.inputs[1][len(chat.inputs[1])-1]
	assert.Equal(t, finishInstruction, last.Content)
}

func TestEinoAdapter_FatalAfterRetries(t *testing.T) {
	unavailable := &retry.HTTPStatusError{StatusCode: http.StatusServiceUnavailable}
	chat := &fakeChat{errs: []error{unavailable, unavailable, unavailable}}
	a := NewEinoAdapter(chat, Options{Retry: fastPolicy(2)})
	_, err := a.Advance(context.Background(), trajectory.New("q", "q", nil, nil), Request{})

	var fatal *FatalAdapterError
	require.True(t, errors.As(err, &fatal))
	assert.Equal(t, 3, fatal.Attempts)
	assert.Len(t, chat.inputs, 3)
}

func TestEinoAdapter_TransientThenSuccess(t *testing.T) {
	chat := &fakeChat{
		errs:    []error{&retry.HTTPStatusError{StatusCode: http.StatusTooManyRequests}, nil},
		replies: []*schema.Message{{Role: schema.Assistant, Content: "<answer>ok</answer>"}},
	}
	a := NewEinoAdapter(chat, Options{Retry: fastPolicy(2)})
	act, err := a.Advance(context.Background(), trajectory.New("q", "q", nil, nil), Request{})
	require.NoError(t, err)
	assert.Equal(t, Finish{Answer: "<answer>ok</answer>"}, act)
}

func TestToolInfo(t *testing.T) {
	info := ToolInfo(searchSpec())
	assert.Equal(t, "google_search", info.Name)
	assert.Equal(t, "search", info.Desc)
	assert.NotNil(t, info.ParamsOneOf)

	p := parameterInfo(searchSpec().Schema.Properties["query"])
	assert.Equal(t, schema.String, p.Type)
	assert.Contains(t, p.Desc, "also accepts: array")
	assert.Equal(t, []string{"anytime", "past_week"}, parameterInfo(searchSpec().Schema.Properties["tbs"]).Enum)
}

func TestBuildTurns(t *testing.T) {
	tr := trajectory.New("q", "question?", nil, nil)
	require.NoError(t, tr.AppendReasoning("need facts"))
	call := tool.NewCall(1, "google_search", map[string]any{"query": "x"})
	require.NoError(t, tr.AppendToolCall(call))
	require.NoError(t, tr.AppendToolResult(tool.Result{Seq: 1, Tool: "google_search", Output: &tool.Output{Items: []tool.Item{{Title: "X"}}}}))
	require.NoError(t, tr.AppendReasoning("hmm"))
	require.NoError(t, tr.AppendReasoning("bad call"))
	require.NoError(t, tr.AppendNote("invalid arguments"))

	turns := BuildTurns("sys", tr, Request{}, 0)
	roles := make([]Role, len(turns))
	for i, tn := range turns {
		roles[i] = tn.Role
	}
	assert.Equal(t, []Role{
		RoleSystem, RoleUser,
		RoleAssistant, RoleTool,
		RoleAssistant, RoleUser,
		RoleAssistant, RoleUser,
	}, roles)
	assert.Equal(t, "need facts", turns[2].Content)
	assert.Equal(t, "call_1", turns[2].Call.ID)
	assert.Equal(t, "call_1", turns[3].CallID)
	assert.Contains(t, turns[3].Content, "[1] X")
	assert.Equal(t, continueInstruction, turns[5].Content)
	assert.Equal(t, "invalid arguments", turns[7].Content)
}

func TestParseTextReply(t *testing.T) {
	act, err := ParseTextReply("```json\n{\"thought\":\"look it up\",\"action\":\"google_search\",\"args\":{\"query\":\"x\"}}\n```", false)
	require.NoError(t, err)
	assert.Equal(t, Act{Tool: "google_search", Args: map[string]any{"query": "x"}, Rationale: "look it up"}, act)

	act, err = ParseTextReply(`{"thought":"done","final_answer":"Paris <answer>Paris</answer>"}`, false)
	require.NoError(t, err)
	assert.Equal(t, Finish{Answer: "Paris <answer>Paris</answer>"}, act)

	act, err = ParseTextReply(`{"thought":"considering"}`, false)
	require.NoError(t, err)
	assert.Equal(t, Reason{Text: "considering"}, act)

	act, err = ParseTextReply(`{"action":"google_search"}`, false)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{}, act.(Act).Args)

	for _, raw := range []string{"", "just prose", `{"thought": `, `{}`} {
		_, err := ParseTextReply(raw, false)
		var mr *MalformedResponseError
		require.True(t, errors.As(err, &mr), "raw %q", raw)
		assert.Equal(t, raw, mr.Raw)
	}

	act, err = ParseTextReply("The answer is <answer>Paris</answer>", true)
	require.NoError(t, err)
	assert.Equal(t, Finish{Answer: "The answer is <answer>Paris</answer>"}, act)

	_, err = ParseTextReply(`{"action":"google_search"}`, true)
	assert.Error(t, err)
}

type fakeClient struct {
	replies []string
	got     [][]llm.Message
}

func (f *fakeClient) ChatWithContext(_ context.Context, msgs []llm.Message, _ llm.GenerateOptions) (string, error) {
	f.got = append(f.got, msgs)
	r := f.replies[0]
	f.replies = f.replies[1:]
	return r, nil
}
func (f *fakeClient) Model() string    { return "m" }
func (f *fakeClient) Provider() string { return "fake" }

func TestTextAdapter(t *testing.T) {
	client := &fakeClient{replies: []string{`{"thought":"t","action":"google_search","args":{"query":"x"}}`}}
	a := NewTextAdapter(client, llm.GenerateOptions{}, Options{Retry: fastPolicy(0)})

	tr := trajectory.New("q", "question?", nil, nil)
	require.NoError(t, tr.AppendToolCall(tool.NewCall(1, "google_search", map[string]any{"query": "earlier"})))
	require.NoError(t, tr.AppendToolResult(tool.Result{Seq: 1, Tool: "google_search", Output: &tool.Output{}}))

	act, err := a.Advance(context.Background(), tr, Request{Tools: []tool.Spec{searchSpec()}})
	require.NoError(t, err)
	assert.Equal(t, "google_search", act.(Act).Tool)

	msgs := client.got[0]
	assert.Equal(t, "system", msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "RESPONSE PROTOCOL")
	assert.Contains(t, msgs[0].Content, `"query"`)
	assert.Equal(t, "assistant", msgs[2].Role)
	assert.Contains(t, msgs[2].Content, `"action":"google_search"`)
	assert.Equal(t, "user", msgs[3].Role)
	assert.True(t, strings.HasPrefix(msgs[3].Content, "Observation from google_search (call_1)"))
}

func TestSystemPrompt(t *testing.T) {
	noTools := SystemPrompt(nil, PromptOptions{})
	assert.Contains(t, noTools, "internal knowledge")
	assert.NotContains(t, noTools, "TOOL USAGE STRATEGY")
	assert.NotContains(t, noTools, "HISTORICAL")

	browse := tool.Spec{Name: "browse_website"}
	custom := tool.Spec{Name: "weather", Description: "weather lookup"}
	p := SystemPrompt([]tool.Spec{browse, searchSpec(), custom}, PromptOptions{ReferenceDate: "2018"})
	assert.Contains(t, p, "Google Search, Website Browser, weather")
	assert.Contains(t, p, "1. **Google Search**")
	assert.Contains(t, p, "2. **Website Browser**")
	assert.Contains(t, p, "3. **weather**: weather lookup")
	assert.Contains(t, p, "circa 2018")
}

func TestExtractAnswer(t *testing.T) {
	assert.Equal(t, "Ledger", ExtractAnswer("Heath Ledger played him. <answer> Ledger </answer>"))
	assert.Equal(t, "b", ExtractAnswer("<answer>a</answer> then <answer>b</answer>"))
	assert.Equal(t, "plain", ExtractAnswer(" plain "))
	assert.True(t, HasAnswer("x <answer>\ny\n</answer>"))
	assert.False(t, HasAnswer("no tags"))
}
