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

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"search-agent/pkg/retry"
)

func TestOpenAIClient_Chat(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"hello"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(Config{BaseURL: srv.URL + "/v1/", APIKey: "sk-test", Model: "m1"})
	out, err := c.ChatWithContext(context.Background(), []Message{{Role: "user", Content: "hi"}}, GenerateOptions{JSONMode: true})
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
	assert.Equal(t, "m1", got["model"])
	assert.Equal(t, map[string]any{"type": "json_object"}, got["response_format"])
	_, hasMax := got["max_tokens"]
	assert.False(t, hasMax)
}

func TestOpenAIClient_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`overloaded`))
	}))
	defer srv.Close()

	_, err := NewOpenAIClient(Config{BaseURL: srv.URL}).ChatWithContext(context.Background(), nil, GenerateOptions{})
	var status *retry.HTTPStatusError
	require.True(t, errors.As(err, &status))
	assert.Equal(t, http.StatusServiceUnavailable, status.StatusCode)
	assert.True(t, retry.IsTransient(err))
}

func TestOpenAIClient_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	_, err := NewOpenAIClient(Config{BaseURL: srv.URL}).ChatWithContext(context.Background(), nil, GenerateOptions{})
	require.Error(t, err)
	assert.False(t, retry.IsTransient(err))
}

func TestNewClient_UnknownProvider(t *testing.T) {
	_, err := NewClient(Config{Provider: "carrier-pigeon"})
	assert.Error(t, err)
	c, err := NewClient(Config{Provider: "deepseek"})
	require.NoError(t, err)
	assert.Equal(t, "deepseek", c.Provider())
}

func TestLLMRateLimiter_BoundsConcurrency(t *testing.T) {
	l := NewLLMRateLimiter(LLMLimitConfig{MaxConcurrent: 1})
	release, err := l.Wait(context.Background(), "p")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = l.Wait(ctx, "p")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// release 可重复调用
	release()
	release()
	r2, err := l.Wait(context.Background(), "p")
	require.NoError(t, err)
	r2()
}

func TestLLMRateLimiter_Nil(t *testing.T) {
	var l *LLMRateLimiter
	release, err := l.Wait(context.Background(), "p")
	require.NoError(t, err)
	release()
}
