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

package retry

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(retries int) Policy {
	return Policy{MaxRetries: retries, Initial: time.Millisecond, Max: 2 * time.Millisecond, Multiplier: 2}
}

func TestIsTransientProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("only 429/502/503/504 statuses are transient", prop.ForAll(
		func(code int, msg string) bool {
			want := code == 429 || code == 502 || code == 503 || code == 504
			return IsTransient(&HTTPStatusError{StatusCode: code, Message: msg}) == want
		},
		gen.IntRange(400, 599), gen.AlphaString(),
	))

	properties.Property("canceled is never transient", prop.ForAll(
		func(_ int) bool { return !IsTransient(context.Canceled) },
		gen.Int(),
	))

	properties.Property("backoff never exceeds max plus jitter", prop.ForAll(
		func(attempt int) bool {
			p := Policy{Initial: 10 * time.Millisecond, Max: 80 * time.Millisecond, Multiplier: 2, Jitter: 0.1}
			d := Backoff(p, attempt)
			return d >= 0 && d <= 88*time.Millisecond
		},
		gen.IntRange(1, 30),
	))

	properties.TestingRun(t)
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.False(t, IsTransient(errors.New("bad json")))
	assert.False(t, IsTransient(&HTTPStatusError{StatusCode: http.StatusBadRequest}))
}

func TestDo_RetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	var retried []int
	p := fastPolicy(3)
	p.OnRetry = func(attempt int, err error, delay time.Duration) { retried = append(retried, attempt) }

	attempts, err := Do(context.Background(), p, func(ctx context.Context, attempt int) error {
		calls++
		if calls < 3 {
			return &HTTPStatusError{StatusCode: http.StatusServiceUnavailable}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestDo_TerminalNotRetried(t *testing.T) {
	calls := 0
	attempts, err := Do(context.Background(), fastPolicy(3), func(ctx context.Context, attempt int) error {
		calls++
		return &HTTPStatusError{StatusCode: http.StatusUnauthorized}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, attempts)
}

func TestDo_Exhausted(t *testing.T) {
	attempts, err := Do(context.Background(), fastPolicy(2), func(ctx context.Context, attempt int) error {
		return &HTTPStatusError{StatusCode: http.StatusBadGateway}
	})
	var ex *ExhaustedError
	require.ErrorAs(t, err, &ex)
	assert.Equal(t, 3, ex.Attempts)
	assert.Equal(t, 3, attempts)
	var httpErr *HTTPStatusError
	assert.ErrorAs(t, err, &httpErr)
}

func TestDo_AttemptTimeoutIsRetried(t *testing.T) {
	p := fastPolicy(1)
	p.AttemptTimeout = 5 * time.Millisecond
	attempts, err := Do(context.Background(), p, func(ctx context.Context, attempt int) error {
		if attempt == 1 {
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestDo_ParentCanceledStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := Do(ctx, fastPolicy(5), func(ctx context.Context, attempt int) error {
		calls++
		cancel()
		return context.DeadlineExceeded
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
