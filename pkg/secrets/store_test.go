package secrets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewStore(t *testing.T) {
	tests := []struct {
		name        string
		provider    string
		wantErr     bool
		errContains string
	}{
		{name: "memory", provider: "memory"},
		{name: "env", provider: "env"},
		{name: "default env", provider: ""},
		{name: "unknown provider", provider: "k8s", wantErr: true, errContains: "unsupported secret provider"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store, err := NewStore(context.Background(), Config{Provider: tc.provider})
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got nil")
				}
				if tc.errContains != "" && !strings.Contains(err.Error(), tc.errContains) {
					t.Fatalf("error = %q, want contains %q", err.Error(), tc.errContains)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if store == nil {
				t.Fatalf("store should not be nil")
			}
		})
	}
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(map[string]string{"serper": "k-123"})

	got, err := Resolve(ctx, store, "secret:serper")
	if err != nil || got != "k-123" {
		t.Fatalf("Resolve ref = %q, %v", got, err)
	}
	if got, _ := Resolve(ctx, store, "plain-key"); got != "plain-key" {
		t.Fatalf("Resolve plain = %q", got)
	}
	if got, _ := Resolve(ctx, store, "${SERPER_API_KEY}"); got != "" {
		t.Fatalf("Resolve unexpanded env = %q, want empty", got)
	}
	if _, err := Resolve(ctx, store, "secret:missing"); err == nil {
		t.Fatal("expected error for missing secret")
	}
}

func TestEnvStore(t *testing.T) {
	t.Setenv("SECRET_TEST_KEY", "value")
	got, err := EnvStore{}.Get(context.Background(), "SECRET_TEST_KEY")
	if err != nil || got != "value" {
		t.Fatalf("get = %q, %v", got, err)
	}
	if _, err := (EnvStore{}).Get(context.Background(), "SECRET_TEST_KEY_UNSET"); err == nil {
		t.Fatal("expected error for unset variable")
	}
}

func TestVaultStore_KV2(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasPrefix(r.URL.Path, "/v1/sys/health"):
			_ = json.NewEncoder(w).Encode(map[string]any{"initialized": true, "sealed": false, "standby": false})
		case r.URL.Path == "/v1/secret/data/deepseek":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"data": map[string]any{"data": map[string]any{"value": "sk-vault"}},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"errors":[]}`))
		}
	}))
	defer srv.Close()

	store, err := NewVaultStore(context.Background(), VaultConfig{Address: srv.URL, Token: "t"})
	if err != nil {
		t.Fatalf("NewVaultStore: %v", err)
	}
	got, err := store.Get(context.Background(), "deepseek")
	if err != nil || got != "sk-vault" {
		t.Fatalf("get = %q, %v", got, err)
	}
	if _, err := store.Get(context.Background(), "missing"); err == nil {
		t.Fatal("expected error for missing secret")
	}
}
