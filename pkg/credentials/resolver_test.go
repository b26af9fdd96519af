package credentials

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/redis/go-redis/v9"
)

type fakeRedis struct {
	values map[string]string
	err    error
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	v, ok := f.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func writeEnvFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestPrecedence(t *testing.T) {
	envFile := writeEnvFile(t, "OPENAI_API_KEY=sk-file\n")
	hosted := NewRedisSourceWithClient(&fakeRedis{values: map[string]string{"OPENAI_API_KEY": "sk-hosted"}}, "")
	missingFile := NewDotEnvSource(filepath.Join(t.TempDir(), ".env"), "")

	tests := []struct {
		name      string
		sources   []Source
		want      Credential
		wantKind  Kind
		wantTrace []State
	}{
		{
			name:      "file wins over hosted and prompt",
			sources:   []Source{NewDotEnvSource(envFile, ""), hosted, &PromptSource{Value: "sk-prompt"}},
			want:      "sk-file",
			wantKind:  KindFile,
			wantTrace: []State{Unresolved, LocalFileFound, Resolved},
		},
		{
			name:      "hosted wins over prompt",
			sources:   []Source{missingFile, hosted, &PromptSource{Value: "sk-prompt"}},
			want:      "sk-hosted",
			wantKind:  KindHosted,
			wantTrace: []State{Unresolved, HostedSecretFound, Resolved},
		},
		{
			name:      "prompt is last",
			sources:   []Source{missingFile, NewRedisSourceWithClient(&fakeRedis{}, ""), &PromptSource{Value: " sk-prompt "}},
			want:      "sk-prompt",
			wantKind:  KindPrompt,
			wantTrace: []State{Unresolved, UserPromptPending, Resolved},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := NewResolver(tt.sources).Resolve(context.Background())
			if err != nil {
				t.Fatalf("Resolve failed: %v", err)
			}
			if res.Credential != tt.want || res.Kind != tt.wantKind {
				t.Errorf("Got %q from %s, want %q from %s", res.Credential.Value(), res.Kind, tt.want.Value(), tt.wantKind)
			}
			if !reflect.DeepEqual(res.Trace, tt.wantTrace) {
				t.Errorf("Trace = %v, want %v", res.Trace, tt.wantTrace)
			}
		})
	}
}

func TestResolveUnavailable(t *testing.T) {
	t.Setenv("CAT_TEST_KEY", "")
	hint := LocalFileHint(".env", "")
	r := NewResolver([]Source{
		NewDotEnvSource(filepath.Join(t.TempDir(), ".env"), ""),
		&EnvSource{Key: "CAT_TEST_KEY"},
	}, WithHint(hint))

	res, err := r.Resolve(context.Background())
	if res.State != Unavailable {
		t.Errorf("Expected Unavailable, got %s", res.State)
	}

	var credErr *CredentialError
	if !errors.As(err, &credErr) || credErr.Reason != ReasonAbsent {
		t.Fatalf("Expected absent CredentialError, got %v", err)
	}
	if !strings.Contains(err.Error(), ".env") {
		t.Errorf("message should name the local secret file: %q", err.Error())
	}
	if !errors.Is(err, ErrNotFound) || errors.Is(err, ErrRejected) {
		t.Error("absent credential should match ErrNotFound only")
	}
}

func TestResolvePromptPending(t *testing.T) {
	r := NewResolver([]Source{&EnvSource{Key: "CAT_TEST_UNSET_KEY"}, &PromptSource{}})

	res, err := r.Resolve(context.Background())
	if res.State != UserPromptPending {
		t.Errorf("Expected UserPromptPending, got %s", res.State)
	}
	var credErr *CredentialError
	if !errors.As(err, &credErr) || credErr.Reason != ReasonPending {
		t.Fatalf("Expected pending CredentialError, got %v", err)
	}

	filled := r.WithPrompt("sk-typed")
	res, err = filled.Resolve(context.Background())
	if err != nil || res.Credential != "sk-typed" {
		t.Errorf("Expected typed key to resolve, got %v (%v)", res.Credential.Value(), err)
	}

	// the original resolver is untouched
	if _, err := r.Resolve(context.Background()); !errors.As(err, &credErr) {
		t.Error("WithPrompt must not modify the receiver")
	}
}

func TestFailingSourceIsSkipped(t *testing.T) {
	down := NewRedisSourceWithClient(&fakeRedis{err: errors.New("connection refused")}, "")
	r := NewResolver([]Source{down, &PromptSource{Value: "sk-prompt"}})

	res, err := r.Resolve(context.Background())
	if err != nil || res.Credential != "sk-prompt" {
		t.Fatalf("Expected fallback to prompt, got %v", err)
	}

	r = NewResolver([]Source{down})
	_, err = r.Resolve(context.Background())
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("Expected absent error, got %v", err)
	}
	var credErr *CredentialError
	if !errors.As(err, &credErr) || credErr.Err == nil || !strings.Contains(credErr.Err.Error(), "connection refused") {
		t.Errorf("source failure should be kept, got %v", credErr.Err)
	}
}

func TestSecretDirSource(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "OPENAI_API_KEY"), []byte("sk-mounted\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	v, err := (&SecretDirSource{Dir: dir, Key: "OPENAI_API_KEY"}).Lookup(context.Background())
	if err != nil || v != "sk-mounted" {
		t.Errorf("Lookup = %q, %v", v, err)
	}

	_, err = (&SecretDirSource{Dir: dir, Key: "OTHER"}).Lookup(context.Background())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestDotEnvSourceMissingKey(t *testing.T) {
	path := writeEnvFile(t, "SOMETHING_ELSE=1\n")
	if _, err := NewDotEnvSource(path, "").Lookup(context.Background()); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestCredentialIsRedacted(t *testing.T) {
	c := Credential("sk-secret")
	for _, s := range []string{c.String(), fmt.Sprint(c), fmt.Sprintf("%v %s %#v", c, c, c)} {
		if strings.Contains(s, "sk-secret") {
			t.Errorf("credential leaked in %q", s)
		}
	}
	if c.Value() != "sk-secret" {
		t.Error("Value should return the raw key")
	}
}

func TestRejected(t *testing.T) {
	cause := errors.New("401 Unauthorized")
	err := Rejected("prompt", cause)

	if !errors.Is(err, ErrRejected) || !errors.Is(err, cause) {
		t.Errorf("Rejected should match ErrRejected and its cause: %v", err)
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("rejected credential should not match ErrNotFound")
	}
}
