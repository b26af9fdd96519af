package credentials

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

// Source is one place an API key may be stored
type Source interface {
	Name() string
	Kind() Kind
	// Lookup returns the key, ErrNotFound when the source does not hold one,
	// or any other error when the source itself failed.
	Lookup(ctx context.Context) (string, error)
}

// DotEnvSource reads the key from a local dotenv file
type DotEnvSource struct {
	Path string
	Key  string
}

// NewDotEnvSource creates a source for path, defaulting to .env and OPENAI_API_KEY
func NewDotEnvSource(path, key string) *DotEnvSource {
	if path == "" {
		path = DefaultLocalFile
	}
	if key == "" {
		key = DefaultKeyName
	}
	return &DotEnvSource{Path: path, Key: key}
}

func (s *DotEnvSource) Name() string { return "file:" + s.Path }
func (s *DotEnvSource) Kind() Kind   { return KindFile }

func (s *DotEnvSource) Lookup(ctx context.Context) (string, error) {
	env, err := godotenv.Read(s.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to read %s: %w", s.Path, err)
	}
	return nonEmpty(env[s.Key])
}

// EnvSource reads the key from a process environment variable injected by the
// hosting platform
type EnvSource struct {
	Key string
}

func (s *EnvSource) Name() string { return "env:" + s.Key }
func (s *EnvSource) Kind() Kind   { return KindHosted }

func (s *EnvSource) Lookup(ctx context.Context) (string, error) {
	v, _ := os.LookupEnv(s.Key)
	return nonEmpty(v)
}

// SecretDirSource reads the key from a mounted secret file named after it,
// as Docker and Kubernetes mount secrets
type SecretDirSource struct {
	Dir string
	Key string
}

func (s *SecretDirSource) Name() string { return "dir:" + s.Dir }
func (s *SecretDirSource) Kind() Kind   { return KindHosted }

func (s *SecretDirSource) Lookup(ctx context.Context) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.Dir, s.Key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to read secret: %w", err)
	}
	return nonEmpty(string(data))
}

// StringGetter is the part of a redis client used by RedisSource
type StringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// RedisSource reads the key from a redis-compatible key/value store
type RedisSource struct {
	client StringGetter
	Key    string
}

// NewRedisSource connects to the store at url (redis://...)
func NewRedisSource(url, key string) (*RedisSource, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return NewRedisSourceWithClient(redis.NewClient(opts), key), nil
}

// NewRedisSourceWithClient uses an existing client
func NewRedisSourceWithClient(c StringGetter, key string) *RedisSource {
	if key == "" {
		key = DefaultKeyName
	}
	return &RedisSource{client: c, Key: key}
}

func (s *RedisSource) Name() string { return "redis:" + s.Key }
func (s *RedisSource) Kind() Kind   { return KindHosted }

func (s *RedisSource) Lookup(ctx context.Context) (string, error) {
	v, err := s.client.Get(ctx, s.Key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("redis lookup failed: %w", err)
	}
	return nonEmpty(v)
}

// Close releases the underlying client when it owns one
func (s *RedisSource) Close() error {
	if c, ok := s.client.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// PromptSource holds a key typed in by the user
type PromptSource struct {
	Value string
}

func (s *PromptSource) Name() string { return "prompt" }
func (s *PromptSource) Kind() Kind   { return KindPrompt }

func (s *PromptSource) Lookup(ctx context.Context) (string, error) {
	return nonEmpty(s.Value)
}

func nonEmpty(v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", ErrNotFound
	}
	return v, nil
}
