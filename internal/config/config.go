package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/menta2k/cat-tagline/internal/utils"
)

// EnvConfigPath overrides the config file location
const EnvConfigPath = "CAT_TAGLINE_CONFIG"

// DefaultConfigFile is looked up in the working directory
const DefaultConfigFile = "cat-tagline.yaml"

// Config holds the application configuration
type Config struct {
	// Environment is a free-form label shown in banners, e.g. "local" or "hosted"
	Environment string            `yaml:"environment"`
	Provider    ProviderConfig    `yaml:"provider"`
	Models      ModelsConfig      `yaml:"models"`
	Fetch       FetchConfig       `yaml:"fetch"`
	Image       ImageConfig       `yaml:"image"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Web         WebConfig         `yaml:"web"`
	Log         LogConfig         `yaml:"log"`
}

// ProviderConfig selects the model backend
type ProviderConfig struct {
	Name    string        `yaml:"name"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// ModelsConfig names the vision and text models; empty uses the provider default
type ModelsConfig struct {
	Vision            string  `yaml:"vision"`
	Text              string  `yaml:"text"`
	DescribeMaxTokens int     `yaml:"describe_max_tokens"`
	TaglineMaxTokens  int     `yaml:"tagline_max_tokens"`
	Temperature       float64 `yaml:"temperature"`
}

// FetchConfig holds configuration for the image service
type FetchConfig struct {
	URL      string        `yaml:"url"`
	Timeout  time.Duration `yaml:"timeout"`
	MaxBytes int64         `yaml:"max_bytes"`
}

// ImageConfig holds configuration for the saved image and the copy sent to the model
type ImageConfig struct {
	// SavePath is the single image slot; empty disables saving
	SavePath    string `yaml:"save_path"`
	Quality     int    `yaml:"quality"`
	SendFormat  string `yaml:"send_format"`
	SendMaxDim  int    `yaml:"send_max_dim"`
	SendQuality int    `yaml:"send_quality"`
}

// CredentialsConfig lists where the API key is looked up, in order
type CredentialsConfig struct {
	Sources   []string     `yaml:"sources"`
	KeyName   string       `yaml:"key_name"`
	LocalFile string       `yaml:"local_file"`
	Hosted    HostedConfig `yaml:"hosted"`
}

// HostedConfig describes the hosted secret store
type HostedConfig struct {
	// Kind is env, dir or redis
	Kind       string `yaml:"kind"`
	SecretsDir string `yaml:"secrets_dir"`
	RedisURL   string `yaml:"redis_url"`
	RedisKey   string `yaml:"redis_key"`
}

// WebConfig holds configuration for the web UI
type WebConfig struct {
	Addr            string        `yaml:"addr"`
	RateLimit       float64       `yaml:"rate_limit"`
	Burst           int           `yaml:"burst"`
	SessionTTL      time.Duration `yaml:"session_ttl"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// SaveImages keeps writing image.save_path from the web server; off by
	// default so concurrent sessions never share a file
	SaveImages bool `yaml:"save_images"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Source names accepted in credentials.sources
const (
	SourceFile   = "file"
	SourceHosted = "hosted"
	SourcePrompt = "prompt"
)

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Environment: "local",
		Provider: ProviderConfig{
			Name:    "openai",
			Timeout: 60 * time.Second,
		},
		Models: ModelsConfig{
			DescribeMaxTokens: 300,
			TaglineMaxTokens:  100,
			Temperature:       0.9,
		},
		Fetch: FetchConfig{
			URL:      "https://cataas.com/cat",
			Timeout:  10 * time.Second,
			MaxBytes: 20 << 20,
		},
		Image: ImageConfig{
			SavePath:    "current_cat.jpg",
			Quality:     90,
			SendFormat:  "jpg",
			SendMaxDim:  1024,
			SendQuality: 85,
		},
		Credentials: CredentialsConfig{
			Sources:   []string{SourceFile, SourceHosted, SourcePrompt},
			KeyName:   "OPENAI_API_KEY",
			LocalFile: ".env",
			Hosted: HostedConfig{
				Kind:       "env",
				SecretsDir: "/run/secrets",
			},
		},
		Web: WebConfig{
			Addr:            ":8080",
			RateLimit:       0.5,
			Burst:           3,
			SessionTTL:      30 * time.Minute,
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadFromFile loads configuration from a YAML file. Keys missing from the
// file keep their default values.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// Load reads the file at GetConfigPath, falling back to defaults when the file
// does not exist. A file named by CAT_TAGLINE_CONFIG must exist.
func Load() (*Config, error) {
	path := GetConfigPath()
	config := Default()
	if utils.FileExists(path) || os.Getenv(EnvConfigPath) != "" {
		var err error
		if config, err = LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return config, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Provider.Name {
	case "openai", "ollama", "gemini":
	default:
		return fmt.Errorf("provider.name must be openai, ollama or gemini, got %q", c.Provider.Name)
	}

	if c.Fetch.URL == "" {
		return fmt.Errorf("fetch.url cannot be empty")
	}

	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("fetch.timeout must be positive")
	}

	if c.Fetch.MaxBytes < 0 {
		return fmt.Errorf("fetch.max_bytes cannot be negative")
	}

	if c.Image.SavePath != "" && !utils.IsWritableImage(c.Image.SavePath) {
		return fmt.Errorf("image.save_path must end in .jpg, .png or .webp")
	}

	if c.Image.Quality < 1 || c.Image.Quality > 100 {
		return fmt.Errorf("image.quality must be between 1 and 100")
	}

	if c.Image.SendQuality < 1 || c.Image.SendQuality > 100 {
		return fmt.Errorf("image.send_quality must be between 1 and 100")
	}

	switch c.Image.SendFormat {
	case "jpg", "jpeg", "png":
	default:
		return fmt.Errorf("image.send_format must be jpg or png")
	}

	if c.Models.Temperature < 0 || c.Models.Temperature > 2 {
		return fmt.Errorf("models.temperature must be between 0 and 2")
	}

	if len(c.Credentials.Sources) == 0 {
		return fmt.Errorf("credentials.sources cannot be empty")
	}

	seen := make(map[string]bool)
	for _, s := range c.Credentials.Sources {
		switch s {
		case SourceFile, SourceHosted, SourcePrompt:
		default:
			return fmt.Errorf("credentials.sources: unknown source %q", s)
		}
		if seen[s] {
			return fmt.Errorf("credentials.sources: %q listed twice", s)
		}
		seen[s] = true
	}

	if c.Credentials.KeyName == "" {
		return fmt.Errorf("credentials.key_name cannot be empty")
	}

	if seen[SourceHosted] {
		switch c.Credentials.Hosted.Kind {
		case "env":
		case "dir":
			if c.Credentials.Hosted.SecretsDir == "" {
				return fmt.Errorf("credentials.hosted.secrets_dir is required for kind dir")
			}
		case "redis":
			if c.Credentials.Hosted.RedisURL == "" {
				return fmt.Errorf("credentials.hosted.redis_url is required for kind redis")
			}
		default:
			return fmt.Errorf("credentials.hosted.kind must be env, dir or redis, got %q", c.Credentials.Hosted.Kind)
		}
	}

	if c.Web.RateLimit < 0 || c.Web.Burst < 0 {
		return fmt.Errorf("web.rate_limit and web.burst cannot be negative")
	}

	if c.Web.SessionTTL <= 0 {
		return fmt.Errorf("web.session_ttl must be positive")
	}

	if _, err := c.SlogLevel(); err != nil {
		return err
	}

	return nil
}

// SlogLevel parses log.level
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// NewLogger builds the process logger. Output goes to stderr so stdout stays
// free for results.
func (c *Config) NewLogger() *slog.Logger {
	level, _ := c.SlogLevel()
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Log.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// GetConfigPath returns the configuration file path
func GetConfigPath() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	return "./" + DefaultConfigFile
}
