// Package cattagline turns a random cat picture into a caption.
//
// One run fetches an image from a public cat image service, asks a hosted
// vision model to describe it and asks a text model for a funny one-line
// tagline based on that description.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"fmt"
//		"log"
//
//		cattagline "github.com/menta2k/cat-tagline"
//		"github.com/menta2k/cat-tagline/internal/config"
//	)
//
//	func main() {
//		app, err := cattagline.New(config.Default())
//		if err != nil {
//			log.Fatal(err)
//		}
//		defer app.Close()
//
//		result, _, err := app.Run(context.Background(), app.Resolver(), nil)
//		if err != nil {
//			log.Fatal(err)
//		}
//		fmt.Println(result.Tagline)
//	}
//
// The package wires four parts together:
//
// 1. Fetcher (pkg/fetcher): downloads one image per run
// 2. Describer (pkg/describer): one vision request per image
// 3. Tagline generator (pkg/tagline): one text request per description
// 4. Credential resolver (pkg/credentials): finds the API key in the local
// secret file, a hosted secret store or user input, in that order
//
// Model backends (OpenAI, Ollama, Gemini) are chosen by configuration and built
// fresh for every run from the resolved credential.
package cattagline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/menta2k/cat-tagline/internal/config"
	"github.com/menta2k/cat-tagline/pkg/analyzer"
	"github.com/menta2k/cat-tagline/pkg/client"
	"github.com/menta2k/cat-tagline/pkg/credentials"
	"github.com/menta2k/cat-tagline/pkg/describer"
	"github.com/menta2k/cat-tagline/pkg/fetcher"
	"github.com/menta2k/cat-tagline/pkg/gemini"
	"github.com/menta2k/cat-tagline/pkg/ollama"
	"github.com/menta2k/cat-tagline/pkg/openai"
	"github.com/menta2k/cat-tagline/pkg/pipeline"
	"github.com/menta2k/cat-tagline/pkg/processing"
	"github.com/menta2k/cat-tagline/pkg/tagline"
	"github.com/menta2k/cat-tagline/pkg/types"
)

// Version of the cat tagline library
const Version = "1.0.0"

// CatTagline provides a high-level interface over the whole pipeline
type CatTagline struct {
	config   *config.Config
	resolver *credentials.Resolver
	fetcher  *fetcher.Fetcher
	analyzer *analyzer.ImageAnalyzer
	slot     *processing.Slot
	logger   *slog.Logger
	closers  []io.Closer
}

type options struct {
	logger      *slog.Logger
	interactive bool
}

// Option configures New
type Option func(*options)

// WithLogger sets the logger passed to every component
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Interactive keeps the prompt source when the configuration lists it. Without
// it the prompt source is dropped, which is what a non-interactive caller wants.
func Interactive() Option {
	return func(o *options) { o.interactive = true }
}

// New builds the pipeline components described by cfg
func New(cfg *config.Config, opts ...Option) (*CatTagline, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	sources, closers, err := NewSources(cfg, o.interactive)
	if err != nil {
		return nil, err
	}

	var fetchOpts []fetcher.Option
	if cfg.Fetch.MaxBytes > 0 {
		fetchOpts = append(fetchOpts, fetcher.WithMaxBytes(cfg.Fetch.MaxBytes))
	}
	f, err := fetcher.New(cfg.Fetch.URL, cfg.Fetch.Timeout, fetchOpts...)
	if err != nil {
		closeAll(closers)
		return nil, fmt.Errorf("invalid fetch url: %w", err)
	}

	ct := &CatTagline{
		config:  cfg,
		fetcher: f,
		resolver: credentials.NewResolver(sources,
			credentials.WithLogger(o.logger),
			credentials.WithKeyName(cfg.Credentials.KeyName),
			credentials.WithHint(missingKeyHint(cfg)),
		),
		analyzer: analyzer.New(),
		logger:   o.logger,
		closers:  closers,
	}
	if cfg.Image.SavePath != "" {
		ct.slot = processing.NewSlot(cfg.Image.SavePath, cfg.Image.Quality)
	}
	return ct, nil
}

// Config returns the configuration the instance was built from
func (c *CatTagline) Config() *config.Config { return c.config }

// Resolver returns the credential resolver built from the configured sources
func (c *CatTagline) Resolver() *credentials.Resolver { return c.resolver }

// Analyzer returns the image analyzer used for display
func (c *CatTagline) Analyzer() *analyzer.ImageAnalyzer { return c.analyzer }

// Pipeline returns an orchestrator reporting completed stages to progress,
// which may be nil
func (c *CatTagline) Pipeline(progress pipeline.ProgressFunc) *pipeline.Orchestrator {
	cfg := c.config
	opts := []pipeline.Option{
		pipeline.WithLogger(c.logger),
		pipeline.WithProgress(progress),
		pipeline.WithDescriber(describer.Config{
			Model:       modelOrDefault(cfg.Models.Vision, cfg.Provider.Name),
			MaxTokens:   cfg.Models.DescribeMaxTokens,
			SendFormat:  cfg.Image.SendFormat,
			SendMaxDim:  cfg.Image.SendMaxDim,
			SendQuality: cfg.Image.SendQuality,
		}),
		pipeline.WithTagline(tagline.Config{
			Model:       modelOrDefault(cfg.Models.Text, cfg.Provider.Name),
			MaxTokens:   cfg.Models.TaglineMaxTokens,
			Temperature: cfg.Models.Temperature,
		}),
	}
	if c.slot != nil {
		opts = append(opts, pipeline.WithSaver(c.slot))
	}
	return pipeline.New(c.fetcher, NewClientFactory(cfg), opts...)
}

// Run resolves a credential through r and performs one full run
func (c *CatTagline) Run(ctx context.Context, r pipeline.CredentialResolver, progress pipeline.ProgressFunc) (*types.Result, credentials.Resolution, error) {
	return c.Pipeline(progress).Execute(ctx, r)
}

// Close releases connections held by credential sources
func (c *CatTagline) Close() error {
	return closeAll(c.closers)
}

// NewSources builds the credential sources listed in cfg, in order. The prompt
// source is only included when interactive is set. Returned closers must be
// closed by the caller.
func NewSources(cfg *config.Config, interactive bool) ([]credentials.Source, []io.Closer, error) {
	key := cfg.Credentials.KeyName
	var sources []credentials.Source
	var closers []io.Closer

	for _, name := range cfg.Credentials.Sources {
		switch name {
		case config.SourceFile:
			sources = append(sources, credentials.NewDotEnvSource(cfg.Credentials.LocalFile, key))
		case config.SourceHosted:
			src, closer, err := newHostedSource(cfg.Credentials)
			if err != nil {
				closeAll(closers)
				return nil, nil, err
			}
			if closer != nil {
				closers = append(closers, closer)
			}
			sources = append(sources, src)
		case config.SourcePrompt:
			if interactive {
				sources = append(sources, &credentials.PromptSource{})
			}
		default:
			closeAll(closers)
			return nil, nil, fmt.Errorf("unknown credential source %q", name)
		}
	}
	return sources, closers, nil
}

func newHostedSource(cfg config.CredentialsConfig) (credentials.Source, io.Closer, error) {
	switch cfg.Hosted.Kind {
	case "dir":
		return &credentials.SecretDirSource{Dir: cfg.Hosted.SecretsDir, Key: cfg.KeyName}, nil, nil
	case "redis":
		key := cfg.Hosted.RedisKey
		if key == "" {
			key = cfg.KeyName
		}
		src, err := credentials.NewRedisSource(cfg.Hosted.RedisURL, key)
		if err != nil {
			return nil, nil, err
		}
		return src, src, nil
	default:
		return &credentials.EnvSource{Key: cfg.KeyName}, nil, nil
	}
}

// NewClientFactory returns a factory building the configured model backend
func NewClientFactory(cfg *config.Config) pipeline.ClientFactory {
	provider := cfg.Provider
	return func(ctx context.Context, cred credentials.Credential) (client.ModelClient, error) {
		switch provider.Name {
		case "ollama":
			c, err := ollama.NewClient(provider.BaseURL, cred.Value(), provider.Timeout)
			if err != nil {
				return nil, err
			}
			return c, nil
		case "gemini":
			c, err := gemini.NewClient(ctx, cred.Value(), provider.BaseURL, provider.Timeout)
			if err != nil {
				return nil, err
			}
			return c, nil
		default:
			c, err := openai.NewClient(cred.Value(), provider.BaseURL, provider.Timeout)
			if err != nil {
				return nil, err
			}
			return c, nil
		}
	}
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}

func modelOrDefault(model, provider string) string {
	if model != "" {
		return model
	}
	switch provider {
	case "ollama":
		return ollama.DefaultModel
	case "gemini":
		return gemini.DefaultModel
	}
	return openai.DefaultModel
}

func missingKeyHint(cfg *config.Config) string {
	for _, s := range cfg.Credentials.Sources {
		if s == config.SourceFile {
			return credentials.LocalFileHint(cfg.Credentials.LocalFile, cfg.Credentials.KeyName)
		}
	}
	return fmt.Sprintf("store %s in the hosted secret store", cfg.Credentials.KeyName)
}

func closeAll(closers []io.Closer) error {
	var errs []error
	for _, c := range closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
