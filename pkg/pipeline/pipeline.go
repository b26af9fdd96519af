package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/menta2k/cat-tagline/pkg/client"
	"github.com/menta2k/cat-tagline/pkg/credentials"
	"github.com/menta2k/cat-tagline/pkg/describer"
	"github.com/menta2k/cat-tagline/pkg/tagline"
	"github.com/menta2k/cat-tagline/pkg/types"
)

// ImageFetcher returns one new image per call
type ImageFetcher interface {
	Fetch(ctx context.Context) (*types.CatImage, error)
}

// ImageSaver persists the fetched image and returns where it was written
type ImageSaver interface {
	Save(img *types.CatImage) (string, error)
}

// CredentialResolver yields the credential for a run
type CredentialResolver interface {
	Resolve(ctx context.Context) (credentials.Resolution, error)
}

// ClientFactory builds a model client for one run. No client outlives its run.
type ClientFactory func(ctx context.Context, cred credentials.Credential) (client.ModelClient, error)

// ProgressFunc is called after each successful stage with the partial result
type ProgressFunc func(stage Stage, result *types.Result)

// Orchestrator runs fetch, save, describe and generate strictly in order
type Orchestrator struct {
	fetcher     ImageFetcher
	saver       ImageSaver
	newClient   ClientFactory
	describeCfg describer.Config
	taglineCfg  tagline.Config
	progress    ProgressFunc
	logger      *slog.Logger
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithSaver stores every fetched image before it is described. A save failure
// aborts the run.
func WithSaver(s ImageSaver) Option {
	return func(o *Orchestrator) { o.saver = s }
}

// WithDescriber sets the vision model settings
func WithDescriber(cfg describer.Config) Option {
	return func(o *Orchestrator) { o.describeCfg = cfg }
}

// WithTagline sets the text model settings
func WithTagline(cfg tagline.Config) Option {
	return func(o *Orchestrator) { o.taglineCfg = cfg }
}

// WithProgress registers a callback for completed stages
func WithProgress(fn ProgressFunc) Option {
	return func(o *Orchestrator) { o.progress = fn }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// New creates an orchestrator
func New(f ImageFetcher, newClient ClientFactory, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		fetcher:   f,
		newClient: newClient,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Execute resolves a credential and runs the pipeline with it. Nothing touches
// the network when resolution fails.
func (o *Orchestrator) Execute(ctx context.Context, r CredentialResolver) (*types.Result, credentials.Resolution, error) {
	res, err := r.Resolve(ctx)
	if err != nil {
		return &types.Result{}, res, err
	}
	result, err := o.run(ctx, res.Credential, res.Source)
	return result, res, err
}

// Run performs one full run with cred. The returned result holds every stage
// that completed, also when err is non-nil.
func (o *Orchestrator) Run(ctx context.Context, cred credentials.Credential) (*types.Result, error) {
	return o.run(ctx, cred, "")
}

func (o *Orchestrator) run(ctx context.Context, cred credentials.Credential, source string) (*types.Result, error) {
	result := &types.Result{}
	if cred == "" {
		return result, &credentials.CredentialError{Reason: credentials.ReasonAbsent, Err: credentials.ErrNotFound}
	}

	start := time.Now()
	img, err := o.fetcher.Fetch(ctx)
	if err != nil {
		return result, o.fail(StageFetch, err)
	}
	result.Image = img
	o.logger.Debug("image fetched", "bytes", img.Size(), "content_type", img.ContentType)
	o.report(StageFetch, result)

	if o.saver != nil {
		path, err := o.saver.Save(img)
		if err != nil {
			return result, o.fail(StageSave, err)
		}
		result.ImagePath = path
		o.report(StageSave, result)
	}

	mc, err := o.newClient(ctx, cred)
	if err != nil {
		return result, o.fail(StageDescribe, rejectedOr(err, source))
	}

	desc, err := describer.NewWithConfig(mc, o.describeCfg).Describe(ctx, img)
	if err != nil {
		return result, o.fail(StageDescribe, rejectedOr(err, source))
	}
	result.Description = desc
	o.report(StageDescribe, result)

	tag, err := tagline.NewWithConfig(mc, o.taglineCfg).Generate(ctx, desc)
	if err != nil {
		return result, o.fail(StageGenerate, rejectedOr(err, source))
	}
	result.Tagline = tag
	o.report(StageGenerate, result)

	o.logger.Info("run completed", "client", mc.Name(), "duration", time.Since(start))
	return result, nil
}

func (o *Orchestrator) report(stage Stage, result *types.Result) {
	if o.progress != nil {
		o.progress(stage, result)
	}
}

func (o *Orchestrator) fail(stage Stage, err error) error {
	stageErr := &StageError{Stage: stage, Err: err}
	level := slog.LevelWarn
	if errors.Is(err, context.Canceled) {
		level = slog.LevelDebug
	}
	o.logger.Log(context.Background(), level, "run failed", "stage", stage, "cause", stageErr.Summary())
	return stageErr
}
