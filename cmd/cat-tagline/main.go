package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	cattagline "github.com/menta2k/cat-tagline"
	"github.com/menta2k/cat-tagline/internal/config"
	"github.com/menta2k/cat-tagline/pkg/credentials"
	"github.com/menta2k/cat-tagline/pkg/pipeline"
	"github.com/menta2k/cat-tagline/pkg/types"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration error: %v\n", err)
		os.Exit(1)
	}

	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, cfg, logger, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run performs a single pipeline run and returns the process exit code
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, stdout, stderr io.Writer) int {
	app, err := cattagline.New(cfg, cattagline.WithLogger(logger))
	if err != nil {
		fmt.Fprintf(stderr, "❌ Configuration error: %v\n", err)
		return 1
	}
	defer app.Close()

	fmt.Fprintln(stdout, "🐱 Starting Cat Tagline Generator...")

	_, _, err = app.Run(ctx, app.Resolver(), func(stage pipeline.Stage, r *types.Result) {
		switch stage {
		case pipeline.StageFetch:
			fmt.Fprintf(stdout, "✅ Successfully fetched cat image (%d bytes)\n", r.Image.Size())
		case pipeline.StageSave:
			logger.Debug("image saved", "path", r.ImagePath)
		case pipeline.StageDescribe:
			fmt.Fprintf(stdout, "🔍 Image description: %s\n", r.Description)
		case pipeline.StageGenerate:
			fmt.Fprintf(stdout, "😸 Generated tagline: %s\n", r.Tagline)
		}
	})
	if err == nil {
		return 0
	}

	logger.Debug("run failed", "error", err)

	var credErr *credentials.CredentialError
	var stageErr *pipeline.StageError
	switch {
	case errors.As(err, &stageErr):
		fmt.Fprintf(stderr, "❌ Pipeline failed: %s\n", pipeline.Message(err))
		if errors.Is(err, credentials.ErrRejected) {
			fmt.Fprintf(stderr, "💡 Check the %s value in your %s file\n", cfg.Credentials.KeyName, cfg.Credentials.LocalFile)
		}
	case errors.As(err, &credErr):
		fmt.Fprintf(stderr, "❌ Configuration error: %v\n", err)
		fmt.Fprintf(stderr, "💡 Make sure to set your %s in a %s file\n", cfg.Credentials.KeyName, cfg.Credentials.LocalFile)
	default:
		fmt.Fprintf(stderr, "❌ Unexpected error: %v\n", err)
	}
	return 1
}
