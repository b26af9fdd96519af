package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	cattagline "github.com/menta2k/cat-tagline"
	"github.com/menta2k/cat-tagline/internal/config"
	"github.com/menta2k/cat-tagline/internal/web"
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
	defer stop()

	if err := serve(ctx, cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		stop()
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if !cfg.Web.SaveImages {
		cfg.Image.SavePath = ""
	}

	app, err := cattagline.New(cfg, cattagline.WithLogger(logger), cattagline.Interactive())
	if err != nil {
		return err
	}
	defer app.Close()

	ui, err := web.NewServer(app, app.Resolver(), app.Analyzer(), web.Options{
		Environment: cfg.Environment,
		Version:     cattagline.Version,
		RateLimit:   cfg.Web.RateLimit,
		Burst:       cfg.Web.Burst,
		SessionTTL:  cfg.Web.SessionTTL,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("failed to build UI: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.Web.Addr,
		Handler:           ui.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", "addr", cfg.Web.Addr, "provider", cfg.Provider.Name, "environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()
		logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
