// Package server assembles a pipeline from configuration and serves it over HTTP until the
// context is cancelled.
package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"go.viam.com/fieldscout/analyzer"
	"go.viam.com/fieldscout/capture"
	"go.viam.com/fieldscout/config"
	"go.viam.com/fieldscout/device"
	"go.viam.com/fieldscout/logging"
	"go.viam.com/fieldscout/scout"
	"go.viam.com/fieldscout/web"
)

const shutdownTimeout = 5 * time.Second

// NewAnalyzer builds the configured analyzer behind the local request budget.
func NewAnalyzer(cfg config.AnalyzerConfig, logger logging.Logger) (analyzer.Analyzer, error) {
	a, err := analyzer.New(cfg.Type, cfg.Attributes, logger)
	if err != nil {
		return nil, err
	}
	return analyzer.NewRateLimited(a, cfg.RatePerMinute, logger.Sublogger("ratelimit")), nil
}

// Run builds the pipeline described by cfg on the host's cameras and serves it at
// cfg.Web.Address.
func Run(ctx context.Context, cfg *config.Config, logger logging.Logger) error {
	a, err := NewAnalyzer(cfg.Analyzer, logger.Sublogger("analyzer"))
	if err != nil {
		return err
	}
	debounce, err := cfg.DebounceInterval()
	if err != nil {
		return err
	}
	samplerConf, err := cfg.SamplerConfig()
	if err != nil {
		return err
	}

	platform := device.NewMediaDevicesPlatform(cfg.Devices.Dir, logger)
	registry := device.NewRegistry(platform, debounce, logger.Sublogger("devices"))
	defer func() {
		if err := registry.Close(); err != nil {
			logger.Warnw("error closing device registry", "error", err)
		}
	}()
	registry.Refresh(ctx)
	if err := registry.Err(); err != nil {
		logger.Warnw("no capture devices available yet", "error", err)
	}
	if err := registry.Watch(ctx); err != nil {
		logger.Warnw("device hot-plug detection unavailable", "error", err)
	}

	controller := capture.NewController(capture.NewMediaSource(logger.Sublogger("capture")), cfg.Capture, logger.Sublogger("capture"))
	pipeline := scout.NewPipeline(registry, controller, a, scout.Options{
		Sampler:      samplerConf,
		ContextLabel: cfg.Label(),
	}, logger.Sublogger("scout"))

	listener, err := net.Listen("tcp", cfg.Web.Address)
	if err != nil {
		return multierr.Combine(errors.Wrapf(err, "cannot listen on %s", cfg.Web.Address), pipeline.Close(ctx))
	}
	return Serve(ctx, listener, pipeline, cfg.Web.CORSOrigins, logger)
}

// Serve serves the pipeline's API on listener until ctx is cancelled, then shuts the server
// down and closes the pipeline.
func Serve(
	ctx context.Context,
	listener net.Listener,
	pipeline *scout.Pipeline,
	corsOrigins []string,
	logger logging.Logger,
) error {
	httpServer := &http.Server{
		Handler:           web.NewHandler(pipeline, corsOrigins, logger.Sublogger("web")),
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Infow("serving", "address", listener.Addr().String())
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "http server failed")
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return multierr.Combine(
			httpServer.Shutdown(shutdownCtx),
			pipeline.Close(shutdownCtx),
		)
	})
	return group.Wait()
}
