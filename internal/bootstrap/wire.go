package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"callstack/internal/activity"
	"callstack/internal/audio"
	"callstack/internal/auth"
	"callstack/internal/backend"
	"callstack/internal/config"
	"callstack/internal/ports"
	"callstack/internal/providers/deepgram"
	"callstack/internal/telemetry"
	"callstack/internal/usecase"
)

// Options selects how the runtime graph is assembled.
type Options struct {
	// ConfigPath overrides the config file lookup. Empty means config.DefaultPath.
	ConfigPath string
	Version    string
	// Desktop sends logs to a rotating file only, since there is no terminal.
	Desktop bool
	Console io.Writer
}

// Services is the assembled runtime graph.
type Services struct {
	Config      config.Config
	Logger      *slog.Logger
	Identity    *auth.Client
	Backend     *backend.Client
	Controller  *usecase.VoiceController
	Activity    *activity.Store
	Metrics     *telemetry.Metrics
	Reporter    *telemetry.SentryReporter
	MetricsAddr string

	closers []func(context.Context) error
}

// Build wires all dependencies for the current runtime. Presentation updates
// are delivered to sink.
func Build(ctx context.Context, opts Options, sink ports.EventSink) (*Services, error) {
	path := opts.ConfigPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	console := opts.Console
	if console == nil {
		console = os.Stderr
	}
	if opts.Desktop && cfg.Log.File == "" {
		cfg.Log.File = filepath.Join(config.Dir(), "logs", "callstack.log")
	}

	s := &Services{Config: cfg}
	logger, logCloser, err := telemetry.NewLogger(cfg.Log, console, opts.Desktop)
	if err != nil {
		return nil, err
	}
	s.Logger = logger
	s.onShutdown(func(context.Context) error { return logCloser.Close() })

	if err := s.wire(ctx, opts, sink); err != nil {
		_ = s.Shutdown(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *Services) wire(ctx context.Context, opts Options, sink ports.EventSink) error {
	cfg := s.Config

	shutdownTracing, err := telemetry.SetupTracing(ctx, cfg.Telemetry, cfg.Environment, opts.Version, os.Stdout, s.Logger)
	if err != nil {
		return err
	}
	s.onShutdown(shutdownTracing)

	s.Reporter, err = telemetry.NewSentryReporter(cfg.Telemetry.SentryDSN, cfg.Environment, opts.Version)
	if err != nil {
		return err
	}
	if s.Reporter != nil {
		s.onShutdown(func(context.Context) error {
			s.Reporter.Flush()
			return nil
		})
	}

	registry := telemetry.NewRegistry()
	s.Metrics = telemetry.NewMetrics(registry)
	if cfg.Telemetry.PrometheusBind != "" {
		addr, shutdownMetrics, err := telemetry.ServeMetrics(cfg.Telemetry.PrometheusBind, registry, s.Logger)
		if err != nil {
			return err
		}
		s.MetricsAddr = addr
		s.onShutdown(shutdownMetrics)
	}

	s.Identity, err = auth.NewClient(auth.Config{
		BaseURL:     cfg.Auth.Origin,
		RedirectURL: cfg.Auth.RedirectURL,
		CountryCode: cfg.Auth.CountryCode,
		Timeout:     cfg.Auth.Timeout(),
		Store:       auth.NewStore(cfg.Auth.SessionFile),
		Logger:      s.Logger.With("component", "auth"),
	})
	if err != nil {
		return err
	}

	s.Backend, err = backend.NewClient(backend.Config{
		BaseURL: cfg.Backend.Origin,
		Timeout: cfg.Backend.Timeout(),
		Logger:  s.Logger.With("component", "backend"),
	})
	if err != nil {
		return err
	}

	s.Activity, err = activity.Open(ctx, cfg.Activity, s.Logger.With("component", "activity"))
	if err != nil {
		return err
	}
	s.onShutdown(func(context.Context) error { return s.Activity.Close() })

	options := []usecase.Option{
		usecase.WithActivity(s.Activity),
		usecase.WithObserver(s.Metrics),
		usecase.WithLogger(s.Logger.With("component", "voice")),
	}
	if s.Reporter != nil {
		options = append(options, usecase.WithReporter(s.Reporter))
	}
	if cfg.Preview.Enabled {
		options = append(options, usecase.WithPreview(deepgram.NewProvider(deepgram.Config{
			APIKey:      cfg.Preview.APIKey,
			APIBaseURL:  cfg.Preview.APIBaseURL,
			Model:       cfg.Preview.Model,
			Language:    cfg.Preview.Language,
			SmartFormat: cfg.Preview.SmartFormat,
			Logger:      s.Logger.With("component", "preview"),
		})))
	}

	s.Controller = usecase.NewVoiceController(
		audio.NewFFMPEGCapture(cfg.Audio.Command),
		usecase.NewSessionGuard(s.Identity),
		s.Backend,
		sink,
		usecase.Config{
			Audio: ports.AudioConfig{
				SampleRate:  cfg.Audio.SampleRate,
				Channels:    cfg.Audio.Channels,
				InputFormat: cfg.Audio.InputFormat,
				InputDevice: cfg.Audio.InputDevice,
				Container:   cfg.Audio.Container,
				ChunkSize:   cfg.Audio.ChunkSize,
			},
			Streaming: ports.StreamingConfig{
				SampleRate:     cfg.Audio.SampleRate,
				Channels:       cfg.Audio.Channels,
				Encoding:       previewEncoding(cfg.Audio.Container),
				InterimResults: true,
			},
			StreamingGrace: cfg.Preview.Grace(),
		},
		options...,
	)
	s.onShutdown(func(context.Context) error {
		s.Controller.Close()
		return nil
	})

	s.Logger.Info("callstack ready",
		"backend", cfg.Backend.Origin,
		"container", cfg.Audio.Container,
		"preview", cfg.Preview.Enabled,
		"activity", cfg.Activity.RetentionMode,
	)
	return nil
}

// previewEncoding tells the live preview how to decode the captured stream.
// Containerized audio is self-describing, raw PCM is not.
func previewEncoding(container string) string {
	if audio.FormatFor(container).Container == audio.ContainerWAV {
		return "linear16"
	}
	return ""
}

func (s *Services) onShutdown(fn func(context.Context) error) {
	s.closers = append(s.closers, fn)
}

// Shutdown releases everything Build acquired, in reverse order.
func (s *Services) Shutdown(ctx context.Context) error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
