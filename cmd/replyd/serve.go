package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"replyd/internal/app"
	"replyd/internal/config"
	"replyd/internal/httpapi"
	"replyd/internal/telemetry"
)

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Example: "  replyd serve --config replyd.yaml\n" +
			"  REPLYD_RUNTIME_BACKEND=llamaserver replyd serve --models-dir ~/models/users",
		Args: cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return bindFlags(v, cmd.Flags(), map[string]string{
				"addr":                 "addr",
				"runtime.models_dir":   "models-dir",
				"runtime.backend":      "backend",
				"pool.capacity":        "capacity",
				"persist.backend":      "persist",
				"fallback.source":      "fallback",
				"cors.allowed_origins": "cors-origins",
			})
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, cmd.ErrOrStderr())
		},
	}
	f := cmd.Flags()
	f.String("addr", "", "HTTP listen address (default "+config.DefaultAddr+")")
	f.String("models-dir", "", "Directory of per-user <user>.gguf models")
	f.String("backend", "", "Runtime backend: static|pipe|llamaserver|llama")
	f.Int("capacity", 0, "Maximum concurrently loaded models")
	f.String("persist", "", "Turn store: memory|redis|sqlite")
	f.String("fallback", "", "Fallback corpus source: memory|dir|sqlite")
	f.String("cors-origins", "", "Comma-separated allowed CORS origins; enables CORS")
	return cmd
}

func serve(ctx context.Context, cfg config.Config, stderr io.Writer) error {
	log, logCloser, err := telemetry.NewLogger(cfg.Log, stderr)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.Tracing, version)
	if err != nil {
		return err
	}

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}

	httpapi.SetLogger(log)
	httpapi.SetCORSOptions(cfg.CORS.Enabled, cfg.CORS.AllowedOrigins, cfg.CORS.AllowedMethods, cfg.CORS.AllowedHeaders)
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	httpapi.SetBaseContext(baseCtx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.NewMux(a),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Str("backend", cfg.Runtime.Backend).Str("version", version).Msg("replyd listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	var serveErr error
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case serveErr = <-errCh:
			break loop
		case <-hup:
			if err := a.ReloadModels(); err != nil {
				log.Error().Err(err).Msg("model registry reload failed")
			} else {
				log.Info().Int("models", len(a.Models())).Msg("model registry reloaded")
			}
		}
	}

	log.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown incomplete")
	}
	// ends hijacked WebSocket streams and anything Shutdown gave up on
	cancelBase()
	if err := a.Close(sctx); err != nil {
		log.Warn().Err(err).Msg("component shutdown")
	}
	if err := shutdownTracing(sctx); err != nil {
		log.Warn().Err(err).Msg("trace flush")
	}
	if serveErr != nil {
		return fmt.Errorf("server: %w", serveErr)
	}
	return nil
}
