package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"skirmish/server"
	"skirmish/server/config"
	"skirmish/server/telemetry"
	"skirmish/utils"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "err", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(utils.GetEnvDefault("SKIRMISH_CONFIG_DIR", "."))
	if err != nil {
		return err
	}

	provider, err := telemetry.New(ctx, telemetry.Config{
		Enabled:     cfg.OTel.Enabled,
		ServiceName: cfg.OTel.ServiceName,
		Endpoint:    cfg.OTel.Endpoint,
		Insecure:    cfg.OTel.Insecure,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			slog.Error("telemetry shutdown failed", "err", err)
		}
	}()
	slog.SetDefault(telemetry.NewLogger(os.Stdout, cfg.LogLevel, provider.LoggerProvider()))

	arena, err := server.NewArena(cfg, server.WithMeterProvider(provider.MeterProvider()))
	if err != nil {
		return err
	}
	s := server.NewServer(cfg.ListenAddr(), arena.Handler)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return arena.Room.Run(gctx)
	})
	g.Go(func() error {
		slog.InfoContext(gctx, "server listening", "addr", cfg.ListenAddr(), "otel", provider.Enabled())
		if err := s.Serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown initiated")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		// ハイジャック済みの WebSocket は Shutdown の対象外なので先に閉じる。
		if err := arena.Accept.CloseAll(shutdownCtx); err != nil {
			slog.Warn("websocket sessions did not close in time", "err", err)
		}
		if err := s.Shutdown(shutdownCtx); err != nil {
			slog.Error("graceful shutdown failed", "err", err)
			if err := s.Close(); err != nil {
				slog.Error("forced close failed", "err", err)
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("server shutdown complete")
	return nil
}
