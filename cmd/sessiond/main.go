package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/dgnsrekt/sessionvault/internal/api"
	"github.com/dgnsrekt/sessionvault/internal/browser"
	"github.com/dgnsrekt/sessionvault/internal/catalog"
	"github.com/dgnsrekt/sessionvault/internal/cdpcontrol"
	"github.com/dgnsrekt/sessionvault/internal/config"
	"github.com/dgnsrekt/sessionvault/internal/controller"
	"github.com/dgnsrekt/sessionvault/internal/events"
	"github.com/dgnsrekt/sessionvault/internal/metrics"
	"github.com/dgnsrekt/sessionvault/internal/netutil"
	"github.com/dgnsrekt/sessionvault/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load sessiond config", "error", err)
		os.Exit(1)
	}

	if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		if _, writeErr := io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n"); writeErr != nil {
			slog.Debug("logger setup stderr write failed", "error", writeErr)
		}
		os.Exit(1)
	}

	slog.Info("sessiond config loaded",
		"bind_addr", cfg.BindAddr,
		"bind_fallbacks", cfg.BindFallbacks,
		"tab_url_filter", cfg.TabURLFilter,
		"eval_timeout_ms", cfg.EvalTimeoutMS,
		"restore_deadline_ms", cfg.RestoreDeadlineMS,
		"data_dir", cfg.DataDir,
		"journal_dir", cfg.JournalDir,
		"launch_browser", cfg.Browser.Launch,
	)

	guard, err := cfg.Guard()
	if err != nil {
		slog.Error("failed to load extraction guard", "file", cfg.GuardFile, "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Browser.Launch {
		launcher := browser.NewLauncher(browser.Config{
			CDPAddress: cfg.CDPAddress,
			CDPPort:    cfg.CDPPort,
			StartURL:   cfg.Browser.StartURL,
			ProfileDir: cfg.Browser.ProfileDir,
			ExecPath:   cfg.Browser.ExecPath,
			Headless:   cfg.Browser.Headless,
		})
		if err := launcher.Launch(ctx); err != nil {
			slog.Error("failed to launch browser", "error", err)
			os.Exit(1)
		}
		defer launcher.Stop()
	}

	ln, err := netutil.Listen(cfg.BindAddr, cfg.BindFallbacks, cfg.AutoFallback)
	if err != nil {
		slog.Error("failed to select bind address", "preferred", cfg.BindAddr, "error", err)
		os.Exit(1)
	}

	cdpClient := cdpcontrol.NewClient(cfg.CDPURL(), cfg.TabURLFilter, cfg.EvalTimeout())
	if err := cdpClient.Connect(ctx); err != nil {
		slog.Error("failed to connect CDP client", "cdp_url", cfg.CDPURL(), "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := cdpClient.Close(); err != nil {
			slog.Debug("CDP client close failed", "error", err)
		}
	}()

	store, err := catalog.NewStore(cfg.DataDir)
	if err != nil {
		slog.Error("failed to create catalog store", "dir", cfg.DataDir, "error", err)
		os.Exit(1)
	}

	journal := storage.NewJournal(cfg.JournalDir, cfg.JournalBufferSize, cfg.JournalMaxSizeMB)
	defer journal.Close()

	m := metrics.New()
	broker := events.NewBroker()
	svc := controller.NewService(cdpClient, catalog.New(store), controller.Options{
		RestoreDeadline: cfg.RestoreDeadline(),
		ReloadTimeout:   cfg.ReloadTimeout(),
		OpenTimeout:     cfg.OpenTimeout(),
		Guard:           guard,
		Metrics:         m,
		Journal:         journal,
		Archive:         storage.NewArchive(cfg.JournalDir),
		Events:          broker,
	})

	srv := &http.Server{
		Handler:           api.NewServer(svc, api.ServerOptions{Metrics: m, Events: broker}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		addr := ln.Addr().String()
		slog.Info("sessiond listening", "addr", addr, "docs", "http://"+addr+"/docs")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("sessiond shutting down")
	case err := <-errCh:
		slog.Error("sessiond server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("sessiond shutdown failed", "error", err)
	}
}

func setupLogger(level, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return err
	}

	logWriter := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}

	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	h := slog.NewTextHandler(io.MultiWriter(os.Stdout, logWriter), &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(h))
	return nil
}
