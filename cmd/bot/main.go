package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ibkr-sma-scanner/internal/app"
	"ibkr-sma-scanner/internal/logger"
	"ibkr-sma-scanner/internal/server"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	addr := flag.String("addr", "", "Listen address (overrides server.addr)")
	flag.Parse()

	if err := app.InitSystem(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := app.LoadConfig(ctx, *configPath)
	if err != nil {
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to initialize bot", err)
		os.Exit(1)
	}
	app.CompressLogs(ctx)

	// The API serves status even while disconnected; the supervisor keeps
	// trying in the background.
	if err := a.Connect(ctx); err != nil {
		logger.Warn(ctx, "Initial connect failed, scheduling reconnect", "error", err)
		a.Manager.ScheduleReconnect()
	}

	srv := server.New(cfg.Server.Addr, server.Deps{
		Conn:      a.Manager,
		Cache:     a.Cache,
		Scanner:   a,
		Assistant: a.Assistant,
		Universe:  a.Universe,
	})

	if cfg.Cache.AutoRebuild {
		go a.RunAutoRebuild(ctx, 60*time.Second)
	}

	logger.Info(ctx, "Bot started", "addr", cfg.Server.Addr, "provider", cfg.Broker.Provider)
	if err := srv.Run(ctx); err != nil {
		logger.ErrorWithErr(ctx, "API server failed", err)
	}

	logger.Info(ctx, "Shutting down...")
	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	a.Close(shutdownCtx)
	app.Shutdown(shutdownCtx)
}
