package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"chatty/server/internal/config"
	"chatty/server/internal/filestore"
	"chatty/server/internal/httpapi"
	"chatty/server/internal/registry"
	"chatty/server/internal/stats"
	"chatty/server/internal/store"
)

// Version is injected at build time with -ldflags.
var Version = "0.1.0-dev"

func main() {
	confFile := flag.String("f", "", "Path to the configuration file")
	flag.Parse()

	if *confFile == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*confFile)
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	})))
	slog.Info("starting chatty", "version", Version, "config", *confFile, "socket", cfg.UnixPath)

	sqliteStore, err := store.Open(cfg.DBFile)
	if err != nil {
		slog.Error("open sqlite store", "err", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := sqliteStore.Close(); closeErr != nil {
			slog.Error("close sqlite store", "err", closeErr)
		}
	}()

	files, err := filestore.New(cfg.DirName, sqliteStore)
	if err != nil {
		slog.Error("initialize attachment store", "err", err)
		os.Exit(1)
	}

	promReg := prometheus.NewRegistry()
	st := stats.New(promReg)
	reg := registry.New(cfg.MaxHistMsgs)

	server := NewServer(cfg, reg, st, files)
	if err := server.Listen(); err != nil {
		slog.Error("listen", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// A stats dump must never kill the process on a broken pipe from
	// a reader of the socket either.
	signal.Ignore(syscall.SIGPIPE)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig.String())
		cancel()
	}()

	dumpCh := make(chan os.Signal, 1)
	signal.Notify(dumpCh, syscall.SIGUSR1)
	go func() {
		for range dumpCh {
			if err := st.Dump(cfg.StatFileName); err != nil {
				slog.Error("dump stats", "err", err)
			} else {
				slog.Info("stats dumped", "file", cfg.StatFileName)
			}
		}
	}()

	if cfg.AdminAddr != "" {
		admin := httpapi.New(reg, st, sqliteStore, files, promReg)
		go func() {
			slog.Info("admin api listening", "addr", cfg.AdminAddr)
			if err := admin.Run(ctx, cfg.AdminAddr); err != nil {
				slog.Error("admin api error", "err", err)
			}
		}()
	}

	if err := server.Run(ctx); err != nil {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
}

func logLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
