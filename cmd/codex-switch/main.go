// codex-switch core daemon.
//
// Hosts the credential vault, the account switcher and the quota probe, and
// exposes the command surface to the GUI over a local JSON-RPC socket.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/githubbzxs/codex-switch/pkg/app"
	"github.com/githubbzxs/codex-switch/pkg/config"
	"github.com/githubbzxs/codex-switch/pkg/logger"
	"github.com/githubbzxs/codex-switch/pkg/quota"
	"github.com/githubbzxs/codex-switch/pkg/rpc"
)

var version = "0.1.0"

func main() {
	var (
		configPath  = flag.String("config", "", "path to config.toml")
		baseDir     = flag.String("base-dir", "", "override the data directory")
		socketPath  = flag.String("socket", "", "override the RPC socket path")
		logLevel    = flag.String("log-level", "", "debug, info, warn or error")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("codex-switch %s\n", version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *baseDir != "" {
		cfg.BaseDir = *baseDir
	}
	if *socketPath != "" {
		cfg.SocketPath = *socketPath
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	if err := logger.Initialize(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output); err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	log := logger.Get()

	application, err := app.New(cfg.BaseDir, log)
	if err != nil {
		log.Error("failed to initialize application state", "error", err.Error())
		os.Exit(1)
	}
	defer application.Close()
	application.LoginTimeout = time.Duration(cfg.LoginTimeoutSeconds) * time.Second

	server, err := rpc.New(cfg.SocketPath, application, log.WithComponent("rpc"))
	if err != nil {
		log.Error("failed to create RPC server", "error", err.Error())
		os.Exit(1)
	}
	if err := server.Start(); err != nil {
		log.Error("failed to start RPC server", "error", err.Error())
		os.Exit(1)
	}
	log.Info("codex-switch core started",
		"version", version,
		"socket", cfg.SocketPath,
		"data_dir", cfg.BaseDir,
	)

	var scheduler *quota.Scheduler
	if cfg.QuotaAutoRefreshCron != "" {
		scheduler, err = quota.NewScheduler(cfg.QuotaAutoRefreshCron, application.Refresher, log.WithComponent("quota"))
		if err != nil {
			log.Error("invalid quota refresh schedule", "error", err.Error())
			os.Exit(1)
		}
		scheduler.Start()
		log.Info("quota auto-refresh scheduled", "cron", cfg.QuotaAutoRefreshCron)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("shutting down", "signal", sig.String())

	if scheduler != nil {
		scheduler.Stop()
	}
	if err := server.Stop(); err != nil {
		log.Warn("RPC server shutdown error", "error", err.Error())
	}
}
