package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

const (
	actionShutdown = "shutdown"
	actionRestart  = "restart"
)

func main() {
	configPath := flag.String("config", "./config.json", "path to the daemon configuration file")
	flag.Parse()

	baseLogger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	baseLogger.Info("Neutral IPC engine", "version", Version, "commit", Commit, "build_date", BuildDate)

	actionChan := make(chan string, 1)

	go func() {
		osSignalChan := make(chan os.Signal, 1)
		signal.Notify(osSignalChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
		for sig := range osSignalChan {
			if sig == syscall.SIGHUP {
				baseLogger.Info("SIGHUP received, reloading configuration.")
				actionChan <- actionRestart
				continue
			}
			baseLogger.Info("OS signal received, initiating shutdown.")
			actionChan <- actionShutdown
			return
		}
	}()

	for {
		action, err := run(*configPath, actionChan)
		if err != nil {
			baseLogger.Error("An error occurred during server run, shutting down.", "error", err)
			break
		}

		if action == actionRestart {
			baseLogger.Info("--- Server Restarting ---")
			continue
		}
		break
	}

	baseLogger.Info("Neutral IPC engine has shut down.")
}

// run hosts the engine until an action arrives and returns that action.
func run(configPath string, actionChan chan string) (string, error) {
	config, err := LoadConfig(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(config.Daemon.LogLevel)}))
	logger.Info("Starting server cycle...")

	server, err := NewServer(config, logger)
	if err != nil {
		return "", fmt.Errorf("failed to create server object: %w", err)
	}

	ctx, stop := context.WithCancel(context.Background())
	errChan := server.Start(ctx)

	var action string
	select {
	case action = <-actionChan: // Block here until an OS signal sends an action.
	case err = <-errChan:
	}

	if err != nil {
		logger.Error("Stopping server after a fatal error...")
	} else {
		logger.Info("Stopping server for " + action + "...")
	}
	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	server.Shutdown(shutdownCtx)
	logger.Info("IPC server stopped.")

	if err != nil {
		return "", fmt.Errorf("ipc server failed: %w", err)
	}
	return action, nil
}
