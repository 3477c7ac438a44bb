package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/CTAG07/Neutral/pkg/ipc"
	"github.com/CTAG07/Neutral/pkg/stats"
	"github.com/CTAG07/Neutral/pkg/templating"
)

// Server bundles everything one run of the daemon owns.
type Server struct {
	config *Config
	logger *slog.Logger
	db     *sql.DB
	stats  *stats.Store
	tm     *templating.Manager
	ipc    *ipc.Server
}

// NewServer builds the template manager, the optional stats store and the IPC
// server from config.
func NewServer(config *Config, logger *slog.Logger) (*Server, error) {
	tm, err := templating.NewManager(logger, config.Templates)
	if err != nil {
		return nil, fmt.Errorf("failed to create template manager: %w", err)
	}

	s := &Server{config: config, logger: logger, tm: tm}

	// A nil *stats.Store must not reach the IPC server as a non-nil interface.
	var recorder ipc.Recorder
	if path := config.Daemon.StatsDatabasePath; path != "" {
		if err = os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create stats directory: %w", err)
		}
		s.db, err = stats.Open(path)
		if err != nil {
			return nil, err
		}
		s.stats, err = stats.NewStore(s.db, logger)
		if err != nil {
			_ = s.db.Close()
			return nil, err
		}
		recorder = s.stats
	}

	s.ipc = ipc.NewServer(logger, tm, config.IPC, recorder)
	return s, nil
}

// Start serves IPC and, when enabled, watches the template directory. Both
// stop when ctx is cancelled or Shutdown is called. A serve failure other than
// a clean shutdown is delivered on the returned channel.
func (s *Server) Start(ctx context.Context) <-chan error {
	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("Starting Neutral IPC server", "address", s.config.IPC.Addr)
		if err := s.ipc.ListenAndServe(); err != nil && !errors.Is(err, ipc.ErrServerClosed) {
			s.logger.Error("IPC server failed", "error", err)
			errChan <- err
		}
	}()

	if s.config.Daemon.WatchTemplates {
		go func() {
			if err := s.tm.Watch(ctx); err != nil {
				s.logger.Error("Template watcher failed", "error", err)
			}
		}()
	}
	return errChan
}

// Shutdown stops the IPC server and closes the stats database.
func (s *Server) Shutdown(ctx context.Context) {
	if err := s.ipc.Shutdown(ctx); err != nil {
		s.logger.Error("IPC server shutdown failed", "error", err)
	}
	if s.db != nil {
		s.logger.Info("Closing database connection.")
		if err := s.db.Close(); err != nil {
			s.logger.Error("Failed to close database", "error", err)
		}
	}
}
