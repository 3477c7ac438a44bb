package main

import (
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "neutral",
		Short: "Render Neutral templates and inspect engine stats",
		Long: `neutral renders .ntpl templates against a JSON or YAML schema.

Examples:
  neutral render index.ntpl --schema site.yaml
  neutral render index.ntpl --data '{"data":{"hello":"Hello World"}}'
  neutral render index.ntpl --ipc --ipc-config ./neutral-ipc-cfg.json
  neutral stats --db ./data/neutral_stats.db`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringP("log-level", "l", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(newRenderCmd(), newStatsCmd(), newVersionCmd())
	return root
}

// newLogger logs to the command's stderr at the level given by --log-level.
func newLogger(cmd *cobra.Command) *slog.Logger {
	level, _ := cmd.Flags().GetString("log-level")
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: parseLevel(level)}))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}
