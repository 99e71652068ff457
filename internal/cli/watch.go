package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	redisclient "github.com/vietddude/chainwatch/internal/infra/redis"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow snapshots published by a running monitor",
	Run:   runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a summary")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.Redis.URL == "" {
		slog.Error("redis.url is required to watch snapshots")
		os.Exit(1)
	}

	rc, err := redisclient.NewClient(cfg.Redis)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = rc.Close()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if last, err := rc.LatestSnapshot(ctx); err != nil {
		slog.Warn("Failed to read latest snapshot", "error", err)
	} else if last != nil {
		_ = printSnapshot(*last)
	}

	snaps, err := rc.Subscribe(ctx)
	if err != nil {
		slog.Error("Failed to subscribe", "error", err)
		os.Exit(1)
	}
	for snap := range snaps {
		if err := printSnapshot(snap); err != nil {
			slog.Warn("Failed to print snapshot", "error", err)
		}
	}
}
