package control

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/vietddude/chainwatch/internal/core/config"
)

// TestLiveFleet runs the monitor against real nodes. Set E2E_LIVE=true and
// point NODE1_RPC.. at a running network (defaults are the local 3-node net).
func TestLiveFleet(t *testing.T) {
	if os.Getenv("E2E_LIVE") == "" {
		t.Skip("Skipping live E2E test. Set E2E_LIVE=true to run.")
	}

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	cfg.Server.Port = 0
	cfg.Monitor.PollInterval = time.Second

	ctx := context.Background()
	app, err := NewApp(ctx, cfg)
	if err != nil {
		t.Fatalf("Failed to create app: %v", err)
	}
	if err := app.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	time.Sleep(3 * time.Second)

	rep := app.Fleet().NodeHealth(ctx)
	t.Logf("status=%s online=%d/%d", rep.Status, rep.OnlineNodes, rep.TotalNodes)
	if rep.OnlineNodes == 0 {
		t.Errorf("no node answered")
	}

	cons := app.Fleet().Consensus(ctx)
	t.Logf("consensus=%s synced=%d spread=%d", cons.ConsensusStatus, cons.SyncedNodes, cons.HeightSpread)

	if v, err := app.Fleet().Validators(ctx); err != nil {
		t.Errorf("Validators failed: %v", err)
	} else {
		t.Logf("validators=%d min=%d f=%d", v.Count, v.MinimumForConsensus, v.FaultTolerance)
	}

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := app.Stop(stopCtx); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
}

func TestGracefulShutdown(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1", "http://127.0.0.1:2")
	cfg.Monitor.HistoryRetention = time.Hour

	app, err := NewApp(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Failed to create app: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := app.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	time.Sleep(200 * time.Millisecond)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()

	done := make(chan error, 1)
	go func() { done <- app.Stop(stopCtx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Stop failed: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Error("Stop did not return within 10s")
	}
}
