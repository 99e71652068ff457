package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/chainwatch/internal/control"
	"github.com/vietddude/chainwatch/internal/core/config"
	"github.com/vietddude/chainwatch/internal/monitoring/fleet"
)

var asJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Probe every node once and print its status",
	Run: func(cmd *cobra.Command, args []string) {
		withFleet(func(ctx context.Context, f *fleet.Fleet) error {
			return printHealth(os.Stdout, f.NodeHealth(ctx))
		})
	},
}

var consensusCmd = &cobra.Command{
	Use:   "consensus",
	Short: "Compare the latest block of every node",
	Run: func(cmd *cobra.Command, args []string) {
		withFleet(func(ctx context.Context, f *fleet.Fleet) error {
			return printConsensus(os.Stdout, f.Consensus(ctx))
		})
	},
}

var validatorsCmd = &cobra.Command{
	Use:   "validators",
	Short: "List the validator set reported by the primary node",
	Run: func(cmd *cobra.Command, args []string) {
		withFleet(func(ctx context.Context, f *fleet.Fleet) error {
			rep, err := f.Validators(ctx)
			if err != nil {
				return err
			}
			return printValidators(os.Stdout, rep)
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{statusCmd, consensusCmd, validatorsCmd} {
		c.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
		rootCmd.AddCommand(c)
	}
}

// withFleet builds a fleet from config, runs fn once and exits non-zero on error.
func withFleet(fn func(ctx context.Context, f *fleet.Fleet) error) {
	cfg, err := loadConfig()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	f, err := newFleet(cfg)
	if err != nil {
		slog.Error("Failed to build fleet", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = f.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := fn(ctx, f); err != nil {
		slog.Error("Query failed", "error", err)
		os.Exit(1)
	}
}

func newFleet(cfg *config.AppConfig) (*fleet.Fleet, error) {
	return fleet.New(
		control.Endpoints(cfg.Nodes, cfg.Monitor.CallTimeout),
		control.FleetConfig(cfg.Monitor),
	)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func optional(v *uint64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatUint(*v, 10)
}

func printHealth(out io.Writer, rep fleet.HealthReport) error {
	if asJSON {
		return printJSON(out, rep)
	}
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(w, "NODE\tNAME\tSTATUS\tBLOCK\tCHAIN\tPEERS\tLAG\tLATENCY\tERROR")
	for _, n := range rep.Nodes {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%dms\t%s\n",
			n.Node, n.Name, n.State(),
			optional(n.ChainHead), optional(n.ChainID), optional(n.PeerCount), optional(n.Lag),
			n.Latency.Milliseconds(), n.Error)
	}
	_, _ = fmt.Fprintf(w, "\n%s: %d/%d online\n", rep.Status, rep.OnlineNodes, rep.TotalNodes)
	return w.Flush()
}

func printConsensus(out io.Writer, rep fleet.ConsensusReport) error {
	if asJSON {
		return printJSON(out, rep)
	}
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(w, "NODE\tBLOCK\tHASH\tERROR")
	for _, b := range rep.Blocks {
		number, hash := "-", "-"
		if b.Block != nil {
			number = strconv.FormatUint(b.Block.Number, 10)
			hash = b.Block.Hash
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", b.Node, number, hash, b.Error)
	}
	_, _ = fmt.Fprintf(w, "\n%s (%d/%d nodes, spread %d)\n",
		rep.ConsensusStatus, rep.SyncedNodes, rep.TotalNodes, rep.HeightSpread)
	return w.Flush()
}

func printValidators(out io.Writer, rep fleet.ValidatorReport) error {
	if asJSON {
		return printJSON(out, rep)
	}
	for i, v := range rep.Validators {
		_, _ = fmt.Fprintf(out, "%2d  %s\n", i+1, v)
	}
	_, _ = fmt.Fprintf(out, "\n%d validators, %d needed for consensus, tolerates %d faulty\n",
		rep.Count, rep.MinimumForConsensus, rep.FaultTolerance)
	return nil
}

func printSnapshot(snap fleet.Snapshot) error {
	if asJSON {
		return printJSON(os.Stdout, snap)
	}
	var head any = "-"
	if b := snap.Consensus.LatestBlock; b != nil {
		head = b.Number
	}
	slog.Info("Snapshot",
		"id", snap.ID,
		"status", snap.Status,
		"online", snap.Health.OnlineNodes,
		"total", snap.Health.TotalNodes,
		"consensus", snap.Consensus.ConsensusStatus,
		"head", head,
		"complete", snap.Complete(),
	)
	return nil
}
