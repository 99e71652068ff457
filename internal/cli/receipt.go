package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/vietddude/chainwatch/internal/control"
	"github.com/vietddude/chainwatch/internal/infra/ledger"
)

var (
	receiptEvent    string
	receiptContract string
)

var receiptCmd = &cobra.Command{
	Use:   "receipt [tx_hash]",
	Short: "Print the record id emitted by a ledger transaction",
	Args:  cobra.ExactArgs(1),
	Run:   runReceipt,
}

func init() {
	receiptCmd.Flags().StringVar(&receiptEvent, "event", "ProductoCreado", "creation event to decode")
	receiptCmd.Flags().StringVar(&receiptContract, "contract", "", "only match logs emitted by this address")
	rootCmd.AddCommand(receiptCmd)
}

func runReceipt(cmd *cobra.Command, args []string) {
	raw, err := hexutil.Decode(args[0])
	if err != nil || len(raw) != common.HashLength {
		slog.Error("Invalid transaction hash", "hash", args[0])
		os.Exit(1)
	}
	hash := common.BytesToHash(raw)
	var contract common.Address
	if receiptContract != "" {
		if !common.IsHexAddress(receiptContract) {
			slog.Error("Invalid contract address", "address", receiptContract)
			os.Exit(1)
		}
		contract = common.HexToAddress(receiptContract)
	}

	extractor, err := ledger.NewIDExtractor("", contract)
	if err != nil {
		slog.Error("Failed to load event ABI", "error", err)
		os.Exit(1)
	}

	cfg, err := loadConfig()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	endpoints := control.Endpoints(cfg.Nodes, cfg.Monitor.CallTimeout)
	primary := endpoints[cfg.Monitor.PrimaryNode-1]
	if primary.Node == nil {
		slog.Error("Primary node has no client", "node", primary.Target.Index)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	receipt, err := primary.Node.TransactionReceipt(ctx, hash)
	if err != nil {
		slog.Error("Failed to fetch receipt", "error", err)
		os.Exit(1)
	}

	id, err := extractor.ExtractID(receipt, receiptEvent)
	if errors.Is(err, ledger.ErrUnknownEvent) {
		events := extractor.Events()
		sort.Strings(events)
		slog.Error("Unknown event", "event", receiptEvent, "known", events)
		os.Exit(1)
	}
	if err != nil {
		slog.Error("Failed to extract id", "error", err)
		os.Exit(1)
	}
	fmt.Println(id.String())
}
