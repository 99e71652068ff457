package domain

import (
	"errors"
	"fmt"
)

// ErrLedgerUnavailable is returned when the primary node cannot answer a
// query that has no multi-node fallback.
var ErrLedgerUnavailable = errors.New("ledger unavailable")

// ErrNoClient marks a target whose client failed to construct at startup.
var ErrNoClient = errors.New("no client configured")

// ConnectivityError wraps a failed call to a single endpoint.
type ConnectivityError struct {
	Node int
	URL  string
	Op   string
	Err  error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("node %d %s: %v", e.Node, e.Op, e.Err)
}

func (e *ConnectivityError) Unwrap() error {
	return e.Err
}

// ErrBlockNotFound is returned when a node answers a block query with null.
var ErrBlockNotFound = errors.New("block not found")

// ErrReceiptNotFound is returned for unknown or still pending transactions.
var ErrReceiptNotFound = errors.New("receipt not found")
