// Package ledger reads identifiers emitted by the record-keeping contracts
// from mined transaction receipts. The contracts themselves are out of scope;
// only their event signatures are known here.
package ledger

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// DefaultEventsABI declares the creation events of the deployed ledger
// contract. The first argument of each is the new record id.
const DefaultEventsABI = `[
  {"type":"event","name":"ProveedorCreado","anonymous":false,"inputs":[
    {"name":"id","type":"uint256","indexed":true},
    {"name":"nombre","type":"string","indexed":false},
    {"name":"tipo","type":"string","indexed":false},
    {"name":"registradoPor","type":"address","indexed":false}]},
  {"type":"event","name":"ProductoCreado","anonymous":false,"inputs":[
    {"name":"id","type":"uint256","indexed":true},
    {"name":"nombre","type":"string","indexed":false},
    {"name":"proveedorId","type":"uint256","indexed":false},
    {"name":"registradoPor","type":"address","indexed":false}]},
  {"type":"event","name":"MovimientoRegistrado","anonymous":false,"inputs":[
    {"name":"id","type":"uint256","indexed":true},
    {"name":"productoId","type":"uint256","indexed":true},
    {"name":"tipo","type":"string","indexed":false},
    {"name":"cantidad","type":"uint256","indexed":false},
    {"name":"registradoPor","type":"address","indexed":false}]}
]`

var (
	// ErrEventNotFound means the receipt carries no log of the requested event.
	ErrEventNotFound = errors.New("event not found in receipt")

	// ErrUnknownEvent means the event is not declared in the ABI.
	ErrUnknownEvent = errors.New("unknown event")
)

// IDExtractor decodes the identifier argument of contract events.
type IDExtractor struct {
	abi      abi.ABI
	contract common.Address // zero matches any emitter
}

// NewIDExtractor parses abiJSON. An empty string uses DefaultEventsABI.
func NewIDExtractor(abiJSON string, contract common.Address) (*IDExtractor, error) {
	if abiJSON == "" {
		abiJSON = DefaultEventsABI
	}
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("parse abi: %w", err)
	}
	return &IDExtractor{abi: parsed, contract: contract}, nil
}

// Events lists the declared event names.
func (x *IDExtractor) Events() []string {
	names := make([]string, 0, len(x.abi.Events))
	for name := range x.abi.Events {
		names = append(names, name)
	}
	return names
}

// ExtractID returns the first argument of the first log in receipt that
// matches event.
func (x *IDExtractor) ExtractID(receipt *types.Receipt, event string) (*big.Int, error) {
	ev, ok := x.abi.Events[event]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, event)
	}
	if len(ev.Inputs) == 0 {
		return nil, fmt.Errorf("event %s has no arguments", event)
	}

	for _, lg := range receipt.Logs {
		if len(lg.Topics) == 0 || lg.Topics[0] != ev.ID {
			continue
		}
		if x.contract != (common.Address{}) && lg.Address != x.contract {
			continue
		}
		return decodeFirst(ev, lg)
	}
	return nil, fmt.Errorf("%w: %s", ErrEventNotFound, event)
}

func decodeFirst(ev abi.Event, lg *types.Log) (*big.Int, error) {
	first := ev.Inputs[0]
	if first.Indexed {
		if len(lg.Topics) < 2 {
			return nil, fmt.Errorf("event %s: missing indexed topic", ev.Name)
		}
		return new(big.Int).SetBytes(lg.Topics[1].Bytes()), nil
	}

	values, err := ev.Inputs.NonIndexed().Unpack(lg.Data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", ev.Name, err)
	}
	id, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("event %s: first argument is %T, not an integer", ev.Name, values[0])
	}
	return id, nil
}
