package ledger

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var contract = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")

func creationLog(t *testing.T, x *IDExtractor, id int64, emitter common.Address) *types.Log {
	t.Helper()
	ev := x.abi.Events["ProveedorCreado"]
	data, err := ev.Inputs.NonIndexed().Pack("Acme", "General", common.HexToAddress("0x01"))
	require.NoError(t, err)
	return &types.Log{
		Address: emitter,
		Topics:  []common.Hash{ev.ID, common.BigToHash(big.NewInt(id))},
		Data:    data,
	}
}

func TestExtractID_Indexed(t *testing.T) {
	x, err := NewIDExtractor("", contract)
	require.NoError(t, err)

	receipt := &types.Receipt{Logs: []*types.Log{
		{Address: contract, Topics: []common.Hash{common.HexToHash("0xfeed")}},
		creationLog(t, x, 7, contract),
	}}

	id, err := x.ExtractID(receipt, "ProveedorCreado")
	require.NoError(t, err)
	assert.Equal(t, int64(7), id.Int64())
}

func TestExtractID_OtherContractIgnored(t *testing.T) {
	x, err := NewIDExtractor("", contract)
	require.NoError(t, err)

	receipt := &types.Receipt{Logs: []*types.Log{creationLog(t, x, 7, common.HexToAddress("0xbad"))}}
	_, err = x.ExtractID(receipt, "ProveedorCreado")
	assert.True(t, errors.Is(err, ErrEventNotFound))
}

func TestExtractID_NonIndexed(t *testing.T) {
	const abiJSON = `[{"type":"event","name":"Created","inputs":[
		{"name":"id","type":"uint256","indexed":false},
		{"name":"owner","type":"address","indexed":true}]}]`
	x, err := NewIDExtractor(abiJSON, common.Address{})
	require.NoError(t, err)

	ev := x.abi.Events["Created"]
	data, err := ev.Inputs.NonIndexed().Pack(big.NewInt(99))
	require.NoError(t, err)

	receipt := &types.Receipt{Logs: []*types.Log{{
		Topics: []common.Hash{ev.ID, common.BytesToHash(common.HexToAddress("0x02").Bytes())},
		Data:   data,
	}}}

	id, err := x.ExtractID(receipt, "Created")
	require.NoError(t, err)
	assert.Equal(t, int64(99), id.Int64())
}

func TestExtractID_UnknownEvent(t *testing.T) {
	x, err := NewIDExtractor("", common.Address{})
	require.NoError(t, err)
	_, err = x.ExtractID(&types.Receipt{}, "Nope")
	assert.True(t, errors.Is(err, ErrUnknownEvent))
	assert.Len(t, x.Events(), 3)
}

func TestNewIDExtractor_BadABI(t *testing.T) {
	_, err := NewIDExtractor("{", common.Address{})
	assert.Error(t, err)
}
