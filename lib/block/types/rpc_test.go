package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rawTx = `{"blockHash":"0xd44a255e40eee23bd90a54a792f7a35c175400958de22a9bbfe08a7b2c244ed6","blockNumber":"0x29bf9b",` +
	`"from":"0xf4cefc8d1afaa51d5a5e7f57d214b60429ca4378","gas":"0xff59","gasPrice":"0x98bca5a00",` +
	`"hash":"0x2ba030485e79b5a98275b45d940e6fdd07b40dea593ef3b2a69b0a02a68a5872","input":"0x","nonce":"0x0",` +
	`"to":"0x357dd3856d856197c1a000bbab4abcb97dfc92c4","transactionIndex":"0x1","value":"0x16345785d8a0000"}`

func TestRawTx(t *testing.T) {
	var r RawTx
	require.NoError(t, json.Unmarshal([]byte(rawTx), &r))

	tx := r.Trans()
	assert.Equal(t, "0x29bf9b", tx.Block)
	assert.Equal(t, "0.1", tx.Value)
	assert.Equal(t, uint64(0xff59), tx.Gas)
	assert.Equal(t, uint64(0x98bca5a00), tx.Price)
	assert.Equal(t, TrxSuccess, tx.Status)
	assert.Empty(t, tx.Data)

	tx.Apply(RawReceipt{Status: 0, BlockNumber: 0x29bf9b}, 0x29bf9d)
	assert.Equal(t, TrxFailed, tx.Status)
	assert.Equal(t, uint64(3), tx.Confirmations)
}

func TestRawTxPending(t *testing.T) {
	var r RawTx
	require.NoError(t, json.Unmarshal([]byte(`{"hash":"0x01","blockNumber":null,"from":"0xa","to":null,"input":"0x"}`), &r))

	tx := r.Trans()
	assert.Equal(t, TrxPending, tx.Status)
	assert.Empty(t, tx.Block)
	assert.Empty(t, tx.To)
	assert.Equal(t, "0", tx.Value)
}
