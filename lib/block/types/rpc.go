package types

import (
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/tarancss/custody/lib/util"
)

// RawTx is a transaction object as returned by eth_getTransactionByHash. BlockNumber is nil while pending.
type RawTx struct {
	Hash        string          `json:"hash"`
	BlockNumber *hexutil.Uint64 `json:"blockNumber"`
	From        string          `json:"from"`
	To          *string         `json:"to"`
	Value       *hexutil.Big    `json:"value"`
	Gas         hexutil.Uint64  `json:"gas"`
	GasPrice    *hexutil.Big    `json:"gasPrice"`
	Input       string          `json:"input"`
}

// RawReceipt holds the receipt fields used from eth_getTransactionReceipt.
type RawReceipt struct {
	Status      hexutil.Uint64 `json:"status"`
	BlockNumber hexutil.Uint64 `json:"blockNumber"`
}

// RawBlock holds the header fields used from eth_getBlockByNumber.
type RawBlock struct {
	Number    hexutil.Uint64 `json:"number"`
	Timestamp hexutil.Uint64 `json:"timestamp"`
}

// Trans converts a raw transaction. Mined transactions are reported as successful until a receipt says otherwise.
func (r *RawTx) Trans() *Trans {
	t := &Trans{
		Hash:   r.Hash,
		From:   r.From,
		Value:  "0",
		Gas:    uint64(r.Gas),
		Status: TrxPending,
	}

	if r.To != nil {
		t.To = *r.To
	}

	if r.Value != nil {
		t.Value = util.FromWei(r.Value.ToInt()).String()
	}

	if r.GasPrice != nil {
		t.Price = r.GasPrice.ToInt().Uint64()
	}

	if r.Input != "0x" {
		t.Data = r.Input
	}

	if r.BlockNumber != nil {
		t.Block = hexutil.EncodeUint64(uint64(*r.BlockNumber))
		t.Status = TrxSuccess
	}

	return t
}

// Apply sets the status and confirmations of a mined transaction from its receipt and the chain head.
func (t *Trans) Apply(rc RawReceipt, head uint64) {
	if uint64(rc.Status) == ReceiptSuccess {
		t.Status = TrxSuccess
	} else {
		t.Status = TrxFailed
	}

	if blk := uint64(rc.BlockNumber); blk > 0 && head >= blk {
		t.Confirmations = head - blk + 1
	}
}
