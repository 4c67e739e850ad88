package wallet

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tarancss/custody/lib/block/types"
	"github.com/tarancss/custody/lib/util"
)

// Paging defaults.
const (
	DefaultPage     = 1
	DefaultPageSize = 10
	MaxPageSize     = 100
	enrichWorkers   = 4
)

// ListHistory returns the transaction history of address.
//
// Providers with an address indexed listing are asked for the given page and their items carry the page metadata.
// Otherwise sent and received transfers are fetched concurrently, merged most recent block first and cut to the
// configured limit; page and pageSize do not apply. Merged items are enriched with their receipt status and block
// time when available, falling back to "Confirmed" and the current time.
func (w *Wallet) ListHistory(ctx context.Context, address string, page, pageSize int) ([]types.HistoryItem, error) {
	if !util.IsAddress(address) {
		return nil, ErrInvalidAddress
	}

	if page < 1 {
		page = DefaultPage
	}

	if pageSize < 1 {
		pageSize = DefaultPageSize
	} else if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	cctx, cancel := w.call(ctx)
	items, err := w.indexer.History(cctx, address, page, pageSize)
	cancel()

	switch {
	case err == nil:
		return items, nil
	case !errors.Is(err, types.ErrNotImplemented):
		return nil, upstream(err)
	}

	transfers, err := w.transfers(ctx, address)
	if err != nil {
		return nil, err
	}

	items = make([]types.HistoryItem, len(transfers))
	for i, t := range transfers {
		items[i] = historyItem(t)
	}

	w.enrich(ctx, items)

	return items, nil
}

// OwnerHistory returns the transaction history of the active wallet of owner.
func (w *Wallet) OwnerHistory(ctx context.Context, owner string, page, pageSize int) ([]types.HistoryItem, error) {
	wa, err := w.activeWallet(ctx, owner, false)
	if err != nil {
		return nil, err
	}

	return w.ListHistory(ctx, wa.Address, page, pageSize)
}

// transfers fetches the sent and received transfers of address and returns the most recent ones.
func (w *Wallet) transfers(ctx context.Context, address string) ([]types.Transfer, error) {
	cctx, cancel := w.call(ctx)
	defer cancel()

	var sent, received []types.Transfer

	g, gctx := errgroup.WithContext(cctx)
	g.Go(func() (err error) {
		sent, err = w.indexer.Transfers(gctx, address, types.Sent)

		return err
	})
	g.Go(func() (err error) {
		received, err = w.indexer.Transfers(gctx, address, types.Received)

		return err
	})

	if err := g.Wait(); err != nil {
		return nil, upstream(err)
	}

	return MergeTransfers(sent, received, w.conf.HistoryLimit), nil
}

// MergeTransfers concatenates lists and sorts the result by block number, most recent first, keeping the original
// order of equal blocks. Missing or unparsable block numbers count as 0. At most limit transfers are returned.
func MergeTransfers(sent, received []types.Transfer, limit int) []types.Transfer {
	all := make([]types.Transfer, 0, len(sent)+len(received))
	all = append(all, sent...)
	all = append(all, received...)

	sort.SliceStable(all, func(i, j int) bool {
		a, _ := util.ParseBlock(all[i].BlockNum)
		b, _ := util.ParseBlock(all[j].BlockNum)

		return a > b
	})

	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}

	return all
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}

	return s
}

func historyItem(t types.Transfer) types.HistoryItem {
	return types.HistoryItem{
		Kind:        types.KindTransfer,
		Hash:        orDefault(t.Hash, types.Unknown),
		From:        orDefault(t.From, types.Unknown),
		To:          orDefault(t.To, types.Unknown),
		Value:       orDefault(t.Value, "0"),
		BlockNumber: t.BlockNum,
		Status:      types.StatusConfirmed,
		Timestamp:   time.Now().UTC(),
		Asset:       orDefault(t.Asset, types.NativeAsset),
		Category:    t.Category,
	}
}

// enrich sets the receipt status and block time of items. Lookups that fail leave the defaults in place.
func (w *Wallet) enrich(ctx context.Context, items []types.HistoryItem) {
	var g errgroup.Group
	g.SetLimit(enrichWorkers)

	for i := range items {
		it := &items[i]
		if it.Hash == types.Unknown {
			continue
		}

		g.Go(func() error {
			cctx, cancel := w.call(ctx)
			defer cancel()

			rc, err := w.indexer.Receipt(cctx, it.Hash)
			if err != nil {
				w.log.Debug("cannot get receipt", zap.String("hash", it.Hash), zap.Error(err))

				return nil
			}

			if rc.Status != types.ReceiptSuccess {
				it.Status = types.StatusFailed
			}

			if it.BlockNumber == "" {
				return nil
			}

			if ts, err := w.indexer.BlockTime(cctx, it.BlockNumber); err == nil {
				it.Timestamp = ts
			} else {
				w.log.Debug("cannot get block time", zap.String("block", it.BlockNumber), zap.Error(err))
			}

			return nil
		})
	}

	_ = g.Wait()
}
