package wallet

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/tarancss/custody/lib/metrics"
	"github.com/tarancss/custody/lib/store"
	"github.com/tarancss/custody/lib/util"
)

// phraseDigest shortens a recovery phrase below the bcrypt input limit of 72 bytes.
func phraseDigest(phrase string) []byte {
	sum := sha256.Sum256([]byte(phrase))

	return []byte(hex.EncodeToString(sum[:]))
}

// CreateWallet creates the custodial wallet of owner. It fails with ErrConflict when owner already has an active
// wallet. Registering the address for notifications and seeding its balance are best effort.
func (w *Wallet) CreateWallet(ctx context.Context, owner string) (store.Wallet, error) {
	if owner == "" {
		return store.Wallet{}, ErrNoOwner
	}

	_, err := w.db.ActiveWallet(ctx, owner, false)
	if err == nil {
		return store.Wallet{}, ErrConflict
	}

	if !errors.Is(err, store.ErrNotFound) {
		return store.Wallet{}, err
	}

	cctx, cancel := w.call(ctx)
	kp, err := w.signer.CreateWallet(cctx)
	cancel()

	if err != nil {
		return store.Wallet{}, upstream(err)
	}

	address := util.Normalize(kp.Address)
	log := w.log.With(zap.String("owner", owner), zap.String("address", address))

	cctx, cancel = w.call(ctx)
	ok, err := w.signer.Register(cctx, address)
	cancel()

	if err != nil || !ok {
		log.Warn("cannot register address for notifications", zap.Error(err))
	}

	hash, err := bcrypt.GenerateFromPassword(phraseDigest(kp.Mnemonic), bcrypt.DefaultCost)
	if err != nil {
		return store.Wallet{}, err
	}

	wa := store.Wallet{
		Address:      address,
		PrivateKey:   kp.PrivateKey,
		MnemonicHash: string(hash),
		Balance:      "0",
		Network:      w.conf.Network,
		Owner:        owner,
	}

	if err = w.db.InsertWallet(ctx, &wa); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return store.Wallet{}, ErrConflict
		}

		return store.Wallet{}, err
	}

	metrics.WalletsCreated.Inc()
	log.Info("wallet created")

	if bal, err := w.refresh(ctx, address, true); err != nil {
		log.Warn("cannot seed wallet balance", zap.Error(err))
	} else {
		wa.Balance = bal.String()
	}

	wa.PrivateKey = ""

	return wa, nil
}

// DeactivateWallet soft deletes the active wallet of owner, who may then create a new one.
func (w *Wallet) DeactivateWallet(ctx context.Context, owner string) error {
	if owner == "" {
		return ErrNoOwner
	}

	if err := w.db.DeactivateWallet(ctx, owner); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}

		return err
	}

	w.log.Info("wallet deactivated", zap.String("owner", owner))

	return nil
}

// VerifyPhrase reports whether phrase is the recovery phrase of the active wallet of owner.
func (w *Wallet) VerifyPhrase(ctx context.Context, owner, phrase string) (bool, error) {
	wa, err := w.activeWallet(ctx, owner, false)
	if err != nil {
		return false, err
	}

	if phrase == "" || wa.MnemonicHash == "" {
		return false, nil
	}

	return bcrypt.CompareHashAndPassword([]byte(wa.MnemonicHash), phraseDigest(phrase)) == nil, nil
}

// activeWallet returns the active wallet of owner or ErrNotFound.
func (w *Wallet) activeWallet(ctx context.Context, owner string, withKey bool) (store.Wallet, error) {
	if owner == "" {
		return store.Wallet{}, ErrNoOwner
	}

	wa, err := w.db.ActiveWallet(ctx, owner, withKey)
	if errors.Is(err, store.ErrNotFound) {
		return wa, ErrNotFound
	}

	return wa, err
}
