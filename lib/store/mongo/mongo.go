// Package mongo implements the store interface for MongoDB.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	mgo "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tarancss/custody/lib/store"
)

// Database and collection names.
const (
	Database  = "custody"
	Wallets   = "wallets"
	Transfers = "transfers"
	Audits    = "webhook_audits"
)

// Mongo implements a connection to a MongoDB database. Atomic requires a replica set or a sharded cluster.
type Mongo struct {
	c  *mgo.Client
	db *mgo.Database
}

// New returns a Mongo client connection to the specified MongoDB database uri and ensures the indexes backing the
// uniqueness rules of the store exist.
func New(uri string) (*Mongo, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second) //nolint:gomnd // 5 seconds timeout
	defer cancel()

	c, err := mgo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("cannot connect to mongo DB in %s: %w", uri, err)
	}

	m := &Mongo{c: c, db: c.Database(Database)}
	if err = m.indexes(ctx); err != nil {
		_ = c.Disconnect(context.Background())

		return nil, fmt.Errorf("error creating mongo DB indexes: %w", err)
	}

	return m, nil
}

func (m *Mongo) indexes(ctx context.Context) error {
	if _, err := m.db.Collection(Wallets).Indexes().CreateMany(ctx, []mgo.IndexModel{
		{Keys: bson.D{{Key: "address", Value: 1}}, Options: options.Index().SetUnique(true)},
		{
			// at most one wallet not deleted per owner
			Keys: bson.D{{Key: "owner", Value: 1}},
			Options: options.Index().SetUnique(true).
				SetPartialFilterExpression(bson.M{"deleted": false}).SetName("owner_active"),
		},
	}); err != nil {
		return err
	}

	_, err := m.db.Collection(Transfers).Indexes().CreateMany(ctx, []mgo.IndexModel{
		{Keys: bson.D{{Key: "hash", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: 1}}},
	})

	return err
}

// Close will close a database connection. Must be called at termination time.
func (m *Mongo) Close() error {
	return m.c.Disconnect(context.Background())
}

func notFound(err error) error {
	if errors.Is(err, mgo.ErrNoDocuments) {
		return store.ErrNotFound
	}

	return err
}

func duplicate(err error) error {
	if mgo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %w", store.ErrDuplicate, err)
	}

	return err
}

// ActiveWallet returns the wallet of owner that is not deleted. The private key is only loaded when withKey is set.
func (m *Mongo) ActiveWallet(ctx context.Context, owner string, withKey bool) (store.Wallet, error) {
	var w store.Wallet

	opts := options.FindOne()
	if !withKey {
		opts.SetProjection(bson.M{"privateKey": 0})
	}

	err := m.db.Collection(Wallets).FindOne(ctx, bson.M{"owner": owner, "deleted": false}, opts).Decode(&w)

	return w, notFound(err)
}

// WalletByAddress returns the wallet holding address, without its private key.
func (m *Mongo) WalletByAddress(ctx context.Context, address string) (store.Wallet, error) {
	var w store.Wallet

	opts := options.FindOne().SetProjection(bson.M{"privateKey": 0})
	err := m.db.Collection(Wallets).FindOne(ctx, bson.M{"address": address}, opts).Decode(&w)

	return w, notFound(err)
}

// InsertWallet saves w.
func (m *Mongo) InsertWallet(ctx context.Context, w *store.Wallet) error {
	w.Init(time.Now().UTC())

	_, err := m.db.Collection(Wallets).InsertOne(ctx, w)

	return duplicate(err)
}

// DeactivateWallet soft deletes the active wallet of owner.
func (m *Mongo) DeactivateWallet(ctx context.Context, owner string) error {
	res, err := m.db.Collection(Wallets).UpdateOne(ctx,
		bson.M{"owner": owner, "deleted": false},
		bson.M{"$set": bson.M{"deleted": true, "updatedAt": time.Now().UTC()}})
	if err != nil {
		return err
	}

	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}

	return nil
}

// SetBalance updates the cached balance of the wallet holding address.
func (m *Mongo) SetBalance(ctx context.Context, address, balance string) error {
	return setBalance(ctx, m.db, address, balance)
}

func setBalance(ctx context.Context, db *mgo.Database, address, balance string) error {
	res, err := db.Collection(Wallets).UpdateOne(ctx,
		bson.M{"address": address},
		bson.M{"$set": bson.M{"balance": balance, "updatedAt": time.Now().UTC()}})
	if err != nil {
		return err
	}

	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}

	return nil
}

func insertTransfer(ctx context.Context, db *mgo.Database, r *store.TransferRecord) error {
	r.Init(time.Now().UTC())

	_, err := db.Collection(Transfers).InsertOne(ctx, r)

	return duplicate(err)
}

// Transfer returns the transfer record with the given hash.
func (m *Mongo) Transfer(ctx context.Context, hash string) (store.TransferRecord, error) {
	var r store.TransferRecord

	err := m.db.Collection(Transfers).FindOne(ctx, bson.M{"hash": hash}).Decode(&r)

	return r, notFound(err)
}

// PendingTransfers returns up to limit pending records, oldest first.
func (m *Mongo) PendingTransfers(ctx context.Context, limit int) ([]store.TransferRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cur, err := m.db.Collection(Transfers).Find(ctx, bson.M{"status": store.StatusPending}, opts)
	if err != nil {
		return nil, err
	}

	var rs []store.TransferRecord
	if err = cur.All(ctx, &rs); err != nil {
		return nil, err
	}

	return rs, nil
}

// SetTransferStatus moves the record hash from status from to status to.
func (m *Mongo) SetTransferStatus(ctx context.Context, hash string, from, to store.Status) (bool, error) {
	res, err := m.db.Collection(Transfers).UpdateOne(ctx,
		bson.M{"hash": hash, "status": from},
		bson.M{"$set": bson.M{"status": to, "updatedAt": time.Now().UTC()}})
	if err != nil {
		return false, err
	}

	return res.ModifiedCount == 1, nil
}

// InsertWebhookAudit appends a to the audit trail.
func (m *Mongo) InsertWebhookAudit(ctx context.Context, a *store.WebhookAudit) error {
	a.Init(time.Now().UTC())

	_, err := m.db.Collection(Audits).InsertOne(ctx, a)

	return err
}

// Atomic runs fn within a session transaction. The driver retries fn on transient transaction errors.
func (m *Mongo) Atomic(ctx context.Context, fn func(context.Context, store.Tx) error) error {
	session, err := m.c.StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mgo.SessionContext) (interface{}, error) {
		return nil, fn(sc, tx{m.db})
	})

	return err
}

// tx writes within the session carried by its context.
type tx struct {
	db *mgo.Database
}

func (t tx) SetBalance(ctx context.Context, address, balance string) error {
	return setBalance(ctx, t.db, address, balance)
}

func (t tx) InsertTransfer(ctx context.Context, r *store.TransferRecord) error {
	return insertTransfer(ctx, t.db, r)
}
