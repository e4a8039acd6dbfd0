package ledger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/decred/slog"
	"github.com/dgraph-io/badger/v4"
	"github.com/gagliardetto/solana-go"

	"github.com/xtrntr/auctionhouse/internal/models"
)

var (
	accountPrefix = []byte("a:")
	receiptPrefix = []byte("r:")
	receiptSeqKey = []byte("m:receipt_seq")
)

// BadgerStore is the embedded Store.
type BadgerStore struct {
	db *badger.DB
}

// BadgerConfig configures OpenBadger. An empty Path opens an in-memory
// store.
type BadgerConfig struct {
	Path string
	Log  slog.Logger
}

// OpenBadger opens or creates a badger backed store.
func OpenBadger(cfg *BadgerConfig) (*BadgerStore, error) {
	logger := cfg.Log
	if logger == nil {
		logger = slog.Disabled
	}
	opts := badger.DefaultOptions(cfg.Path).WithLogger(&badgerLoggerWrapper{logger})
	if cfg.Path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// Update runs fn in a read-write transaction. Badger reports ErrConflict when
// another transaction committed a write to a key this one read; the
// transaction is then retried from scratch so fn observes the new state.
func (s *BadgerStore) Update(ctx context.Context, fn func(tx Tx) error) (err error) {
	const maxRetries = 10
	sleepTime := 5 * time.Millisecond

	for i := 0; i < maxRetries; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err = s.db.Update(func(txn *badger.Txn) error {
			return fn(&badgerTx{txn: txn})
		})
		if err == nil || !errors.Is(err, badger.ErrConflict) {
			return err
		}
		log.Debugf("Transaction conflict, retrying (attempt %d)", i+1)
		sleepTime *= 2
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleepTime):
		}
	}
	return err
}

// View runs fn in a read-only transaction.
func (s *BadgerStore) View(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(txn *badger.Txn) error {
		return fn(&badgerTx{txn: txn})
	})
}

type badgerTx struct {
	txn *badger.Txn
}

func accountKey(addr solana.PublicKey) []byte {
	return append(append([]byte{}, accountPrefix...), addr.Bytes()...)
}

func receiptKey(seq uint64) []byte {
	k := append([]byte{}, receiptPrefix...)
	return binary.BigEndian.AppendUint64(k, seq)
}

func (t *badgerTx) Get(addr solana.PublicKey) (*Account, error) {
	item, err := t.txn.Get(accountKey(addr))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account %s: %w", addr, err)
	}
	var acct *Account
	err = item.Value(func(v []byte) error {
		acct, err = decodeAccount(v)
		return err
	})
	return acct, err
}

func (t *badgerTx) Put(addr solana.PublicKey, acct *Account) error {
	b, err := encodeAccount(acct)
	if err != nil {
		return err
	}
	if err := t.txn.Set(accountKey(addr), b); err != nil {
		return fmt.Errorf("failed to put account %s: %w", addr, err)
	}
	return nil
}

func (t *badgerTx) Delete(addr solana.PublicKey) error {
	if err := t.txn.Delete(accountKey(addr)); err != nil {
		return fmt.Errorf("failed to delete account %s: %w", addr, err)
	}
	return nil
}

func (t *badgerTx) AppendReceipt(r *models.PurchaseReceipt) (uint64, error) {
	var seq uint64
	item, err := t.txn.Get(receiptSeqKey)
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
	case err != nil:
		return 0, fmt.Errorf("failed to read receipt sequence: %w", err)
	default:
		err = item.Value(func(v []byte) error {
			seq = binary.BigEndian.Uint64(v)
			return nil
		})
		if err != nil {
			return 0, err
		}
	}
	seq++

	b, err := encodeReceipt(r)
	if err != nil {
		return 0, err
	}
	if err := t.txn.Set(receiptKey(seq), b); err != nil {
		return 0, fmt.Errorf("failed to append receipt: %w", err)
	}
	if err := t.txn.Set(receiptSeqKey, binary.BigEndian.AppendUint64(nil, seq)); err != nil {
		return 0, fmt.Errorf("failed to bump receipt sequence: %w", err)
	}
	return seq, nil
}

func (t *badgerTx) Receipt(seq uint64) (*models.PurchaseReceipt, error) {
	item, err := t.txn.Get(receiptKey(seq))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrReceiptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get receipt %d: %w", seq, err)
	}
	var r *models.PurchaseReceipt
	err = item.Value(func(v []byte) error {
		r, err = decodeReceipt(v)
		return err
	})
	return r, err
}
