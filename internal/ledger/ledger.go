// Package ledger stores accounts and applies instructions to them inside
// all-or-nothing transactions.
package ledger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/xtrntr/auctionhouse/internal/errcode"
	"github.com/xtrntr/auctionhouse/internal/models"
)

// ErrAccountNotFound is returned by Tx.Get for an address with no account.
var ErrAccountNotFound = errors.New("account not found")

// ErrReceiptNotFound is returned by Tx.Receipt for an unknown sequence.
var ErrReceiptNotFound = errors.New("receipt not found")

// MaxLamports is the largest balance any account may hold. It is bounded by
// the signed 64 bit column of the PostgreSQL store so that every Store
// accepts the same range; credits beyond it fail with NumericalOverflow.
const MaxLamports uint64 = math.MaxInt64

// Account is the state held at an address. Lamports never exceeds
// MaxLamports.
type Account struct {
	Lamports uint64
	Owner    solana.PublicKey
	Data     []byte
}

// Clone returns a deep copy of a.
func (a *Account) Clone() *Account {
	c := *a
	c.Data = append([]byte(nil), a.Data...)
	return &c
}

// Tx is a unit of work. Writes become visible to other transactions only
// when the enclosing Update returns nil.
type Tx interface {
	Get(addr solana.PublicKey) (*Account, error)
	Put(addr solana.PublicKey, acct *Account) error
	Delete(addr solana.PublicKey) error
	AppendReceipt(r *models.PurchaseReceipt) (uint64, error)
	Receipt(seq uint64) (*models.PurchaseReceipt, error)
}

// Store is a transactional account store.
type Store interface {
	// Update runs fn in a read-write transaction. Any error returned by fn
	// discards every write made by fn.
	Update(ctx context.Context, fn func(tx Tx) error) error
	// View runs fn in a read-only transaction.
	View(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}

func encodeAccount(a *Account) ([]byte, error) {
	var buf bytes.Buffer
	if err := bin.NewBorshEncoder(&buf).Encode(a); err != nil {
		return nil, fmt.Errorf("failed to encode account: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeAccount(b []byte) (*Account, error) {
	var a Account
	if err := bin.NewBorshDecoder(b).Decode(&a); err != nil {
		return nil, fmt.Errorf("failed to decode account: %w", err)
	}
	return &a, nil
}

func encodeReceipt(r *models.PurchaseReceipt) ([]byte, error) {
	return models.Marshal(r)
}

func decodeReceipt(b []byte) (*models.PurchaseReceipt, error) {
	var r models.PurchaseReceipt
	if err := models.Unmarshal(b, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Exists reports whether an account lives at addr.
func Exists(tx Tx, addr solana.PublicKey) (bool, error) {
	_, err := tx.Get(addr)
	if errors.Is(err, ErrAccountNotFound) {
		return false, nil
	}
	return err == nil, err
}

// GetState loads the account at addr, checks it is owned by owner and
// decodes its data into v.
func GetState(tx Tx, addr, owner solana.PublicKey, v models.State) (*Account, error) {
	acct, err := tx.Get(addr)
	if errors.Is(err, ErrAccountNotFound) {
		return nil, errcode.AccountNotInitialized.Wrap("%s", addr)
	}
	if err != nil {
		return nil, err
	}
	if !acct.Owner.Equals(owner) {
		return nil, errcode.AccountOwnedByWrongProgram.Wrap("%s owned by %s", addr, acct.Owner)
	}
	if err := models.Unmarshal(acct.Data, v); err != nil {
		return nil, err
	}
	return acct, nil
}

// PutState encodes v into acct and stores it at addr.
func PutState(tx Tx, addr solana.PublicKey, acct *Account, v models.State) error {
	data, err := models.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", addr, err)
	}
	acct.Data = data
	return tx.Put(addr, acct)
}
