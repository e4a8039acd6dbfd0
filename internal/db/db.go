// Package db is the PostgreSQL backend: a ledger.Store over the accounts
// and purchase_receipts tables, plus the API operator accounts.
package db

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xtrntr/auctionhouse/internal/ledger"
	"github.com/xtrntr/auctionhouse/internal/models"
)

// ErrUserNotFound is returned when no user has the requested username.
var ErrUserNotFound = errors.New("user not found")

// DB wraps a PostgreSQL connection pool
type DB struct {
	Pool *pgxpool.Pool
}

var _ ledger.Store = (*DB)(nil)

// NewDB initializes a new database connection pool
func NewDB(ctx context.Context, connString string) (*DB, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close closes the database connection pool
func (db *DB) Close() error {
	db.Pool.Close()
	return nil
}

// CreateUser inserts a new user
func (db *DB) CreateUser(ctx context.Context, username, passwordHash string, wallet solana.PublicKey) (*models.User, error) {
	user := &models.User{}
	var w string
	err := db.Pool.QueryRow(ctx,
		"INSERT INTO users (username, password_hash, wallet) VALUES ($1, $2, $3) RETURNING id, username, password_hash, wallet, created_at",
		username, passwordHash, wallet.String()).Scan(&user.ID, &user.Username, &user.PasswordHash, &w, &user.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	if user.Wallet, err = solana.PublicKeyFromBase58(w); err != nil {
		return nil, fmt.Errorf("invalid wallet for user %s: %w", username, err)
	}
	return user, nil
}

// GetUserByUsername retrieves a user by username
func (db *DB) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	user := &models.User{}
	var w string
	err := db.Pool.QueryRow(ctx,
		"SELECT id, username, password_hash, wallet, created_at FROM users WHERE username = $1",
		username).Scan(&user.ID, &user.Username, &user.PasswordHash, &w, &user.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user.Wallet, err = solana.PublicKeyFromBase58(w); err != nil {
		return nil, fmt.Errorf("invalid wallet for user %s: %w", username, err)
	}
	return user, nil
}

// retryable reports whether the transaction lost a serialization race and
// may be replayed.
func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	// serialization_failure, deadlock_detected
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

// Update runs fn in a serializable transaction. Accounts read through the
// transaction are locked until it ends; a transaction that loses a
// serialization race is replayed from scratch.
func (db *DB) Update(ctx context.Context, fn func(tx ledger.Tx) error) (err error) {
	const maxRetries = 10
	sleepTime := 5 * time.Millisecond

	for i := 0; i < maxRetries; i++ {
		err = db.runTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable}, false, fn)
		if err == nil || !retryable(err) {
			return err
		}
		log.Debugf("Serialization failure, retrying (attempt %d)", i+1)
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
func (db *DB) View(ctx context.Context, fn func(tx ledger.Tx) error) error {
	return db.runTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly}, true, fn)
}

func (db *DB) runTx(ctx context.Context, opts pgx.TxOptions, readOnly bool, fn func(tx ledger.Tx) error) error {
	tx, err := db.Pool.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{ctx: ctx, tx: tx, readOnly: readOnly}); err != nil {
		return err
	}
	if readOnly {
		return nil
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type pgTx struct {
	ctx      context.Context
	tx       pgx.Tx
	readOnly bool
}

func (t *pgTx) Get(addr solana.PublicKey) (*ledger.Account, error) {
	q := "SELECT lamports, owner, data FROM accounts WHERE address = $1"
	if !t.readOnly {
		// Lock the row for update to prevent concurrent modifications
		q += " FOR UPDATE"
	}
	var (
		lamports int64
		owner    []byte
		data     []byte
	)
	err := t.tx.QueryRow(t.ctx, q, addr.Bytes()).Scan(&lamports, &owner, &data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ledger.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account %s: %w", addr, err)
	}
	if len(owner) != solana.PublicKeyLength {
		return nil, fmt.Errorf("account %s has a malformed owner", addr)
	}
	return &ledger.Account{
		Lamports: uint64(lamports),
		Owner:    solana.PublicKeyFromBytes(owner),
		Data:     data,
	}, nil
}

func (t *pgTx) Put(addr solana.PublicKey, acct *ledger.Account) error {
	if acct.Lamports > ledger.MaxLamports {
		return fmt.Errorf("account %s balance %d exceeds storable range", addr, acct.Lamports)
	}
	data := acct.Data
	if data == nil {
		data = []byte{}
	}
	_, err := t.tx.Exec(t.ctx, `
		INSERT INTO accounts (address, lamports, owner, data) VALUES ($1, $2, $3, $4)
		ON CONFLICT (address) DO UPDATE SET lamports = EXCLUDED.lamports, owner = EXCLUDED.owner, data = EXCLUDED.data
	`, addr.Bytes(), int64(acct.Lamports), acct.Owner.Bytes(), data)
	if err != nil {
		return fmt.Errorf("failed to put account %s: %w", addr, err)
	}
	return nil
}

func (t *pgTx) Delete(addr solana.PublicKey) error {
	if _, err := t.tx.Exec(t.ctx, "DELETE FROM accounts WHERE address = $1", addr.Bytes()); err != nil {
		return fmt.Errorf("failed to delete account %s: %w", addr, err)
	}
	return nil
}

func (t *pgTx) AppendReceipt(r *models.PurchaseReceipt) (uint64, error) {
	b, err := models.Marshal(r)
	if err != nil {
		return 0, err
	}
	var seq int64
	if err := t.tx.QueryRow(t.ctx, "INSERT INTO purchase_receipts (data) VALUES ($1) RETURNING seq", b).Scan(&seq); err != nil {
		return 0, fmt.Errorf("failed to append receipt: %w", err)
	}
	return uint64(seq), nil
}

func (t *pgTx) Receipt(seq uint64) (*models.PurchaseReceipt, error) {
	if seq > math.MaxInt64 {
		return nil, ledger.ErrReceiptNotFound
	}
	var b []byte
	err := t.tx.QueryRow(t.ctx, "SELECT data FROM purchase_receipts WHERE seq = $1", int64(seq)).Scan(&b)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ledger.ErrReceiptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get receipt %d: %w", seq, err)
	}
	var r models.PurchaseReceipt
	if err := models.Unmarshal(b, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
