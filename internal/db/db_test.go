package db

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xtrntr/auctionhouse/internal/errcode"
	"github.com/xtrntr/auctionhouse/internal/ledger"
	"github.com/xtrntr/auctionhouse/internal/models"
)

// testDB is nil unless AUCTIONHOUSE_TEST_PG names a reachable database.
var testDB *DB

func TestMain(m *testing.M) {
	connString := os.Getenv("AUCTIONHOUSE_TEST_PG")
	if connString == "" {
		os.Exit(m.Run())
	}

	pool, err := pgxpool.New(context.Background(), connString)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Apply migration if not already applied
	migration, err := os.ReadFile("../../migrations/001_init.sql")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to read migration: %v\n", err)
		os.Exit(1)
	}
	_, err = pool.Exec(context.Background(), string(migration))
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		fmt.Fprintf(os.Stderr, "Unable to apply migration: %v\n", err)
		os.Exit(1)
	}

	testDB = &DB{Pool: pool}
	os.Exit(m.Run())
}

func reset(t *testing.T) {
	t.Helper()
	if testDB == nil {
		t.Skip("AUCTIONHOUSE_TEST_PG not set")
	}
	_, err := testDB.Pool.Exec(context.Background(), "TRUNCATE TABLE users, accounts, purchase_receipts RESTART IDENTITY")
	if err != nil {
		t.Fatalf("Failed to clean up database: %v", err)
	}
}

func TestDB_Users(t *testing.T) {
	reset(t)
	ctx := context.Background()
	wallet := solana.NewWallet().PublicKey()

	user, err := testDB.CreateUser(ctx, "alice", "hash", wallet)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.ID != 1 || !user.Wallet.Equals(wallet) {
		t.Errorf("unexpected user %+v", user)
	}

	if _, err := testDB.CreateUser(ctx, "alice", "hash", wallet); err == nil {
		t.Errorf("expected duplicate username to fail")
	}

	got, err := testDB.GetUserByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.PasswordHash != "hash" || !got.Wallet.Equals(wallet) {
		t.Errorf("unexpected user %+v", got)
	}

	if _, err := testDB.GetUserByUsername(ctx, "bob"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}

func TestDB_Accounts(t *testing.T) {
	reset(t)
	ctx := context.Background()
	a := solana.NewWallet().PublicKey()
	b := solana.NewWallet().PublicKey()

	err := testDB.Update(ctx, func(tx ledger.Tx) error {
		if err := ledger.Airdrop(tx, a, 1_000); err != nil {
			return err
		}
		return ledger.CreateAccount(tx, a, b, 400, solana.TokenProgramID, []byte{1, 2, 3})
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err = testDB.View(ctx, func(tx ledger.Tx) error {
		acct, err := tx.Get(b)
		if err != nil {
			return err
		}
		if acct.Lamports != 400 || !acct.Owner.Equals(solana.TokenProgramID) || string(acct.Data) != "\x01\x02\x03" {
			t.Errorf("unexpected account %+v", acct)
		}
		bal, err := ledger.Lamports(tx, a)
		if err != nil {
			return err
		}
		if bal != 600 {
			t.Errorf("expected 600 lamports, got %d", bal)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A failing transaction leaves no trace.
	err = testDB.Update(ctx, func(tx ledger.Tx) error {
		if _, err := ledger.CloseAccount(tx, b, a); err != nil {
			return err
		}
		return ledger.TransferLamports(tx, a, b, 10_000)
	})
	if !errors.Is(err, errcode.InsufficientFunds) {
		t.Fatalf("expected InsufficientFunds, got %v", err)
	}
	err = testDB.View(ctx, func(tx ledger.Tx) error {
		_, err := tx.Get(b)
		return err
	})
	if err != nil {
		t.Errorf("account was closed by a rolled back transaction: %v", err)
	}
}

func TestDB_Receipts(t *testing.T) {
	reset(t)
	ctx := context.Background()

	var seqs []uint64
	for i := 0; i < 2; i++ {
		err := testDB.Update(ctx, func(tx ledger.Tx) error {
			seq, err := tx.AppendReceipt(&models.PurchaseReceipt{Price: uint64(i + 1), TokenSize: 1})
			seqs = append(seqs, seq)
			return err
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if seqs[0] != 1 || seqs[1] != 2 {
		t.Errorf("unexpected sequence %v", seqs)
	}

	err := testDB.View(ctx, func(tx ledger.Tx) error {
		r, err := tx.Receipt(2)
		if err != nil {
			return err
		}
		if r.Price != 2 {
			t.Errorf("expected price 2, got %d", r.Price)
		}
		_, err = tx.Receipt(3)
		return err
	})
	if !errors.Is(err, ledger.ErrReceiptNotFound) {
		t.Errorf("expected ErrReceiptNotFound, got %v", err)
	}
}

func TestDB_Update_Concurrent(t *testing.T) {
	reset(t)
	ctx := context.Background()
	from := solana.NewWallet().PublicKey()
	if err := testDB.Update(ctx, func(tx ledger.Tx) error {
		return ledger.Airdrop(tx, from, 1_000)
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var wg sync.WaitGroup
	n := 10
	wg.Add(n)
	successCount := 0
	mu := sync.Mutex{}

	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			to := solana.NewWallet().PublicKey()
			err := testDB.Update(ctx, func(tx ledger.Tx) error {
				return ledger.TransferLamports(tx, from, to, 1_000)
			})
			if err == nil {
				mu.Lock()
				successCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if successCount != 1 {
		t.Errorf("expected exactly 1 successful drain, got %d", successCount)
	}
}

func TestDB_MaxLamports(t *testing.T) {
	reset(t)
	ctx := context.Background()
	whale := solana.NewWallet().PublicKey()

	err := testDB.Update(ctx, func(tx ledger.Tx) error {
		return ledger.Airdrop(tx, whale, ledger.MaxLamports)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err = testDB.Update(ctx, func(tx ledger.Tx) error {
		return ledger.Airdrop(tx, whale, 1)
	})
	if !errors.Is(err, errcode.NumericalOverflow) {
		t.Errorf("expected NumericalOverflow, got %v", err)
	}
	err = testDB.View(ctx, func(tx ledger.Tx) error {
		bal, err := ledger.Lamports(tx, whale)
		if err != nil {
			return err
		}
		if bal != ledger.MaxLamports {
			t.Errorf("expected %d lamports, got %d", ledger.MaxLamports, bal)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
