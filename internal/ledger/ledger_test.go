package ledger

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtrntr/auctionhouse/internal/errcode"
	"github.com/xtrntr/auctionhouse/internal/models"
)

func newTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	s, err := OpenBadger(&BadgerConfig{})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBadgerStore_UpdateRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := solana.NewWallet().PublicKey()
	bob := solana.NewWallet().PublicKey()

	require.NoError(t, s.Update(ctx, func(tx Tx) error {
		return Airdrop(tx, alice, 1_000)
	}))

	boom := errors.New("boom")
	err := s.Update(ctx, func(tx Tx) error {
		if err := TransferLamports(tx, alice, bob, 400); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	require.NoError(t, s.View(ctx, func(tx Tx) error {
		a, err := Lamports(tx, alice)
		require.NoError(t, err)
		b, err := Lamports(tx, bob)
		require.NoError(t, err)
		assert.Equal(t, uint64(1_000), a)
		assert.Equal(t, uint64(0), b)
		return nil
	}))
}

func TestTransferLamports(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := solana.NewWallet().PublicKey()
	bob := solana.NewWallet().PublicKey()

	tests := []struct {
		name      string
		amount    uint64
		expectErr error
		wantAlice uint64
		wantBob   uint64
	}{
		{name: "Partial", amount: 300, wantAlice: 700, wantBob: 300},
		{name: "Overdraw", amount: 701, expectErr: errcode.InsufficientFunds, wantAlice: 700, wantBob: 300},
		{name: "Drain", amount: 700, wantAlice: 0, wantBob: 1_000},
	}

	require.NoError(t, s.Update(ctx, func(tx Tx) error { return Airdrop(tx, alice, 1_000) }))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Update(ctx, func(tx Tx) error { return TransferLamports(tx, alice, bob, tt.amount) })
			if tt.expectErr != nil {
				assert.ErrorIs(t, err, tt.expectErr)
			} else {
				require.NoError(t, err)
			}
			require.NoError(t, s.View(ctx, func(tx Tx) error {
				a, _ := Lamports(tx, alice)
				b, _ := Lamports(tx, bob)
				assert.Equal(t, tt.wantAlice, a)
				assert.Equal(t, tt.wantBob, b)
				return nil
			}))
		})
	}

	// A drained system account is reaped.
	require.NoError(t, s.View(ctx, func(tx Tx) error {
		ok, err := Exists(tx, alice)
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	}))
}

func TestTransferTokens_Delegate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	payer := solana.NewWallet().PublicKey()
	seller := solana.NewWallet().PublicKey()
	buyer := solana.NewWallet().PublicKey()
	delegate := solana.NewWallet().PublicKey()
	mint := solana.NewWallet().PublicKey()

	var src, dst solana.PublicKey
	require.NoError(t, s.Update(ctx, func(tx Tx) error {
		require.NoError(t, Airdrop(tx, payer, 10_000_000_000))
		require.NoError(t, CreateMint(tx, payer, mint, payer, 0))
		var err error
		src, _, err = EnsureAssociatedTokenAccount(tx, payer, seller, mint)
		require.NoError(t, err)
		dst, _, err = EnsureAssociatedTokenAccount(tx, payer, buyer, mint)
		require.NoError(t, err)
		require.NoError(t, MintTo(tx, mint, src, payer, 6))
		return Approve(tx, src, seller, delegate, 4)
	}))

	err := s.Update(ctx, func(tx Tx) error { return TransferTokens(tx, src, dst, buyer, 1) })
	assert.ErrorIs(t, err, errcode.OwnerMismatch)

	err = s.Update(ctx, func(tx Tx) error { return TransferTokens(tx, src, dst, delegate, 5) })
	assert.ErrorIs(t, err, errcode.InsufficientFunds)

	require.NoError(t, s.Update(ctx, func(tx Tx) error { return TransferTokens(tx, src, dst, delegate, 4) }))

	require.NoError(t, s.View(ctx, func(tx Tx) error {
		from, err := GetTokenAccount(tx, src)
		require.NoError(t, err)
		to, err := GetTokenAccount(tx, dst)
		require.NoError(t, err)
		assert.Equal(t, uint64(2), from.Amount)
		assert.False(t, from.HasDelegate())
		assert.Equal(t, uint64(4), to.Amount)
		return nil
	}))
}

func TestBadgerStore_Receipts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	buyer := solana.NewWallet().PublicKey()

	var first, second uint64
	require.NoError(t, s.Update(ctx, func(tx Tx) error {
		var err error
		first, err = tx.AppendReceipt(&models.PurchaseReceipt{Buyer: buyer, Price: 1})
		require.NoError(t, err)
		second, err = tx.AppendReceipt(&models.PurchaseReceipt{Buyer: buyer, Price: 2})
		return err
	}))
	assert.Equal(t, uint64(1), first)
	assert.Equal(t, uint64(2), second)

	require.NoError(t, s.View(ctx, func(tx Tx) error {
		r, err := tx.Receipt(second)
		require.NoError(t, err)
		assert.Equal(t, uint64(2), r.Price)
		_, err = tx.Receipt(3)
		assert.ErrorIs(t, err, ErrReceiptNotFound)
		return nil
	}))
}

func TestBadgerStore_ConcurrentUpdates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	pool := solana.NewWallet().PublicKey()
	sink := solana.NewWallet().PublicKey()

	require.NoError(t, s.Update(ctx, func(tx Tx) error { return Airdrop(tx, pool, 100) }))

	var wg sync.WaitGroup
	var ok atomic.Int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Update(ctx, func(tx Tx) error { return TransferLamports(tx, pool, sink, 60) }); err == nil {
				ok.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), ok.Load())
	require.NoError(t, s.View(ctx, func(tx Tx) error {
		b, _ := Lamports(tx, sink)
		assert.Equal(t, uint64(60), b)
		return nil
	}))
}

func TestBadgerStore_UpdateRetriesConflicts(t *testing.T) {
	s := newTestStore(t)

	var attempts int
	err := s.Update(context.Background(), func(tx Tx) error {
		attempts++
		if attempts == 1 {
			return badger.ErrConflict
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestBadgerStore_UpdateBackoffHonorsContext(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := s.Update(ctx, func(tx Tx) error {
		return badger.ErrConflict
	})
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
	// Without cancellation the backoff schedule sleeps for seconds.
	assert.Less(t, time.Since(start), time.Second)
}

func TestCredit_MaxLamports(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	whale := solana.NewWallet().PublicKey()

	require.NoError(t, s.Update(ctx, func(tx Tx) error {
		return Airdrop(tx, whale, MaxLamports)
	}))

	err := s.Update(ctx, func(tx Tx) error {
		return Airdrop(tx, whale, 1)
	})
	assert.True(t, errors.Is(err, errcode.NumericalOverflow), "got %v", err)

	err = s.Update(ctx, func(tx Tx) error {
		return Airdrop(tx, solana.NewWallet().PublicKey(), MaxLamports+1)
	})
	assert.True(t, errors.Is(err, errcode.NumericalOverflow), "got %v", err)

	require.NoError(t, s.View(ctx, func(tx Tx) error {
		bal, err := Lamports(tx, whale)
		require.NoError(t, err)
		assert.Equal(t, MaxLamports, bal)
		return nil
	}))
}
