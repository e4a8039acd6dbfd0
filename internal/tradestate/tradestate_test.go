package tradestate

import (
	"context"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtrntr/auctionhouse/internal/errcode"
	"github.com/xtrntr/auctionhouse/internal/ledger"
)

func testOrder() Order {
	return Order{
		Wallet:       solana.NewWallet().PublicKey(),
		AuctionHouse: solana.NewWallet().PublicKey(),
		TokenAccount: solana.NewWallet().PublicKey(),
		TreasuryMint: solana.SolMint,
		TokenMint:    solana.NewWallet().PublicKey(),
		Price:        600_000_000,
		Size:         6,
	}
}

func TestDerive(t *testing.T) {
	o := testOrder()
	addr, bump, err := Derive(o)
	require.NoError(t, err)

	again, err := Address(o, bump)
	require.NoError(t, err)
	assert.Equal(t, addr, again)

	public, _, err := DerivePublic(o)
	require.NoError(t, err)
	assert.NotEqual(t, addr, public)

	free, _, err := Derive(o.Free())
	require.NoError(t, err)
	assert.NotEqual(t, addr, free)
	assert.True(t, o.Public().IsPublic())
	assert.False(t, o.IsPublic())
}

func TestLifecycle(t *testing.T) {
	store, err := ledger.OpenBadger(&ledger.BadgerConfig{})
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	payer := solana.NewWallet().PublicKey()
	o := testOrder()
	addr, bump, err := Derive(o)
	require.NoError(t, err)

	require.NoError(t, store.Update(ctx, func(tx ledger.Tx) error {
		require.NoError(t, ledger.Airdrop(tx, payer, 10*MarkerRent))
		return Open(tx, payer, addr, bump)
	}))

	err = store.Update(ctx, func(tx ledger.Tx) error { return Open(tx, payer, addr, bump) })
	assert.ErrorIs(t, err, errcode.TradeStateIsNotEmpty)

	other := o
	other.Price = 500_000_000

	tests := []struct {
		name      string
		order     Order
		expectErr error
	}{
		{name: "Matching", order: o},
		{name: "DifferentPrice", order: other, expectErr: errcode.InvalidSeeds},
		{name: "PublicLayout", order: o.Public(), expectErr: errcode.InvalidSeeds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.View(ctx, func(tx ledger.Tx) error {
				got, err := ValidateOpen(tx, addr, tt.order, errcode.BuyerTradeStateNotValid)
				if err == nil {
					assert.Equal(t, bump, got)
				}
				return err
			})
			if tt.expectErr != nil {
				assert.ErrorIs(t, err, tt.expectErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	dest := solana.NewWallet().PublicKey()
	require.NoError(t, store.Update(ctx, func(tx ledger.Tx) error {
		reclaimed, err := Close(tx, addr, dest)
		require.NoError(t, err)
		assert.Equal(t, MarkerRent, reclaimed)
		return nil
	}))

	require.NoError(t, store.View(ctx, func(tx ledger.Tx) error {
		open, err := IsOpen(tx, addr)
		require.NoError(t, err)
		assert.False(t, open)

		_, err = ValidateOpen(tx, addr, o, errcode.BuyerTradeStateNotValid)
		assert.ErrorIs(t, err, errcode.BuyerTradeStateNotValid)

		bal, err := ledger.Lamports(tx, dest)
		require.NoError(t, err)
		assert.Equal(t, MarkerRent, bal)
		return nil
	}))

	err = store.Update(ctx, func(tx ledger.Tx) error {
		_, err := Close(tx, addr, dest)
		return err
	})
	assert.ErrorIs(t, err, errcode.TradeStateDoesntExist)
}
