package house

import (
	"context"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtrntr/auctionhouse/internal/errcode"
	"github.com/xtrntr/auctionhouse/internal/ledger"
	"github.com/xtrntr/auctionhouse/internal/models"
	"github.com/xtrntr/auctionhouse/internal/pda"
)

type fixture struct {
	store     ledger.Store
	authority solana.PublicKey
	house     solana.PublicKey
}

func newFixture(t *testing.T, bps uint16, requiresSignOff bool) *fixture {
	t.Helper()
	store, err := ledger.OpenBadger(&ledger.BadgerConfig{})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	f := &fixture{store: store, authority: solana.NewWallet().PublicKey()}
	require.NoError(t, store.Update(context.Background(), func(tx ledger.Tx) error {
		require.NoError(t, ledger.Airdrop(tx, f.authority, 10_000_000_000))
		h, err := Create(tx, CreateParams{
			Payer:                         f.authority,
			Authority:                     f.authority,
			TreasuryMint:                  solana.SolMint,
			FeeWithdrawalDestination:      f.authority,
			TreasuryWithdrawalDestination: f.authority,
			SellerFeeBasisPoints:          bps,
			RequiresSignOff:               requiresSignOff,
		}, Signers{f.authority})
		if err != nil {
			return err
		}
		f.house = h.Address
		return nil
	}))
	return f
}

func (f *fixture) update(t *testing.T, fn func(tx ledger.Tx) error) error {
	t.Helper()
	return f.store.Update(context.Background(), fn)
}

func (f *fixture) load(t *testing.T) *House {
	t.Helper()
	var h *House
	require.NoError(t, f.store.View(context.Background(), func(tx ledger.Tx) error {
		var err error
		h, err = Load(tx, f.house)
		return err
	}))
	return h
}

func TestCreate(t *testing.T) {
	f := newFixture(t, 200, false)
	h := f.load(t)

	addr, bump, err := pda.AuctionHouse(f.authority, solana.SolMint)
	require.NoError(t, err)
	assert.Equal(t, addr, h.Address)
	assert.Equal(t, bump, h.Bump)
	assert.Equal(t, uint16(200), h.SellerFeeBasisPoints)
	assert.True(t, h.IsNative())
	assert.False(t, h.HasAuctioneer)

	fee, _, err := pda.FeeAccount(addr)
	require.NoError(t, err)
	assert.Equal(t, fee, h.AuctionHouseFeeAccount)

	other := solana.NewWallet().PublicKey()
	err = f.update(t, func(tx ledger.Tx) error {
		require.NoError(t, ledger.Airdrop(tx, other, 10_000_000_000))
		_, err := Create(tx, CreateParams{
			Payer:                other,
			Authority:            other,
			TreasuryMint:         solana.SolMint,
			SellerFeeBasisPoints: 10_001,
		}, Signers{other})
		return err
	})
	assert.ErrorIs(t, err, errcode.InvalidBasisPoints)

	err = f.update(t, func(tx ledger.Tx) error {
		_, err := Create(tx, CreateParams{
			Payer:        f.authority,
			Authority:    f.authority,
			TreasuryMint: solana.SolMint,
		}, Signers{f.authority})
		return err
	})
	assert.ErrorIs(t, err, errcode.AccountAlreadyInUse)
}

func TestUpdate(t *testing.T) {
	f := newFixture(t, 200, false)
	bps := uint16(500)
	signOff := true

	err := f.update(t, func(tx ledger.Tx) error {
		_, err := Update(tx, f.house, UpdateParams{SellerFeeBasisPoints: &bps}, Signers{solana.NewWallet().PublicKey()})
		return err
	})
	assert.ErrorIs(t, err, errcode.NoValidSignerPresent)

	tooMuch := uint16(10_001)
	err = f.update(t, func(tx ledger.Tx) error {
		_, err := Update(tx, f.house, UpdateParams{SellerFeeBasisPoints: &tooMuch}, Signers{f.authority})
		return err
	})
	assert.ErrorIs(t, err, errcode.InvalidBasisPoints)

	require.NoError(t, f.update(t, func(tx ledger.Tx) error {
		_, err := Update(tx, f.house, UpdateParams{SellerFeeBasisPoints: &bps, RequiresSignOff: &signOff}, Signers{f.authority})
		return err
	}))

	h := f.load(t)
	assert.Equal(t, bps, h.SellerFeeBasisPoints)
	assert.True(t, h.RequiresSignOff)
}

func TestDelegateAuctioneer(t *testing.T) {
	f := newFixture(t, 200, false)
	auctioneer := solana.NewWallet().PublicKey()
	scopes := models.NewScopes(models.ScopeBuy, models.ScopeExecuteSale)

	require.NoError(t, f.update(t, func(tx ledger.Tx) error {
		return DelegateAuctioneer(tx, f.house, auctioneer, scopes, Signers{f.authority})
	}))

	h := f.load(t)
	recAddr, _, err := pda.Auctioneer(f.house, auctioneer)
	require.NoError(t, err)
	assert.True(t, h.HasAuctioneer)
	assert.Equal(t, recAddr, h.AuctioneerAddress)
	assert.Equal(t, scopes, h.Scopes)

	err = f.update(t, func(tx ledger.Tx) error {
		return DelegateAuctioneer(tx, f.house, solana.NewWallet().PublicKey(), scopes, Signers{f.authority})
	})
	assert.ErrorIs(t, err, errcode.AuctionHouseAlreadyDelegated)

	narrowed := models.NewScopes(models.ScopeBuy)
	require.NoError(t, f.update(t, func(tx ledger.Tx) error {
		return UpdateAuctioneer(tx, f.house, auctioneer, narrowed, Signers{f.authority})
	}))
	require.NoError(t, f.store.View(context.Background(), func(tx ledger.Tx) error {
		_, rec, err := LoadAuctioneer(tx, f.house, auctioneer)
		require.NoError(t, err)
		assert.Equal(t, narrowed, rec.Scopes)
		return nil
	}))
	assert.Equal(t, narrowed, f.load(t).Scopes)

	err = f.update(t, func(tx ledger.Tx) error {
		return UpdateAuctioneer(tx, f.house, solana.NewWallet().PublicKey(), narrowed, Signers{f.authority})
	})
	assert.ErrorIs(t, err, errcode.AccountNotInitialized)
}

func TestHouseAuthority(t *testing.T) {
	wallet := solana.NewWallet().PublicKey()
	authority := solana.NewWallet().PublicKey()

	tests := []struct {
		name      string
		house     models.AuctionHouse
		req       Request
		expectErr error
	}{
		{
			name:  "SettleSignedByAuthority",
			house: models.AuctionHouse{Authority: authority},
			req:   Request{Scope: models.ScopeExecuteSale, Signers: Signers{authority}},
		},
		{
			name:      "SettleWithoutAuthority",
			house:     models.AuctionHouse{Authority: authority},
			req:       Request{Scope: models.ScopeExecuteSale, Signers: Signers{wallet}},
			expectErr: errcode.CannotTakeThisActionWithoutAuctionHouseSignOff,
		},
		{
			name:      "SettleDelegated",
			house:     models.AuctionHouse{Authority: authority, HasAuctioneer: true, Scopes: models.NewScopes(models.ScopeExecuteSale)},
			req:       Request{Scope: models.ScopeExecuteSale, Signers: Signers{authority}},
			expectErr: errcode.MustUseAuctioneerHandler,
		},
		{
			name:  "BuyNotDelegated",
			house: models.AuctionHouse{Authority: authority, HasAuctioneer: true, Scopes: models.NewScopes(models.ScopeExecuteSale)},
			req:   Request{Scope: models.ScopeBuy, Wallet: wallet, Signers: Signers{wallet}},
		},
		{
			name:      "BuyRequiresSignOff",
			house:     models.AuctionHouse{Authority: authority, RequiresSignOff: true},
			req:       Request{Scope: models.ScopeBuy, Wallet: wallet, Signers: Signers{wallet}},
			expectErr: errcode.CannotTakeThisActionWithoutAuctionHouseSignOff,
		},
		{
			name:      "BuyUnsigned",
			house:     models.AuctionHouse{Authority: authority},
			req:       Request{Scope: models.ScopeBuy, Wallet: wallet},
			expectErr: errcode.NoValidSignerPresent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &House{AuctionHouse: tt.house}
			err := HouseAuthority{}.Authorize(nil, h, tt.req)
			if tt.expectErr != nil {
				assert.ErrorIs(t, err, tt.expectErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAuctioneerAuthority(t *testing.T) {
	f := newFixture(t, 200, false)
	auctioneer := solana.NewWallet().PublicKey()
	stranger := solana.NewWallet().PublicKey()

	authorize := func(a AuctioneerAuthority, req Request) error {
		return f.store.View(context.Background(), func(tx ledger.Tx) error {
			h, err := Load(tx, f.house)
			require.NoError(t, err)
			return a.Authorize(tx, h, req)
		})
	}

	settle := Request{Scope: models.ScopeExecuteSale, Signers: Signers{auctioneer}}
	err := authorize(AuctioneerAuthority{Authority: auctioneer}, settle)
	assert.ErrorIs(t, err, errcode.AccountNotInitialized)

	require.NoError(t, f.update(t, func(tx ledger.Tx) error {
		return DelegateAuctioneer(tx, f.house, auctioneer, models.NewScopes(models.ScopeBuy), Signers{f.authority})
	}))

	tests := []struct {
		name      string
		auth      AuctioneerAuthority
		req       Request
		expectErr error
	}{
		{name: "MissingScope", auth: AuctioneerAuthority{Authority: auctioneer}, req: settle, expectErr: errcode.MissingAuctioneerScope},
		{name: "Scoped", auth: AuctioneerAuthority{Authority: auctioneer}, req: Request{Scope: models.ScopeBuy, Signers: Signers{auctioneer}}},
		{name: "Unsigned", auth: AuctioneerAuthority{Authority: auctioneer}, req: Request{Scope: models.ScopeBuy}, expectErr: errcode.NoValidSignerPresent},
		{name: "Unregistered", auth: AuctioneerAuthority{Authority: stranger}, req: Request{Scope: models.ScopeBuy, Signers: Signers{stranger}}, expectErr: errcode.AccountNotInitialized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := authorize(tt.auth, tt.req)
			if tt.expectErr != nil {
				assert.ErrorIs(t, err, tt.expectErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSplitPrice(t *testing.T) {
	creatorA := solana.NewWallet().PublicKey()
	creatorB := solana.NewWallet().PublicKey()

	tests := []struct {
		name      string
		price     uint64
		houseBps  uint16
		meta      *models.Metadata
		want      Split
		expectErr error
	}{
		{
			name:     "HouseFeeOnly",
			price:    100_000_000,
			houseBps: 100,
			want:     Split{HouseFee: 1_000_000, SellerProceeds: 99_000_000},
		},
		{
			name:     "FeeRoundsDown",
			price:    999,
			houseBps: 250,
			want:     Split{HouseFee: 24, SellerProceeds: 975},
		},
		{
			name:     "RoyaltiesSplitByShare",
			price:    1_000_000,
			houseBps: 200,
			meta: &models.Metadata{
				SellerFeeBasisPoints: 500,
				Creators:             []models.Creator{{Address: creatorA, Share: 60}, {Address: creatorB, Share: 40}},
			},
			want: Split{CreatorFees: []uint64{30_000, 20_000}, Royalties: 50_000, HouseFee: 20_000, SellerProceeds: 930_000},
		},
		{
			name:     "MetadataWithoutCreators",
			price:    1_000_000,
			houseBps: 0,
			meta:     &models.Metadata{SellerFeeBasisPoints: 500},
			want:     Split{SellerProceeds: 1_000_000},
		},
		{
			name:     "NoOverflowOnLargePrice",
			price:    1 << 62,
			houseBps: 10_000,
			want:     Split{HouseFee: 1 << 62},
		},
		{
			name:     "FeesExceedPrice",
			price:    1_000,
			houseBps: 10_000,
			meta: &models.Metadata{
				SellerFeeBasisPoints: 100,
				Creators:             []models.Creator{{Address: creatorA, Share: 100}},
			},
			expectErr: errcode.NumericalOverflow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SplitPrice(tt.price, tt.houseBps, tt.meta)
			if tt.expectErr != nil {
				assert.ErrorIs(t, err, tt.expectErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, *got)
		})
	}
}
