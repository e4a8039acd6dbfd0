// Package tradestate derives, opens, validates and closes trade state
// markers. A marker's address is derived from the full order tuple, so its
// existence alone commits its owner to that exact price and size.
package tradestate

import (
	"errors"

	"github.com/gagliardetto/solana-go"

	"github.com/xtrntr/auctionhouse/internal/errcode"
	"github.com/xtrntr/auctionhouse/internal/ledger"
	"github.com/xtrntr/auctionhouse/internal/pda"
)

// MarkerRent is the balance a marker account holds while open.
const MarkerRent uint64 = 897_840

// Order is the tuple a marker commits to. A zero TokenAccount denotes a
// public bid, which is not tied to a particular token account.
type Order struct {
	Wallet       solana.PublicKey
	AuctionHouse solana.PublicKey
	TokenAccount solana.PublicKey
	TreasuryMint solana.PublicKey
	TokenMint    solana.PublicKey
	Price        uint64
	Size         uint64
}

// Public returns o with the token account dropped.
func (o Order) Public() Order {
	o.TokenAccount = solana.PublicKey{}
	return o
}

// Free returns the zero price marker order of a listing.
func (o Order) Free() Order {
	o.Price = 0
	return o
}

// IsPublic reports whether o is a public bid.
func (o Order) IsPublic() bool {
	return o.TokenAccount.IsZero()
}

func (o Order) seeds() [][]byte {
	return pda.TradeStateSeeds(o.Wallet, o.AuctionHouse, o.TokenAccount, o.TreasuryMint, o.TokenMint, o.Price, o.Size)
}

// Derive returns the canonical marker address and bump of o.
func Derive(o Order) (solana.PublicKey, uint8, error) {
	return pda.TradeState(o.Wallet, o.AuctionHouse, o.TokenAccount, o.TreasuryMint, o.TokenMint, o.Price, o.Size)
}

// DerivePublic returns the public bid marker of o.
func DerivePublic(o Order) (solana.PublicKey, uint8, error) {
	return Derive(o.Public())
}

// Address re-derives the marker of o using an explicit bump.
func Address(o Order, bump uint8) (solana.PublicKey, error) {
	return pda.WithBump(o.seeds(), bump)
}

// ValidateOpen checks that addr is an open marker for o and returns its
// stored bump. notOpen is returned when there is no live marker at addr;
// a marker that does not derive from o fails with InvalidSeeds.
func ValidateOpen(tx ledger.Tx, addr solana.PublicKey, o Order, notOpen *errcode.Error) (uint8, error) {
	acct, err := tx.Get(addr)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return 0, notOpen.Wrap("no trade state at %s", addr)
	}
	if err != nil {
		return 0, err
	}
	if !acct.Owner.Equals(pda.ProgramID) || len(acct.Data) == 0 {
		return 0, notOpen.Wrap("trade state %s is closed", addr)
	}
	bump := acct.Data[0]
	expected, err := Address(o, bump)
	if err != nil || !expected.Equals(addr) {
		return 0, errcode.InvalidSeeds.Wrap("trade state %s does not match order", addr)
	}
	return bump, nil
}

// IsOpen reports whether a live marker exists at addr.
func IsOpen(tx ledger.Tx, addr solana.PublicKey) (bool, error) {
	acct, err := tx.Get(addr)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return acct.Owner.Equals(pda.ProgramID) && len(acct.Data) > 0, nil
}

// Open creates the marker at addr funded by payer.
func Open(tx ledger.Tx, payer, addr solana.PublicKey, bump uint8) error {
	exists, err := ledger.Exists(tx, addr)
	if err != nil {
		return err
	}
	if exists {
		return errcode.TradeStateIsNotEmpty.Wrap("%s", addr)
	}
	return ledger.CreateAccount(tx, payer, addr, MarkerRent, pda.ProgramID, []byte{bump})
}

// Close retires the marker at addr and credits its rent to dest.
func Close(tx ledger.Tx, addr, dest solana.PublicKey) (uint64, error) {
	reclaimed, err := ledger.CloseAccount(tx, addr, dest)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return 0, errcode.TradeStateDoesntExist.Wrap("%s", addr)
	}
	return reclaimed, err
}
