// Package escrow manages the pooled balance a buyer holds on a house. All of
// a buyer's open bids draw on the same escrow; the trade state markers are
// the only record of what each bid may claim.
package escrow

import (
	"errors"

	"github.com/gagliardetto/solana-go"

	"github.com/xtrntr/auctionhouse/internal/errcode"
	"github.com/xtrntr/auctionhouse/internal/ledger"
	"github.com/xtrntr/auctionhouse/internal/pda"
)

// Account is the escrow of one buyer on one house. For a native house it
// is a plain lamport account. Otherwise it is a token account of the
// treasury mint that owns itself.
type Account struct {
	Address      solana.PublicKey
	Bump         uint8
	TreasuryMint solana.PublicKey
}

// Address derives the escrow of buyer on house.
func Address(house, buyer solana.PublicKey) (solana.PublicKey, uint8, error) {
	return pda.EscrowPayment(house, buyer)
}

// For returns the escrow of buyer on house.
func For(house, treasuryMint, buyer solana.PublicKey) (Account, error) {
	addr, bump, err := Address(house, buyer)
	if err != nil {
		return Account{}, err
	}
	return Account{Address: addr, Bump: bump, TreasuryMint: treasuryMint}, nil
}

// Native reports whether the escrow holds lamports.
func (a Account) Native() bool {
	return a.TreasuryMint.Equals(solana.SolMint)
}

// Balance returns the pooled amount. An escrow that was never funded holds
// nothing.
func (a Account) Balance(tx ledger.Tx) (uint64, error) {
	if a.Native() {
		return ledger.Lamports(tx, a.Address)
	}
	ta, err := ledger.GetTokenAccount(tx, a.Address)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return ta.Amount, nil
}

// Fund moves amount into the escrow. For a native house source is the
// paying wallet. Otherwise source is a token account of the treasury mint
// that authority may spend from, and the escrow token account is created
// at payer's expense on first use.
func (a Account) Fund(tx ledger.Tx, payer, source, authority solana.PublicKey, amount uint64) error {
	if a.Native() {
		return ledger.TransferLamports(tx, source, a.Address, amount)
	}
	exists, err := ledger.Exists(tx, a.Address)
	if err != nil {
		return err
	}
	if !exists {
		if err := ledger.CreateTokenAccount(tx, payer, a.Address, a.TreasuryMint, a.Address); err != nil {
			return err
		}
	}
	if amount == 0 {
		return nil
	}
	return ledger.TransferTokens(tx, source, a.Address, authority, amount)
}

// Pay debits amount from the escrow into dest, signed by the escrow
// address. dest is a wallet for a native house and a token account of the
// treasury mint otherwise.
func (a Account) Pay(tx ledger.Tx, dest solana.PublicKey, amount uint64) error {
	if amount == 0 {
		return nil
	}
	bal, err := a.Balance(tx)
	if err != nil {
		return err
	}
	if bal < amount {
		return errcode.InsufficientFunds.Wrap("escrow %s holds %d, needs %d", a.Address, bal, amount)
	}
	if a.Native() {
		return ledger.TransferLamports(tx, a.Address, dest, amount)
	}
	return ledger.TransferTokens(tx, a.Address, dest, a.Address, amount)
}
