package ledger

import (
	"errors"

	"github.com/gagliardetto/solana-go"

	"github.com/xtrntr/auctionhouse/internal/errcode"
)

// Lamports returns the balance at addr, zero when no account exists.
func Lamports(tx Tx, addr solana.PublicKey) (uint64, error) {
	acct, err := tx.Get(addr)
	if errors.Is(err, ErrAccountNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return acct.Lamports, nil
}

func credit(tx Tx, addr solana.PublicKey, amount uint64) error {
	acct, err := tx.Get(addr)
	if errors.Is(err, ErrAccountNotFound) {
		acct = &Account{Owner: solana.SystemProgramID}
	} else if err != nil {
		return err
	}
	if amount > MaxLamports || acct.Lamports > MaxLamports-amount {
		return errcode.NumericalOverflow.Wrap("credit %s", addr)
	}
	acct.Lamports += amount
	return tx.Put(addr, acct)
}

func debit(tx Tx, addr solana.PublicKey, amount uint64) error {
	acct, err := tx.Get(addr)
	if errors.Is(err, ErrAccountNotFound) {
		return errcode.InsufficientFunds.Wrap("%s has no account", addr)
	}
	if err != nil {
		return err
	}
	if acct.Lamports < amount {
		return errcode.InsufficientFunds.Wrap("%s holds %d, needs %d", addr, acct.Lamports, amount)
	}
	acct.Lamports -= amount
	// Empty system accounts are reaped.
	if acct.Lamports == 0 && len(acct.Data) == 0 && acct.Owner.Equals(solana.SystemProgramID) {
		return tx.Delete(addr)
	}
	return tx.Put(addr, acct)
}

// Airdrop credits lamports to addr, creating a system account if needed.
func Airdrop(tx Tx, addr solana.PublicKey, amount uint64) error {
	return credit(tx, addr, amount)
}

// TransferLamports moves amount from one account to another.
func TransferLamports(tx Tx, from, to solana.PublicKey, amount uint64) error {
	if amount == 0 || from.Equals(to) {
		return nil
	}
	if err := debit(tx, from, amount); err != nil {
		return err
	}
	return credit(tx, to, amount)
}

// CreateAccount allocates a new account at addr funded by payer.
func CreateAccount(tx Tx, payer, addr solana.PublicKey, lamports uint64, owner solana.PublicKey, data []byte) error {
	exists, err := Exists(tx, addr)
	if err != nil {
		return err
	}
	if exists {
		return errcode.AccountAlreadyInUse.Wrap("%s", addr)
	}
	if err := debit(tx, payer, lamports); err != nil {
		return err
	}
	return tx.Put(addr, &Account{Lamports: lamports, Owner: owner, Data: data})
}

// CloseAccount drains every lamport of addr into dest and removes it.
func CloseAccount(tx Tx, addr, dest solana.PublicKey) (uint64, error) {
	acct, err := tx.Get(addr)
	if err != nil {
		return 0, err
	}
	if err := tx.Delete(addr); err != nil {
		return 0, err
	}
	if acct.Lamports > 0 {
		if err := credit(tx, dest, acct.Lamports); err != nil {
			return 0, err
		}
	}
	return acct.Lamports, nil
}
