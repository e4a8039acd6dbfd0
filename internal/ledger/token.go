package ledger

import (
	"errors"
	"math"

	"github.com/gagliardetto/solana-go"

	"github.com/xtrntr/auctionhouse/internal/errcode"
	"github.com/xtrntr/auctionhouse/internal/models"
	"github.com/xtrntr/auctionhouse/internal/pda"
)

// Rent-exempt balances charged when accounts are created.
const (
	TokenAccountRent uint64 = 2_039_280
	MintRent         uint64 = 1_461_600
)

// NativeDecimals is the precision of lamports.
const NativeDecimals = 9

// GetMint loads mint. The native mint needs no account.
func GetMint(tx Tx, mint solana.PublicKey) (*models.Mint, error) {
	if mint.Equals(solana.SolMint) {
		return &models.Mint{Decimals: NativeDecimals}, nil
	}
	var m models.Mint
	if _, err := GetState(tx, mint, solana.TokenProgramID, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// CreateMint allocates a mint controlled by authority.
func CreateMint(tx Tx, payer, mint, authority solana.PublicKey, decimals uint8) error {
	data, err := models.Marshal(&models.Mint{MintAuthority: authority, Decimals: decimals})
	if err != nil {
		return err
	}
	return CreateAccount(tx, payer, mint, MintRent, solana.TokenProgramID, data)
}

// GetTokenAccount loads the token account at addr. A missing account is
// reported as ErrAccountNotFound.
func GetTokenAccount(tx Tx, addr solana.PublicKey) (*models.TokenAccount, error) {
	acct, err := tx.Get(addr)
	if err != nil {
		return nil, err
	}
	if !acct.Owner.Equals(solana.TokenProgramID) {
		return nil, errcode.IncorrectOwner.Wrap("%s is not a token account", addr)
	}
	var ta models.TokenAccount
	if err := models.Unmarshal(acct.Data, &ta); err != nil {
		return nil, err
	}
	return &ta, nil
}

func putTokenAccount(tx Tx, addr solana.PublicKey, ta *models.TokenAccount) error {
	acct, err := tx.Get(addr)
	if err != nil {
		return err
	}
	return PutState(tx, addr, acct, ta)
}

// CreateTokenAccount allocates an empty token account at addr.
func CreateTokenAccount(tx Tx, payer, addr, mint, owner solana.PublicKey) error {
	if !mint.Equals(solana.SolMint) {
		if _, err := GetMint(tx, mint); err != nil {
			return err
		}
	}
	data, err := models.Marshal(&models.TokenAccount{Mint: mint, Owner: owner})
	if err != nil {
		return err
	}
	return CreateAccount(tx, payer, addr, TokenAccountRent, solana.TokenProgramID, data)
}

// EnsureAssociatedTokenAccount returns the associated token account of
// wallet for mint, creating it at payer's expense when it does not exist.
func EnsureAssociatedTokenAccount(tx Tx, payer, wallet, mint solana.PublicKey) (solana.PublicKey, bool, error) {
	ata, err := pda.AssociatedTokenAccount(wallet, mint)
	if err != nil {
		return solana.PublicKey{}, false, err
	}
	_, err = GetTokenAccount(tx, ata)
	if err == nil {
		return ata, false, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return solana.PublicKey{}, false, err
	}
	if err := CreateTokenAccount(tx, payer, ata, mint, wallet); err != nil {
		return solana.PublicKey{}, false, err
	}
	return ata, true, nil
}

// MintTo issues amount new units of mint into dst.
func MintTo(tx Tx, mint, dst, authority solana.PublicKey, amount uint64) error {
	var m models.Mint
	acct, err := GetState(tx, mint, solana.TokenProgramID, &m)
	if err != nil {
		return err
	}
	if !m.MintAuthority.Equals(authority) {
		return errcode.OwnerMismatch.Wrap("mint authority of %s", mint)
	}
	ta, err := GetTokenAccount(tx, dst)
	if err != nil {
		return err
	}
	if !ta.Mint.Equals(mint) {
		return errcode.MintMismatch
	}
	if m.Supply > math.MaxUint64-amount || ta.Amount > math.MaxUint64-amount {
		return errcode.NumericalOverflow.Wrap("mint %d", amount)
	}
	m.Supply += amount
	ta.Amount += amount
	if err := PutState(tx, mint, acct, &m); err != nil {
		return err
	}
	return putTokenAccount(tx, dst, ta)
}

// TransferTokens moves amount units from src to dst. authority must be the
// source owner or its delegate with a sufficient allowance.
func TransferTokens(tx Tx, src, dst, authority solana.PublicKey, amount uint64) error {
	from, err := GetTokenAccount(tx, src)
	if err != nil {
		return err
	}
	to, err := GetTokenAccount(tx, dst)
	if err != nil {
		return err
	}
	if !from.Mint.Equals(to.Mint) {
		return errcode.MintMismatch
	}
	if from.Amount < amount {
		return errcode.InsufficientFunds.Wrap("token account %s holds %d, needs %d", src, from.Amount, amount)
	}
	switch {
	case authority.Equals(from.Owner):
	case from.HasDelegate() && authority.Equals(from.Delegate):
		if from.DelegatedAmount < amount {
			return errcode.InsufficientFunds.Wrap("delegated %d, needs %d", from.DelegatedAmount, amount)
		}
		from.DelegatedAmount -= amount
		if from.DelegatedAmount == 0 {
			from.Delegate = solana.PublicKey{}
		}
	default:
		return errcode.OwnerMismatch.Wrap("%s cannot move tokens from %s", authority, src)
	}
	if src.Equals(dst) {
		return putTokenAccount(tx, src, from)
	}
	if to.Amount > math.MaxUint64-amount {
		return errcode.NumericalOverflow
	}
	from.Amount -= amount
	to.Amount += amount
	if err := putTokenAccount(tx, src, from); err != nil {
		return err
	}
	return putTokenAccount(tx, dst, to)
}

// Approve lets delegate move up to amount units out of src.
func Approve(tx Tx, src, owner, delegate solana.PublicKey, amount uint64) error {
	ta, err := GetTokenAccount(tx, src)
	if err != nil {
		return err
	}
	if !ta.Owner.Equals(owner) {
		return errcode.OwnerMismatch
	}
	ta.Delegate = delegate
	ta.DelegatedAmount = amount
	return putTokenAccount(tx, src, ta)
}

// Revoke clears any delegation on src.
func Revoke(tx Tx, src, owner solana.PublicKey) error {
	ta, err := GetTokenAccount(tx, src)
	if err != nil {
		return err
	}
	if !ta.Owner.Equals(owner) {
		return errcode.OwnerMismatch
	}
	ta.Delegate = solana.PublicKey{}
	ta.DelegatedAmount = 0
	return putTokenAccount(tx, src, ta)
}
