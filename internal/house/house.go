// Package house holds the auction house configuration lifecycle and the
// policy that decides who may act on a house and how sale proceeds split.
package house

import (
	"github.com/gagliardetto/solana-go"

	"github.com/xtrntr/auctionhouse/internal/errcode"
	"github.com/xtrntr/auctionhouse/internal/ledger"
	"github.com/xtrntr/auctionhouse/internal/models"
	"github.com/xtrntr/auctionhouse/internal/pda"
)

// Rent charged for program state accounts.
const (
	HouseRent      uint64 = 4_085_520
	AuctioneerRent uint64 = 1_524_240
)

// MaxBasisPoints is 100%.
const MaxBasisPoints = 10_000

// Signers is the set of keys that signed an instruction.
type Signers []solana.PublicKey

// Has reports whether key signed.
func (s Signers) Has(key solana.PublicKey) bool {
	for _, k := range s {
		if k.Equals(key) {
			return true
		}
	}
	return false
}

// House is a loaded auction house account.
type House struct {
	Address solana.PublicKey
	models.AuctionHouse

	account *ledger.Account
}

// Load reads the house at addr.
func Load(tx ledger.Tx, addr solana.PublicKey) (*House, error) {
	h := &House{Address: addr}
	acct, err := ledger.GetState(tx, addr, pda.ProgramID, &h.AuctionHouse)
	if err != nil {
		return nil, err
	}
	h.account = acct
	return h, nil
}

// Save writes h back to the ledger.
func (h *House) Save(tx ledger.Tx) error {
	return ledger.PutState(tx, h.Address, h.account, &h.AuctionHouse)
}

// FeePayer returns the account that pays rent during a settlement: the
// authority when it signed, the house fee account otherwise.
func (h *House) FeePayer(signers Signers) solana.PublicKey {
	if signers.Has(h.Authority) {
		return h.Authority
	}
	return h.AuctionHouseFeeAccount
}

func (h *House) requireAuthority(signers Signers) error {
	if !signers.Has(h.Authority) {
		return errcode.NoValidSignerPresent.Wrap("house authority %s must sign", h.Authority)
	}
	return nil
}

// CreateParams configures a new house.
type CreateParams struct {
	Payer                         solana.PublicKey
	Authority                     solana.PublicKey
	TreasuryMint                  solana.PublicKey
	FeeWithdrawalDestination      solana.PublicKey
	TreasuryWithdrawalDestination solana.PublicKey
	SellerFeeBasisPoints          uint16
	RequiresSignOff               bool
	CanChangeSalePrice            bool
}

// Create initialises the house of (authority, treasury mint) along with
// its treasury. For a token treasury the treasury is a token account owned
// by the house.
func Create(tx ledger.Tx, p CreateParams, signers Signers) (*House, error) {
	if !signers.Has(p.Payer) {
		return nil, errcode.NoValidSignerPresent.Wrap("payer %s must sign", p.Payer)
	}
	if p.SellerFeeBasisPoints > MaxBasisPoints {
		return nil, errcode.InvalidBasisPoints.Wrap("%d", p.SellerFeeBasisPoints)
	}
	if _, err := ledger.GetMint(tx, p.TreasuryMint); err != nil {
		return nil, err
	}

	addr, bump, err := pda.AuctionHouse(p.Authority, p.TreasuryMint)
	if err != nil {
		return nil, err
	}
	feeAccount, feeBump, err := pda.FeeAccount(addr)
	if err != nil {
		return nil, err
	}
	treasury, treasuryBump, err := pda.TreasuryAccount(addr)
	if err != nil {
		return nil, err
	}

	h := &House{
		Address: addr,
		AuctionHouse: models.AuctionHouse{
			AuctionHouseFeeAccount:        feeAccount,
			AuctionHouseTreasury:          treasury,
			TreasuryWithdrawalDestination: p.TreasuryWithdrawalDestination,
			FeeWithdrawalDestination:      p.FeeWithdrawalDestination,
			TreasuryMint:                  p.TreasuryMint,
			Authority:                     p.Authority,
			Creator:                       p.Authority,
			Bump:                          bump,
			TreasuryBump:                  treasuryBump,
			FeePayerBump:                  feeBump,
			SellerFeeBasisPoints:          p.SellerFeeBasisPoints,
			RequiresSignOff:               p.RequiresSignOff,
			CanChangeSalePrice:            p.CanChangeSalePrice,
		},
	}
	data, err := models.Marshal(&h.AuctionHouse)
	if err != nil {
		return nil, err
	}
	if err := ledger.CreateAccount(tx, p.Payer, addr, HouseRent, pda.ProgramID, data); err != nil {
		return nil, err
	}
	if !h.IsNative() {
		if err := ledger.CreateTokenAccount(tx, p.Payer, treasury, p.TreasuryMint, addr); err != nil {
			return nil, err
		}
	}
	if h.account, err = tx.Get(addr); err != nil {
		return nil, err
	}
	log.Infof("Created auction house %s (mint %s, fee %d bps)", addr, p.TreasuryMint, p.SellerFeeBasisPoints)
	return h, nil
}

// UpdateParams lists the house fields to change. Nil fields are kept.
type UpdateParams struct {
	NewAuthority                  *solana.PublicKey
	FeeWithdrawalDestination      *solana.PublicKey
	TreasuryWithdrawalDestination *solana.PublicKey
	SellerFeeBasisPoints          *uint16
	RequiresSignOff               *bool
	CanChangeSalePrice            *bool
}

// Update changes the house configuration. The current authority must sign.
func Update(tx ledger.Tx, addr solana.PublicKey, p UpdateParams, signers Signers) (*House, error) {
	h, err := Load(tx, addr)
	if err != nil {
		return nil, err
	}
	if err := h.requireAuthority(signers); err != nil {
		return nil, err
	}
	if p.SellerFeeBasisPoints != nil {
		if *p.SellerFeeBasisPoints > MaxBasisPoints {
			return nil, errcode.InvalidBasisPoints.Wrap("%d", *p.SellerFeeBasisPoints)
		}
		h.SellerFeeBasisPoints = *p.SellerFeeBasisPoints
	}
	if p.NewAuthority != nil {
		h.Authority = *p.NewAuthority
	}
	if p.FeeWithdrawalDestination != nil {
		h.FeeWithdrawalDestination = *p.FeeWithdrawalDestination
	}
	if p.TreasuryWithdrawalDestination != nil {
		h.TreasuryWithdrawalDestination = *p.TreasuryWithdrawalDestination
	}
	if p.RequiresSignOff != nil {
		h.RequiresSignOff = *p.RequiresSignOff
	}
	if p.CanChangeSalePrice != nil {
		h.CanChangeSalePrice = *p.CanChangeSalePrice
	}
	if err := h.Save(tx); err != nil {
		return nil, err
	}
	return h, nil
}

// WithdrawFromTreasury moves collected fees to the treasury withdrawal
// destination.
func WithdrawFromTreasury(tx ledger.Tx, addr solana.PublicKey, amount uint64, signers Signers) error {
	h, err := Load(tx, addr)
	if err != nil {
		return err
	}
	if err := h.requireAuthority(signers); err != nil {
		return err
	}
	if h.IsNative() {
		return ledger.TransferLamports(tx, h.AuctionHouseTreasury, h.TreasuryWithdrawalDestination, amount)
	}
	return ledger.TransferTokens(tx, h.AuctionHouseTreasury, h.TreasuryWithdrawalDestination, h.Address, amount)
}

// WithdrawFromFee moves lamports out of the house fee account.
func WithdrawFromFee(tx ledger.Tx, addr solana.PublicKey, amount uint64, signers Signers) error {
	h, err := Load(tx, addr)
	if err != nil {
		return err
	}
	if err := h.requireAuthority(signers); err != nil {
		return err
	}
	return ledger.TransferLamports(tx, h.AuctionHouseFeeAccount, h.FeeWithdrawalDestination, amount)
}
