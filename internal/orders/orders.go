// Package orders implements the instructions that place value under the
// control of the auction house: escrow deposits and withdrawals, listings,
// bids and their cancellation. Each instruction runs under a
// house.Authorizer so the same code serves direct and auctioneer calls.
package orders

import (
	"errors"

	"github.com/gagliardetto/solana-go"

	"github.com/xtrntr/auctionhouse/internal/errcode"
	"github.com/xtrntr/auctionhouse/internal/escrow"
	"github.com/xtrntr/auctionhouse/internal/house"
	"github.com/xtrntr/auctionhouse/internal/ledger"
	"github.com/xtrntr/auctionhouse/internal/models"
	"github.com/xtrntr/auctionhouse/internal/pda"
	"github.com/xtrntr/auctionhouse/internal/tradestate"
)

// feePayer is the authority when it signed and the wallet otherwise.
func feePayer(h *house.House, wallet solana.PublicKey, signers house.Signers) solana.PublicKey {
	if signers.Has(h.Authority) {
		return h.Authority
	}
	return wallet
}

func begin(tx ledger.Tx, authz house.Authorizer, addr solana.PublicKey, req house.Request) (*house.House, error) {
	h, err := house.Load(tx, addr)
	if err != nil {
		return nil, err
	}
	if err := authz.Authorize(tx, h, req); err != nil {
		return nil, err
	}
	return h, nil
}

func requireSigner(signers house.Signers, wallet solana.PublicKey) error {
	if !signers.Has(wallet) {
		return errcode.NoValidSignerPresent.Wrap("wallet %s must sign", wallet)
	}
	return nil
}

// DepositParams funds a buyer escrow. PaymentAccount is the wallet itself
// for a native house and a treasury mint token account otherwise.
type DepositParams struct {
	AuctionHouse      solana.PublicKey
	Wallet            solana.PublicKey
	PaymentAccount    solana.PublicKey
	TransferAuthority solana.PublicKey
	Amount            uint64
}

// Deposit moves Amount into the wallet's escrow.
func Deposit(tx ledger.Tx, authz house.Authorizer, p DepositParams, signers house.Signers) error {
	h, err := begin(tx, authz, p.AuctionHouse, house.Request{Scope: models.ScopeDeposit, Wallet: p.Wallet, Signers: signers})
	if err != nil {
		return err
	}
	if err := requireSigner(signers, p.Wallet); err != nil {
		return err
	}
	esc, err := escrow.For(h.Address, h.TreasuryMint, p.Wallet)
	if err != nil {
		return err
	}
	if esc.Native() && !p.PaymentAccount.Equals(p.Wallet) {
		return errcode.PublicKeyMismatch.Wrap("native deposits are paid by the wallet")
	}
	authority := p.TransferAuthority
	if authority.IsZero() {
		authority = p.Wallet
	}
	if err := esc.Fund(tx, feePayer(h, p.Wallet, signers), p.PaymentAccount, authority, p.Amount); err != nil {
		return err
	}
	log.Debugf("Deposited %d into escrow %s", p.Amount, esc.Address)
	return nil
}

// WithdrawParams drains a buyer escrow. ReceiptAccount is the wallet for a
// native house and the wallet's associated token account otherwise.
type WithdrawParams struct {
	AuctionHouse   solana.PublicKey
	Wallet         solana.PublicKey
	ReceiptAccount solana.PublicKey
	Amount         uint64
}

// Withdraw returns Amount from the wallet's escrow. The wallet, the house
// authority or a scoped auctioneer may trigger it; funds only ever go back
// to the wallet.
func Withdraw(tx ledger.Tx, authz house.Authorizer, p WithdrawParams, signers house.Signers) error {
	h, err := begin(tx, authz, p.AuctionHouse, house.Request{Scope: models.ScopeWithdraw, Wallet: p.Wallet, Signers: signers})
	if err != nil {
		return err
	}
	esc, err := escrow.For(h.Address, h.TreasuryMint, p.Wallet)
	if err != nil {
		return err
	}
	if esc.Native() {
		if !p.ReceiptAccount.Equals(p.Wallet) {
			return errcode.PublicKeyMismatch.Wrap("receipt account must be the wallet")
		}
	} else {
		ata, _, err := ledger.EnsureAssociatedTokenAccount(tx, feePayer(h, p.Wallet, signers), p.Wallet, h.TreasuryMint)
		if err != nil {
			return err
		}
		if !ata.Equals(p.ReceiptAccount) {
			return errcode.PublicKeyMismatch.Wrap("receipt account must be %s", ata)
		}
	}
	if err := esc.Pay(tx, p.ReceiptAccount, p.Amount); err != nil {
		return err
	}
	log.Debugf("Withdrew %d from escrow %s", p.Amount, esc.Address)
	return nil
}

// OrderParams describes a listing or a bid.
type OrderParams struct {
	AuctionHouse solana.PublicKey
	Wallet       solana.PublicKey
	// TokenAccount holds the listed tokens. It is ignored for public bids.
	TokenAccount solana.PublicKey
	TokenMint    solana.PublicKey
	// PaymentAccount funds a bid, see DepositParams.
	PaymentAccount    solana.PublicKey
	TransferAuthority solana.PublicKey
	BuyerPrice        uint64
	TokenSize         uint64
}

func (p OrderParams) order(h *house.House) tradestate.Order {
	return tradestate.Order{
		Wallet:       p.Wallet,
		AuctionHouse: h.Address,
		TokenAccount: p.TokenAccount,
		TreasuryMint: h.TreasuryMint,
		TokenMint:    p.TokenMint,
		Price:        p.BuyerPrice,
		Size:         p.TokenSize,
	}
}

func checkTokenAccount(tx ledger.Tx, addr, mint solana.PublicKey) (*models.TokenAccount, error) {
	ta, err := ledger.GetTokenAccount(tx, addr)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return nil, errcode.AccountNotInitialized.Wrap("token account %s", addr)
	}
	if err != nil {
		return nil, err
	}
	if !ta.Mint.Equals(mint) {
		return nil, errcode.MintMismatch.Wrap("token account %s", addr)
	}
	return ta, nil
}

// Sell lists TokenSize units held in TokenAccount at BuyerPrice. The
// program signer is approved as delegate for exactly TokenSize units and
// the seller trade state is opened. A zero price listing opens the free
// trade state itself.
func Sell(tx ledger.Tx, authz house.Authorizer, p OrderParams, signers house.Signers) (solana.PublicKey, error) {
	h, err := begin(tx, authz, p.AuctionHouse, house.Request{Scope: models.ScopeSell, Wallet: p.Wallet, Signers: signers})
	if err != nil {
		return solana.PublicKey{}, err
	}
	if err := requireSigner(signers, p.Wallet); err != nil {
		return solana.PublicKey{}, err
	}
	if p.TokenAccount.IsZero() {
		return solana.PublicKey{}, errcode.AccountNotInitialized.Wrap("listing requires a token account")
	}
	ta, err := checkTokenAccount(tx, p.TokenAccount, p.TokenMint)
	if err != nil {
		return solana.PublicKey{}, err
	}
	if !ta.Owner.Equals(p.Wallet) {
		return solana.PublicKey{}, errcode.IncorrectOwner.Wrap("token account %s", p.TokenAccount)
	}
	if p.TokenSize == 0 || ta.Amount < p.TokenSize {
		return solana.PublicKey{}, errcode.InvalidTokenAmount.Wrap("listing %d of %d", p.TokenSize, ta.Amount)
	}

	signer, _, err := pda.ProgramAsSigner()
	if err != nil {
		return solana.PublicKey{}, err
	}
	if err := ledger.Approve(tx, p.TokenAccount, p.Wallet, signer, p.TokenSize); err != nil {
		return solana.PublicKey{}, err
	}

	addr, bump, err := tradestate.Derive(p.order(h))
	if err != nil {
		return solana.PublicKey{}, err
	}
	if err := tradestate.Open(tx, feePayer(h, p.Wallet, signers), addr, bump); err != nil {
		return solana.PublicKey{}, err
	}
	log.Debugf("Listed %d of %s at %d (trade state %s)", p.TokenSize, p.TokenMint, p.BuyerPrice, addr)
	return addr, nil
}

// Buy places a bid on the listing held in TokenAccount. The bid price is
// added to the buyer's escrow and the buyer trade state is opened.
func Buy(tx ledger.Tx, authz house.Authorizer, p OrderParams, signers house.Signers) (solana.PublicKey, error) {
	if p.TokenAccount.IsZero() {
		return solana.PublicKey{}, errcode.AccountNotInitialized.Wrap("private bid requires a token account")
	}
	return bid(tx, authz, models.ScopeBuy, p, signers)
}

// PublicBuy places a bid on any token account holding TokenMint.
func PublicBuy(tx ledger.Tx, authz house.Authorizer, p OrderParams, signers house.Signers) (solana.PublicKey, error) {
	p.TokenAccount = solana.PublicKey{}
	return bid(tx, authz, models.ScopePublicBuy, p, signers)
}

func bid(tx ledger.Tx, authz house.Authorizer, scope models.AuthorityScope, p OrderParams, signers house.Signers) (solana.PublicKey, error) {
	h, err := begin(tx, authz, p.AuctionHouse, house.Request{Scope: scope, Wallet: p.Wallet, Signers: signers})
	if err != nil {
		return solana.PublicKey{}, err
	}
	if err := requireSigner(signers, p.Wallet); err != nil {
		return solana.PublicKey{}, err
	}
	if p.TokenSize == 0 {
		return solana.PublicKey{}, errcode.InvalidTokenAmount.Wrap("bid size 0")
	}
	if !p.TokenAccount.IsZero() {
		if _, err := checkTokenAccount(tx, p.TokenAccount, p.TokenMint); err != nil {
			return solana.PublicKey{}, err
		}
	}

	esc, err := escrow.For(h.Address, h.TreasuryMint, p.Wallet)
	if err != nil {
		return solana.PublicKey{}, err
	}
	payment := p.PaymentAccount
	if esc.Native() {
		payment = p.Wallet
	}
	authority := p.TransferAuthority
	if authority.IsZero() {
		authority = p.Wallet
	}
	payer := feePayer(h, p.Wallet, signers)
	if err := esc.Fund(tx, payer, payment, authority, p.BuyerPrice); err != nil {
		return solana.PublicKey{}, err
	}

	addr, bump, err := tradestate.Derive(p.order(h))
	if err != nil {
		return solana.PublicKey{}, err
	}
	if err := tradestate.Open(tx, payer, addr, bump); err != nil {
		return solana.PublicKey{}, err
	}
	log.Debugf("Bid %d for %d of %s (trade state %s)", p.BuyerPrice, p.TokenSize, p.TokenMint, addr)
	return addr, nil
}

// CancelParams identifies the order to withdraw. A zero TokenAccount
// cancels a public bid.
type CancelParams struct {
	OrderParams
	TradeState solana.PublicKey
}

// Cancel closes an open listing or bid. The marker rent goes to the fee
// payer and a listing's delegation is revoked. Escrowed funds stay in the
// escrow until withdrawn.
func Cancel(tx ledger.Tx, authz house.Authorizer, p CancelParams, signers house.Signers) error {
	h, err := begin(tx, authz, p.AuctionHouse, house.Request{Scope: models.ScopeCancel, Wallet: p.Wallet, Signers: signers})
	if err != nil {
		return err
	}
	if _, err := tradestate.ValidateOpen(tx, p.TradeState, p.order(h), errcode.TradeStateDoesntExist); err != nil {
		return err
	}

	if !p.TokenAccount.IsZero() {
		ta, err := ledger.GetTokenAccount(tx, p.TokenAccount)
		if err != nil && !errors.Is(err, ledger.ErrAccountNotFound) {
			return err
		}
		signer, _, perr := pda.ProgramAsSigner()
		if perr != nil {
			return perr
		}
		if ta != nil && ta.Owner.Equals(p.Wallet) && ta.Delegate.Equals(signer) {
			if err := ledger.Revoke(tx, p.TokenAccount, p.Wallet); err != nil {
				return err
			}
		}
	}

	if _, err := tradestate.Close(tx, p.TradeState, feePayer(h, p.Wallet, signers)); err != nil {
		return err
	}
	log.Debugf("Cancelled trade state %s", p.TradeState)
	return nil
}
