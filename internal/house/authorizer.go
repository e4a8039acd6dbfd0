package house

import (
	"github.com/gagliardetto/solana-go"

	"github.com/xtrntr/auctionhouse/internal/errcode"
	"github.com/xtrntr/auctionhouse/internal/ledger"
	"github.com/xtrntr/auctionhouse/internal/models"
)

// Request describes an action to authorize. Wallet is the order owner for
// wallet scoped actions and zero for settlement.
type Request struct {
	Scope   models.AuthorityScope
	Wallet  solana.PublicKey
	Signers Signers
}

// Authorizer decides whether a request may act on a house. Every
// instruction runs the same logic under one of two authorizers: the house
// authority itself or a scoped auctioneer delegate.
type Authorizer interface {
	Authorize(tx ledger.Tx, h *House, req Request) error
}

// HouseAuthority authorizes through the house authority or, for wallet
// actions on houses without sign off, the wallet owner.
type HouseAuthority struct{}

// Authorize implements Authorizer.
func (HouseAuthority) Authorize(_ ledger.Tx, h *House, req Request) error {
	if h.HasAuctioneer && h.Scopes.Has(req.Scope) {
		return errcode.MustUseAuctioneerHandler.Wrap("%s is delegated", req.Scope)
	}
	if req.Signers.Has(h.Authority) {
		return nil
	}
	if req.Scope == models.ScopeExecuteSale || req.Wallet.IsZero() {
		return errcode.CannotTakeThisActionWithoutAuctionHouseSignOff
	}
	if !req.Signers.Has(req.Wallet) {
		return errcode.NoValidSignerPresent
	}
	if h.RequiresSignOff {
		return errcode.CannotTakeThisActionWithoutAuctionHouseSignOff
	}
	return nil
}

// AuctioneerAuthority authorizes through the registered delegate Authority.
type AuctioneerAuthority struct {
	Authority solana.PublicKey
}

// Authorize implements Authorizer.
func (a AuctioneerAuthority) Authorize(tx ledger.Tx, h *House, req Request) error {
	recAddr, rec, err := LoadAuctioneer(tx, h.Address, a.Authority)
	if err != nil {
		return err
	}
	if !h.HasAuctioneer {
		return errcode.NoAuctioneerProgramSet
	}
	if !h.AuctioneerAddress.Equals(recAddr) ||
		!rec.AuctionHouse.Equals(h.Address) ||
		!rec.AuctioneerAuthority.Equals(a.Authority) {
		return errcode.InvalidAuctioneer.Wrap("%s", a.Authority)
	}
	if !rec.Scopes.Has(req.Scope) {
		return errcode.MissingAuctioneerScope.Wrap("%s", req.Scope)
	}
	if !req.Signers.Has(a.Authority) {
		return errcode.NoValidSignerPresent.Wrap("auctioneer %s must sign", a.Authority)
	}
	return nil
}
