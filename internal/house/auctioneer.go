package house

import (
	"github.com/gagliardetto/solana-go"

	"github.com/xtrntr/auctionhouse/internal/errcode"
	"github.com/xtrntr/auctionhouse/internal/ledger"
	"github.com/xtrntr/auctionhouse/internal/models"
	"github.com/xtrntr/auctionhouse/internal/pda"
)

// LoadAuctioneer reads the delegate record of authority on house.
func LoadAuctioneer(tx ledger.Tx, house, authority solana.PublicKey) (solana.PublicKey, *models.Auctioneer, error) {
	addr, _, err := pda.Auctioneer(house, authority)
	if err != nil {
		return solana.PublicKey{}, nil, err
	}
	var a models.Auctioneer
	if _, err := ledger.GetState(tx, addr, pda.ProgramID, &a); err != nil {
		return addr, nil, err
	}
	return addr, &a, nil
}

// DelegateAuctioneer registers auctioneerAuthority as the single delegate of
// the house with the given scopes. The house authority must sign and pays
// for the record.
func DelegateAuctioneer(tx ledger.Tx, addr, auctioneerAuthority solana.PublicKey, scopes models.Scopes, signers Signers) error {
	h, err := Load(tx, addr)
	if err != nil {
		return err
	}
	if err := h.requireAuthority(signers); err != nil {
		return err
	}
	if h.HasAuctioneer {
		return errcode.AuctionHouseAlreadyDelegated.Wrap("delegated to %s", h.AuctioneerAddress)
	}

	recAddr, bump, err := pda.Auctioneer(addr, auctioneerAuthority)
	if err != nil {
		return err
	}
	data, err := models.Marshal(&models.Auctioneer{
		AuctioneerAuthority: auctioneerAuthority,
		AuctionHouse:        addr,
		Scopes:              scopes,
		Bump:                bump,
	})
	if err != nil {
		return err
	}
	if err := ledger.CreateAccount(tx, h.Authority, recAddr, AuctioneerRent, pda.ProgramID, data); err != nil {
		return err
	}

	h.HasAuctioneer = true
	h.AuctioneerAddress = recAddr
	h.Scopes = scopes
	if err := h.Save(tx); err != nil {
		return err
	}
	log.Infof("House %s delegated to auctioneer %s with scopes %v", addr, auctioneerAuthority, scopes.List())
	return nil
}

// UpdateAuctioneer replaces the scopes of an existing delegate.
func UpdateAuctioneer(tx ledger.Tx, addr, auctioneerAuthority solana.PublicKey, scopes models.Scopes, signers Signers) error {
	h, err := Load(tx, addr)
	if err != nil {
		return err
	}
	if err := h.requireAuthority(signers); err != nil {
		return err
	}
	recAddr, rec, err := LoadAuctioneer(tx, addr, auctioneerAuthority)
	if err != nil {
		return err
	}
	if !h.HasAuctioneer {
		return errcode.NoAuctioneerProgramSet
	}
	if !h.AuctioneerAddress.Equals(recAddr) {
		return errcode.InvalidAuctioneer.Wrap("house delegates to %s", h.AuctioneerAddress)
	}
	acct, err := tx.Get(recAddr)
	if err != nil {
		return err
	}
	rec.Scopes = scopes
	if err := ledger.PutState(tx, recAddr, acct, rec); err != nil {
		return err
	}
	h.Scopes = scopes
	return h.Save(tx)
}
