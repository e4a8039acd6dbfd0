package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gagliardetto/solana-go"

	"github.com/xtrntr/auctionhouse/internal/errcode"
	"github.com/xtrntr/auctionhouse/internal/house"
	"github.com/xtrntr/auctionhouse/internal/instruction"
	"github.com/xtrntr/auctionhouse/internal/ledger"
	"github.com/xtrntr/auctionhouse/internal/settlement"
)

// HouseView is the public rendering of an auction house.
type HouseView struct {
	Address              string   `json:"address"`
	Authority            string   `json:"authority"`
	Creator              string   `json:"creator"`
	TreasuryMint         string   `json:"treasury_mint"`
	SellerFeeBasisPoints uint16   `json:"seller_fee_basis_points"`
	RequiresSignOff      bool     `json:"requires_sign_off"`
	CanChangeSalePrice   bool     `json:"can_change_sale_price"`
	FeeAccount           string   `json:"fee_account"`
	FeeBalance           string   `json:"fee_balance"`
	Treasury             string   `json:"treasury"`
	TreasuryBalance      string   `json:"treasury_balance"`
	Auctioneer           string   `json:"auctioneer,omitempty"`
	Scopes               []string `json:"scopes,omitempty"`
}

// ReceiptView is a committed settlement as published to clients. Amounts
// suffixed _ui are in treasury mint units.
type ReceiptView struct {
	Seq              uint64 `json:"seq"`
	Address          string `json:"address"`
	AuctionHouse     string `json:"auction_house"`
	Buyer            string `json:"buyer"`
	Seller           string `json:"seller"`
	TokenMint        string `json:"token_mint"`
	TokenSize        uint64 `json:"token_size"`
	Price            uint64 `json:"price"`
	PriceUI          string `json:"price_ui"`
	HouseFeeUI       string `json:"house_fee_ui"`
	RoyaltiesUI      string `json:"royalties_ui"`
	SellerProceedsUI string `json:"seller_proceeds_ui"`
	ListingClosed    bool   `json:"listing_closed"`
	CreatedAt        int64  `json:"created_at"`
}

func newReceiptView(res *settlement.Result, decimals uint8) *ReceiptView {
	rc := res.Receipt
	return &ReceiptView{
		Seq:              res.Seq,
		Address:          rc.Address.String(),
		AuctionHouse:     rc.AuctionHouse.String(),
		Buyer:            rc.Buyer.String(),
		Seller:           rc.Seller.String(),
		TokenMint:        rc.TokenMint.String(),
		TokenSize:        rc.TokenSize,
		Price:            rc.Price,
		PriceUI:          fromBaseUnits(rc.Price, decimals),
		HouseFeeUI:       fromBaseUnits(res.Split.HouseFee, decimals),
		RoyaltiesUI:      fromBaseUnits(res.Split.Royalties, decimals),
		SellerProceedsUI: fromBaseUnits(res.Split.SellerProceeds, decimals),
		ListingClosed:    res.Closed,
		CreatedAt:        rc.CreatedAt,
	}
}

// GetHouse renders a house with its fee and treasury balances.
func (h *Handler) GetHouse(w http.ResponseWriter, r *http.Request) {
	addr, err := houseParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var view *HouseView
	err = h.Store.View(r.Context(), func(tx ledger.Tx) error {
		ah, err := house.Load(tx, addr)
		if err != nil {
			return err
		}
		decimals, err := mintDecimals(tx, ah.TreasuryMint)
		if err != nil {
			return err
		}
		feeBal, err := ledger.Lamports(tx, ah.AuctionHouseFeeAccount)
		if err != nil {
			return err
		}
		var treasuryBal uint64
		if ah.IsNative() {
			treasuryBal, err = ledger.Lamports(tx, ah.AuctionHouseTreasury)
		} else {
			ta, terr := ledger.GetTokenAccount(tx, ah.AuctionHouseTreasury)
			if terr == nil {
				treasuryBal = ta.Amount
			} else if !errors.Is(terr, ledger.ErrAccountNotFound) {
				err = terr
			}
		}
		if err != nil {
			return err
		}

		view = &HouseView{
			Address:              addr.String(),
			Authority:            ah.Authority.String(),
			Creator:              ah.Creator.String(),
			TreasuryMint:         ah.TreasuryMint.String(),
			SellerFeeBasisPoints: ah.SellerFeeBasisPoints,
			RequiresSignOff:      ah.RequiresSignOff,
			CanChangeSalePrice:   ah.CanChangeSalePrice,
			FeeAccount:           ah.AuctionHouseFeeAccount.String(),
			FeeBalance:           fromBaseUnits(feeBal, ledger.NativeDecimals),
			Treasury:             ah.AuctionHouseTreasury.String(),
			TreasuryBalance:      fromBaseUnits(treasuryBal, decimals),
		}
		if ah.HasAuctioneer {
			view.Auctioneer = ah.AuctioneerAddress.String()
			for _, s := range ah.Scopes.List() {
				view.Scopes = append(view.Scopes, s.String())
			}
		}
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// accountsRequest is the JSON form of settlement.Accounts.
type accountsRequest struct {
	Buyer                       solana.PublicKey   `json:"buyer"`
	Seller                      solana.PublicKey   `json:"seller"`
	TokenAccount                solana.PublicKey   `json:"token_account"`
	TokenMint                   solana.PublicKey   `json:"token_mint"`
	Metadata                    solana.PublicKey   `json:"metadata"`
	TreasuryMint                solana.PublicKey   `json:"treasury_mint"`
	EscrowPaymentAccount        solana.PublicKey   `json:"escrow_payment_account"`
	SellerPaymentReceiptAccount solana.PublicKey   `json:"seller_payment_receipt_account"`
	BuyerReceiptTokenAccount    solana.PublicKey   `json:"buyer_receipt_token_account"`
	Authority                   solana.PublicKey   `json:"authority"`
	AuctionHouse                solana.PublicKey   `json:"auction_house"`
	AuctionHouseFeeAccount      solana.PublicKey   `json:"auction_house_fee_account"`
	AuctionHouseTreasury        solana.PublicKey   `json:"auction_house_treasury"`
	BuyerTradeState             solana.PublicKey   `json:"buyer_trade_state"`
	SellerTradeState            solana.PublicKey   `json:"seller_trade_state"`
	FreeTradeState              solana.PublicKey   `json:"free_trade_state"`
	ProgramAsSigner             solana.PublicKey   `json:"program_as_signer"`
	Creators                    []solana.PublicKey `json:"creators"`
}

func (a accountsRequest) accounts() settlement.Accounts {
	return settlement.Accounts{
		Buyer:                       a.Buyer,
		Seller:                      a.Seller,
		TokenAccount:                a.TokenAccount,
		TokenMint:                   a.TokenMint,
		Metadata:                    a.Metadata,
		TreasuryMint:                a.TreasuryMint,
		EscrowPaymentAccount:        a.EscrowPaymentAccount,
		SellerPaymentReceiptAccount: a.SellerPaymentReceiptAccount,
		BuyerReceiptTokenAccount:    a.BuyerReceiptTokenAccount,
		Authority:                   a.Authority,
		AuctionHouse:                a.AuctionHouse,
		AuctionHouseFeeAccount:      a.AuctionHouseFeeAccount,
		AuctionHouseTreasury:        a.AuctionHouseTreasury,
		BuyerTradeState:             a.BuyerTradeState,
		SellerTradeState:            a.SellerTradeState,
		FreeTradeState:              a.FreeTradeState,
		ProgramAsSigner:             a.ProgramAsSigner,
		Creators:                    a.Creators,
	}
}

type executeRequest struct {
	Accounts accountsRequest `json:"accounts"`
	// Data is the base64 instruction data.
	Data string `json:"data"`
	// Auctioneer settles as the caller's delegated auctioneer.
	Auctioneer bool     `json:"auctioneer"`
	Cosigners  []string `json:"cosigners"`
}

// ExecuteSale settles a full listing.
func (h *Handler) ExecuteSale(w http.ResponseWriter, r *http.Request) {
	h.execute(w, r, false)
}

// ExecutePartialSale settles part of a listing.
func (h *Handler) ExecutePartialSale(w http.ResponseWriter, r *http.Request) {
	h.execute(w, r, true)
}

func (h *Handler) execute(w http.ResponseWriter, r *http.Request, partial bool) {
	claims, ok := claimsFrom(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "Unauthorized"})
		return
	}
	addr, err := houseParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
		return
	}
	data, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid instruction data encoding"})
		return
	}
	kind, args, err := instruction.Decode(data)
	if err != nil {
		writeError(w, err)
		return
	}
	if kind != instruction.KindFor(partial, req.Auctioneer) {
		writeError(w, errcode.InstructionMismatch.Wrap("%s sent to %s", kind, instruction.KindFor(partial, req.Auctioneer)))
		return
	}
	accts := req.Accounts.accounts()
	if accts.AuctionHouse.IsZero() {
		accts.AuctionHouse = addr
	}
	if !accts.AuctionHouse.Equals(addr) {
		writeError(w, errBadRequest("auction house does not match route"))
		return
	}
	signers, err := h.signers(claims, req.Cosigners)
	if err != nil {
		writeError(w, err)
		return
	}

	ctx := r.Context()
	var res *settlement.Result
	switch kind {
	case instruction.ExecuteSale:
		res, err = h.Engine.ExecuteSale(ctx, accts, args, signers)
	case instruction.ExecutePartialSale:
		res, err = h.Engine.ExecutePartialSale(ctx, accts, args, signers)
	case instruction.AuctioneerExecuteSale:
		res, err = h.Engine.AuctioneerExecuteSale(ctx, claims.Wallet, accts, args, signers)
	case instruction.AuctioneerExecutePartialSale:
		res, err = h.Engine.AuctioneerExecutePartialSale(ctx, claims.Wallet, accts, args, signers)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	var decimals uint8
	err = h.Store.View(ctx, func(tx ledger.Tx) error {
		ah, err := house.Load(tx, addr)
		if err != nil {
			return err
		}
		decimals, err = mintDecimals(tx, ah.TreasuryMint)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	view := newReceiptView(res, decimals)
	if h.Receipts != nil {
		h.Receipts.PublishReceipt(view)
	}
	writeJSON(w, http.StatusOK, view)
}
