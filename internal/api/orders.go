package api

import (
	"encoding/json"
	"net/http"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"github.com/xtrntr/auctionhouse/internal/escrow"
	"github.com/xtrntr/auctionhouse/internal/house"
	"github.com/xtrntr/auctionhouse/internal/ledger"
	"github.com/xtrntr/auctionhouse/internal/orders"
	"github.com/xtrntr/auctionhouse/internal/pda"
)

// orderRequest is the body shared by the order endpoints. Amounts are in
// UI units of the house treasury mint; Size is in base units of the
// listed mint. Wallet defaults to the caller.
type orderRequest struct {
	Wallet            *solana.PublicKey `json:"wallet,omitempty"`
	TokenAccount      solana.PublicKey  `json:"token_account"`
	TokenMint         solana.PublicKey  `json:"token_mint"`
	PaymentAccount    solana.PublicKey  `json:"payment_account"`
	TransferAuthority solana.PublicKey  `json:"transfer_authority"`
	ReceiptAccount    solana.PublicKey  `json:"receipt_account"`
	TradeState        solana.PublicKey  `json:"trade_state"`
	Price             decimal.Decimal   `json:"price"`
	Amount            decimal.Decimal   `json:"amount"`
	Size              uint64            `json:"size"`
	// Auctioneer routes the call through the named delegate, which must be
	// among the signers.
	Auctioneer *solana.PublicKey `json:"auctioneer,omitempty"`
	Cosigners  []string          `json:"cosigners"`
}

type orderCall struct {
	house   solana.PublicKey
	wallet  solana.PublicKey
	req     orderRequest
	signers house.Signers
	authz   house.Authorizer
}

// treasury returns the house treasury mint and converts a UI amount into
// its base units.
func (c *orderCall) treasury(tx ledger.Tx, d decimal.Decimal) (solana.PublicKey, uint64, error) {
	h, err := house.Load(tx, c.house)
	if err != nil {
		return solana.PublicKey{}, 0, err
	}
	decimals, err := mintDecimals(tx, h.TreasuryMint)
	if err != nil {
		return solana.PublicKey{}, 0, err
	}
	v, err := toBaseUnits(d, decimals)
	return h.TreasuryMint, v, err
}

// paymentAccount defaults to the wallet itself for a native house and the
// wallet's associated token account otherwise.
func (c *orderCall) paymentAccount(treasuryMint solana.PublicKey) (solana.PublicKey, error) {
	if !c.req.PaymentAccount.IsZero() {
		return c.req.PaymentAccount, nil
	}
	if treasuryMint.Equals(solana.SolMint) {
		return c.wallet, nil
	}
	return pda.AssociatedTokenAccount(c.wallet, treasuryMint)
}

func (c *orderCall) params(treasuryMint solana.PublicKey, price uint64) (orders.OrderParams, error) {
	payment, err := c.paymentAccount(treasuryMint)
	if err != nil {
		return orders.OrderParams{}, err
	}
	return orders.OrderParams{
		AuctionHouse:      c.house,
		Wallet:            c.wallet,
		TokenAccount:      c.req.TokenAccount,
		TokenMint:         c.req.TokenMint,
		PaymentAccount:    payment,
		TransferAuthority: c.req.TransferAuthority,
		BuyerPrice:        price,
		TokenSize:         c.req.Size,
	}, nil
}

func (c *orderCall) escrowView(tx ledger.Tx, treasuryMint solana.PublicKey) (map[string]string, error) {
	esc, err := escrow.For(c.house, treasuryMint, c.wallet)
	if err != nil {
		return nil, err
	}
	bal, err := esc.Balance(tx)
	if err != nil {
		return nil, err
	}
	decimals, err := mintDecimals(tx, treasuryMint)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"escrow":  esc.Address.String(),
		"balance": fromBaseUnits(bal, decimals),
	}, nil
}

// runOrder decodes an order request and runs fn in one ledger transaction.
func (h *Handler) runOrder(w http.ResponseWriter, r *http.Request, status int, fn func(tx ledger.Tx, c *orderCall) (interface{}, error)) {
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
	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
		return
	}
	signers, err := h.signers(claims, req.Cosigners)
	if err != nil {
		writeError(w, err)
		return
	}

	c := &orderCall{house: addr, wallet: claims.Wallet, req: req, signers: signers, authz: house.HouseAuthority{}}
	if req.Wallet != nil {
		c.wallet = *req.Wallet
	}
	if req.Auctioneer != nil {
		c.authz = house.AuctioneerAuthority{Authority: *req.Auctioneer}
	}

	var resp interface{}
	err = h.Store.Update(r.Context(), func(tx ledger.Tx) error {
		var err error
		resp, err = fn(tx, c)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, status, resp)
}

// Deposit funds the caller's escrow.
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.runOrder(w, r, http.StatusOK, func(tx ledger.Tx, c *orderCall) (interface{}, error) {
		mint, amount, err := c.treasury(tx, c.req.Amount)
		if err != nil {
			return nil, err
		}
		payment, err := c.paymentAccount(mint)
		if err != nil {
			return nil, err
		}
		err = orders.Deposit(tx, c.authz, orders.DepositParams{
			AuctionHouse:      c.house,
			Wallet:            c.wallet,
			PaymentAccount:    payment,
			TransferAuthority: c.req.TransferAuthority,
			Amount:            amount,
		}, c.signers)
		if err != nil {
			return nil, err
		}
		return c.escrowView(tx, mint)
	})
}

// Withdraw returns escrowed funds to the wallet.
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.runOrder(w, r, http.StatusOK, func(tx ledger.Tx, c *orderCall) (interface{}, error) {
		mint, amount, err := c.treasury(tx, c.req.Amount)
		if err != nil {
			return nil, err
		}
		receipt := c.req.ReceiptAccount
		if receipt.IsZero() {
			if mint.Equals(solana.SolMint) {
				receipt = c.wallet
			} else if receipt, err = pda.AssociatedTokenAccount(c.wallet, mint); err != nil {
				return nil, err
			}
		}
		err = orders.Withdraw(tx, c.authz, orders.WithdrawParams{
			AuctionHouse:   c.house,
			Wallet:         c.wallet,
			ReceiptAccount: receipt,
			Amount:         amount,
		}, c.signers)
		if err != nil {
			return nil, err
		}
		return c.escrowView(tx, mint)
	})
}

// Sell lists tokens.
func (h *Handler) Sell(w http.ResponseWriter, r *http.Request) {
	h.placeOrder(w, r, orders.Sell)
}

// Buy bids on a listing.
func (h *Handler) Buy(w http.ResponseWriter, r *http.Request) {
	h.placeOrder(w, r, orders.Buy)
}

// PublicBuy bids on any holder of a mint.
func (h *Handler) PublicBuy(w http.ResponseWriter, r *http.Request) {
	h.placeOrder(w, r, orders.PublicBuy)
}

type placeFunc func(tx ledger.Tx, authz house.Authorizer, p orders.OrderParams, signers house.Signers) (solana.PublicKey, error)

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request, place placeFunc) {
	h.runOrder(w, r, http.StatusCreated, func(tx ledger.Tx, c *orderCall) (interface{}, error) {
		mint, price, err := c.treasury(tx, c.req.Price)
		if err != nil {
			return nil, err
		}
		p, err := c.params(mint, price)
		if err != nil {
			return nil, err
		}
		addr, err := place(tx, c.authz, p, c.signers)
		if err != nil {
			return nil, err
		}
		return map[string]string{"trade_state": addr.String()}, nil
	})
}

// Cancel withdraws a listing or bid.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.runOrder(w, r, http.StatusOK, func(tx ledger.Tx, c *orderCall) (interface{}, error) {
		mint, price, err := c.treasury(tx, c.req.Price)
		if err != nil {
			return nil, err
		}
		p, err := c.params(mint, price)
		if err != nil {
			return nil, err
		}
		if err := orders.Cancel(tx, c.authz, orders.CancelParams{OrderParams: p, TradeState: c.req.TradeState}, c.signers); err != nil {
			return nil, err
		}
		return map[string]string{"message": "Order canceled"}, nil
	})
}
