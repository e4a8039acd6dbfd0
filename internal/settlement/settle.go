package settlement

import (
	"errors"
	"math/bits"
	"time"

	token_metadata "github.com/gagliardetto/metaplex-go/clients/token-metadata"
	"github.com/gagliardetto/solana-go"

	"github.com/xtrntr/auctionhouse/internal/errcode"
	"github.com/xtrntr/auctionhouse/internal/escrow"
	"github.com/xtrntr/auctionhouse/internal/house"
	"github.com/xtrntr/auctionhouse/internal/ledger"
	"github.com/xtrntr/auctionhouse/internal/models"
	"github.com/xtrntr/auctionhouse/internal/pda"
	"github.com/xtrntr/auctionhouse/internal/tradestate"
)

// Settle validates and applies one settlement inside tx. On error the
// caller must discard tx; a failed settlement never changes an account.
func Settle(tx ledger.Tx, authz house.Authorizer, a Accounts, args Args, signers house.Signers, now time.Time) (*Result, error) {
	h, err := loadHouse(tx, a)
	if err != nil {
		return nil, err
	}
	if err := authz.Authorize(tx, h, house.Request{Scope: models.ScopeExecuteSale, Signers: signers}); err != nil {
		return nil, err
	}

	sellerOrder := tradestate.Order{
		Wallet:       a.Seller,
		AuctionHouse: h.Address,
		TokenAccount: a.TokenAccount,
		TreasuryMint: h.TreasuryMint,
		TokenMint:    a.TokenMint,
		Price:        args.BuyerPrice,
		Size:         args.TokenSize,
	}
	esc, programSigner, err := checkDerivedAccounts(a, args, h, sellerOrder)
	if err != nil {
		return nil, err
	}

	size, price, partial, err := fillSize(args)
	if err != nil {
		return nil, err
	}
	token, err := sellerTokenAccount(tx, a.TokenAccount)
	if err != nil {
		return nil, err
	}
	if partial {
		if token.Amount < size {
			return nil, errcode.NotEnoughTokensAvailableForPurchase.Wrap("requested %d, %d available", size, token.Amount)
		}
		if err := checkPartialPrice(args, size, price); err != nil {
			return nil, err
		}
	}

	if _, err := tradestate.ValidateOpen(tx, a.SellerTradeState, sellerOrder, errcode.InvalidSeeds); err != nil {
		return nil, err
	}
	buyerOrder := tradestate.Order{
		Wallet:       a.Buyer,
		AuctionHouse: h.Address,
		TokenAccount: a.TokenAccount,
		TreasuryMint: h.TreasuryMint,
		TokenMint:    a.TokenMint,
		Price:        price,
		Size:         size,
	}
	_, err = tradestate.ValidateOpen(tx, a.BuyerTradeState, buyerOrder, errcode.BuyerTradeStateNotValid)
	if errors.Is(err, errcode.InvalidSeeds) {
		_, err = tradestate.ValidateOpen(tx, a.BuyerTradeState, buyerOrder.Public(), errcode.BuyerTradeStateNotValid)
	}
	if err != nil {
		return nil, err
	}

	if !token.Owner.Equals(a.Seller) || !token.Mint.Equals(a.TokenMint) {
		return nil, errcode.IncorrectOwner.Wrap("token account %s is not the seller's %s account", a.TokenAccount, a.TokenMint)
	}
	meta, err := loadMetadata(tx, a.Metadata, a.TokenMint)
	if err != nil {
		return nil, err
	}
	if price == 0 && !signers.Has(h.Authority) && !signers.Has(a.Seller) {
		return nil, errcode.CannotMatchFreeSalesWithoutAuctionHouseOrSellerSignoff
	}
	split, err := house.SplitPrice(price, h.SellerFeeBasisPoints, meta)
	if err != nil {
		return nil, err
	}
	if err := checkCreators(a.Creators, meta); err != nil {
		return nil, err
	}

	feePayer := h.FeePayer(signers)
	if err := prepareBuyerReceipt(tx, a, feePayer); err != nil {
		return nil, err
	}
	if err := prepareSellerReceipt(tx, a, h, feePayer); err != nil {
		return nil, err
	}

	bal, err := esc.Balance(tx)
	if err != nil {
		return nil, err
	}
	if bal < price {
		return nil, errcode.InsufficientFunds.Wrap("escrow %s holds %d, price is %d", esc.Address, bal, price)
	}

	// Proceeds: creators, then the house, then the seller.
	for i, c := range meta.Creators {
		fee := split.CreatorFees[i]
		if fee == 0 {
			continue
		}
		dest := c.Address
		if !h.IsNative() {
			if dest, _, err = ledger.EnsureAssociatedTokenAccount(tx, feePayer, c.Address, h.TreasuryMint); err != nil {
				return nil, err
			}
		}
		if err := esc.Pay(tx, dest, fee); err != nil {
			return nil, err
		}
	}
	if err := esc.Pay(tx, h.AuctionHouseTreasury, split.HouseFee); err != nil {
		return nil, err
	}
	if err := esc.Pay(tx, a.SellerPaymentReceiptAccount, split.SellerProceeds); err != nil {
		return nil, err
	}

	if err := ledger.TransferTokens(tx, a.TokenAccount, a.BuyerReceiptTokenAccount, programSigner, size); err != nil {
		return nil, err
	}

	if _, err := tradestate.Close(tx, a.BuyerTradeState, feePayer); err != nil {
		return nil, err
	}
	remaining := token.Amount - size
	closed := size == args.TokenSize || remaining == 0
	if closed {
		if _, err := tradestate.Close(tx, a.SellerTradeState, feePayer); err != nil {
			return nil, err
		}
		if !a.FreeTradeState.Equals(a.SellerTradeState) {
			open, err := tradestate.IsOpen(tx, a.FreeTradeState)
			if err != nil {
				return nil, err
			}
			if open {
				if _, err := tradestate.Close(tx, a.FreeTradeState, feePayer); err != nil {
					return nil, err
				}
			}
		}
	}

	receiptAddr, receiptBump, err := pda.PurchaseReceiptAddress(a.SellerTradeState, a.BuyerTradeState)
	if err != nil {
		return nil, err
	}
	res := &Result{
		Receipt: models.PurchaseReceipt{
			Address:      receiptAddr,
			Bookkeeper:   feePayer,
			Buyer:        a.Buyer,
			Seller:       a.Seller,
			AuctionHouse: h.Address,
			Metadata:     a.Metadata,
			TokenMint:    a.TokenMint,
			TokenSize:    size,
			Price:        price,
			Bump:         receiptBump,
			CreatedAt:    now.Unix(),
		},
		Split:  *split,
		Closed: closed,
	}
	if res.Seq, err = tx.AppendReceipt(&res.Receipt); err != nil {
		return nil, err
	}
	return res, nil
}

// loadHouse loads the house and checks the supplied house accounts belong
// to it.
func loadHouse(tx ledger.Tx, a Accounts) (*house.House, error) {
	h, err := house.Load(tx, a.AuctionHouse)
	if err != nil {
		return nil, err
	}
	switch {
	case !h.Authority.Equals(a.Authority):
		return nil, errcode.ConstraintHasOne.Wrap("authority")
	case !h.TreasuryMint.Equals(a.TreasuryMint):
		return nil, errcode.ConstraintHasOne.Wrap("treasury_mint")
	case !h.AuctionHouseFeeAccount.Equals(a.AuctionHouseFeeAccount):
		return nil, errcode.ConstraintHasOne.Wrap("auction_house_fee_account")
	case !h.AuctionHouseTreasury.Equals(a.AuctionHouseTreasury):
		return nil, errcode.ConstraintHasOne.Wrap("auction_house_treasury")
	}

	houseAddr, _, err := pda.AuctionHouse(h.Creator, h.TreasuryMint)
	if err != nil {
		return nil, err
	}
	if !houseAddr.Equals(a.AuctionHouse) {
		return nil, errcode.InvalidSeeds.Wrap("auction_house")
	}
	feeAccount, feeBump, err := pda.FeeAccount(h.Address)
	if err != nil {
		return nil, err
	}
	if !feeAccount.Equals(a.AuctionHouseFeeAccount) || feeBump != h.FeePayerBump {
		return nil, errcode.InvalidSeeds.Wrap("auction_house_fee_account")
	}
	treasury, treasuryBump, err := pda.TreasuryAccount(h.Address)
	if err != nil {
		return nil, err
	}
	if !treasury.Equals(a.AuctionHouseTreasury) || treasuryBump != h.TreasuryBump {
		return nil, errcode.InvalidSeeds.Wrap("auction_house_treasury")
	}
	return h, nil
}

// checkDerivedAccounts re-derives the escrow, the program signer and the
// free trade state and compares them, and the caller's bumps, against the
// supplied accounts.
func checkDerivedAccounts(a Accounts, args Args, h *house.House, sellerOrder tradestate.Order) (escrow.Account, solana.PublicKey, error) {
	esc, err := escrow.For(h.Address, h.TreasuryMint, a.Buyer)
	if err != nil {
		return escrow.Account{}, solana.PublicKey{}, err
	}
	if !esc.Address.Equals(a.EscrowPaymentAccount) {
		return escrow.Account{}, solana.PublicKey{}, errcode.InvalidSeeds.Wrap("escrow_payment_account")
	}
	signer, signerBump, err := pda.ProgramAsSigner()
	if err != nil {
		return escrow.Account{}, solana.PublicKey{}, err
	}
	if !signer.Equals(a.ProgramAsSigner) {
		return escrow.Account{}, solana.PublicKey{}, errcode.InvalidSeeds.Wrap("program_as_signer")
	}
	free, freeBump, err := tradestate.Derive(sellerOrder.Free())
	if err != nil {
		return escrow.Account{}, solana.PublicKey{}, err
	}
	if !free.Equals(a.FreeTradeState) {
		return escrow.Account{}, solana.PublicKey{}, errcode.InvalidSeeds.Wrap("free_trade_state")
	}

	switch {
	case args.EscrowPaymentBump != esc.Bump:
		return escrow.Account{}, solana.PublicKey{}, errcode.BumpSeedNotInHashMap.Wrap("escrow_payment_bump")
	case args.ProgramAsSignerBump != signerBump:
		return escrow.Account{}, solana.PublicKey{}, errcode.BumpSeedNotInHashMap.Wrap("program_as_signer_bump")
	case args.FreeTradeStateBump != freeBump:
		return escrow.Account{}, solana.PublicKey{}, errcode.BumpSeedNotInHashMap.Wrap("free_trade_state_bump")
	}
	return esc, signer, nil
}

// fillSize returns the size and price being settled.
func fillSize(args Args) (size, price uint64, partial bool, err error) {
	if (args.PartialOrderSize == nil) != (args.PartialOrderPrice == nil) {
		return 0, 0, false, errcode.MissingElementsNeededForPartialBuy
	}
	size, price = args.TokenSize, args.BuyerPrice
	if args.PartialOrderSize != nil {
		size, price, partial = *args.PartialOrderSize, *args.PartialOrderPrice, true
	}
	if size == 0 || args.TokenSize == 0 {
		return 0, 0, false, errcode.InvalidTokenAmount.Wrap("size %d of %d", size, args.TokenSize)
	}
	return size, price, partial, nil
}

// checkPartialPrice requires price == size * (BuyerPrice / TokenSize) in
// integer arithmetic.
func checkPartialPrice(args Args, size, price uint64) error {
	unit := args.BuyerPrice / args.TokenSize
	hi, expected := bits.Mul64(size, unit)
	if hi != 0 {
		return errcode.NumericalOverflow.Wrap("%d * %d", size, unit)
	}
	if price != expected {
		return errcode.PartialBuyPriceMismatch.Wrap("price %d, expected %d for %d units", price, expected, size)
	}
	return nil
}

func sellerTokenAccount(tx ledger.Tx, addr solana.PublicKey) (*models.TokenAccount, error) {
	ta, err := ledger.GetTokenAccount(tx, addr)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return nil, errcode.AccountNotInitialized.Wrap("token account %s", addr)
	}
	return ta, err
}

func loadMetadata(tx ledger.Tx, addr, mint solana.PublicKey) (*models.Metadata, error) {
	expected, err := pda.Metadata(mint)
	if err != nil {
		return nil, err
	}
	if !expected.Equals(addr) {
		return nil, errcode.DerivedKeyInvalid.Wrap("metadata %s", addr)
	}
	var meta models.Metadata
	if _, err := ledger.GetState(tx, addr, token_metadata.ProgramID, &meta); err != nil {
		if errors.Is(err, errcode.AccountNotInitialized) {
			return nil, errcode.MetadataDoesntExist.Wrap("%s", addr)
		}
		return nil, err
	}
	if !meta.Mint.Equals(mint) {
		return nil, errcode.DerivedKeyInvalid.Wrap("metadata %s describes %s", addr, meta.Mint)
	}
	return &meta, nil
}

func checkCreators(supplied []solana.PublicKey, meta *models.Metadata) error {
	for i, c := range meta.Creators {
		if i >= len(supplied) {
			return errcode.PublicKeyMismatch.Wrap("creator %s not supplied", c.Address)
		}
		if !supplied[i].Equals(c.Address) {
			return errcode.PublicKeyMismatch.Wrap("creator %d is %s, got %s", i, c.Address, supplied[i])
		}
	}
	return nil
}

// prepareBuyerReceipt validates the buyer's receipt token account, creating
// the buyer's associated token account when it does not exist yet.
func prepareBuyerReceipt(tx ledger.Tx, a Accounts, feePayer solana.PublicKey) error {
	ta, err := ledger.GetTokenAccount(tx, a.BuyerReceiptTokenAccount)
	switch {
	case err == nil:
		if !ta.Owner.Equals(a.Buyer) || !ta.Mint.Equals(a.TokenMint) {
			return errcode.PublicKeyMismatch.Wrap("buyer receipt %s", a.BuyerReceiptTokenAccount)
		}
		if ta.HasDelegate() {
			return errcode.BuyerATACannotHaveDelegate
		}
		return nil
	case !errors.Is(err, ledger.ErrAccountNotFound):
		return err
	}
	ata, err := pda.AssociatedTokenAccount(a.Buyer, a.TokenMint)
	if err != nil {
		return err
	}
	if !ata.Equals(a.BuyerReceiptTokenAccount) {
		return errcode.PublicKeyMismatch.Wrap("buyer receipt must be %s", ata)
	}
	_, _, err = ledger.EnsureAssociatedTokenAccount(tx, feePayer, a.Buyer, a.TokenMint)
	return err
}

// prepareSellerReceipt validates where the seller is paid: the seller
// wallet for a native house, the seller's treasury mint associated token
// account otherwise.
func prepareSellerReceipt(tx ledger.Tx, a Accounts, h *house.House, feePayer solana.PublicKey) error {
	if h.IsNative() {
		if !a.SellerPaymentReceiptAccount.Equals(a.Seller) {
			return errcode.PublicKeyMismatch.Wrap("seller payment receipt must be the seller")
		}
		return nil
	}
	ata, err := pda.AssociatedTokenAccount(a.Seller, h.TreasuryMint)
	if err != nil {
		return err
	}
	if !ata.Equals(a.SellerPaymentReceiptAccount) {
		return errcode.PublicKeyMismatch.Wrap("seller payment receipt must be %s", ata)
	}
	if _, _, err := ledger.EnsureAssociatedTokenAccount(tx, feePayer, a.Seller, h.TreasuryMint); err != nil {
		return err
	}
	ta, err := ledger.GetTokenAccount(tx, ata)
	if err != nil {
		return err
	}
	if ta.HasDelegate() {
		return errcode.SellerATACannotHaveDelegate
	}
	return nil
}
