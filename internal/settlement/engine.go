// Package settlement matches a buyer trade state against a seller trade
// state and exchanges escrowed funds for the listed tokens. Full and
// partial fills, direct and auctioneer entry points, all share one
// settlement routine parameterised by a house.Authorizer.
package settlement

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/xtrntr/auctionhouse/internal/house"
	"github.com/xtrntr/auctionhouse/internal/ledger"
	"github.com/xtrntr/auctionhouse/internal/models"
)

// Accounts names every account a settlement reads or writes.
type Accounts struct {
	Buyer                       solana.PublicKey
	Seller                      solana.PublicKey
	TokenAccount                solana.PublicKey
	TokenMint                   solana.PublicKey
	Metadata                    solana.PublicKey
	TreasuryMint                solana.PublicKey
	EscrowPaymentAccount        solana.PublicKey
	SellerPaymentReceiptAccount solana.PublicKey
	BuyerReceiptTokenAccount    solana.PublicKey
	Authority                   solana.PublicKey
	AuctionHouse                solana.PublicKey
	AuctionHouseFeeAccount      solana.PublicKey
	AuctionHouseTreasury        solana.PublicKey
	BuyerTradeState             solana.PublicKey
	SellerTradeState            solana.PublicKey
	FreeTradeState              solana.PublicKey
	ProgramAsSigner             solana.PublicKey
	// Creators receive royalties and must follow the metadata creator order.
	Creators []solana.PublicKey
}

// Args are the instruction arguments. PartialOrderSize and
// PartialOrderPrice are either both nil (full fill) or both set.
type Args struct {
	EscrowPaymentBump   uint8
	FreeTradeStateBump  uint8
	ProgramAsSignerBump uint8
	BuyerPrice          uint64
	TokenSize           uint64
	PartialOrderSize    *uint64
	PartialOrderPrice   *uint64
}

// Result describes a committed settlement.
type Result struct {
	Seq     uint64
	Receipt models.PurchaseReceipt
	Split   house.Split
	// Closed is true when the seller's listing was retired.
	Closed bool
}

// Engine runs settlements against a ledger.
type Engine struct {
	store ledger.Store
	now   func() time.Time
}

// NewEngine creates an engine on store.
func NewEngine(store ledger.Store) *Engine {
	return &Engine{store: store, now: time.Now}
}

func (e *Engine) run(ctx context.Context, authz house.Authorizer, accts Accounts, args Args, signers house.Signers) (*Result, error) {
	var res *Result
	err := e.store.Update(ctx, func(tx ledger.Tx) error {
		var err error
		res, err = Settle(tx, authz, accts, args, signers, e.now())
		return err
	})
	if err != nil {
		log.Debugf("Settlement of %s against %s failed: %v", accts.BuyerTradeState, accts.SellerTradeState, err)
		return nil, err
	}
	log.Infof("Settled %d of %s for %d between seller %s and buyer %s (receipt %d)",
		res.Receipt.TokenSize, res.Receipt.TokenMint, res.Receipt.Price, res.Receipt.Seller, res.Receipt.Buyer, res.Seq)
	return res, nil
}

func full(args Args) Args {
	args.PartialOrderSize = nil
	args.PartialOrderPrice = nil
	return args
}

// ExecuteSale settles the whole listing, authorized by the house authority.
func (e *Engine) ExecuteSale(ctx context.Context, accts Accounts, args Args, signers house.Signers) (*Result, error) {
	return e.run(ctx, house.HouseAuthority{}, accts, full(args), signers)
}

// ExecutePartialSale settles part of a listing, authorized by the house
// authority.
func (e *Engine) ExecutePartialSale(ctx context.Context, accts Accounts, args Args, signers house.Signers) (*Result, error) {
	return e.run(ctx, house.HouseAuthority{}, accts, args, signers)
}

// AuctioneerExecuteSale settles the whole listing on behalf of the
// delegated auctioneer.
func (e *Engine) AuctioneerExecuteSale(ctx context.Context, auctioneer solana.PublicKey, accts Accounts, args Args, signers house.Signers) (*Result, error) {
	return e.run(ctx, house.AuctioneerAuthority{Authority: auctioneer}, accts, full(args), signers)
}

// AuctioneerExecutePartialSale settles part of a listing on behalf of the
// delegated auctioneer.
func (e *Engine) AuctioneerExecutePartialSale(ctx context.Context, auctioneer solana.PublicKey, accts Accounts, args Args, signers house.Signers) (*Result, error) {
	return e.run(ctx, house.AuctioneerAuthority{Authority: auctioneer}, accts, args, signers)
}
