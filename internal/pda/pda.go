// Package pda derives every program address used by the auction house.
// Derivations are pure functions of their seeds.
package pda

import (
	"encoding/binary"

	token_metadata "github.com/gagliardetto/metaplex-go/clients/token-metadata"
	"github.com/gagliardetto/solana-go"
)

// ProgramID is the auction house program.
var ProgramID = solana.MustPublicKeyFromBase58("hausS13jsjafwWwGqZTUQRmWyvyxn9EQpqMwV1PBBmk")

const (
	Prefix          = "auction_house"
	FeePayer        = "fee_payer"
	Treasury        = "treasury"
	Signer          = "signer"
	AuctioneerSeed  = "auctioneer"
	PurchaseReceipt = "purchase_receipt"
	metadataSeed    = "metadata"
)

func u64le(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

// AuctionHouse derives the house address for (creator, treasury mint).
func AuctionHouse(creator, treasuryMint solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress(
		[][]byte{[]byte(Prefix), creator.Bytes(), treasuryMint.Bytes()},
		ProgramID,
	)
}

// FeeAccount derives the house fee payer account.
func FeeAccount(house solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress(
		[][]byte{[]byte(Prefix), house.Bytes(), []byte(FeePayer)},
		ProgramID,
	)
}

// TreasuryAccount derives the house treasury.
func TreasuryAccount(house solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress(
		[][]byte{[]byte(Prefix), house.Bytes(), []byte(Treasury)},
		ProgramID,
	)
}

// EscrowPayment derives the pooled escrow of wallet on house.
func EscrowPayment(house, wallet solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress(
		[][]byte{[]byte(Prefix), house.Bytes(), wallet.Bytes()},
		ProgramID,
	)
}

// ProgramAsSigner derives the delegate that moves listed tokens.
func ProgramAsSigner() (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress(
		[][]byte{[]byte(Prefix), []byte(Signer)},
		ProgramID,
	)
}

// Auctioneer derives the delegate record of auctioneerAuthority on house.
func Auctioneer(house, auctioneerAuthority solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress(
		[][]byte{[]byte(AuctioneerSeed), house.Bytes(), auctioneerAuthority.Bytes()},
		ProgramID,
	)
}

// PurchaseReceiptAddress derives the receipt address for a matched pair of
// trade states.
func PurchaseReceiptAddress(sellerTradeState, buyerTradeState solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress(
		[][]byte{[]byte(PurchaseReceipt), sellerTradeState.Bytes(), buyerTradeState.Bytes()},
		ProgramID,
	)
}

// Metadata derives the token metadata account of mint.
func Metadata(mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{[]byte(metadataSeed), token_metadata.ProgramID.Bytes(), mint.Bytes()},
		token_metadata.ProgramID,
	)
	return addr, err
}

// AssociatedTokenAccount derives the associated token account of wallet for
// mint.
func AssociatedTokenAccount(wallet, mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindAssociatedTokenAddress(wallet, mint)
	return addr, err
}

// TradeStateSeeds returns the seeds of a trade state marker. A zero
// tokenAccount produces the public bid layout, which omits it.
func TradeStateSeeds(wallet, house, tokenAccount, treasuryMint, mint solana.PublicKey, price, size uint64) [][]byte {
	seeds := [][]byte{[]byte(Prefix), wallet.Bytes(), house.Bytes()}
	if !tokenAccount.IsZero() {
		seeds = append(seeds, tokenAccount.Bytes())
	}
	return append(seeds, treasuryMint.Bytes(), mint.Bytes(), u64le(price), u64le(size))
}

// TradeState derives the canonical trade state marker address.
func TradeState(wallet, house, tokenAccount, treasuryMint, mint solana.PublicKey, price, size uint64) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress(
		TradeStateSeeds(wallet, house, tokenAccount, treasuryMint, mint, price, size),
		ProgramID,
	)
}

// WithBump re-derives an address from seeds and an explicit bump.
func WithBump(seeds [][]byte, bump uint8) (solana.PublicKey, error) {
	s := make([][]byte, 0, len(seeds)+1)
	s = append(s, seeds...)
	s = append(s, []byte{bump})
	return solana.CreateProgramAddress(s, ProgramID)
}
