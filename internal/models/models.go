package models

import (
	"time"

	"github.com/gagliardetto/solana-go"
)

// User represents a registered API operator. Wallet is the key the
// operator signs instructions with.
type User struct {
	ID           int
	Username     string
	PasswordHash string
	Wallet       solana.PublicKey
	CreatedAt    time.Time
}

// AuctionHouse is the house configuration account.
type AuctionHouse struct {
	AuctionHouseFeeAccount        solana.PublicKey
	AuctionHouseTreasury          solana.PublicKey
	TreasuryWithdrawalDestination solana.PublicKey
	FeeWithdrawalDestination      solana.PublicKey
	TreasuryMint                  solana.PublicKey
	Authority                     solana.PublicKey
	Creator                       solana.PublicKey
	Bump                          uint8
	TreasuryBump                  uint8
	FeePayerBump                  uint8
	SellerFeeBasisPoints          uint16
	RequiresSignOff               bool
	CanChangeSalePrice            bool
	EscrowPaymentBump             uint8
	HasAuctioneer                 bool
	AuctioneerAddress             solana.PublicKey
	Scopes                        Scopes
}

// IsNative reports whether the house settles in native lamports.
func (h *AuctionHouse) IsNative() bool {
	return h.TreasuryMint.Equals(solana.SolMint)
}

// Auctioneer is the delegate record granting an auctioneer authority a set
// of scopes on one house.
type Auctioneer struct {
	AuctioneerAuthority solana.PublicKey
	AuctionHouse        solana.PublicKey
	Scopes              Scopes
	Bump                uint8
}

// Creator is a royalty recipient listed in token metadata.
type Creator struct {
	Address  solana.PublicKey
	Verified bool
	Share    uint8
}

// Metadata decorates a mint with royalty information.
type Metadata struct {
	UpdateAuthority      solana.PublicKey
	Mint                 solana.PublicKey
	Name                 string
	Symbol               string
	URI                  string
	SellerFeeBasisPoints uint16
	Creators             []Creator
}

// Mint is a token mint.
type Mint struct {
	MintAuthority solana.PublicKey
	Supply        uint64
	Decimals      uint8
}

// TokenAccount holds Amount units of Mint for Owner. A zero Delegate means
// no delegation.
type TokenAccount struct {
	Mint            solana.PublicKey
	Owner           solana.PublicKey
	Amount          uint64
	Delegate        solana.PublicKey
	DelegatedAmount uint64
}

// HasDelegate reports whether a delegate is set.
func (t *TokenAccount) HasDelegate() bool {
	return !t.Delegate.IsZero()
}

// PurchaseReceipt is the append-only record of one settlement.
type PurchaseReceipt struct {
	Address      solana.PublicKey
	Bookkeeper   solana.PublicKey
	Buyer        solana.PublicKey
	Seller       solana.PublicKey
	AuctionHouse solana.PublicKey
	Metadata     solana.PublicKey
	TokenMint    solana.PublicKey
	TokenSize    uint64
	Price        uint64
	Bump         uint8
	CreatedAt    int64
}
