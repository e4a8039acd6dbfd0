package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/gagliardetto/solana-go"
	"gopkg.in/yaml.v3"

	"github.com/xtrntr/auctionhouse/internal/house"
	"github.com/xtrntr/auctionhouse/internal/ledger"
	"github.com/xtrntr/auctionhouse/internal/models"
	"github.com/xtrntr/auctionhouse/internal/pda"
)

// HousesFile is the YAML bootstrap document.
type HousesFile struct {
	Houses []HouseSpec `yaml:"houses"`
}

// HouseSpec describes an auction house to create at startup. Keys are
// base58. An empty TreasuryMint selects the native mint and empty
// withdrawal destinations default to the authority.
type HouseSpec struct {
	Authority                     string          `yaml:"authority"`
	TreasuryMint                  string          `yaml:"treasury_mint"`
	FeeWithdrawalDestination      string          `yaml:"fee_withdrawal_destination"`
	TreasuryWithdrawalDestination string          `yaml:"treasury_withdrawal_destination"`
	SellerFeeBasisPoints          uint16          `yaml:"seller_fee_basis_points"`
	RequiresSignOff               bool            `yaml:"requires_sign_off"`
	CanChangeSalePrice            bool            `yaml:"can_change_sale_price"`
	FundLamports                  uint64          `yaml:"fund_lamports"`
	Auctioneer                    *AuctioneerSpec `yaml:"auctioneer"`
}

// AuctioneerSpec delegates the house to an auctioneer with named scopes,
// e.g. ["sell", "execute_sale"].
type AuctioneerSpec struct {
	Authority string   `yaml:"authority"`
	Scopes    []string `yaml:"scopes"`
}

// LoadHouses reads and validates the bootstrap file at path.
func LoadHouses(path string) ([]HouseSpec, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read house file: %w", err)
	}
	return ParseHouses(b)
}

// ParseHouses decodes a bootstrap document. Unknown fields are rejected.
func ParseHouses(b []byte) ([]HouseSpec, error) {
	var f HousesFile
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse house file: %w", err)
	}
	for i := range f.Houses {
		if _, err := f.Houses[i].CreateParams(); err != nil {
			return nil, fmt.Errorf("house %d: %w", i, err)
		}
		if _, _, err := f.Houses[i].auctioneer(); err != nil {
			return nil, fmt.Errorf("house %d: %w", i, err)
		}
	}
	return f.Houses, nil
}

func parseKey(name, s string, def solana.PublicKey) (solana.PublicKey, error) {
	if s == "" {
		return def, nil
	}
	k, err := solana.PublicKeyFromBase58(s)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid %s %q: %w", name, s, err)
	}
	return k, nil
}

// CreateParams converts s into house creation parameters with the
// authority as payer.
func (s *HouseSpec) CreateParams() (house.CreateParams, error) {
	if s.Authority == "" {
		return house.CreateParams{}, fmt.Errorf("authority is required")
	}
	authority, err := parseKey("authority", s.Authority, solana.PublicKey{})
	if err != nil {
		return house.CreateParams{}, err
	}
	mint, err := parseKey("treasury_mint", s.TreasuryMint, solana.SolMint)
	if err != nil {
		return house.CreateParams{}, err
	}
	feeDest, err := parseKey("fee_withdrawal_destination", s.FeeWithdrawalDestination, authority)
	if err != nil {
		return house.CreateParams{}, err
	}
	treasuryDest, err := parseKey("treasury_withdrawal_destination", s.TreasuryWithdrawalDestination, authority)
	if err != nil {
		return house.CreateParams{}, err
	}
	if s.SellerFeeBasisPoints > house.MaxBasisPoints {
		return house.CreateParams{}, fmt.Errorf("seller_fee_basis_points %d above %d", s.SellerFeeBasisPoints, house.MaxBasisPoints)
	}
	return house.CreateParams{
		Payer:                         authority,
		Authority:                     authority,
		TreasuryMint:                  mint,
		FeeWithdrawalDestination:      feeDest,
		TreasuryWithdrawalDestination: treasuryDest,
		SellerFeeBasisPoints:          s.SellerFeeBasisPoints,
		RequiresSignOff:               s.RequiresSignOff,
		CanChangeSalePrice:            s.CanChangeSalePrice,
	}, nil
}

func (s *HouseSpec) auctioneer() (solana.PublicKey, models.Scopes, error) {
	if s.Auctioneer == nil {
		return solana.PublicKey{}, models.Scopes{}, nil
	}
	key, err := parseKey("auctioneer authority", s.Auctioneer.Authority, solana.PublicKey{})
	if err != nil {
		return solana.PublicKey{}, models.Scopes{}, err
	}
	if key.IsZero() {
		return solana.PublicKey{}, models.Scopes{}, fmt.Errorf("auctioneer authority is required")
	}
	var scopes []models.AuthorityScope
	for _, name := range s.Auctioneer.Scopes {
		scope, err := models.ParseAuthorityScope(name)
		if err != nil {
			return solana.PublicKey{}, models.Scopes{}, err
		}
		scopes = append(scopes, scope)
	}
	return key, models.NewScopes(scopes...), nil
}

// Apply creates the house described by s unless it already exists, funding
// the authority first when FundLamports is set, and delegates it to the
// configured auctioneer. It returns the house address.
func (s *HouseSpec) Apply(tx ledger.Tx) (solana.PublicKey, error) {
	p, err := s.CreateParams()
	if err != nil {
		return solana.PublicKey{}, err
	}
	addr, _, err := pda.AuctionHouse(p.Authority, p.TreasuryMint)
	if err != nil {
		return solana.PublicKey{}, err
	}
	exists, err := ledger.Exists(tx, addr)
	if err != nil {
		return solana.PublicKey{}, err
	}
	if exists {
		return addr, nil
	}

	if s.FundLamports > 0 {
		if err := ledger.Airdrop(tx, p.Authority, s.FundLamports); err != nil {
			return solana.PublicKey{}, err
		}
	}
	signers := house.Signers{p.Authority}
	if _, err := house.Create(tx, p, signers); err != nil {
		return solana.PublicKey{}, err
	}

	auctioneer, scopes, err := s.auctioneer()
	if err != nil {
		return solana.PublicKey{}, err
	}
	if !auctioneer.IsZero() {
		if err := house.DelegateAuctioneer(tx, addr, auctioneer, scopes, signers); err != nil {
			return solana.PublicKey{}, err
		}
	}
	return addr, nil
}
