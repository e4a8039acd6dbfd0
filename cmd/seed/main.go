// Command seed populates a ledger with a demo auction house: an authority,
// a seller holding a freshly minted token with royalty metadata, and a
// funded buyer with an escrow deposit. It reads the same configuration as
// the server and must run while the server is stopped when the embedded
// ledger is used.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/decred/slog"
	token_metadata "github.com/gagliardetto/metaplex-go/clients/token-metadata"
	"github.com/gagliardetto/solana-go"
	flags "github.com/jessevdk/go-flags"

	"github.com/xtrntr/auctionhouse/internal/auth"
	"github.com/xtrntr/auctionhouse/internal/config"
	"github.com/xtrntr/auctionhouse/internal/db"
	"github.com/xtrntr/auctionhouse/internal/house"
	"github.com/xtrntr/auctionhouse/internal/ledger"
	"github.com/xtrntr/auctionhouse/internal/models"
	"github.com/xtrntr/auctionhouse/internal/orders"
	"github.com/xtrntr/auctionhouse/internal/pda"
)

const (
	lamportsPerSOL      uint64 = 1_000_000_000
	metadataRent        uint64 = 5_616_720
	seedPassword               = "password123"
	sellerRoyaltyBps    uint16 = 500
	houseFeeBps         uint16 = 250
	buyerEscrowLamports        = 2 * lamportsPerSOL
)

var log = slog.NewBackend(os.Stdout).Logger("SEED")

// operator returns the wallet of username, registering it with a new wallet
// when it does not exist yet.
func operator(ctx context.Context, svc *auth.AuthService, username string) (solana.PublicKey, error) {
	u, err := svc.Users.GetUserByUsername(ctx, username)
	if err == nil {
		return u.Wallet, nil
	}
	if !errors.Is(err, db.ErrUserNotFound) && !errors.Is(err, auth.ErrUserNotFound) {
		return solana.PublicKey{}, err
	}
	wallet := solana.NewWallet().PublicKey()
	if _, err := svc.Register(ctx, username, seedPassword, wallet.String()); err != nil {
		return solana.PublicKey{}, err
	}
	log.Infof("Registered %s (password %q) with wallet %s", username, seedPassword, wallet)
	return wallet, nil
}

func seed(ctx context.Context, store ledger.Store, authority, seller, buyer solana.PublicKey) error {
	return store.Update(ctx, func(tx ledger.Tx) error {
		for _, w := range []solana.PublicKey{authority, seller, buyer} {
			if err := ledger.Airdrop(tx, w, 100*lamportsPerSOL); err != nil {
				return err
			}
		}

		spec := config.HouseSpec{Authority: authority.String(), SellerFeeBasisPoints: houseFeeBps}
		addr, err := spec.Apply(tx)
		if err != nil {
			return err
		}
		log.Infof("Auction house %s (fee %d bps)", addr, houseFeeBps)

		mint := solana.NewWallet().PublicKey()
		if err := ledger.CreateMint(tx, seller, mint, seller, 0); err != nil {
			return err
		}
		sellerToken, _, err := ledger.EnsureAssociatedTokenAccount(tx, seller, seller, mint)
		if err != nil {
			return err
		}
		if err := ledger.MintTo(tx, mint, sellerToken, seller, 1); err != nil {
			return err
		}
		metadata, err := pda.Metadata(mint)
		if err != nil {
			return err
		}
		data, err := models.Marshal(&models.Metadata{
			UpdateAuthority:      seller,
			Mint:                 mint,
			Name:                 "Seed #1",
			Symbol:               "SEED",
			SellerFeeBasisPoints: sellerRoyaltyBps,
			Creators:             []models.Creator{{Address: seller, Verified: true, Share: 100}},
		})
		if err != nil {
			return err
		}
		if err := ledger.CreateAccount(tx, seller, metadata, metadataRent, token_metadata.ProgramID, data); err != nil {
			return err
		}
		log.Infof("Minted %s to seller token account %s (metadata %s)", mint, sellerToken, metadata)

		err = orders.Deposit(tx, house.HouseAuthority{}, orders.DepositParams{
			AuctionHouse:      addr,
			Wallet:            buyer,
			PaymentAccount:    buyer,
			TransferAuthority: buyer,
			Amount:            buyerEscrowLamports,
		}, house.Signers{buyer})
		if err != nil {
			return err
		}
		log.Infof("Deposited %d lamports into the escrow of buyer %s", buyerEscrowLamports, buyer)
		return nil
	})
}

func run(ctx context.Context) error {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		var fe *flags.Error
		if errors.As(err, &fe) && fe.Type == flags.ErrHelp {
			fmt.Println(err)
			return nil
		}
		return err
	}

	var users auth.UserStore = auth.NewMemUsers()
	var pg *db.DB
	if cfg.PGConn != "" {
		pg, err = db.NewDB(ctx, cfg.PGConn)
		if err != nil {
			return err
		}
		defer pg.Close()
		users = pg
	} else {
		log.Warnf("No PostgreSQL connection configured, seeded operator accounts will not persist")
	}

	var store ledger.Store
	if cfg.Store == config.StorePostgres {
		store = pg
	} else {
		bs, err := ledger.OpenBadger(&ledger.BadgerConfig{Path: cfg.DataDir})
		if err != nil {
			return err
		}
		defer bs.Close()
		store = bs
	}

	svc := auth.NewAuthService(users, cfg.JWTSecret, cfg.TokenTTL)
	var wallets [3]solana.PublicKey
	for i, name := range []string{"authority", "seller", "buyer"} {
		if wallets[i], err = operator(ctx, svc, name); err != nil {
			return fmt.Errorf("failed to register %s: %w", name, err)
		}
	}
	return seed(ctx, store, wallets[0], wallets[1], wallets[2])
}

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}
}
