package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	flags "github.com/jessevdk/go-flags"
	"golang.org/x/sync/errgroup"

	"github.com/xtrntr/auctionhouse/internal/api"
	"github.com/xtrntr/auctionhouse/internal/auth"
	"github.com/xtrntr/auctionhouse/internal/config"
	"github.com/xtrntr/auctionhouse/internal/db"
	"github.com/xtrntr/auctionhouse/internal/ledger"
	"github.com/xtrntr/auctionhouse/internal/settlement"
)

const shutdownTimeout = 10 * time.Second

// openStores opens the configured ledger and the operator user store. The
// returned closer releases both.
func openStores(ctx context.Context, cfg *config.Config) (ledger.Store, auth.UserStore, func(), error) {
	var pg *db.DB
	if cfg.PGConn != "" {
		var err error
		pg, err = db.NewDB(ctx, cfg.PGConn)
		if err != nil {
			return nil, nil, nil, err
		}
	}
	closePG := func() {
		if pg != nil {
			pg.Close()
		}
	}

	var users auth.UserStore = auth.NewMemUsers()
	if pg != nil {
		users = pg
	} else {
		log.Warnf("No PostgreSQL connection configured, operator accounts are kept in memory")
	}

	switch cfg.Store {
	case config.StorePostgres:
		log.Infof("Using the PostgreSQL ledger")
		return pg, users, closePG, nil
	default:
		log.Infof("Using the embedded ledger at %s", cfg.DataDir)
		bs, err := ledger.OpenBadger(&ledger.BadgerConfig{Path: cfg.DataDir, Log: ldgrLog})
		if err != nil {
			closePG()
			return nil, nil, nil, err
		}
		return bs, users, func() {
			if err := bs.Close(); err != nil {
				log.Errorf("Failed to close ledger: %v", err)
			}
			closePG()
		}, nil
	}
}

// bootstrapHouses creates the houses listed in the house file.
func bootstrapHouses(ctx context.Context, store ledger.Store, path string) error {
	specs, err := config.LoadHouses(path)
	if err != nil {
		return err
	}
	return store.Update(ctx, func(tx ledger.Tx) error {
		for i := range specs {
			addr, err := specs[i].Apply(tx)
			if err != nil {
				return fmt.Errorf("house %d: %w", i, err)
			}
			log.Infof("Auction house %s ready (authority %s)", addr, specs[i].Authority)
		}
		return nil
	})
}

func mainCore(ctx context.Context) error {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		var fe *flags.Error
		if errors.As(err, &fe) && fe.Type == flags.ErrHelp {
			fmt.Println(err)
			return nil
		}
		return err
	}
	if !cfg.NoFileLog {
		if err := initLogRotator(cfg.LogFile(), cfg.MaxLogZips); err != nil {
			return err
		}
		defer logRotator.Close()
	}
	if err := setLogLevels(cfg.DebugLevel); err != nil {
		return err
	}

	store, users, closeStores, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStores()

	if cfg.HouseFile != "" {
		if err := bootstrapHouses(ctx, store, cfg.HouseFile); err != nil {
			return err
		}
	}

	engine := settlement.NewEngine(store)
	authService := auth.NewAuthService(users, cfg.JWTSecret, cfg.TokenTTL)
	hub := newReceiptHub(cfg.CORSOrigins)
	handler := api.NewHandler(store, engine, authService, hub)

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Get("/ws", hub.ServeHTTP)
	r.Mount("/", handler.Routes())

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return hub.run(gctx)
	})
	g.Go(func() error {
		log.Infof("Listening on %s", cfg.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Infof("Shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := mainCore(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
