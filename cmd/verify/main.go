// Command verify exercises the configured upstreams without starting the
// server: it checks exchange reachability, the chain node, the custody
// wallet and optionally dry-builds an order payload for a market.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"alphaflow-backend/internal/chain"
	"alphaflow-backend/internal/config"
	"alphaflow-backend/internal/decibel"
	"alphaflow-backend/internal/logging"
	"alphaflow-backend/internal/store"
	"alphaflow-backend/internal/trading"
)

func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "path to config file")
	market := flag.String("market", "", "market name to inspect, e.g. BTC/USD")
	user := flag.String("user", "", "wallet address to inspect subaccounts and delegation for")
	buildOrder := flag.Bool("build-order", false, "dry-build an order payload for -market")
	side := flag.String("side", "buy", "order side for -build-order")
	size := flag.String("size", "", "order size for -build-order")
	price := flag.String("price", "", "limit price for -build-order (empty for market)")
	checkDB := flag.Bool("db", false, "also check the Postgres connection")
	flag.Parse()

	if err := config.LoadEnv(".env"); err != nil {
		fatal(err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal(err)
	}
	log := logging.New(cfg.Log)
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	dex := decibel.New(cfg.Decibel.BaseURL, cfg.Decibel.Origin, cfg.Decibel.APIKey, cfg.Decibel.Timeout, log)
	markets, err := dex.Markets(ctx)
	if err != nil {
		fatal(fmt.Errorf("exchange unreachable: %w", err))
	}
	fmt.Printf("exchange ok: %d markets at %s\n", len(markets), cfg.Decibel.BaseURL)

	chainClient := chain.NewClient(cfg.Chain.NodeURL, cfg.Chain.NodeAPIKey, cfg.Chain.Timeout, chain.Options{
		MaxGasAmount: cfg.Chain.MaxGasAmount,
		GasUnitPrice: cfg.Chain.GasUnitPrice,
		TxExpiry:     cfg.Chain.TxExpiry,
		PollTimeout:  cfg.Chain.SubmitPollTimeout,
	}, log)
	if _, err := chainClient.Module(ctx, cfg.Chain.PackageAddress, "dex_accounts"); err != nil {
		fatal(fmt.Errorf("chain node unreachable or package missing: %w", err))
	}
	fmt.Printf("chain ok: dex_accounts found at %s\n", shorten(cfg.Chain.PackageAddress))

	var custody *chain.Account
	if cfg.Chain.CustodyKey != "" {
		custody, err = chain.NewAccount(cfg.Chain.CustodyKey)
		if err != nil {
			fatal(fmt.Errorf("invalid custody key: %w", err))
		}
		fmt.Printf("custody ok: %s\n", custody.Address())
	} else {
		fmt.Println("custody: not configured (BACKEND_WALLET_PRIVATE_KEY unset)")
	}

	if *checkDB {
		db, err := store.New(cfg.Database, log)
		if err != nil {
			fatal(fmt.Errorf("database: %w", err))
		}
		defer db.Close()
		if err := db.Ping(ctx); err != nil {
			fatal(fmt.Errorf("database ping: %w", err))
		}
		fmt.Println("database ok")
	}

	svc := trading.NewService(dex, nil, chainClient, custody, cfg.Chain.PackageAddress, cfg.Chain.DelegationExpiry, log)

	if *market != "" {
		m, err := dex.MarketByName(ctx, *market)
		if err != nil {
			fatal(err)
		}
		fmt.Printf("market %s: addr=%s min_size=%v px_decimals=%d sz_decimals=%d tick=%d\n",
			m.MarketName, shorten(m.MarketAddr), m.MinSize, m.PxDecimals, m.SzDecimals, m.TickSize)
	}

	if *user != "" {
		status, err := svc.Status(ctx, *user)
		if err != nil {
			fatal(err)
		}
		printJSON("delegation status", status)
	}

	if *buildOrder {
		if *market == "" || *size == "" {
			fatal(errors.New("-build-order requires -market and -size"))
		}
		if *user == "" {
			fatal(errors.New("-build-order requires -user"))
		}
		req := trading.OrderRequest{
			Market:    *market,
			Side:      strings.ToLower(*side),
			OrderType: "market",
		}
		req.Size, err = decimal.NewFromString(*size)
		if err != nil {
			fatal(fmt.Errorf("invalid -size: %w", err))
		}
		if *price != "" {
			p, err := decimal.NewFromString(*price)
			if err != nil {
				fatal(fmt.Errorf("invalid -price: %w", err))
			}
			req.Price = &p
			req.OrderType = "limit"
		}
		tx, err := svc.BuildOrderTransaction(ctx, *user, req)
		if err != nil {
			fatal(err)
		}
		printJSON("order payload", tx)
	}
}

func printJSON(label string, v any) {
	pretty, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fatal(err)
	}
	fmt.Printf("%s:\n%s\n", label, pretty)
}

func shorten(addr string) string {
	if len(addr) <= 14 {
		return addr
	}
	return addr[:8] + "…" + addr[len(addr)-4:]
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
