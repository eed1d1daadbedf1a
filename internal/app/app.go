// Package app wires configuration, storage, upstream clients and the HTTP
// server into a runnable process.
package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"alphaflow-backend/internal/ai"
	"alphaflow-backend/internal/api"
	"alphaflow-backend/internal/auth"
	"alphaflow-backend/internal/chain"
	"alphaflow-backend/internal/config"
	"alphaflow-backend/internal/decibel"
	"alphaflow-backend/internal/decibel/stream"
	"alphaflow-backend/internal/metrics"
	"alphaflow-backend/internal/news"
	"alphaflow-backend/internal/photon"
	"alphaflow-backend/internal/sentiment"
	"alphaflow-backend/internal/state/sqlite"
	"alphaflow-backend/internal/store"
	"alphaflow-backend/internal/trading"
)

type App struct {
	cfg    *config.Config
	log    *zap.Logger
	db     *store.Store
	state  *sqlite.Store
	stream *stream.PriceCache
	server *http.Server
}

func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	db, err := store.New(cfg.Database, log)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(cfg.State.SQLitePath), 0o755); err != nil {
		return nil, err
	}
	stateStore, err := sqlite.New(cfg.State.SQLitePath)
	if err != nil {
		return nil, err
	}

	chainClient := chain.NewClient(cfg.Chain.NodeURL, cfg.Chain.NodeAPIKey, cfg.Chain.Timeout, chain.Options{
		MaxGasAmount: cfg.Chain.MaxGasAmount,
		GasUnitPrice: cfg.Chain.GasUnitPrice,
		TxExpiry:     cfg.Chain.TxExpiry,
		PollTimeout:  cfg.Chain.SubmitPollTimeout,
	}, log)
	chainClient.SetSequenceStore(stateStore)

	var custody *chain.Account
	if cfg.Chain.CustodyKey != "" {
		custody, err = chain.NewAccount(cfg.Chain.CustodyKey)
		if err != nil {
			return nil, err
		}
		log.Info("custody wallet loaded", zap.String("address", custody.Address()))
	} else {
		log.Warn("custody wallet not configured, delegated execution disabled")
	}

	dex := decibel.New(cfg.Decibel.BaseURL, cfg.Decibel.Origin, cfg.Decibel.APIKey, cfg.Decibel.Timeout, log)

	var (
		priceCache  *stream.PriceCache
		priceSource trading.PriceSource
	)
	if cfg.Stream.Enabled {
		priceCache = stream.New(cfg.Stream.URL, cfg.Stream.ReconnectDelay, cfg.Stream.PingInterval, log)
		priceSource = priceCache
	}

	tradingSvc := trading.NewService(dex, priceSource, chainClient, custody, cfg.Chain.PackageAddress, cfg.Chain.DelegationExpiry, log)

	tokens, err := auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.SessionTTL, cfg.Auth.IdentityTTL)
	if err != nil {
		return nil, err
	}

	var photonAPI api.PhotonAPI
	if cfg.Photon.APIKey != "" {
		photonAPI = photon.New(cfg.Photon.BaseURL, cfg.Photon.APIKey, cfg.Photon.Timeout, log)
	} else {
		log.Warn("photon api key not configured, embedded wallet onboarding disabled")
	}

	newsClient := news.New(cfg.News.APIKey, stateStore, news.Options{
		BaseURL:     cfg.News.BaseURL,
		Timeout:     cfg.News.Timeout,
		CacheTTL:    cfg.News.CacheTTL,
		TrendingTTL: cfg.News.TrendingTTL,
		MaxItems:    cfg.News.MaxItems,
	}, log)
	mood := sentiment.New(cfg.Sentiment.FearGreedURL, cfg.Sentiment.PricesURL, cfg.Sentiment.Timeout, log)
	assistant := ai.New(cfg.AI.APIKey, ai.Options{
		BaseURL: cfg.AI.BaseURL,
		Model:   cfg.AI.Model,
		Referer: cfg.AI.Referer,
		Title:   cfg.AI.Title,
		Timeout: cfg.AI.Timeout,
	}, log)
	contexts := ai.NewContextBuilder(dex, mood, log)

	m := metrics.NewNoop()
	var metricsHandler http.Handler
	if cfg.Metrics.EnabledValue() {
		prom := metrics.NewPrometheus()
		m = prom.Metrics
		metricsHandler = prom.Handler()
	}

	server := api.NewServer(api.Config{
		FrontendOrigin:  cfg.Server.FrontendOrigin,
		RateLimitPerMin: cfg.Server.RateLimitPerMin,
		MetricsPath:     cfg.Metrics.Path,
	}, api.Deps{
		Users:          db,
		Chat:           db,
		Trades:         db,
		DB:             db,
		Tokens:         tokens,
		Dex:            dex,
		Trading:        tradingSvc,
		News:           newsClient,
		Assistant:      assistant,
		Contexts:       contexts,
		Photon:         photonAPI,
		Metrics:        m,
		MetricsHandler: metricsHandler,
		Log:            log,
	})

	return &App{
		cfg:    cfg,
		log:    log,
		db:     db,
		state:  stateStore,
		stream: priceCache,
		server: &http.Server{
			Addr:         cfg.Server.Address,
			Handler:      server.Handler(),
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
	}, nil
}

// Run serves HTTP until ctx is cancelled, then drains in-flight requests.
func (a *App) Run(ctx context.Context) error {
	defer a.db.Close()
	defer a.state.Close()

	if a.stream != nil {
		go func() {
			if err := a.stream.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.log.Warn("price stream stopped", zap.Error(err))
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.server.ListenAndServe()
	}()
	a.log.Info("server listening", zap.String("address", a.cfg.Server.Address))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.log.Warn("shutdown incomplete", zap.Error(err))
		}
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
