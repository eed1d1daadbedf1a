// Package api exposes the HTTP surface: auth, trading, portfolio, news,
// rewards and the AI assistant.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"alphaflow-backend/internal/ai"
	"alphaflow-backend/internal/auth"
	"alphaflow-backend/internal/decibel"
	"alphaflow-backend/internal/metrics"
	"alphaflow-backend/internal/news"
	"alphaflow-backend/internal/photon"
	"alphaflow-backend/internal/store"
	"alphaflow-backend/internal/trading"
)

// Users is the slice of the store the auth handlers need.
type Users interface {
	auth.UserStore
	FindUserByWallet(ctx context.Context, walletAddress string) (*store.User, error)
	FindOrCreateUser(ctx context.Context, walletAddress, walletType string) (*store.User, error)
	CreateUser(ctx context.Context, walletAddress, walletType string, email, username *string) (*store.User, error)
	AttachPhotonIdentity(ctx context.Context, userID, photonIdentityID, walletAddress string) (*store.User, error)
	UpdateUser(ctx context.Context, userID string, update store.UserUpdate) (*store.User, error)
}

type ChatStore interface {
	SaveChatMessage(ctx context.Context, userID, role, content string, opts *store.ChatMessageOptions) (*store.ChatMessage, error)
	ChatHistory(ctx context.Context, userID string, limit, offset int) ([]store.ChatMessage, error)
	DeleteChatHistory(ctx context.Context, userID string) error
}

type TradeStore interface {
	InsertTrade(ctx context.Context, t store.Trade) (*store.Trade, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// DexAPI is the slice of the exchange client the portfolio and account
// handlers read from.
type DexAPI interface {
	Subaccounts(ctx context.Context, owner string) ([]decibel.Subaccount, error)
	AccountOverview(ctx context.Context, user string) (*decibel.AccountOverview, error)
	Positions(ctx context.Context, user string, limit int) ([]decibel.Position, error)
	OpenOrders(ctx context.Context, user string, limit int) ([]decibel.Order, error)
	TradeHistory(ctx context.Context, user string, limit int) ([]decibel.Trade, error)
	OrderHistory(ctx context.Context, user string) (decibel.OrderHistory, error)
}

type TradingService interface {
	BackendAddress() (string, error)
	BuildOrderTransaction(ctx context.Context, owner string, req trading.OrderRequest) (*trading.OrderTransaction, error)
	PlaceOrder(ctx context.Context, owner string, req trading.OrderRequest) (*trading.ExecutionResult, error)
	BuildDelegationTransaction(ctx context.Context, owner, subaccountAddr string) (*trading.DelegationTransaction, error)
	Status(ctx context.Context, owner string) (*trading.DelegationStatus, error)
}

type NewsAPI interface {
	News(ctx context.Context, filters news.Filters) (*news.Response, error)
	GeneralNews(ctx context.Context, filters news.Filters) (*news.Response, error)
	TrendingNews(ctx context.Context, tickers []string, limit int) []news.Item
}

type Assistant interface {
	ProcessQuery(ctx context.Context, userMessage string, tradingCtx *ai.Context) (*ai.Result, error)
}

type ContextSource interface {
	Build(ctx context.Context, walletAddress, marketName string) *ai.Context
}

type PhotonAPI interface {
	Register(ctx context.Context, identityToken, clientUserID string) (*photon.RegisterResponse, error)
}

// Config carries the server-level knobs.
type Config struct {
	FrontendOrigin  string
	RateLimitPerMin int
	MetricsPath     string
}

// Deps wires the handlers to the rest of the application. Nil optional
// fields (Photon, MetricsHandler) disable the routes that need them.
type Deps struct {
	Users          Users
	Chat           ChatStore
	Trades         TradeStore
	DB             Pinger
	Tokens         *auth.Tokens
	Dex            DexAPI
	Trading        TradingService
	News           NewsAPI
	Assistant      Assistant
	Contexts       ContextSource
	Photon         PhotonAPI
	Metrics        *metrics.Metrics
	MetricsHandler http.Handler
	Log            *zap.Logger
}

type Server struct {
	cfg Config

	users          Users
	chat           ChatStore
	trades         TradeStore
	db             Pinger
	tokens         *auth.Tokens
	dex            DexAPI
	trading        TradingService
	news           NewsAPI
	assistant      Assistant
	contexts       ContextSource
	photon         PhotonAPI
	metrics        *metrics.Metrics
	metricsHandler http.Handler

	limiter *rateLimiter
	now     func() time.Time
	log     *zap.Logger
}

func NewServer(cfg Config, deps Deps) *Server {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	m := deps.Metrics
	if m == nil {
		m = metrics.NewNoop()
	}
	s := &Server{
		cfg:            cfg,
		users:          deps.Users,
		chat:           deps.Chat,
		trades:         deps.Trades,
		db:             deps.DB,
		tokens:         deps.Tokens,
		dex:            deps.Dex,
		trading:        deps.Trading,
		news:           deps.News,
		assistant:      deps.Assistant,
		contexts:       deps.Contexts,
		photon:         deps.Photon,
		metrics:        m,
		metricsHandler: deps.MetricsHandler,
		now:            time.Now,
		log:            log,
	}
	if cfg.RateLimitPerMin > 0 {
		s.limiter = newRateLimiter(cfg.RateLimitPerMin, s.now)
	}
	return s
}

// Handler assembles the router with CORS, rate limiting and request
// logging applied.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.logRequests)
	if s.limiter != nil {
		r.Use(s.rateLimit)
	}

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if s.metricsHandler != nil {
		path := s.cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, s.metricsHandler).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/auth/wallet-check", s.handleWalletCheck).Methods(http.MethodPost)
	api.HandleFunc("/auth/wallet-login", s.handleWalletLogin).Methods(http.MethodPost)
	api.HandleFunc("/auth/photon-onboard", s.handlePhotonOnboard).Methods(http.MethodPost)
	api.HandleFunc("/portfolio/overview", s.handlePortfolioOverview).Methods(http.MethodGet)
	api.HandleFunc("/portfolio/positions", s.handlePortfolioPositions).Methods(http.MethodGet)
	api.HandleFunc("/portfolio/trades", s.handlePortfolioTrades).Methods(http.MethodGet)
	api.HandleFunc("/portfolio/orders/open", s.handleOpenOrders).Methods(http.MethodGet)
	api.HandleFunc("/portfolio/orders/history", s.handleOrderHistory).Methods(http.MethodGet)
	api.HandleFunc("/rewards/points", s.handleRewardsPoints).Methods(http.MethodGet)
	api.HandleFunc("/news", s.handleNews).Methods(http.MethodGet)
	api.HandleFunc("/news/trending", s.handleTrendingNews).Methods(http.MethodGet)

	protected := r.PathPrefix("/api").Subrouter()
	protected.Use(auth.Middleware(s.tokens, s.users, s.rejectAuth))
	protected.HandleFunc("/auth/me", s.handleMe).Methods(http.MethodGet)
	protected.HandleFunc("/auth/me", s.handleUpdateMe).Methods(http.MethodPatch)
	protected.HandleFunc("/decibel/account-status", s.handleAccountStatus).Methods(http.MethodGet)
	protected.HandleFunc("/trading/backend-address", s.handleBackendAddress).Methods(http.MethodGet)
	protected.HandleFunc("/trading/delegation/status", s.handleDelegationStatus).Methods(http.MethodGet)
	protected.HandleFunc("/trading/delegation/build", s.handleDelegationBuild).Methods(http.MethodPost)
	protected.HandleFunc("/trading/order/build", s.handleOrderBuild).Methods(http.MethodPost)
	protected.HandleFunc("/trading/execute", s.handleExecute).Methods(http.MethodPost)
	protected.HandleFunc("/ai/chat", s.handleChat).Methods(http.MethodPost)
	protected.HandleFunc("/ai/history", s.handleChatHistory).Methods(http.MethodGet)
	protected.HandleFunc("/ai/history", s.handleDeleteChatHistory).Methods(http.MethodDelete)

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{s.cfg.FrontendOrigin},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})
	return c.Handler(r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if s.db != nil {
		if err := s.db.Ping(r.Context()); err != nil {
			s.log.Warn("health check database ping failed", zap.Error(err))
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}
	s.writeJSON(w, code, map[string]any{
		"status": status,
		"time":   s.now().UTC().Format(time.RFC3339),
	})
}
