package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"alphaflow-backend/internal/ai"
	"alphaflow-backend/internal/auth"
	"alphaflow-backend/internal/decibel"
	"alphaflow-backend/internal/news"
	"alphaflow-backend/internal/photon"
	"alphaflow-backend/internal/store"
	"alphaflow-backend/internal/trading"
)

type fakeUsers struct {
	byID     map[string]*store.User
	byWallet map[string]*store.User
	updates  []store.UserUpdate
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{
		byID:     make(map[string]*store.User),
		byWallet: make(map[string]*store.User),
	}
}

func (f *fakeUsers) add(u *store.User) *store.User {
	f.byID[u.ID] = u
	f.byWallet[u.WalletAddress] = u
	return u
}

func (f *fakeUsers) FindUserByID(_ context.Context, id string) (*store.User, error) {
	if u, ok := f.byID[id]; ok {
		return u, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeUsers) FindUserByWallet(_ context.Context, wallet string) (*store.User, error) {
	if u, ok := f.byWallet[wallet]; ok {
		return u, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeUsers) CreateUser(_ context.Context, wallet, walletType string, email, username *string) (*store.User, error) {
	if walletType == "" {
		walletType = "photon"
	}
	return f.add(&store.User{
		ID:            "u-" + wallet,
		WalletAddress: wallet,
		WalletType:    walletType,
		Email:         email,
		Username:      username,
		Tier:          "bronze",
	}), nil
}

func (f *fakeUsers) FindOrCreateUser(ctx context.Context, wallet, walletType string) (*store.User, error) {
	if u, ok := f.byWallet[wallet]; ok {
		return u, nil
	}
	return f.CreateUser(ctx, wallet, walletType, nil, nil)
}

func (f *fakeUsers) AttachPhotonIdentity(_ context.Context, userID, photonID, wallet string) (*store.User, error) {
	u, ok := f.byID[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	u.PhotonIdentityID = &photonID
	u.WalletAddress = wallet
	f.byWallet[wallet] = u
	return u, nil
}

func (f *fakeUsers) UpdateUser(_ context.Context, userID string, update store.UserUpdate) (*store.User, error) {
	u, ok := f.byID[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	f.updates = append(f.updates, update)
	if update.DisplayName != nil {
		u.DisplayName = update.DisplayName
	}
	if update.Email != nil {
		u.Email = update.Email
	}
	if update.Username != nil {
		u.Username = update.Username
	}
	return u, nil
}

type savedMessage struct {
	role    string
	content string
	opts    *store.ChatMessageOptions
}

type fakeChat struct {
	saved   []savedMessage
	history []store.ChatMessage
	deleted []string
	saveErr error
}

func (f *fakeChat) SaveChatMessage(_ context.Context, userID, role, content string, opts *store.ChatMessageOptions) (*store.ChatMessage, error) {
	if f.saveErr != nil {
		return nil, f.saveErr
	}
	f.saved = append(f.saved, savedMessage{role: role, content: content, opts: opts})
	return &store.ChatMessage{UserID: userID, Role: role, Content: content}, nil
}

func (f *fakeChat) ChatHistory(_ context.Context, _ string, limit, offset int) ([]store.ChatMessage, error) {
	if offset >= len(f.history) {
		return nil, nil
	}
	out := f.history[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeChat) DeleteChatHistory(_ context.Context, userID string) error {
	f.deleted = append(f.deleted, userID)
	return nil
}

type fakeTrades struct {
	rows []store.Trade
	err  error
}

func (f *fakeTrades) InsertTrade(_ context.Context, t store.Trade) (*store.Trade, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.rows = append(f.rows, t)
	return &t, nil
}

type fakeDex struct {
	subaccounts []decibel.Subaccount
	overviews   map[string]*decibel.AccountOverview
	positions   map[string][]decibel.Position
	open        map[string][]decibel.Order
	fills       map[string][]decibel.Trade
	orderHist   map[string]decibel.OrderHistory
	err         error
}

func (f *fakeDex) Subaccounts(_ context.Context, _ string) ([]decibel.Subaccount, error) {
	return f.subaccounts, f.err
}

func (f *fakeDex) AccountOverview(_ context.Context, user string) (*decibel.AccountOverview, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.overviews[user], nil
}

func (f *fakeDex) Positions(_ context.Context, user string, _ int) ([]decibel.Position, error) {
	return f.positions[user], f.err
}

func (f *fakeDex) OpenOrders(_ context.Context, user string, _ int) ([]decibel.Order, error) {
	return f.open[user], f.err
}

func (f *fakeDex) TradeHistory(_ context.Context, user string, _ int) ([]decibel.Trade, error) {
	return f.fills[user], f.err
}

func (f *fakeDex) OrderHistory(_ context.Context, user string) (decibel.OrderHistory, error) {
	return f.orderHist[user], f.err
}

type fakeTrading struct {
	backendAddr   string
	orderTx       *trading.OrderTransaction
	execResult    *trading.ExecutionResult
	delegationTx  *trading.DelegationTransaction
	status        *trading.DelegationStatus
	err           error
	gotOwner      string
	gotReq        trading.OrderRequest
	gotSubaccount string
}

func (f *fakeTrading) BackendAddress() (string, error) {
	if f.backendAddr == "" {
		return "", trading.ErrBackendWalletNotConfigured
	}
	return f.backendAddr, nil
}

func (f *fakeTrading) BuildOrderTransaction(_ context.Context, owner string, req trading.OrderRequest) (*trading.OrderTransaction, error) {
	f.gotOwner, f.gotReq = owner, req
	return f.orderTx, f.err
}

func (f *fakeTrading) PlaceOrder(_ context.Context, owner string, req trading.OrderRequest) (*trading.ExecutionResult, error) {
	f.gotOwner, f.gotReq = owner, req
	return f.execResult, f.err
}

func (f *fakeTrading) BuildDelegationTransaction(_ context.Context, owner, subaccountAddr string) (*trading.DelegationTransaction, error) {
	f.gotOwner, f.gotSubaccount = owner, subaccountAddr
	return f.delegationTx, f.err
}

func (f *fakeTrading) Status(_ context.Context, owner string) (*trading.DelegationStatus, error) {
	f.gotOwner = owner
	return f.status, f.err
}

type fakeNews struct {
	resp          *news.Response
	trending      []news.Item
	gotFilters    news.Filters
	generalCalled bool
	err           error
}

func (f *fakeNews) News(_ context.Context, filters news.Filters) (*news.Response, error) {
	f.gotFilters = filters
	return f.resp, f.err
}

func (f *fakeNews) GeneralNews(_ context.Context, filters news.Filters) (*news.Response, error) {
	f.generalCalled = true
	f.gotFilters = filters
	return f.resp, f.err
}

func (f *fakeNews) TrendingNews(_ context.Context, tickers []string, _ int) []news.Item {
	f.gotFilters = news.Filters{Tickers: tickers}
	return f.trending
}

type fakeAssistant struct {
	result     *ai.Result
	err        error
	gotMessage string
	gotCtx     *ai.Context
}

func (f *fakeAssistant) ProcessQuery(_ context.Context, msg string, tradingCtx *ai.Context) (*ai.Result, error) {
	f.gotMessage, f.gotCtx = msg, tradingCtx
	return f.result, f.err
}

type fakeContexts struct {
	ctx       *ai.Context
	built     bool
	gotWallet string
	gotMarket string
}

func (f *fakeContexts) Build(_ context.Context, wallet, market string) *ai.Context {
	f.built = true
	f.gotWallet, f.gotMarket = wallet, market
	return f.ctx
}

type fakePhoton struct {
	resp      *photon.RegisterResponse
	err       error
	gotToken  string
	gotClient string
	calls     int
}

func (f *fakePhoton) Register(_ context.Context, identityToken, clientUserID string) (*photon.RegisterResponse, error) {
	f.calls++
	f.gotToken, f.gotClient = identityToken, clientUserID
	return f.resp, f.err
}

type fakePinger struct{ err error }

func (f *fakePinger) Ping(context.Context) error { return f.err }

type testEnv struct {
	handler   http.Handler
	server    *Server
	tokens    *auth.Tokens
	users     *fakeUsers
	chat      *fakeChat
	trades    *fakeTrades
	dex       *fakeDex
	trading   *fakeTrading
	news      *fakeNews
	assistant *fakeAssistant
	contexts  *fakeContexts
	photon    *fakePhoton
	db        *fakePinger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	tokens, err := auth.NewTokens("test-secret", 0, 0)
	if err != nil {
		t.Fatalf("new tokens: %v", err)
	}
	env := &testEnv{
		tokens:    tokens,
		users:     newFakeUsers(),
		chat:      &fakeChat{},
		trades:    &fakeTrades{},
		dex:       &fakeDex{overviews: map[string]*decibel.AccountOverview{}},
		trading:   &fakeTrading{},
		news:      &fakeNews{},
		assistant: &fakeAssistant{},
		contexts:  &fakeContexts{},
		photon:    &fakePhoton{},
		db:        &fakePinger{},
	}
	server := NewServer(Config{FrontendOrigin: "http://localhost:3000"}, Deps{
		Users:     env.users,
		Chat:      env.chat,
		Trades:    env.trades,
		DB:        env.db,
		Tokens:    tokens,
		Dex:       env.dex,
		Trading:   env.trading,
		News:      env.news,
		Assistant: env.assistant,
		Contexts:  env.contexts,
		Photon:    env.photon,
	})
	env.server = server
	env.handler = server.Handler()
	return env
}

func (env *testEnv) user(t *testing.T, wallet string) (*store.User, string) {
	t.Helper()
	u := env.users.add(&store.User{ID: "u-" + wallet, WalletAddress: wallet, WalletType: "petra", Tier: "bronze"})
	token, err := env.tokens.IssueSession(u.ID)
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}
	return u, token
}

func (env *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	env.db.err = errors.New("connection refused")
	rec = env.do(t, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("degraded status = %d", rec.Code)
	}
}

func TestWalletCheckUnknown(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/auth/wallet-check", "", map[string]string{"walletAddress": "0xnobody"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var out struct {
		Exists bool   `json:"exists"`
		Token  string `json:"token"`
	}
	decodeJSON(t, rec, &out)
	if out.Exists || out.Token != "" {
		t.Fatalf("out = %+v", out)
	}
}

func TestWalletCheckIssuesSession(t *testing.T) {
	env := newTestEnv(t)
	u, _ := env.user(t, "0xabc")

	rec := env.do(t, http.MethodPost, "/api/auth/wallet-check", "", map[string]string{"walletAddress": "0xabc"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var out struct {
		Exists bool       `json:"exists"`
		Token  string     `json:"token"`
		User   store.User `json:"user"`
	}
	decodeJSON(t, rec, &out)
	if !out.Exists || out.User.ID != u.ID {
		t.Fatalf("out = %+v", out)
	}
	userID, err := env.tokens.VerifySession(out.Token)
	if err != nil || userID != u.ID {
		t.Fatalf("token resolves to %q, %v", userID, err)
	}
}

func TestWalletCheckRequiresAddress(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/auth/wallet-check", "", map[string]string{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	var out struct {
		Error string `json:"error"`
	}
	decodeJSON(t, rec, &out)
	if out.Error != "Wallet address is required" {
		t.Fatalf("error = %q", out.Error)
	}
}

func TestWalletLoginCreatesUser(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/auth/wallet-login", "", map[string]string{"walletAddress": "0xnew"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var out struct {
		Token string     `json:"token"`
		User  store.User `json:"user"`
	}
	decodeJSON(t, rec, &out)
	if out.User.WalletAddress != "0xnew" || out.User.WalletType != "petra" {
		t.Fatalf("user = %+v", out.User)
	}
	if out.Token == "" {
		t.Fatal("missing token")
	}
}

func photonResponse(wallet, photonUserID string) *photon.RegisterResponse {
	var resp photon.RegisterResponse
	resp.Success = true
	resp.Data.User.User.ID = photonUserID
	resp.Data.Tokens.AccessToken = "access-1"
	resp.Data.Tokens.RefreshToken = "refresh-1"
	resp.Data.Wallet.WalletAddress = wallet
	return &resp
}

func TestPhotonOnboardCreatesUser(t *testing.T) {
	env := newTestEnv(t)
	env.photon.resp = photonResponse("0xphoton", "ph-user-1")

	rec := env.do(t, http.MethodPost, "/api/auth/photon-onboard", "", map[string]string{"email": "trader@example.com"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var out struct {
		Success          bool       `json:"success"`
		Token            string     `json:"token"`
		WalletAddress    string     `json:"wallet_address"`
		PhotonIdentityID string     `json:"photon_identity_id"`
		AccessToken      string     `json:"access_token"`
		RefreshToken     string     `json:"refresh_token"`
		User             store.User `json:"user"`
	}
	decodeJSON(t, rec, &out)
	if !out.Success || out.WalletAddress != "0xphoton" || out.PhotonIdentityID != "ph-user-1" {
		t.Fatalf("out = %+v", out)
	}
	if out.AccessToken != "access-1" || out.RefreshToken != "refresh-1" {
		t.Fatalf("tokens = %+v", out)
	}
	if env.photon.gotClient != "trader@example.com" {
		t.Fatalf("client user id = %q", env.photon.gotClient)
	}
	if env.photon.gotToken == "" {
		t.Fatal("missing identity token")
	}
	user := env.users.byWallet["0xphoton"]
	if user == nil || user.PhotonIdentityID == nil || *user.PhotonIdentityID != "ph-user-1" {
		t.Fatalf("user = %+v", user)
	}
	if user.WalletType != "photon" {
		t.Fatalf("wallet type = %q", user.WalletType)
	}
}

func TestPhotonOnboardShortCircuitsExisting(t *testing.T) {
	env := newTestEnv(t)
	u, token := env.user(t, "0xexisting")
	identity := "ph-user-9"
	u.PhotonIdentityID = &identity

	rec := env.do(t, http.MethodPost, "/api/auth/photon-onboard", token, map[string]string{})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if env.photon.calls != 0 {
		t.Fatalf("photon called %d times", env.photon.calls)
	}
	var out struct {
		PhotonIdentityID string `json:"photon_identity_id"`
		WalletAddress    string `json:"wallet_address"`
	}
	decodeJSON(t, rec, &out)
	if out.PhotonIdentityID != identity || out.WalletAddress != "0xexisting" {
		t.Fatalf("out = %+v", out)
	}
}

func TestPhotonOnboardMissingWallet(t *testing.T) {
	env := newTestEnv(t)
	env.photon.resp = photonResponse("", "ph-user-1")

	rec := env.do(t, http.MethodPost, "/api/auth/photon-onboard", "", map[string]string{})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	var out struct {
		Error string `json:"error"`
	}
	decodeJSON(t, rec, &out)
	if out.Error != "Photon response missing wallet address" {
		t.Fatalf("error = %q", out.Error)
	}
}

func TestPhotonOnboardMissingUserID(t *testing.T) {
	env := newTestEnv(t)
	env.photon.resp = photonResponse("0xphoton", "")

	rec := env.do(t, http.MethodPost, "/api/auth/photon-onboard", "", map[string]string{})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	var out struct {
		Error string `json:"error"`
	}
	decodeJSON(t, rec, &out)
	if out.Error != "Photon response missing user ID" {
		t.Fatalf("error = %q", out.Error)
	}
}

func TestMeRequiresAuth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/auth/me", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestMeReturnsUser(t *testing.T) {
	env := newTestEnv(t)
	u, token := env.user(t, "0xme")

	rec := env.do(t, http.MethodGet, "/api/auth/me", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var out struct {
		User store.User `json:"user"`
	}
	decodeJSON(t, rec, &out)
	if out.User.ID != u.ID {
		t.Fatalf("user = %+v", out.User)
	}
}

func TestUpdateMe(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.user(t, "0xme")

	rec := env.do(t, http.MethodPatch, "/api/auth/me", token, map[string]string{"displayName": "Trader Joe"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var out struct {
		User store.User `json:"user"`
	}
	decodeJSON(t, rec, &out)
	if out.User.DisplayName == nil || *out.User.DisplayName != "Trader Joe" {
		t.Fatalf("user = %+v", out.User)
	}
	if len(env.users.updates) != 1 || env.users.updates[0].Email != nil {
		t.Fatalf("updates = %+v", env.users.updates)
	}
}

func TestAccountStatus(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.user(t, "0xmain")
	env.dex.subaccounts = []decibel.Subaccount{
		{SubaccountAddress: "0xsub", PrimaryAccountAddress: "0xmain", IsPrimary: true, IsActive: false},
	}
	env.dex.overviews["0xmain"] = &decibel.AccountOverview{USDCCrossWithdrawableBalance: 250}
	env.dex.overviews["0xsub"] = &decibel.AccountOverview{USDCCrossWithdrawableBalance: 75}

	rec := env.do(t, http.MethodGet, "/api/decibel/account-status", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var out accountStatusResponse
	decodeJSON(t, rec, &out)
	if !out.HasAccount || !out.HasBalance || out.Balance != 250 {
		t.Fatalf("out = %+v", out)
	}
	// An inactive primary subaccount is still reported: the frontend uses
	// it to drive activation.
	if out.PrimarySubaccount == nil || out.PrimarySubaccount.Address != "0xsub" {
		t.Fatalf("primary = %+v", out.PrimarySubaccount)
	}
	if out.PrimarySubaccount.IsActive || out.PrimarySubaccount.Balance != 75 {
		t.Fatalf("primary = %+v", out.PrimarySubaccount)
	}
}

func TestAccountStatusDegradesOnUpstreamError(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.user(t, "0xmain")
	env.dex.err = fmt.Errorf("gateway timeout")

	rec := env.do(t, http.MethodGet, "/api/decibel/account-status", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var out accountStatusResponse
	decodeJSON(t, rec, &out)
	if out.HasAccount || out.HasBalance || out.PrimarySubaccount != nil {
		t.Fatalf("out = %+v", out)
	}
}
