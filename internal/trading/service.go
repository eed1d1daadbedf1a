package trading

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"alphaflow-backend/internal/chain"
	"alphaflow-backend/internal/decibel"
	"alphaflow-backend/internal/units"
)

const (
	orderFunctionName      = "dex_accounts::place_order_to_subaccount"
	delegationFunctionName = "dex_accounts::delegate_trading_to_for_subaccount"

	tifGTC = 0
	tifIOC = 2
)

// DexAPI is the slice of the exchange API the trading service needs.
type DexAPI interface {
	MarketByName(ctx context.Context, name string) (decibel.Market, error)
	Prices(ctx context.Context, marketAddr string) ([]decibel.Price, error)
	PrimarySubaccount(ctx context.Context, owner string) (decibel.Subaccount, bool, error)
	Delegations(ctx context.Context, subaccount string) ([]decibel.Delegation, error)
}

// PriceSource serves the freshest known price for a market, typically a
// websocket cache. A miss falls through to the REST API.
type PriceSource interface {
	Latest(marketAddr string) (decibel.Price, bool)
}

// Submitter signs and lands custody transactions on chain.
type Submitter interface {
	SubmitEntryFunction(ctx context.Context, acct *chain.Account, payload chain.EntryFunctionPayload) (*chain.Transaction, error)
	Module(ctx context.Context, address, name string) (json.RawMessage, error)
}

type Service struct {
	dex              DexAPI
	prices           PriceSource
	chain            Submitter
	custody          *chain.Account
	pkg              string
	delegationExpiry time.Duration
	now              func() time.Time
	log              *zap.Logger
}

func NewService(dex DexAPI, prices PriceSource, submitter Submitter, custody *chain.Account, packageAddress string, delegationExpiry time.Duration, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		dex:              dex,
		prices:           prices,
		chain:            submitter,
		custody:          custody,
		pkg:              packageAddress,
		delegationExpiry: delegationExpiry,
		now:              time.Now,
		log:              log,
	}
}

// OrderRequest describes an order in decimal units, before any scaling.
type OrderRequest struct {
	Market        string
	Side          string // "buy" or "sell"
	OrderType     string // "market" or "limit"
	Size          decimal.Decimal
	Price         *decimal.Decimal
	TpPrice       *decimal.Decimal
	SlPrice       *decimal.Decimal
	ClientOrderID string
	ReduceOnly    bool
}

// OrderTransaction is an unsigned order ready for a wallet to sign.
type OrderTransaction struct {
	Payload           chain.EntryFunctionPayload `json:"payload"`
	SubaccountAddress string                     `json:"subaccountAddress"`
	Market            decibel.Market             `json:"market"`
	Price             decimal.Decimal            `json:"price"`
	RawPrice          uint64                     `json:"rawPrice"`
	RawSize           uint64                     `json:"rawSize"`
}

// ExecutionResult reports a custody-signed order that landed on chain.
type ExecutionResult struct {
	TransactionHash   string
	OrderID           string
	ClientOrderID     string
	SubaccountAddress string
	Market            decibel.Market
	Price             decimal.Decimal
	RawPrice          uint64
	RawSize           uint64
}

type orderPlan struct {
	market   decibel.Market
	price    decimal.Decimal
	rawPrice uint64
	rawSize  uint64
	args     []any
}

// BackendAddress is the custody account's address, the delegate users grant
// trading rights to.
func (s *Service) BackendAddress() (string, error) {
	if s.custody == nil {
		return "", ErrBackendWalletNotConfigured
	}
	return s.custody.Address(), nil
}

// BuildOrderTransaction assembles an order payload for the caller's wallet
// to sign. Nothing is submitted.
func (s *Service) BuildOrderTransaction(ctx context.Context, owner string, req OrderRequest) (*OrderTransaction, error) {
	sub, err := s.resolveSubaccount(ctx, owner)
	if err != nil {
		return nil, err
	}
	plan, err := s.planOrder(ctx, sub.SubaccountAddress, req)
	if err != nil {
		return nil, err
	}
	return &OrderTransaction{
		Payload: chain.EntryFunctionPayload{
			Function:          s.pkg + "::" + orderFunctionName,
			TypeArguments:     []string{},
			FunctionArguments: chain.EncodeArguments(plan.args, chain.OptionStyleWallet),
		},
		SubaccountAddress: sub.SubaccountAddress,
		Market:            plan.market,
		Price:             plan.price,
		RawPrice:          plan.rawPrice,
		RawSize:           plan.rawSize,
	}, nil
}

// PlaceOrder signs and submits an order with the custody key on behalf of a
// user who has delegated trading to the backend.
func (s *Service) PlaceOrder(ctx context.Context, owner string, req OrderRequest) (*ExecutionResult, error) {
	if s.custody == nil {
		return nil, ErrBackendWalletNotConfigured
	}
	sub, err := s.resolveSubaccount(ctx, owner)
	if err != nil {
		return nil, err
	}
	if req.ClientOrderID == "" {
		req.ClientOrderID = "ai-" + strconv.FormatInt(s.now().UnixMilli(), 10)
	}
	plan, err := s.planOrder(ctx, sub.SubaccountAddress, req)
	if err != nil {
		return nil, err
	}
	tx, err := s.chain.SubmitEntryFunction(ctx, s.custody, chain.EntryFunctionPayload{
		Function:          s.pkg + "::" + orderFunctionName,
		TypeArguments:     []string{},
		FunctionArguments: plan.args,
	})
	if err != nil {
		return nil, fmt.Errorf("submit order: %w", err)
	}
	s.log.Info("order placed",
		zap.String("market", plan.market.MarketName),
		zap.String("hash", tx.Hash),
		zap.String("client_order_id", req.ClientOrderID))
	return &ExecutionResult{
		TransactionHash:   tx.Hash,
		OrderID:           orderIDFromEvents(tx.Events),
		ClientOrderID:     req.ClientOrderID,
		SubaccountAddress: sub.SubaccountAddress,
		Market:            plan.market,
		Price:             plan.price,
		RawPrice:          plan.rawPrice,
		RawSize:           plan.rawSize,
	}, nil
}

func (s *Service) resolveSubaccount(ctx context.Context, owner string) (decibel.Subaccount, error) {
	sub, ok, err := s.dex.PrimarySubaccount(ctx, owner)
	if err != nil {
		return decibel.Subaccount{}, fmt.Errorf("resolve subaccount: %w", err)
	}
	if !ok {
		return decibel.Subaccount{}, ErrNoSubaccount
	}
	return sub, nil
}

func (s *Service) planOrder(ctx context.Context, subaccountAddr string, req OrderRequest) (*orderPlan, error) {
	market, err := s.dex.MarketByName(ctx, req.Market)
	if err != nil {
		if errors.Is(err, decibel.ErrMarketNotFound) {
			return nil, &MarketNotFoundError{Name: req.Market}
		}
		return nil, err
	}

	isMarket := strings.EqualFold(req.OrderType, "market")
	var price decimal.Decimal
	if isMarket {
		price, err = s.markPrice(ctx, market.MarketAddr)
		if err != nil {
			return nil, err
		}
	} else {
		if req.Price == nil || req.Price.Sign() <= 0 {
			return nil, ErrMissingPrice
		}
		price = *req.Price
	}
	price = units.RoundToTick(price, market.TickSize, market.PxDecimals)

	rawPrice := units.ToRawPrice(price, market.PxDecimals)
	rawSize := units.ToRawSize(req.Size, market.SzDecimals)
	minRaw := decimal.NewFromFloat(market.MinSize)
	if decimal.NewFromUint64(rawSize).LessThan(minRaw) {
		return nil, &SizeTooSmallError{
			Size: req.Size,
			Min:  minRaw.Shift(-int32(market.SzDecimals)),
		}
	}

	tif := tifGTC
	if isMarket {
		tif = tifIOC
	}
	isBuy := strings.EqualFold(req.Side, "buy")

	args := []any{
		subaccountAddr,
		market.MarketAddr,
		chain.U64(rawPrice),
		chain.U64(rawSize),
		isBuy,
		uint8(tif),
		req.ReduceOnly,
		optionalString(req.ClientOrderID),
		chain.None{}, // stop price
		optionalRawPrice(req.TpPrice, market),
		optionalRawPrice(req.TpPrice, market),
		optionalRawPrice(req.SlPrice, market),
		optionalRawPrice(req.SlPrice, market),
		chain.None{}, // builder address
		chain.None{}, // builder fee
	}
	return &orderPlan{
		market:   market,
		price:    price,
		rawPrice: rawPrice,
		rawSize:  rawSize,
		args:     args,
	}, nil
}

func (s *Service) markPrice(ctx context.Context, marketAddr string) (decimal.Decimal, error) {
	if s.prices != nil {
		if p, ok := s.prices.Latest(marketAddr); ok && p.MarkPx > 0 {
			return decimal.NewFromFloat(p.MarkPx), nil
		}
	}
	prices, err := s.dex.Prices(ctx, marketAddr)
	if err != nil {
		s.log.Warn("price lookup failed", zap.String("market", marketAddr), zap.Error(err))
		return decimal.Decimal{}, ErrPriceUnavailable
	}
	for _, p := range prices {
		if p.Market == marketAddr && p.MarkPx > 0 {
			return decimal.NewFromFloat(p.MarkPx), nil
		}
	}
	return decimal.Decimal{}, ErrPriceUnavailable
}

func optionalString(v string) any {
	if v == "" {
		return chain.None{}
	}
	return v
}

func optionalRawPrice(p *decimal.Decimal, market decibel.Market) any {
	if p == nil || p.Sign() <= 0 {
		return chain.None{}
	}
	snapped := units.RoundToTick(*p, market.TickSize, market.PxDecimals)
	return chain.U64(units.ToRawPrice(snapped, market.PxDecimals))
}

func orderIDFromEvents(events []chain.Event) string {
	for _, ev := range events {
		if !strings.Contains(strings.ToLower(ev.Type), "order") {
			continue
		}
		var data struct {
			OrderID string `json:"order_id"`
		}
		if err := json.Unmarshal(ev.Data, &data); err == nil && data.OrderID != "" {
			return data.OrderID
		}
	}
	return ""
}

// DelegationTransaction is an unsigned delegation grant for the user's
// wallet to sign.
type DelegationTransaction struct {
	Payload           chain.EntryFunctionPayload `json:"payload"`
	SubaccountAddress string                     `json:"subaccountAddress"`
	BackendAddress    string                     `json:"backendAddress"`
	ExpirationTimeS   *int64                     `json:"expirationTimeS"`
}

// DelegationStatus reports whether the custody account currently holds
// trading rights over the user's subaccount.
type DelegationStatus struct {
	HasSubaccount     bool   `json:"hasSubaccount"`
	SubaccountAddress string `json:"subaccountAddress,omitempty"`
	BackendAddress    string `json:"backendAddress"`
	IsDelegated       bool   `json:"isDelegated"`
	ExpirationTimeS   *int64 `json:"expirationTimeS,omitempty"`
	PermissionType    string `json:"permissionType,omitempty"`
}

// BuildDelegationTransaction assembles the payload granting the custody
// account trading rights over a subaccount. When subaccountAddr is empty
// the owner's primary subaccount is used.
func (s *Service) BuildDelegationTransaction(ctx context.Context, owner, subaccountAddr string) (*DelegationTransaction, error) {
	backendAddr, err := s.BackendAddress()
	if err != nil {
		return nil, err
	}
	if subaccountAddr == "" {
		sub, err := s.resolveSubaccount(ctx, owner)
		if err != nil {
			return nil, err
		}
		subaccountAddr = sub.SubaccountAddress
	}

	// Preflight the ABI so a missing module surfaces in logs before the
	// wallet rejects the payload. Failures never block the build.
	if s.chain != nil {
		if _, err := s.chain.Module(ctx, s.pkg, "dex_accounts"); err != nil {
			s.log.Debug("module probe failed", zap.Error(err))
		}
	}

	var expiration any = chain.None{}
	var expirationS *int64
	if s.delegationExpiry > 0 {
		exp := s.now().Add(s.delegationExpiry).Unix()
		expiration = chain.U64(exp)
		expirationS = &exp
	}
	args := []any{subaccountAddr, backendAddr, expiration}
	return &DelegationTransaction{
		Payload: chain.EntryFunctionPayload{
			Function:          s.pkg + "::" + delegationFunctionName,
			TypeArguments:     []string{},
			FunctionArguments: chain.EncodeArguments(args, chain.OptionStyleWallet),
		},
		SubaccountAddress: subaccountAddr,
		BackendAddress:    backendAddr,
		ExpirationTimeS:   expirationS,
	}, nil
}

// Status checks whether the owner's subaccount has delegated trading to the
// custody account.
func (s *Service) Status(ctx context.Context, owner string) (*DelegationStatus, error) {
	backendAddr, err := s.BackendAddress()
	if err != nil {
		return nil, err
	}
	sub, ok, err := s.dex.PrimarySubaccount(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("resolve subaccount: %w", err)
	}
	if !ok {
		return &DelegationStatus{BackendAddress: backendAddr}, nil
	}
	delegations, err := s.dex.Delegations(ctx, sub.SubaccountAddress)
	if err != nil {
		return nil, fmt.Errorf("fetch delegations: %w", err)
	}
	status := &DelegationStatus{
		HasSubaccount:     true,
		SubaccountAddress: sub.SubaccountAddress,
		BackendAddress:    backendAddr,
	}
	for _, d := range delegations {
		if strings.EqualFold(d.DelegatedAccount, backendAddr) {
			status.IsDelegated = true
			status.ExpirationTimeS = d.ExpirationTimeS
			status.PermissionType = d.PermissionType
			break
		}
	}
	return status, nil
}
