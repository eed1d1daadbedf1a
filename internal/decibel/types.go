package decibel

type Market struct {
	MarketAddr      string  `json:"market_addr"`
	MarketName      string  `json:"market_name"`
	MaxLeverage     float64 `json:"max_leverage"`
	MaxOpenInterest float64 `json:"max_open_interest"`
	MinSize         float64 `json:"min_size"`
	PxDecimals      int     `json:"px_decimals"`
	SzDecimals      int     `json:"sz_decimals"`
	TickSize        uint64  `json:"tick_size"`
	LotSize         uint64  `json:"lot_size"`
}

type Price struct {
	Market            string  `json:"market"`
	OraclePx          float64 `json:"oracle_px"`
	MarkPx            float64 `json:"mark_px"`
	MidPx             float64 `json:"mid_px"`
	FundingRateBps    float64 `json:"funding_rate_bps"`
	IsFundingPositive bool    `json:"is_funding_positive"`
	OpenInterest      float64 `json:"open_interest"`
	TransactionUnixMS int64   `json:"transaction_unix_ms"`
}

type BookLevel struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

type OrderBook struct {
	Market string      `json:"market"`
	Bids   []BookLevel `json:"bids"`
	Asks   []BookLevel `json:"asks"`
}

type Trade struct {
	Account               string  `json:"account"`
	Market                string  `json:"market"`
	Action                string  `json:"action"`
	TradeID               int64   `json:"trade_id"`
	Size                  float64 `json:"size"`
	Price                 float64 `json:"price"`
	IsProfit              bool    `json:"is_profit"`
	RealizedPnlAmount     float64 `json:"realized_pnl_amount"`
	IsFundingPositive     bool    `json:"is_funding_positive"`
	RealizedFundingAmount float64 `json:"realized_funding_amount"`
	IsRebate              bool    `json:"is_rebate"`
	FeeAmount             float64 `json:"fee_amount"`
	OrderID               string  `json:"order_id"`
	ClientOrderID         string  `json:"client_order_id"`
	TransactionUnixMS     int64   `json:"transaction_unix_ms"`
	TransactionVersion    int64   `json:"transaction_version"`
}

type Candle struct {
	Start    int64   `json:"t"`
	End      int64   `json:"T"`
	Open     float64 `json:"o"`
	High     float64 `json:"h"`
	Low      float64 `json:"l"`
	Close    float64 `json:"c"`
	Volume   float64 `json:"v"`
	Interval string  `json:"i"`
}

type Subaccount struct {
	SubaccountAddress     string  `json:"subaccount_address"`
	PrimaryAccountAddress string  `json:"primary_account_address"`
	IsPrimary             bool    `json:"is_primary"`
	IsActive              bool    `json:"is_active"`
	CustomLabel           *string `json:"custom_label"`
}

type AccountOverview struct {
	PerpEquityBalance              float64  `json:"perp_equity_balance"`
	UnrealizedPnl                  float64  `json:"unrealized_pnl"`
	UnrealizedFundingCost          float64  `json:"unrealized_funding_cost"`
	CrossMarginRatio               float64  `json:"cross_margin_ratio"`
	MaintenanceMargin              float64  `json:"maintenance_margin"`
	CrossAccountLeverageRatio      float64  `json:"cross_account_leverage_ratio"`
	TotalMargin                    float64  `json:"total_margin"`
	USDCCrossWithdrawableBalance   float64  `json:"usdc_cross_withdrawable_balance"`
	USDCIsolatedWithdrawableBalance float64 `json:"usdc_isolated_withdrawable_balance"`
	Volume                         *float64 `json:"volume"`
	AllTimeReturn                  *float64 `json:"all_time_return"`
}

type Position struct {
	Market                    string   `json:"market"`
	User                      string   `json:"user"`
	Size                      float64  `json:"size"`
	UserLeverage              float64  `json:"user_leverage"`
	MaxAllowedLeverage        float64  `json:"max_allowed_leverage"`
	EntryPrice                float64  `json:"entry_price"`
	IsIsolated                bool     `json:"is_isolated"`
	IsDeleted                 bool     `json:"is_deleted"`
	UnrealizedFunding         float64  `json:"unrealized_funding"`
	EstimatedLiquidationPrice float64  `json:"estimated_liquidation_price"`
	TransactionVersion        int64    `json:"transaction_version"`
	TpTriggerPrice            *float64 `json:"tp_trigger_price"`
	TpLimitPrice              *float64 `json:"tp_limit_price"`
	SlTriggerPrice            *float64 `json:"sl_trigger_price"`
	SlLimitPrice              *float64 `json:"sl_limit_price"`
}

type Order struct {
	Parent             string   `json:"parent"`
	Market             string   `json:"market"`
	ClientOrderID      string   `json:"client_order_id"`
	OrderID            string   `json:"order_id"`
	Status             string   `json:"status"`
	OrderType          string   `json:"order_type"`
	TriggerCondition   string   `json:"trigger_condition"`
	OrderDirection     string   `json:"order_direction"`
	IsBuy              bool     `json:"is_buy"`
	IsReduceOnly       bool     `json:"is_reduce_only"`
	Details            string   `json:"details"`
	TransactionVersion int64    `json:"transaction_version"`
	UnixMS             int64    `json:"unix_ms"`
	OrigSize           *float64 `json:"orig_size"`
	Price              *float64 `json:"price"`
	RemainingSize      *float64 `json:"remaining_size"`
}

type OrderHistory struct {
	Items      []Order `json:"items"`
	TotalCount int     `json:"total_count"`
}

type Delegation struct {
	DelegatedAccount string `json:"delegated_account"`
	ExpirationTimeS  *int64 `json:"expiration_time_s"`
	PermissionType   string `json:"permission_type"`
}
