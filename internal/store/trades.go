package store

import (
	"context"
	"time"
)

type Trade struct {
	ID                string    `json:"id"`
	UserID            string    `json:"userId"`
	TradeType         string    `json:"tradeType"`
	Side              string    `json:"side"`
	Asset             string    `json:"asset"`
	Amount            float64   `json:"amount"`
	Price             float64   `json:"price"`
	TotalValue        float64   `json:"totalValue"`
	OrderType         string    `json:"orderType"`
	Status            string    `json:"status"`
	DecibelTxHash     *string   `json:"decibelTxHash,omitempty"`
	AIReasoning       *string   `json:"aiReasoning,omitempty"`
	AIConfidenceScore *float64  `json:"aiConfidenceScore,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
}

const tradeColumns = `id, user_id, trade_type, side, asset, amount, price,
	total_value, order_type, status, decibel_tx_hash, ai_reasoning,
	ai_confidence_score, created_at`

func (s *Store) InsertTrade(ctx context.Context, t Trade) (*Trade, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO trades (
			user_id, trade_type, side, asset, amount, price, total_value,
			order_type, status, decibel_tx_hash, ai_reasoning, ai_confidence_score
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING `+tradeColumns,
		t.UserID, t.TradeType, t.Side, t.Asset, t.Amount, t.Price, t.TotalValue,
		t.OrderType, t.Status, t.DecibelTxHash, t.AIReasoning, t.AIConfidenceScore)
	var out Trade
	err := row.Scan(
		&out.ID,
		&out.UserID,
		&out.TradeType,
		&out.Side,
		&out.Asset,
		&out.Amount,
		&out.Price,
		&out.TotalValue,
		&out.OrderType,
		&out.Status,
		&out.DecibelTxHash,
		&out.AIReasoning,
		&out.AIConfidenceScore,
		&out.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Trades lists a user's executed trades, newest first.
func (s *Store) Trades(ctx context.Context, userID string, limit int) ([]Trade, error) {
	if limit <= 0 {
		limit = 50
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+tradeColumns+` FROM trades
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var trades []Trade
	for rows.Next() {
		var t Trade
		if err := rows.Scan(
			&t.ID,
			&t.UserID,
			&t.TradeType,
			&t.Side,
			&t.Asset,
			&t.Amount,
			&t.Price,
			&t.TotalValue,
			&t.OrderType,
			&t.Status,
			&t.DecibelTxHash,
			&t.AIReasoning,
			&t.AIConfidenceScore,
			&t.CreatedAt,
		); err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}
