package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

type ChatMessage struct {
	ID                 string          `json:"id"`
	UserID             string          `json:"userId"`
	Role               string          `json:"role"`
	Content            string          `json:"content"`
	AIModel            *string         `json:"aiModel,omitempty"`
	TokensUsed         *int            `json:"tokensUsed,omitempty"`
	ResponseTimeMS     *int            `json:"responseTimeMs,omitempty"`
	TradeSignal        json.RawMessage `json:"tradeSignal,omitempty"`
	HasTradeSignal     bool            `json:"hasTradeSignal"`
	MarketDataSnapshot json.RawMessage `json:"marketDataSnapshot,omitempty"`
	CreatedAt          time.Time       `json:"createdAt"`
}

// ChatMessageOptions carries the optional metadata saved with assistant
// messages.
type ChatMessageOptions struct {
	AIModel            string
	TokensUsed         int
	ResponseTimeMS     int
	TradeSignal        json.RawMessage
	MarketDataSnapshot json.RawMessage
}

const chatColumns = `id, user_id, role, content, ai_model, tokens_used,
	response_time_ms, trade_signal, has_trade_signal, market_data_snapshot, created_at`

func (s *Store) SaveChatMessage(ctx context.Context, userID, role, content string, opts *ChatMessageOptions) (*ChatMessage, error) {
	var aiModel, tradeSignal, snapshot any
	var tokensUsed, responseTime any
	hasSignal := false
	if opts != nil {
		if opts.AIModel != "" {
			aiModel = opts.AIModel
		}
		if opts.TokensUsed > 0 {
			tokensUsed = opts.TokensUsed
		}
		if opts.ResponseTimeMS > 0 {
			responseTime = opts.ResponseTimeMS
		}
		if len(opts.TradeSignal) > 0 {
			tradeSignal = string(opts.TradeSignal)
			hasSignal = true
		}
		if len(opts.MarketDataSnapshot) > 0 {
			snapshot = string(opts.MarketDataSnapshot)
		}
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO chat_messages (
			user_id, role, content, ai_model, tokens_used, response_time_ms,
			trade_signal, has_trade_signal, market_data_snapshot
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+chatColumns,
		userID, role, content, aiModel, tokensUsed, responseTime, tradeSignal, hasSignal, snapshot)
	return scanChatMessage(row)
}

// ChatHistory returns a page of messages in chronological order.
func (s *Store) ChatHistory(ctx context.Context, userID string, limit, offset int) ([]ChatMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.queryChatMessages(ctx,
		`SELECT `+chatColumns+` FROM chat_messages
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`,
		userID, limit, offset)
}

// RecentChatHistory returns the latest messages in chronological order.
func (s *Store) RecentChatHistory(ctx context.Context, userID string, limit int) ([]ChatMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.queryChatMessages(ctx,
		`SELECT `+chatColumns+` FROM chat_messages
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		userID, limit)
}

func (s *Store) DeleteChatHistory(ctx context.Context, userID string) error {
	return s.exec(ctx, "DELETE FROM chat_messages WHERE user_id = $1", userID)
}

type ChatStats struct {
	TotalMessages     int        `json:"totalMessages"`
	TotalTradeSignals int        `json:"totalTradeSignals"`
	LastMessageAt     *time.Time `json:"lastMessageAt"`
}

func (s *Store) ChatStats(ctx context.Context, userID string) (ChatStats, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	var stats ChatStats
	var last sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
			COUNT(*) FILTER (WHERE has_trade_signal = true),
			MAX(created_at)
		 FROM chat_messages WHERE user_id = $1`,
		userID).Scan(&stats.TotalMessages, &stats.TotalTradeSignals, &last)
	if err != nil {
		return ChatStats{}, err
	}
	if last.Valid {
		stats.LastMessageAt = &last.Time
	}
	return stats, nil
}

func (s *Store) queryChatMessages(ctx context.Context, query string, args ...any) ([]ChatMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var messages []ChatMessage
	for rows.Next() {
		msg, err := scanChatMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// query returns newest first; callers want chronological order
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChatMessage(row rowScanner) (*ChatMessage, error) {
	var msg ChatMessage
	var tradeSignal, snapshot []byte
	err := row.Scan(
		&msg.ID,
		&msg.UserID,
		&msg.Role,
		&msg.Content,
		&msg.AIModel,
		&msg.TokensUsed,
		&msg.ResponseTimeMS,
		&tradeSignal,
		&msg.HasTradeSignal,
		&snapshot,
		&msg.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	msg.TradeSignal = json.RawMessage(tradeSignal)
	msg.MarketDataSnapshot = json.RawMessage(snapshot)
	return &msg, nil
}
