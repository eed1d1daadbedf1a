package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

type User struct {
	ID               string    `json:"id"`
	WalletAddress    string    `json:"walletAddress"`
	PhotonIdentityID *string   `json:"photonIdentityId"`
	Email            *string   `json:"email"`
	Username         *string   `json:"username"`
	DisplayName      *string   `json:"displayName"`
	WalletType       string    `json:"walletType"`
	IsSignalProvider bool      `json:"isSignalProvider"`
	PhotonPoints     int64     `json:"photonPoints"`
	Tier             string    `json:"tier"`
	CreatedAt        time.Time `json:"createdAt"`
}

const userColumns = `id, wallet_address, photon_identity_id, email, username,
	display_name, wallet_type, is_signal_provider, photon_points, tier, created_at`

func (s *Store) FindUserByWallet(ctx context.Context, walletAddress string) (*User, error) {
	return s.queryUser(ctx,
		"SELECT "+userColumns+" FROM users WHERE wallet_address = $1", walletAddress)
}

func (s *Store) FindUserByID(ctx context.Context, id string) (*User, error) {
	return s.queryUser(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = $1", id)
}

func (s *Store) CreateUser(ctx context.Context, walletAddress, walletType string, email, username *string) (*User, error) {
	if walletType == "" {
		walletType = "photon"
	}
	return s.queryUser(ctx,
		`INSERT INTO users (wallet_address, wallet_type, email, username)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+userColumns,
		walletAddress, walletType, email, username)
}

// FindOrCreateUser returns the user for a wallet, creating the row on first
// sight.
func (s *Store) FindOrCreateUser(ctx context.Context, walletAddress, walletType string) (*User, error) {
	user, err := s.FindUserByWallet(ctx, walletAddress)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return s.CreateUser(ctx, walletAddress, walletType, nil, nil)
}

func (s *Store) AttachPhotonIdentity(ctx context.Context, userID, photonIdentityID, walletAddress string) (*User, error) {
	return s.queryUser(ctx,
		`UPDATE users SET photon_identity_id = $1, wallet_address = $2
		 WHERE id = $3
		 RETURNING `+userColumns,
		photonIdentityID, walletAddress, userID)
}

// UserUpdate lists the mutable profile fields. Nil fields are left alone.
type UserUpdate struct {
	Email       *string `json:"email"`
	DisplayName *string `json:"displayName"`
	Username    *string `json:"username"`
}

func (s *Store) UpdateUser(ctx context.Context, userID string, update UserUpdate) (*User, error) {
	var sets []string
	var args []any
	add := func(column string, value *string) {
		if value != nil {
			args = append(args, *value)
			sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
		}
	}
	add("email", update.Email)
	add("display_name", update.DisplayName)
	add("username", update.Username)
	if len(sets) == 0 {
		return s.FindUserByID(ctx, userID)
	}
	args = append(args, userID)
	query := fmt.Sprintf("UPDATE users SET %s WHERE id = $%d RETURNING %s",
		strings.Join(sets, ", "), len(args), userColumns)
	return s.queryUser(ctx, query, args...)
}

func (s *Store) queryUser(ctx context.Context, query string, args ...any) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	var u User
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&u.ID,
		&u.WalletAddress,
		&u.PhotonIdentityID,
		&u.Email,
		&u.Username,
		&u.DisplayName,
		&u.WalletType,
		&u.IsSignalProvider,
		&u.PhotonPoints,
		&u.Tier,
		&u.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
