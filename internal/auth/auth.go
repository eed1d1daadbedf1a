package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// Tokens issues and verifies the two JWT kinds the backend uses: long-lived
// session tokens holding the user id, and short-lived identity tokens handed
// to the wallet provider during registration.
type Tokens struct {
	secret      []byte
	sessionTTL  time.Duration
	identityTTL time.Duration
	now         func() time.Time
}

func NewTokens(secret string, sessionTTL, identityTTL time.Duration) (*Tokens, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	if sessionTTL <= 0 {
		sessionTTL = 7 * 24 * time.Hour
	}
	if identityTTL <= 0 {
		identityTTL = time.Hour
	}
	return &Tokens{
		secret:      []byte(secret),
		sessionTTL:  sessionTTL,
		identityTTL: identityTTL,
		now:         time.Now,
	}, nil
}

type sessionClaims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

// IssueSession mints a session token for a user.
func (t *Tokens) IssueSession(userID string) (string, error) {
	now := t.now()
	claims := sessionClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.sessionTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// VerifySession validates a session token and returns the user id.
func (t *Tokens) VerifySession(token string) (string, error) {
	var claims sessionClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, t.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now))
	if err != nil || !parsed.Valid {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.UserID == "" {
		return "", ErrInvalidToken
	}
	return claims.UserID, nil
}

// IdentitySubject describes the person behind an identity token.
type IdentitySubject struct {
	Subject string
	Email   string
	Name    string
}

type identityClaims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// IssueIdentity mints a short-lived token for wallet-provider registration.
func (t *Tokens) IssueIdentity(subject IdentitySubject) (string, error) {
	if subject.Subject == "" {
		return "", errors.New("identity subject is required")
	}
	now := t.now()
	claims := identityClaims{
		Email: subject.Email,
		Name:  subject.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.identityTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

func (t *Tokens) keyFunc(_ *jwt.Token) (any, error) {
	return t.secret, nil
}
