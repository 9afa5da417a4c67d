package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"socialfeed/apperr"

	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrTokenInvalid = apperr.New(apperr.CodeTokenInvalid, "token is invalid")
	ErrTokenExpired = apperr.New(apperr.CodeTokenExpired, "token has expired")
)

// Claims is the session token payload.
type Claims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

// SessionToken is a signed bearer token and the moment it stops being valid.
type SessionToken struct {
	Token     string
	ExpiresAt time.Time
}

// Tokens issues and verifies session tokens and mints reset tokens.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokens(secret string, ttl time.Duration) *Tokens {
	return &Tokens{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// WithClock replaces the time source. Used by tests.
func (t *Tokens) WithClock(now func() time.Time) *Tokens {
	t.now = now
	return t
}

// TTL is the lifetime of issued session tokens.
func (t *Tokens) TTL() time.Duration {
	return t.ttl
}

func (t *Tokens) IssueSessionToken(userID primitive.ObjectID) (SessionToken, error) {
	now := t.now()
	expiresAt := now.Add(t.ttl)
	claims := &Claims{
		UserID: userID.Hex(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return SessionToken{}, apperr.Dependency(fmt.Errorf("sign token: %w", err))
	}
	return SessionToken{Token: signed, ExpiresAt: expiresAt}, nil
}

// VerifySessionToken checks signature, algorithm and expiry and returns the
// user id carried by the token.
func (t *Tokens) VerifySessionToken(token string) (primitive.ObjectID, error) {
	if token == "" {
		return primitive.NilObjectID, ErrTokenInvalid
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return t.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return primitive.NilObjectID, ErrTokenExpired
	case err != nil:
		return primitive.NilObjectID, ErrTokenInvalid
	}

	userID, err := primitive.ObjectIDFromHex(claims.UserID)
	if err != nil {
		return primitive.NilObjectID, ErrTokenInvalid
	}
	return userID, nil
}

// NewResetToken returns a random 64-character hex token and the digest that
// is stored in its place.
func NewResetToken() (plain, hash string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", apperr.Dependency(fmt.Errorf("read random: %w", err))
	}
	plain = hex.EncodeToString(buf)
	return plain, HashResetToken(plain), nil
}

// HashResetToken is the SHA-256 hex digest of plain.
func HashResetToken(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}
