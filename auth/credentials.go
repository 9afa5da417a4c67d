// Package auth owns user credentials, session tokens and the password-reset
// flow.
package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"socialfeed/apperr"
	"socialfeed/models"
	"socialfeed/store"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned for both unknown usernames and wrong
// passwords.
var ErrInvalidCredentials = apperr.New(apperr.CodeUnauthorized, "invalid username or password")

// Credentials is the credential store: registration, lookup, password
// verification and reset-token state.
type Credentials struct {
	users    store.UserStore
	cost     int
	resetTTL time.Duration
	timeout  time.Duration
	now      func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

type CredentialsOptions struct {
	BcryptCost    int
	ResetTokenTTL time.Duration
	// StoreTimeout bounds every store call.
	StoreTimeout time.Duration
	Now          func() time.Time
}

func NewCredentials(users store.UserStore, opts CredentialsOptions) *Credentials {
	if opts.BcryptCost < bcrypt.MinCost || opts.BcryptCost > bcrypt.MaxCost {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if opts.ResetTokenTTL == 0 {
		opts.ResetTokenTTL = time.Hour
	}
	if opts.StoreTimeout == 0 {
		opts.StoreTimeout = 10 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Credentials{
		users:    users,
		cost:     opts.BcryptCost,
		resetTTL: opts.ResetTokenTTL,
		timeout:  opts.StoreTimeout,
		now:      opts.Now,
	}
}

func (c *Credentials) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a user and stores only the bcrypt hash of password.
func (c *Credentials) Register(ctx context.Context, username, email, password string) (models.User, error) {
	username = strings.TrimSpace(username)
	email = normalizeEmail(email)
	switch {
	case username == "":
		return models.User{}, apperr.Validation("username is required")
	case email == "":
		return models.User{}, apperr.Validation("email is required")
	case strings.TrimSpace(password) == "":
		return models.User{}, apperr.Validation("password is required")
	}

	hash, err := HashPassword(password, c.cost)
	if err != nil {
		return models.User{}, err
	}
	user := models.User{
		ID:           primitive.NewObjectID(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    c.now().Unix(),
	}

	ctx, cancel := c.storeCtx(ctx)
	defer cancel()
	if err := c.users.CreateUser(ctx, &user); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return models.User{}, apperr.New(apperr.CodeConflict, "username or email already in use")
		}
		return models.User{}, apperr.Dependency(err)
	}
	return user, nil
}

func (c *Credentials) find(ctx context.Context, what string, lookup func(context.Context) (models.User, error)) (models.User, error) {
	ctx, cancel := c.storeCtx(ctx)
	defer cancel()

	user, err := lookup(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return models.User{}, apperr.New(apperr.CodeNotFound, what+" not found")
	}
	if err != nil {
		return models.User{}, apperr.Dependency(err)
	}
	return user, nil
}

func (c *Credentials) FindByID(ctx context.Context, id primitive.ObjectID) (models.User, error) {
	return c.find(ctx, "user", func(ctx context.Context) (models.User, error) {
		return c.users.GetUserByID(ctx, id)
	})
}

func (c *Credentials) FindByUsername(ctx context.Context, username string) (models.User, error) {
	username = strings.TrimSpace(username)
	return c.find(ctx, "user", func(ctx context.Context) (models.User, error) {
		return c.users.GetUserByUsername(ctx, username)
	})
}

func (c *Credentials) FindByEmail(ctx context.Context, email string) (models.User, error) {
	email = normalizeEmail(email)
	return c.find(ctx, "user", func(ctx context.Context) (models.User, error) {
		return c.users.GetUserByEmail(ctx, email)
	})
}

func (c *Credentials) FindByResetTokenHash(ctx context.Context, hash string) (models.User, error) {
	return c.find(ctx, "reset token", func(ctx context.Context) (models.User, error) {
		return c.users.GetUserByResetTokenHash(ctx, hash)
	})
}

// FindSummaries returns {id, username} for each id that exists, in the order
// given.
func (c *Credentials) FindSummaries(ctx context.Context, ids []primitive.ObjectID) ([]models.UserSummary, error) {
	if len(ids) == 0 {
		return []models.UserSummary{}, nil
	}
	ctx, cancel := c.storeCtx(ctx)
	defer cancel()

	users, err := c.users.GetUsersByIDs(ctx, ids)
	if err != nil {
		return nil, apperr.Dependency(err)
	}
	byID := make(map[primitive.ObjectID]models.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	out := make([]models.UserSummary, 0, len(ids))
	for _, id := range ids {
		if u, ok := byID[id]; ok {
			out = append(out, u.Summary())
		}
	}
	return out, nil
}

func (c *Credentials) VerifyPassword(user models.User, plain string) bool {
	return VerifyPassword(user.PasswordHash, plain)
}

// Authenticate resolves a login. An unknown username still costs one bcrypt
// comparison so response time does not reveal which usernames exist.
func (c *Credentials) Authenticate(ctx context.Context, username, password string) (models.User, error) {
	user, err := c.FindByUsername(ctx, username)
	if apperr.HasCode(err, apperr.CodeNotFound) {
		VerifyPassword(c.dummy(), password)
		return models.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return models.User{}, err
	}
	if !c.VerifyPassword(user, password) {
		return models.User{}, ErrInvalidCredentials
	}
	return user, nil
}

func (c *Credentials) dummy() string {
	c.dummyOnce.Do(func() {
		hash, err := HashPassword("not-a-real-password", c.cost)
		if err == nil {
			c.dummyHash = hash
		}
	})
	return c.dummyHash
}

// SetResetToken stores the digest of a fresh reset token on user and returns
// the plaintext, which is never persisted.
func (c *Credentials) SetResetToken(ctx context.Context, user models.User) (string, error) {
	plain, hash, err := NewResetToken()
	if err != nil {
		return "", err
	}
	expiresAt := c.now().Add(c.resetTTL).Unix()

	ctx, cancel := c.storeCtx(ctx)
	defer cancel()
	if err := c.users.SetResetToken(ctx, user.ID, hash, expiresAt); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", apperr.New(apperr.CodeNotFound, "user not found")
		}
		return "", apperr.Dependency(err)
	}
	return plain, nil
}

// ClearResetToken drops the pending reset if hash is still the stored one.
func (c *Credentials) ClearResetToken(ctx context.Context, user models.User, hash string) error {
	ctx, cancel := c.storeCtx(ctx)
	defer cancel()
	if err := c.users.ClearResetToken(ctx, user.ID, hash); err != nil {
		return apperr.Dependency(err)
	}
	return nil
}

// ConsumeResetToken sets the new password and clears the reset state in one
// store update conditioned on tokenHash. A token that was already spent
// yields ErrTokenInvalid.
func (c *Credentials) ConsumeResetToken(ctx context.Context, user models.User, tokenHash, newPassword string) error {
	if strings.TrimSpace(newPassword) == "" {
		return apperr.Validation("password is required")
	}
	hash, err := HashPassword(newPassword, c.cost)
	if err != nil {
		return err
	}

	ctx, cancel := c.storeCtx(ctx)
	defer cancel()
	err = c.users.ConsumeResetToken(ctx, user.ID, tokenHash, hash)
	if errors.Is(err, store.ErrNotFound) {
		return ErrTokenInvalid
	}
	if err != nil {
		return apperr.Dependency(err)
	}
	return nil
}

// ResetExpired reports whether user's pending reset is past its expiry.
func (c *Credentials) ResetExpired(user models.User) bool {
	if user.PasswordResetExpiresAt == nil {
		return false
	}
	return c.now().Unix() > *user.PasswordResetExpiresAt
}
