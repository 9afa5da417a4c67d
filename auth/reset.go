package auth

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"socialfeed/apperr"
	"socialfeed/mailer"
	"socialfeed/models"
)

// PasswordReset runs the forgot-password and reset-password flows.
type PasswordReset struct {
	creds       *Credentials
	tokens      *Tokens
	mail        mailer.Sender
	mailTimeout time.Duration
}

func NewPasswordReset(creds *Credentials, tokens *Tokens, mail mailer.Sender, mailTimeout time.Duration) *PasswordReset {
	if mailTimeout == 0 {
		mailTimeout = 15 * time.Second
	}
	return &PasswordReset{creds: creds, tokens: tokens, mail: mail, mailTimeout: mailTimeout}
}

// Forgot issues a reset token for the user with email and mails the reset
// link. If delivery fails or times out the token is withdrawn again and a
// DependencyFailure is returned.
func (p *PasswordReset) Forgot(ctx context.Context, email, baseURL string) error {
	user, err := p.creds.FindByEmail(ctx, email)
	if err != nil {
		return err
	}

	plain, err := p.creds.SetResetToken(ctx, user)
	if err != nil {
		return err
	}

	link := strings.TrimRight(baseURL, "/") + "/resetPassword/" + plain
	msg := mailer.Message{
		To:      user.Email,
		Subject: "Password Reset Mail",
		Body:    fmt.Sprintf("Click the link to reset password: %s\n\nThe link expires in %s.", link, p.creds.resetTTL),
	}

	mailCtx, cancel := context.WithTimeout(ctx, p.mailTimeout)
	err = p.mail.Send(mailCtx, msg)
	cancel()
	if err != nil {
		log.Printf("[ForgotPassword] mail to user %s failed: %v", user.ID.Hex(), err)
		p.rollback(ctx, user, HashResetToken(plain))
		return apperr.Dependency(err)
	}
	return nil
}

// rollback runs detached from ctx so it still happens when the request
// deadline is what made the mail fail.
func (p *PasswordReset) rollback(ctx context.Context, user models.User, hash string) {
	if err := p.creds.ClearResetToken(context.WithoutCancel(ctx), user, hash); err != nil {
		log.Printf("[ForgotPassword] clearing reset token for user %s failed: %v", user.ID.Hex(), err)
	}
}

// Reset consumes the reset token plain, sets newPassword and signs the user
// in with a fresh session token.
func (p *PasswordReset) Reset(ctx context.Context, plain, newPassword string) (models.User, SessionToken, error) {
	if strings.TrimSpace(newPassword) == "" {
		return models.User{}, SessionToken{}, apperr.Validation("password is required")
	}
	if plain == "" {
		return models.User{}, SessionToken{}, ErrTokenInvalid
	}

	hash := HashResetToken(plain)
	user, err := p.creds.FindByResetTokenHash(ctx, hash)
	if apperr.HasCode(err, apperr.CodeNotFound) {
		return models.User{}, SessionToken{}, ErrTokenInvalid
	}
	if err != nil {
		return models.User{}, SessionToken{}, err
	}

	if p.creds.ResetExpired(user) {
		if err := p.creds.ClearResetToken(ctx, user, hash); err != nil {
			log.Printf("[ResetPassword] clearing expired token for user %s failed: %v", user.ID.Hex(), err)
		}
		return models.User{}, SessionToken{}, ErrTokenExpired
	}

	if err := p.creds.ConsumeResetToken(ctx, user, hash, newPassword); err != nil {
		return models.User{}, SessionToken{}, err
	}

	session, err := p.tokens.IssueSessionToken(user.ID)
	if err != nil {
		return models.User{}, SessionToken{}, err
	}
	return user, session, nil
}
