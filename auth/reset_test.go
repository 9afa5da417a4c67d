package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"socialfeed/apperr"
	"socialfeed/mailer"
)

type captureMailer struct {
	mu   sync.Mutex
	sent []mailer.Message
	err  error
	// block waits for the context to end before returning its error.
	block bool
}

func (m *captureMailer) Send(ctx context.Context, msg mailer.Message) error {
	if m.block {
		<-ctx.Done()
		return ctx.Err()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *captureMailer) lastToken(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		t.Fatal("expected a mail to be sent")
	}
	body := m.sent[len(m.sent)-1].Body
	i := strings.Index(body, "/resetPassword/")
	if i < 0 {
		t.Fatalf("expected a reset link in %q", body)
	}
	rest := body[i+len("/resetPassword/"):]
	return rest[:64]
}

type resetFixture struct {
	creds  *Credentials
	tokens *Tokens
	mail   *captureMailer
	reset  *PasswordReset
	now    time.Time
}

func newResetFixture(t *testing.T, mailTimeout time.Duration) *resetFixture {
	t.Helper()
	f := &resetFixture{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC), mail: &captureMailer{}}
	clock := func() time.Time { return f.now }
	f.creds, _ = newTestCredentials(clock)
	f.tokens = NewTokens(testSecret, time.Hour).WithClock(clock)
	f.reset = NewPasswordReset(f.creds, f.tokens, f.mail, mailTimeout)

	if _, err := f.creds.Register(context.Background(), "alice", "alice@example.com", "old-password"); err != nil {
		t.Fatalf("register: %v", err)
	}
	return f
}

func (f *resetFixture) pending(t *testing.T) bool {
	t.Helper()
	user, err := f.creds.FindByEmail(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	return user.HasPendingReset()
}

func TestForgotAndResetPassword(t *testing.T) {
	f := newResetFixture(t, time.Second)
	ctx := context.Background()

	if err := f.reset.Forgot(ctx, "alice@example.com", "http://localhost:8080/"); err != nil {
		t.Fatalf("forgot: %v", err)
	}
	if got := f.mail.sent[0].To; got != "alice@example.com" {
		t.Fatalf("expected mail to alice@example.com, got %q", got)
	}
	if !strings.Contains(f.mail.sent[0].Body, "http://localhost:8080/resetPassword/") {
		t.Fatalf("expected link built from base url, got %q", f.mail.sent[0].Body)
	}
	plain := f.mail.lastToken(t)

	user, session, err := f.reset.Reset(ctx, plain, "new-password")
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	gotID, err := f.tokens.VerifySessionToken(session.Token)
	if err != nil || gotID != user.ID {
		t.Fatalf("expected session for %s, got %s err=%v", user.ID.Hex(), gotID.Hex(), err)
	}
	if _, err := f.creds.Authenticate(ctx, "alice", "new-password"); err != nil {
		t.Fatalf("expected new password to work, got %v", err)
	}

	_, _, err = f.reset.Reset(ctx, plain, "another-password")
	if !apperr.HasCode(err, apperr.CodeTokenInvalid) {
		t.Fatalf("expected reused token to be TOKEN_INVALID, got %v", err)
	}
}

func TestForgotUnknownEmail(t *testing.T) {
	f := newResetFixture(t, time.Second)

	err := f.reset.Forgot(context.Background(), "nobody@example.com", "http://localhost")
	if !apperr.HasCode(err, apperr.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
	if len(f.mail.sent) != 0 {
		t.Fatalf("expected no mail, got %d", len(f.mail.sent))
	}
	if f.pending(t) {
		t.Fatal("expected no reset token for an unrelated user")
	}
}

func TestForgotRollsBackOnMailFailure(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*captureMailer)
	}{
		{name: "send error", setup: func(m *captureMailer) { m.err = errors.New("smtp down") }},
		{name: "timeout", setup: func(m *captureMailer) { m.block = true }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newResetFixture(t, 20*time.Millisecond)
			tt.setup(f.mail)

			err := f.reset.Forgot(context.Background(), "alice@example.com", "http://localhost")
			if !apperr.HasCode(err, apperr.CodeDependencyFailure) {
				t.Fatalf("expected DEPENDENCY_FAILURE, got %v", err)
			}
			if f.pending(t) {
				t.Fatal("expected reset token to be rolled back")
			}
		})
	}
}

func TestForgotRollsBackAfterRequestDeadline(t *testing.T) {
	f := newResetFixture(t, time.Second)
	f.mail.block = true

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := f.reset.Forgot(ctx, "alice@example.com", "http://localhost"); err == nil {
		t.Fatal("expected an error")
	}
	if f.pending(t) {
		t.Fatal("expected rollback to run even though the request context expired")
	}
}

func TestResetRejectsExpiredToken(t *testing.T) {
	f := newResetFixture(t, time.Second)
	ctx := context.Background()
	if err := f.reset.Forgot(ctx, "alice@example.com", "http://localhost"); err != nil {
		t.Fatalf("forgot: %v", err)
	}
	plain := f.mail.lastToken(t)

	f.now = f.now.Add(2 * time.Hour)
	_, _, err := f.reset.Reset(ctx, plain, "new-password")
	if !apperr.HasCode(err, apperr.CodeTokenExpired) {
		t.Fatalf("expected TOKEN_EXPIRED, got %v", err)
	}
	if f.pending(t) {
		t.Fatal("expected expired token to be cleared")
	}
	if _, err := f.creds.Authenticate(ctx, "alice", "old-password"); err != nil {
		t.Fatalf("expected old password to still work, got %v", err)
	}
}

func TestResetValidation(t *testing.T) {
	f := newResetFixture(t, time.Second)
	ctx := context.Background()

	if _, _, err := f.reset.Reset(ctx, "whatever", " "); !apperr.HasCode(err, apperr.CodeValidation) {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}
	if _, _, err := f.reset.Reset(ctx, strings.Repeat("ab", 32), "new-password"); !apperr.HasCode(err, apperr.CodeTokenInvalid) {
		t.Fatalf("expected TOKEN_INVALID for a random token, got %v", err)
	}
}
