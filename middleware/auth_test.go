package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"socialfeed/auth"
	"socialfeed/models"
	"socialfeed/requestctx"
	"socialfeed/store"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type lookupFunc func(ctx context.Context, id primitive.ObjectID) (models.User, error)

func (f lookupFunc) FindByID(ctx context.Context, id primitive.ObjectID) (models.User, error) {
	return f(ctx, id)
}

func gatewayRouter(tokens TokenVerifier, users UserLookup) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Authenticate(tokens, users, time.Second))
	r.GET("/whoami", func(c *gin.Context) {
		id, ok := requestctx.IdentityFromContext(c.Request.Context())
		if !ok {
			c.String(http.StatusOK, "anonymous")
			return
		}
		c.String(http.StatusOK, id.Username)
	})
	return r
}

func TestAuthenticateResolvesIdentity(t *testing.T) {
	tokens := auth.NewTokens("gateway-secret-0001", time.Hour)
	alice := models.User{ID: primitive.NewObjectID(), Username: "alice"}
	users := lookupFunc(func(_ context.Context, id primitive.ObjectID) (models.User, error) {
		if id == alice.ID {
			return alice, nil
		}
		return models.User{}, store.ErrNotFound
	})
	r := gatewayRouter(tokens, users)

	valid, _ := tokens.IssueSessionToken(alice.ID)
	ghost, _ := tokens.IssueSessionToken(primitive.NewObjectID())
	expired, _ := auth.NewTokens("gateway-secret-0001", time.Hour).
		WithClock(func() time.Time { return time.Now().Add(-2 * time.Hour) }).
		IssueSessionToken(alice.ID)

	tests := []struct {
		name   string
		cookie string
		header string
		want   string
	}{
		{name: "no credentials", want: "anonymous"},
		{name: "cookie", cookie: valid.Token, want: "alice"},
		{name: "bearer header", header: "Bearer " + valid.Token, want: "alice"},
		{name: "cookie wins over header", cookie: valid.Token, header: "Bearer garbage", want: "alice"},
		{name: "malformed header", header: valid.Token, want: "anonymous"},
		{name: "garbage token", cookie: "garbage", want: "anonymous"},
		{name: "expired token", cookie: expired.Token, want: "anonymous"},
		{name: "deleted user", cookie: ghost.Token, want: "anonymous"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: CookieName, Value: tt.cookie})
			}
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != http.StatusOK {
				t.Fatalf("expected gateway never to reject, got %d", w.Code)
			}
			if got := w.Body.String(); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestRequestIDPropagatesOrAssigns(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, requestctx.RequestID(c.Request.Context()))
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "given-id")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Body.String() != "given-id" || w.Header().Get(RequestIDHeader) != "given-id" {
		t.Fatalf("expected given-id to be propagated, got body=%q header=%q", w.Body.String(), w.Header().Get(RequestIDHeader))
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if len(w.Body.String()) != 36 {
		t.Fatalf("expected a generated uuid, got %q", w.Body.String())
	}
}

func TestMiddlewareCarriesValuesOnRequestContextOnly(t *testing.T) {
	tokens := auth.NewTokens("gateway-secret-0001", time.Hour)
	alice := models.User{ID: primitive.NewObjectID(), Username: "alice"}
	users := lookupFunc(func(context.Context, primitive.ObjectID) (models.User, error) {
		return alice, nil
	})

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), Authenticate(tokens, users, time.Second))
	var keys int
	r.GET("/", func(c *gin.Context) {
		keys = len(c.Keys)
		c.Status(http.StatusNoContent)
	})

	session, _ := tokens.IssueSessionToken(alice.ID)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: session.Token})
	r.ServeHTTP(httptest.NewRecorder(), req)

	if keys != 0 {
		t.Fatalf("expected no gin context keys, got %d", keys)
	}
}
