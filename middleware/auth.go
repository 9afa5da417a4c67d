package middleware

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"socialfeed/models"
	"socialfeed/requestctx"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CookieName is the session cookie set on register, login and reset.
const CookieName = "jwt"

type TokenVerifier interface {
	VerifySessionToken(token string) (primitive.ObjectID, error)
}

type UserLookup interface {
	FindByID(ctx context.Context, id primitive.ObjectID) (models.User, error)
}

// Authenticate resolves the caller from the jwt cookie or a Bearer header.
// It never rejects a request: on any failure the request continues without
// an identity and handlers that need one answer 401 themselves.
func Authenticate(tokens TokenVerifier, users UserLookup, timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		raw := sessionToken(c)
		if raw == "" {
			c.Next()
			return
		}

		userID, err := tokens.VerifySessionToken(raw)
		if err != nil {
			c.Next()
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		user, err := users.FindByID(ctx, userID)
		cancel()
		if err != nil {
			log.Printf("[Auth] token for user %s did not resolve: %v", userID.Hex(), err)
			c.Next()
			return
		}

		id := requestctx.Identity{UserID: user.ID, Username: user.Username}
		c.Request = c.Request.WithContext(requestctx.WithIdentity(c.Request.Context(), id))
		c.Next()
	}
}

func sessionToken(c *gin.Context) string {
	if cookie, err := c.Cookie(CookieName); err == nil && cookie != "" {
		return cookie
	}
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}
