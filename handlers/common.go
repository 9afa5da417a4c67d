package handlers

import (
	"log"
	"net/http"

	"socialfeed/apperr"
	"socialfeed/auth"
	"socialfeed/interaction"
	"socialfeed/media"
	"socialfeed/middleware"
	"socialfeed/push"
	"socialfeed/requestctx"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Handler serves the JSON API. Every collaborator is injected.
type Handler struct {
	creds   *auth.Credentials
	tokens  *auth.Tokens
	reset   *auth.PasswordReset
	engine  *interaction.Engine
	push    *push.Service
	uploads media.Uploader

	baseURL      string
	cookieSecure bool
}

type Deps struct {
	Credentials   *auth.Credentials
	Tokens        *auth.Tokens
	PasswordReset *auth.PasswordReset
	Engine        *interaction.Engine
	Push          *push.Service
	Uploads       media.Uploader

	// BaseURL prefixes reset links. Request headers never influence it.
	BaseURL      string
	CookieSecure bool
}

func New(d Deps) *Handler {
	uploads := d.Uploads
	if uploads == nil {
		uploads = media.Disabled{}
	}
	return &Handler{
		creds:        d.Credentials,
		tokens:       d.Tokens,
		reset:        d.PasswordReset,
		engine:       d.Engine,
		push:         d.Push,
		uploads:      uploads,
		baseURL:      d.BaseURL,
		cookieSecure: d.CookieSecure,
	}
}

// fail writes err as {"error", "code"}. Dependency failures are logged and
// reported with a generic message.
func fail(c *gin.Context, op string, err error) {
	code := apperr.CodeOf(err)
	if code == apperr.CodeDependencyFailure {
		log.Printf("[%s] request %s: %v", op, requestctx.RequestID(c.Request.Context()), err)
	}
	c.JSON(code.HTTPStatus(), gin.H{"error": apperr.MessageOf(err), "code": code})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg, "code": apperr.CodeValidation})
}

// requireIdentity returns the caller or answers 401.
func requireIdentity(c *gin.Context) (requestctx.Identity, bool) {
	id, ok := requestctx.IdentityFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required", "code": apperr.CodeUnauthorized})
		return requestctx.Identity{}, false
	}
	return id, true
}

// identityOf is used by handlers where authentication is optional.
func identityOf(c *gin.Context) (requestctx.Identity, bool) {
	return requestctx.IdentityFromContext(c.Request.Context())
}

func objectIDParam(c *gin.Context, name string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param(name))
	if err != nil {
		badRequest(c, "Invalid "+name)
		return primitive.NilObjectID, false
	}
	return id, true
}

func (h *Handler) setSessionCookie(c *gin.Context, session auth.SessionToken) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.CookieName, session.Token, int(h.tokens.TTL().Seconds()), "/", "", h.cookieSecure, true)
}
