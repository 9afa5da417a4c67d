package routes

import (
	"log"
	"net/http"
	"time"

	"socialfeed/handlers"
	"socialfeed/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type Options struct {
	CORSOrigins []string
	// TrustedProxies may set X-Forwarded-For. Nil trusts no proxy and the
	// client IP is the connection's remote address.
	TrustedProxies []string
	// Gateway resolves the optional caller identity.
	Gateway gin.HandlerFunc
	// Limiter guards the unauthenticated credential routes. Nil disables it.
	Limiter   middleware.Limiter
	RateLimit int
}

func SetupRouter(h *handlers.Handler, opts Options) *gin.Engine {
	router := gin.Default()
	if err := router.SetTrustedProxies(opts.TrustedProxies); err != nil {
		log.Printf("[Router] invalid trusted proxies %v, trusting none: %v", opts.TrustedProxies, err)
		_ = router.SetTrustedProxies(nil)
	}

	router.Use(middleware.RequestID())
	if len(opts.CORSOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     opts.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept", "X-Requested-With", middleware.RequestIDHeader},
			ExposeHeaders:    []string{"Content-Length", "Content-Type", middleware.RequestIDHeader},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	router.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	// Credential routes, rate limited and outside the gateway.
	credentials := router.Group("/")
	if opts.Limiter != nil {
		credentials.Use(middleware.RateLimit(opts.Limiter, opts.RateLimit))
	}
	credentials.POST("/register", h.Register)
	credentials.POST("/login", h.Login)
	credentials.POST("/forgetPassword", h.ForgetPassword)
	credentials.POST("/resetPassword/:token", h.ResetPassword)

	router.GET("/push/vapid-public-key", h.VapidPublicKey)

	// Identity is resolved here; handlers decide whether it is required.
	authed := router.Group("/")
	authed.Use(opts.Gateway)

	authed.GET("/me", h.Me)

	authed.POST("/posts", h.CreatePost)
	authed.GET("/posts/:id", h.GetPostsByAuthor)
	authed.PATCH("/posts/:id", h.UpdatePost)
	authed.DELETE("/posts/:id", h.DeletePost)
	authed.POST("/posts/:id/like", h.LikePost)
	authed.POST("/posts/:id/comment", h.CommentOnPost)

	authed.POST("/uploads", h.UploadImage)
	authed.POST("/push/subscribe", h.SubscribePush)

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Endpoint not found",
			"code":  "NOT_FOUND",
			"path":  c.Request.URL.Path,
		})
	})

	return router
}
