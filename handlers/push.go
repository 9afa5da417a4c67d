package handlers

import (
	"net/http"

	"socialfeed/apperr"

	"github.com/gin-gonic/gin"
)

type SubscribeRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
	Keys     struct {
		P256dh string `json:"p256dh" binding:"required"`
		Auth   string `json:"auth" binding:"required"`
	} `json:"keys" binding:"required"`
}

func (h *Handler) VapidPublicKey(c *gin.Context) {
	if h.push == nil || h.push.PublicKey() == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "VAPID public key not configured", "code": apperr.CodeUnavailable})
		return
	}
	c.JSON(http.StatusOK, gin.H{"publicKey": h.push.PublicKey()})
}

func (h *Handler) SubscribePush(c *gin.Context) {
	id, ok := requireIdentity(c)
	if !ok {
		return
	}
	if h.push == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Push notifications not configured", "code": apperr.CodeUnavailable})
		return
	}
	var req SubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	if err := h.push.Subscribe(c.Request.Context(), id.UserID, req.Endpoint, req.Keys.P256dh, req.Keys.Auth); err != nil {
		fail(c, "SubscribePush", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Push subscription saved successfully"})
}
