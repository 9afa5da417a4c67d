package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"socialfeed/apperr"
	"socialfeed/media"

	"github.com/gin-gonic/gin"
)

const maxImageBytes = 10 << 20

// UploadImage stores a multipart "image" file and returns its URL for use
// in a post's images.
func (h *Handler) UploadImage(c *gin.Context) {
	id, ok := requireIdentity(c)
	if !ok {
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxImageBytes)
	file, _, err := c.Request.FormFile("image")
	if err != nil {
		badRequest(c, "No image file provided")
		return
	}
	defer file.Close()

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	url, err := h.uploads.UploadPostImage(ctx, id.UserID, file)
	if errors.Is(err, media.ErrNotConfigured) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Image uploads not configured", "code": apperr.CodeUnavailable})
		return
	}
	if err != nil {
		fail(c, "UploadImage", apperr.Dependency(err))
		return
	}
	c.JSON(http.StatusCreated, gin.H{"url": url})
}
