package handlers

import (
	"net/http"

	"socialfeed/interaction"

	"github.com/gin-gonic/gin"
)

type CommentRequest struct {
	Body string `json:"body" binding:"required"`
}

func (h *Handler) LikePost(c *gin.Context) {
	id, ok := requireIdentity(c)
	if !ok {
		return
	}
	postID, ok := objectIDParam(c, "id")
	if !ok {
		return
	}

	res, err := h.engine.Like(c.Request.Context(), postID, id.UserID)
	if err != nil {
		fail(c, "LikePost", err)
		return
	}
	if res == interaction.LikeAlreadyApplied {
		c.JSON(http.StatusOK, gin.H{"message": "you already liked the post"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "post liked"})
}

func (h *Handler) CommentOnPost(c *gin.Context) {
	id, ok := requireIdentity(c)
	if !ok {
		return
	}
	postID, ok := objectIDParam(c, "id")
	if !ok {
		return
	}
	var req CommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	comment, err := h.engine.Comment(c.Request.Context(), postID, id.UserID, req.Body)
	if err != nil {
		fail(c, "CommentOnPost", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message": "comment added",
		"comment": comment,
	})
}
