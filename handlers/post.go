package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type CreatePostRequest struct {
	Content string   `json:"content" binding:"required"`
	Images  []string `json:"images"`
}

type UpdatePostRequest struct {
	Content string    `json:"content" binding:"required"`
	Images  *[]string `json:"images"`
}

func (h *Handler) CreatePost(c *gin.Context) {
	id, ok := requireIdentity(c)
	if !ok {
		return
	}
	var req CreatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	post, err := h.engine.CreatePost(c.Request.Context(), id.UserID, req.Content, req.Images)
	if err != nil {
		fail(c, "CreatePost", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"post": post})
}

// GetPostsByAuthor lists the posts of the user named by :id.
func (h *Handler) GetPostsByAuthor(c *gin.Context) {
	authorID, ok := objectIDParam(c, "id")
	if !ok {
		return
	}

	posts, err := h.engine.PostsByAuthor(c.Request.Context(), authorID)
	if err != nil {
		fail(c, "GetPostsByAuthor", err)
		return
	}

	resp := gin.H{"posts": posts}
	if viewer, ok := identityOf(c); ok {
		liked := make(map[string]bool, len(posts))
		for _, p := range posts {
			for _, u := range p.LikedBy {
				if u.ID == viewer.UserID {
					liked[p.ID.Hex()] = true
				}
			}
		}
		resp["likedByMe"] = liked
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) UpdatePost(c *gin.Context) {
	if _, ok := requireIdentity(c); !ok {
		return
	}
	postID, ok := objectIDParam(c, "id")
	if !ok {
		return
	}
	var req UpdatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	post, err := h.engine.UpdatePost(c.Request.Context(), postID, req.Content, req.Images)
	if err != nil {
		fail(c, "UpdatePost", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"post": post})
}

func (h *Handler) DeletePost(c *gin.Context) {
	if _, ok := requireIdentity(c); !ok {
		return
	}
	postID, ok := objectIDParam(c, "id")
	if !ok {
		return
	}

	res, err := h.engine.DeletePost(c.Request.Context(), postID)
	if err != nil {
		fail(c, "DeletePost", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":          "post deleted",
		"danglingComments": res.DanglingCommentIDs,
	})
}
