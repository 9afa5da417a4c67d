package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type RegisterRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type ForgetPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type ResetPasswordRequest struct {
	Password string `json:"password" binding:"required"`
}

func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	user, err := h.creds.Register(c.Request.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		fail(c, "Register", err)
		return
	}
	session, err := h.tokens.IssueSessionToken(user.ID)
	if err != nil {
		fail(c, "Register", err)
		return
	}

	h.setSessionCookie(c, session)
	c.JSON(http.StatusCreated, gin.H{
		"token": session.Token,
		"user":  user,
	})
}

func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	user, err := h.creds.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		fail(c, "Login", err)
		return
	}
	session, err := h.tokens.IssueSessionToken(user.ID)
	if err != nil {
		fail(c, "Login", err)
		return
	}

	h.setSessionCookie(c, session)
	c.JSON(http.StatusOK, gin.H{"token": session.Token})
}

func (h *Handler) ForgetPassword(c *gin.Context) {
	var req ForgetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	if err := h.reset.Forgot(c.Request.Context(), req.Email, h.baseURL); err != nil {
		fail(c, "ForgetPassword", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "mail sent."})
}

func (h *Handler) ResetPassword(c *gin.Context) {
	var req ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	_, session, err := h.reset.Reset(c.Request.Context(), c.Param("token"), req.Password)
	if err != nil {
		fail(c, "ResetPassword", err)
		return
	}

	h.setSessionCookie(c, session)
	c.JSON(http.StatusOK, gin.H{"token": session.Token})
}

func (h *Handler) Me(c *gin.Context) {
	id, ok := requireIdentity(c)
	if !ok {
		return
	}
	user, err := h.creds.FindByID(c.Request.Context(), id.UserID)
	if err != nil {
		fail(c, "Me", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}
