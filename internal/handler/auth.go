package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/issuetrack/backend/internal/middleware"
	"github.com/issuetrack/backend/internal/model"
	"github.com/issuetrack/backend/internal/service"
)

type AuthHandler struct {
	authService *service.AuthService
}

func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// POST /auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req struct {
		FirstName string `json:"first_name" binding:"max=64"`
		LastName  string `json:"last_name" binding:"max=64"`
		Username  string `json:"username" binding:"required"`
		Email     string `json:"email" binding:"required"`
		Password  string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, 40001, "invalid request: "+err.Error())
		return
	}

	user, err := h.authService.Register(c.Request.Context(), service.RegisterInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Username:  req.Username,
		Email:     req.Email,
		Password:  req.Password,
	})
	if err != nil {
		Fail(c, err)
		return
	}
	Created(c, user.Brief())
}

// POST /auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Identifier string `json:"identifier"`
		Email      string `json:"email"`
		Username   string `json:"username"`
		Password   string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, 40001, "invalid request: "+err.Error())
		return
	}
	identifier := req.Identifier
	if identifier == "" {
		identifier = req.Email
	}
	if identifier == "" {
		identifier = req.Username
	}

	session, err := h.authService.Login(c.Request.Context(), identifier, req.Password)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, session)
}

// POST /auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, 40001, "invalid request: "+err.Error())
		return
	}
	session, err := h.authService.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, session)
}

// POST /auth/forgot
func (h *AuthHandler) Forgot(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, 40001, "invalid request: "+err.Error())
		return
	}
	if err := h.authService.Forgot(c.Request.Context(), req.Email); err != nil {
		Fail(c, err)
		return
	}
	Success(c, gin.H{"message": "reset link sent"})
}

// POST /auth/reset
func (h *AuthHandler) Reset(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Token    string `json:"token" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, 40001, "invalid request: "+err.Error())
		return
	}
	if err := h.authService.Reset(c.Request.Context(), req.Email, req.Token, req.Password); err != nil {
		Fail(c, err)
		return
	}
	Success(c, gin.H{"message": "password updated"})
}

// POST /auth/validate-email
func (h *AuthHandler) ValidateEmail(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, 40001, "invalid request: "+err.Error())
		return
	}
	ok, err := h.authService.EmailAvailable(c.Request.Context(), req.Email)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, gin.H{"available": ok})
}

// POST /auth/validate-username
func (h *AuthHandler) ValidateUsername(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, 40001, "invalid request: "+err.Error())
		return
	}
	ok, err := h.authService.UsernameAvailable(c.Request.Context(), req.Username)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, gin.H{"available": ok})
}

// GET /auth/me
func (h *AuthHandler) GetMe(c *gin.Context) {
	Success(c, middleware.GetCurrentUser(c).Brief())
}

// PUT /admin/users/:id/role
func (h *AuthHandler) UpdateUserRole(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Role model.GlobalRole `json:"role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, 40001, "invalid request: "+err.Error())
		return
	}
	user, err := h.authService.UpdateGlobalRole(c.Request.Context(), middleware.GetCurrentUser(c), id, req.Role)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, user.Brief())
}
