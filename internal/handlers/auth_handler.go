package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pklhub/pklhub-api/internal/models"
	"github.com/pklhub/pklhub-api/internal/session"
)

// AuthHandler exposes the session manager's login lifecycle over HTTP
type AuthHandler struct {
	manager *session.Manager
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(manager *session.Manager) *AuthHandler {
	return &AuthHandler{
		manager: manager,
	}
}

// Login handles POST /api/v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		attachError(c, err)
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Validation failed",
			"details": ParseValidationErrors(err),
		})
		return
	}

	result := h.manager.Login(c.Request.Context(), req.Email, req.Password)
	if !result.Success {
		c.JSON(http.StatusUnauthorized, models.LoginResponse{
			Success: false,
			Error:   result.Error,
		})
		return
	}

	c.JSON(http.StatusOK, models.LoginResponse{
		Success: true,
		User:    h.manager.User(),
	})
}

// Logout handles POST /api/v1/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	result := h.manager.Logout(c.Request.Context())
	if !result.Success {
		// Local state is already cleared, the backend just could not be told
		c.JSON(http.StatusBadGateway, models.OperationResponse{
			Success: false,
			Error:   result.Error,
		})
		return
	}

	c.JSON(http.StatusOK, models.OperationResponse{Success: true})
}

// GetSession handles GET /api/v1/auth/session
// Returns the current session state without mutating it
func (h *AuthHandler) GetSession(c *gin.Context) {
	state := h.manager.CurrentState()
	c.JSON(http.StatusOK, models.SessionStateResponse{
		User:    state.User,
		Loading: state.Loading,
		Error:   state.Error,
	})
}
