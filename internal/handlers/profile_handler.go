package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pklhub/pklhub-api/internal/models"
	"github.com/pklhub/pklhub-api/internal/session"
	"github.com/pklhub/pklhub-api/internal/storage"
)

// ProfileHandler exposes profile reads and updates for the logged-in student
type ProfileHandler struct {
	manager *session.Manager
}

// NewProfileHandler creates a new ProfileHandler
func NewProfileHandler(manager *session.Manager) *ProfileHandler {
	return &ProfileHandler{
		manager: manager,
	}
}

// GetProfile handles GET /api/v1/profile
func (h *ProfileHandler) GetProfile(c *gin.Context) {
	user := h.manager.User()
	if user == nil {
		respondError(c, http.StatusUnauthorized, "Not authenticated", nil)
		return
	}

	c.JSON(http.StatusOK, user)
}

// UpdateProfile handles PUT /api/v1/profile
func (h *ProfileHandler) UpdateProfile(c *gin.Context) {
	if !h.manager.IsAuthenticated() {
		respondError(c, http.StatusUnauthorized, "Not authenticated", nil)
		return
	}

	var req models.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		attachError(c, err)
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Validation failed",
			"details": ParseValidationErrors(err),
		})
		return
	}

	result := h.manager.UpdateProfile(c.Request.Context(), &req)
	if !result.Success {
		c.JSON(http.StatusInternalServerError, models.OperationResponse{
			Success: false,
			Error:   result.Error,
		})
		return
	}

	c.JSON(http.StatusOK, h.manager.User())
}

// UploadPhoto handles POST /api/v1/profile/photo
// Accepts a base64-encoded image and returns the stored photo URL
func (h *ProfileHandler) UploadPhoto(c *gin.Context) {
	if !h.manager.IsAuthenticated() {
		respondError(c, http.StatusUnauthorized, "Not authenticated", nil)
		return
	}

	var req models.UploadPhotoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		attachError(c, err)
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Validation failed",
			"details": ParseValidationErrors(err),
		})
		return
	}

	imageBytes, err := storage.DecodeBase64Image(req.Image)
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error(), err)
		return
	}

	result := h.manager.UploadPhoto(c.Request.Context(), imageBytes, req.FileName, req.ContentType)
	if !result.Success {
		c.JSON(http.StatusBadRequest, models.UploadPhotoResponse{
			Success: false,
			Error:   result.Error,
		})
		return
	}

	c.JSON(http.StatusOK, models.UploadPhotoResponse{
		Success:  true,
		PhotoURL: result.PhotoURL,
	})
}
