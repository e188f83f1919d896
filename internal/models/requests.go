package models

// LoginRequest is the login form payload.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// UploadPhotoRequest carries a base64-encoded avatar image.
type UploadPhotoRequest struct {
	Image       string `json:"image" binding:"required"`
	FileName    string `json:"file_name" binding:"required"`
	ContentType string `json:"content_type" binding:"required"`
}

// LoginResponse is returned from the login endpoint.
type LoginResponse struct {
	Success bool         `json:"success"`
	Error   string       `json:"error,omitempty"`
	User    *UserProfile `json:"user,omitempty"`
}

// OperationResponse is the generic success/error envelope for commands.
type OperationResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// UploadPhotoResponse is returned from the photo upload endpoint.
type UploadPhotoResponse struct {
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
	PhotoURL string `json:"photo_url,omitempty"`
}

// SessionStateResponse mirrors the session manager's published state.
type SessionStateResponse struct {
	User    *UserProfile `json:"user"`
	Loading bool         `json:"loading"`
	Error   string       `json:"error,omitempty"`
}
