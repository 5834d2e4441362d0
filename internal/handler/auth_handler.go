package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/vaxsync/vaxsync-backend/internal/middleware"
	"github.com/vaxsync/vaxsync-backend/internal/response"
)

// AuthHandler exposes the caller's own token details.
type AuthHandler struct{}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler() *AuthHandler {
	return &AuthHandler{}
}

// GetProfile godoc
// GET /api/v1/auth/me
// Returns the subject, role, permissions and school scope of the token.
func (h *AuthHandler) GetProfile(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	profile := gin.H{
		"subject":     claims.Subject,
		"role":        claims.Role,
		"permissions": claims.Permissions,
	}
	if claims.SchoolID != "" {
		profile["school"] = gin.H{"id": claims.SchoolID, "code": claims.SchoolCode}
	}
	if claims.ExpiresAt != nil {
		profile["expires_at"] = claims.ExpiresAt.Time
	}

	response.Success(c, http.StatusOK, gin.H{"profile": profile})
}
