package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"resume-critique/internal/shared/server/middleware"
	"resume-critique/internal/shared/server/respond"
	"resume-critique/internal/shared/util"
)

type meResponse struct {
	UserID    string `json:"userId"`
	OwnerHash string `json:"ownerHash"`
	Guest     bool   `json:"guest"`
	Email     string `json:"email,omitempty"`
	Name      string `json:"name,omitempty"`
	Picture   string `json:"picture,omitempty"`
}

func registerMeRoutes(rg *gin.RouterGroup) {
	rg.GET("/me", meHandler)
}

// meHandler reports the identity submissions are filed under. ownerHash matches the
// owner_hash field in logs.
func meHandler(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	if userID == "" {
		respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
		return
	}
	respond.OK(c, meResponse{
		UserID:    userID,
		OwnerHash: util.ShortHash(userID),
		Guest:     middleware.IsGuest(c),
		Email:     middleware.UserEmailFromContext(c),
		Name:      middleware.UserNameFromContext(c),
		Picture:   middleware.UserPictureFromContext(c),
	})
}
