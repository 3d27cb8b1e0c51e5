// Settings HTTP handlers.
//
// GET /settings returns the caller's auto-reply configuration (a disabled
// zero-value record when none exists yet); PUT /settings replaces it.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/replypilot/go-reply-engine/internal/services"
)

// UpdateSettingsRequest is the JSON payload for PUT /settings.
type UpdateSettingsRequest struct {
	Enabled        bool   `json:"enabled" example:"true"`
	BookingLink    string `json:"booking_link" example:"https://cal.example/dana/30min"`
	CustomTemplate string `json:"custom_template,omitempty"`
}

// GetSettings handles GET /settings.
func (h *Handlers) GetSettings(c *gin.Context) {
	s, err := h.settingsSvc.Get(c.Request.Context(), userID(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not load settings")
		return
	}
	ok(c, http.StatusOK, s)
}

// UpdateSettings handles PUT /settings.
func (h *Handlers) UpdateSettings(c *gin.Context) {
	var req UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
		return
	}

	s, err := h.settingsSvc.Update(c.Request.Context(), userID(c), req.Enabled, req.BookingLink, req.CustomTemplate)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrMissingBookingLink),
			errors.Is(err, services.ErrInvalidBookingLink):
			fail(c, http.StatusUnprocessableEntity, ErrCodeSettingsInvalid, err.Error())
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not update settings")
		}
		return
	}
	ok(c, http.StatusOK, s)
}
