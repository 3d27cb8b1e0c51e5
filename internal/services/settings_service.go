// Package services – SettingsService
//
// This file implements SettingsService, which owns per-user auto-reply
// configuration. It validates the booking link before persisting, because a
// user with auto-reply enabled and a broken link would pass every verdict
// gate and then mail prospects a dead URL.
package services

import (
	"context"
	"net/url"
	"strings"

	"gorm.io/gorm"

	"github.com/replypilot/go-reply-engine/internal/domain"
	"github.com/replypilot/go-reply-engine/internal/repo"
)

// SettingsService provides read/update access to auto-reply settings.
type SettingsService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
}

// Get returns the user's settings, defaulting to disabled when no row exists.
func (s *SettingsService) Get(ctx context.Context, userID string) (*domain.AutoReplySettings, error) {
	return repo.GetSettings(s.DB.WithContext(ctx), userID)
}

// Update validates and persists the user's settings.
//
// Rules:
//   - Enabling auto-reply requires a booking link.
//   - A non-empty booking link must be an absolute http(s) URL.
func (s *SettingsService) Update(ctx context.Context, userID string, enabled bool, bookingLink, customTemplate string) (*domain.AutoReplySettings, error) {
	bookingLink = strings.TrimSpace(bookingLink)

	if enabled && bookingLink == "" {
		return nil, ErrMissingBookingLink
	}
	if bookingLink != "" {
		u, err := url.Parse(bookingLink)
		if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, ErrInvalidBookingLink
		}
	}

	out := &domain.AutoReplySettings{
		UserID:         userID,
		Enabled:        enabled,
		BookingLink:    bookingLink,
		CustomTemplate: customTemplate,
	}
	if err := repo.UpsertSettings(s.DB.WithContext(ctx), out); err != nil {
		return nil, err
	}
	return out, nil
}
