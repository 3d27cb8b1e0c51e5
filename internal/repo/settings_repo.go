// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for per-user
// auto-reply settings.
package repo

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/replypilot/go-reply-engine/internal/domain"
)

// GetSettings fetches a user's settings row. A user without a row gets the
// zero-value defaults (auto-reply disabled, no booking link).
func GetSettings(db *gorm.DB, userID string) (*domain.AutoReplySettings, error) {
	var s domain.AutoReplySettings
	err := db.Where("user_id = ?", userID).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &domain.AutoReplySettings{UserID: userID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// UpsertSettings creates or replaces a user's settings row.
func UpsertSettings(db *gorm.DB, s *domain.AutoReplySettings) error {
	s.UpdatedAt = time.Now().UTC()
	var existing domain.AutoReplySettings
	err := db.Where("user_id = ?", s.UserID).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		s.CreatedAt = s.UpdatedAt
		return db.Create(s).Error
	case err != nil:
		return err
	default:
		s.CreatedAt = existing.CreatedAt
		return db.Model(&domain.AutoReplySettings{}).
			Where("user_id = ?", s.UserID).
			Updates(map[string]any{
				"enabled":         s.Enabled,
				"booking_link":    s.BookingLink,
				"custom_template": s.CustomTemplate,
				"updated_at":      s.UpdatedAt,
			}).Error
	}
}

// ListAutoReplyUsers returns the ids of users the scheduler should visit:
// auto-reply enabled and a booking link configured.
func ListAutoReplyUsers(db *gorm.DB) ([]string, error) {
	var ids []string
	err := db.Model(&domain.AutoReplySettings{}).
		Where("enabled = ? AND booking_link <> ''", true).
		Order("user_id ASC").
		Pluck("user_id", &ids).Error
	return ids, err
}
