// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for inbound
// replies pushed by the upstream reply detector.
package repo

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/replypilot/go-reply-engine/internal/domain"
)

// CreateReply inserts a new candidate reply row.
func CreateReply(db *gorm.DB, r *domain.InboundReply) (*domain.InboundReply, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.ReceivedAt.IsZero() {
		r.ReceivedAt = time.Now().UTC()
	}
	r.CreatedAt = time.Now().UTC()
	return r, db.Create(r).Error
}

// GetReply fetches a reply by id, scoped to its owner.
func GetReply(db *gorm.DB, userID, id string) (*domain.InboundReply, error) {
	var r domain.InboundReply
	if err := db.Where("id = ? AND user_id = ?", id, userID).First(&r).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// ListCandidateReplies returns a user's replies received after the cutoff,
// oldest first so the scheduler handles them in arrival order.
func ListCandidateReplies(db *gorm.DB, userID string, since time.Time, limit int) ([]domain.InboundReply, error) {
	var out []domain.InboundReply
	q := db.
		Where("user_id = ? AND received_at >= ?", userID, since).
		Order("received_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}
