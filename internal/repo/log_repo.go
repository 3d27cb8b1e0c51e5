// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// append-only AutoReplyLog. There are deliberately no update or delete
// functions here: a reply's history is reconstructed by reading all of its
// rows, never by mutating them.
package repo

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/replypilot/go-reply-engine/internal/domain"
)

// AppendLog inserts one attempt row. The caller supplies everything except
// ID and CreatedAt, which are assigned here.
func AppendLog(db *gorm.DB, entry *domain.AutoReplyLog) (*domain.AutoReplyLog, error) {
	entry.ID = uuid.NewString()
	entry.CreatedAt = time.Now().UTC()
	return entry, db.Create(entry).Error
}

// ListLogsByReply returns every attempt row for one reply id, most recent
// first. The scheduler folds this into a ProcessingStatus on every tick.
func ListLogsByReply(db *gorm.DB, userID, replyID string) ([]domain.AutoReplyLog, error) {
	var out []domain.AutoReplyLog
	err := db.
		Where("user_id = ? AND reply_id = ?", userID, replyID).
		Order("created_at DESC, id DESC").
		Find(&out).Error
	return out, err
}

// HasTerminalLog reports whether the reply already carries a terminal row
// (sent, flagged_for_review, or exhausted). Used as the at-most-once guard
// before any new attempt.
func HasTerminalLog(db *gorm.DB, userID, replyID string) (bool, error) {
	var n int64
	err := db.Model(&domain.AutoReplyLog{}).
		Where("user_id = ? AND reply_id = ? AND status IN ?",
			userID, replyID,
			[]string{domain.StatusSent, domain.StatusFlaggedForReview, domain.StatusExhausted}).
		Count(&n).Error
	return n > 0, err
}

// CountLogs returns the total number of rows for a user, for pagination.
func CountLogs(db *gorm.DB, userID string) (int64, error) {
	var total int64
	err := db.Model(&domain.AutoReplyLog{}).Where("user_id = ?", userID).Count(&total).Error
	return total, err
}

// ListLogsPage returns a page of a user's attempt rows, most recent first.
func ListLogsPage(db *gorm.DB, userID string, offset, limit int) ([]domain.AutoReplyLog, error) {
	var out []domain.AutoReplyLog
	err := db.
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ListPendingReview returns the rows flagged for human review, most recent
// first. This backs the operator review queue.
func ListPendingReview(db *gorm.DB, userID string) ([]domain.AutoReplyLog, error) {
	var out []domain.AutoReplyLog
	err := db.
		Where("user_id = ? AND status = ?", userID, domain.StatusFlaggedForReview).
		Order("created_at DESC, id DESC").
		Find(&out).Error
	return out, err
}

// ListExhaustionCandidates returns the reply ids whose retryable failure
// count (error + send_failed) has reached maxAttempts and which do not yet
// carry an exhausted row. The escalation sweep appends exactly one exhausted
// row for each.
func ListExhaustionCandidates(db *gorm.DB, userID string, maxAttempts int) ([]string, error) {
	var ids []string
	err := db.Model(&domain.AutoReplyLog{}).
		Select("reply_id").
		Where("user_id = ? AND status IN ?", userID,
			[]string{domain.StatusError, domain.StatusSendFailed}).
		Group("reply_id").
		Having("COUNT(*) >= ?", maxAttempts).
		Pluck("reply_id", &ids).Error
	if err != nil {
		return nil, err
	}
	// The HAVING above only sees retryable rows; re-check for an existing
	// exhausted row across the full log so the sweep stays idempotent.
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		var n int64
		if err := db.Model(&domain.AutoReplyLog{}).
			Where("user_id = ? AND reply_id = ? AND status = ?", userID, id, domain.StatusExhausted).
			Count(&n).Error; err != nil {
			return nil, err
		}
		if n == 0 {
			out = append(out, id)
		}
	}
	return out, nil
}
