// Package domain defines the persistence models for inbound replies, the
// append-only auto-reply attempt log, and per-user auto-reply settings.
// These types are mapped with GORM and form the core data layer of the
// reply engine.
package domain

import (
	"time"
)

// Auto-reply attempt statuses. Sent, FlaggedForReview, and Exhausted are
// terminal: once a reply has a row with one of those statuses, no further
// attempts are made for it. Error and SendFailed are retryable. Skipped
// records a non-retryable validation failure (e.g. missing contact email).
const (
	StatusSent             = "sent"
	StatusSkipped          = "skipped"
	StatusFlaggedForReview = "flagged_for_review"
	StatusError            = "error"
	StatusSendFailed       = "send_failed"
	StatusExhausted        = "exhausted"
)

// IsTerminalStatus reports whether a log status ends processing for a reply.
func IsTerminalStatus(s string) bool {
	switch s {
	case StatusSent, StatusFlaggedForReview, StatusExhausted:
		return true
	}
	return false
}

// IsRetryableStatus reports whether a log status leaves the reply eligible
// for another attempt (subject to the backoff window and attempt cap).
func IsRetryableStatus(s string) bool {
	return s == StatusError || s == StatusSendFailed
}

// InboundReply is a candidate prospect reply pushed by the upstream reply
// detector. The engine never mutates replies; it only reads them and records
// attempt outcomes in the AutoReplyLog.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - UserID: owner of the campaign the reply belongs to; indexed.
//   - ContactID / ContactName / ContactEmail: identity of the prospect.
//   - Subject: subject line of the original outbound message.
//   - Body: raw reply text as received.
//   - ReceivedAt: when the reply arrived in the mailbox.
type InboundReply struct {
	ID           string    `json:"id"            gorm:"type:char(36);primaryKey"`
	UserID       string    `json:"user_id"       gorm:"type:varchar(64);not null;index:idx_user_replies"`
	ContactID    string    `json:"contact_id"    gorm:"type:varchar(64);not null"`
	ContactName  string    `json:"contact_name"  gorm:"type:varchar(255)"`
	ContactEmail string    `json:"contact_email" gorm:"type:varchar(320)"`
	Subject      string    `json:"subject"       gorm:"type:varchar(998)"`
	Body         string    `json:"body"          gorm:"type:text;not null"`
	ReceivedAt   time.Time `json:"received_at"   gorm:"index"`
	CreatedAt    time.Time `json:"created_at"`
}

// TableName returns the database table name for InboundReply.
func (InboundReply) TableName() string { return "inbound_replies" }

// AutoReplyLog is one row of the append-only attempt log. Rows are only ever
// inserted, never updated or deleted; the latest row per reply id determines
// whether the scheduler may attempt the reply again.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - UserID: owner of the reply; indexed for the operator log view.
//   - ReplyID: the inbound reply this attempt was for; indexed.
//   - ContactID: prospect identity, denormalized for operator tooling.
//   - Snippet: leading fragment of the reply text for display.
//   - Confidence: final verdict confidence in [0,100].
//   - IntentType: classified intent at the time of the attempt.
//   - ComposedReply: the rendered outgoing message (auto_reply attempts only).
//   - Status: one of the Status* constants above.
//   - ErrorMessage: failure detail for error/send_failed/skipped rows.
//   - SentAt: delivery timestamp for sent rows.
type AutoReplyLog struct {
	ID            string     `json:"id"             gorm:"type:char(36);primaryKey"`
	UserID        string     `json:"user_id"        gorm:"type:varchar(64);not null;index:idx_user_logs"`
	ReplyID       string     `json:"reply_id"       gorm:"type:char(36);not null;index:idx_reply_logs"`
	ContactID     string     `json:"contact_id"     gorm:"type:varchar(64)"`
	Snippet       string     `json:"snippet"        gorm:"type:varchar(500)"`
	Confidence    int        `json:"confidence"     gorm:"not null;default:0"`
	IntentType    string     `json:"intent_type"    gorm:"type:varchar(32)"`
	ComposedReply string     `json:"composed_reply" gorm:"type:text"`
	Status        string     `json:"status"         gorm:"type:varchar(32);not null;check:status IN ('sent','skipped','flagged_for_review','error','send_failed','exhausted')"`
	ErrorMessage  string     `json:"error_message"  gorm:"type:text"`
	SentAt        *time.Time `json:"sent_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"     gorm:"index:idx_reply_logs,priority:2"`
}

// TableName returns the database table name for AutoReplyLog.
func (AutoReplyLog) TableName() string { return "auto_reply_logs" }

// AutoReplySettings holds the per-user switches the scheduler consults
// before touching any of that user's replies. A user participates in the
// auto-reply pipeline only when Enabled is true and BookingLink is set.
type AutoReplySettings struct {
	UserID         string    `json:"user_id"         gorm:"type:varchar(64);primaryKey"`
	Enabled        bool      `json:"enabled"         gorm:"not null;default:false"`
	BookingLink    string    `json:"booking_link"    gorm:"type:varchar(2048)"`
	CustomTemplate string    `json:"custom_template" gorm:"type:text"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TableName returns the database table name for AutoReplySettings.
func (AutoReplySettings) TableName() string { return "auto_reply_settings" }
