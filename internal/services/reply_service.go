// Package services – ReplyService
//
// This file implements ReplyService, the component that consumes one
// candidate reply and acts on the detection verdict: compose and send the
// booking message, flag the reply for human review, or do nothing. Every
// attempt that acts (or fails while trying) appends exactly one row to the
// append-only log; this is the single place in the system where classifier
// and delivery errors are converted into log rows, so nothing escapes to
// crash the scheduler's timer loop.
//
// Observability: public methods are OpenTelemetry-instrumented; spans carry
// reply/user identifiers and the final status.
package services

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/replypilot/go-reply-engine/internal/compose"
	"github.com/replypilot/go-reply-engine/internal/detect"
	"github.com/replypilot/go-reply-engine/internal/domain"
	"github.com/replypilot/go-reply-engine/internal/mail"
	"github.com/replypilot/go-reply-engine/internal/repo"
)

// snippetMaxRunes caps the reply fragment stored on each log row.
const snippetMaxRunes = 200

// verdictTotal counts detection verdicts acted on by ProcessReply.
var verdictTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "autoreply_verdicts_total",
	Help: "Total detection verdicts by decision.",
}, []string{"decision"})

func init() {
	prometheus.MustRegister(verdictTotal)
}

// ProcessOutcome summarizes one ProcessReply call for the caller. Status is
// the log status written for this attempt, or empty when no row was written
// (no_action, or an already-terminal reply).
type ProcessOutcome struct {
	Processed        bool   `json:"processed"`
	AutoReplySent    bool   `json:"auto_reply_sent"`
	FlaggedForReview bool   `json:"flagged_for_review"`
	Status           string `json:"status,omitempty"`
	ErrorMessage     string `json:"error_message,omitempty"`
}

// ReplyService coordinates detection, composition, delivery, and the
// append-only attempt log.
type ReplyService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Detector runs the classification pipeline.
	Detector *detect.Detector
	// Sender is the external delivery capability, invoked only on an
	// auto_reply verdict.
	Sender mail.Sender

	// MaxReplyRunes caps ingested/classified reply text by rune length.
	MaxReplyRunes int
}

// NewReplyService constructs a ReplyService with sane defaults.
func NewReplyService(db *gorm.DB, det *detect.Detector, sender mail.Sender) *ReplyService {
	return &ReplyService{
		DB:            db,
		Detector:      det,
		Sender:        sender,
		MaxReplyRunes: 10000,
	}
}

// ProcessReply runs detection over one reply and acts on the verdict.
//
// Semantics:
//   - A reply that already carries a terminal log row is never touched
//     again; the call returns with Processed=false and no new row.
//   - A reply without a contact email cannot be auto-replied to under any
//     verdict; it is recorded once as a non-retryable `skipped` row.
//   - A classifier failure (provider error, timeout, unparsable output) is
//     recorded as a retryable `error` row.
//   - auto_reply: the message is composed and handed to the Sender; the
//     attempt is recorded as `sent`, or `send_failed` when delivery is
//     refused (retryable independently of classification failures, since
//     the verdict itself was valid).
//   - flag_for_review: a terminal `flagged_for_review` row is written.
//   - no_action: no row is written.
//
// The method itself returns an error only for caller mistakes (disabled
// user, missing booking link) and unexpected storage failures; everything
// the retry pipeline is designed to absorb is expressed as a log row.
func (s *ReplyService) ProcessReply(ctx context.Context, reply *domain.InboundReply, settings *domain.AutoReplySettings) (ProcessOutcome, error) {
	tr := otel.Tracer("services/ReplyService")
	ctx, span := tr.Start(ctx, "ProcessReply",
		trace.WithAttributes(
			attribute.String("reply.id", reply.ID),
			attribute.String("user.id", reply.UserID),
		),
	)
	defer span.End()

	if settings == nil || !settings.Enabled {
		return ProcessOutcome{}, ErrAutoReplyDisabled
	}
	if strings.TrimSpace(settings.BookingLink) == "" {
		return ProcessOutcome{}, ErrMissingBookingLink
	}

	// At-most-once guard: a terminal row ends processing for this reply.
	terminal, err := repo.HasTerminalLog(s.DB.WithContext(ctx), reply.UserID, reply.ID)
	if err != nil {
		return ProcessOutcome{}, err
	}
	if terminal {
		span.SetAttributes(attribute.String("outcome", "already_terminal"))
		return ProcessOutcome{}, nil
	}

	// Malformed input is not retryable: classification cannot make a
	// missing recipient address appear.
	if strings.TrimSpace(reply.ContactEmail) == "" {
		return s.record(ctx, span, reply, domain.AutoReplyLog{
			Status:       domain.StatusSkipped,
			ErrorMessage: ErrMissingContact.Error(),
		})
	}

	det, err := s.Detector.Detect(ctx, reply.Body)
	if err != nil {
		// Retryable: the next eligible scheduler tick tries again.
		return s.record(ctx, span, reply, domain.AutoReplyLog{
			Status:       domain.StatusError,
			ErrorMessage: err.Error(),
		})
	}

	verdictTotal.WithLabelValues(string(det.Verdict.Decision)).Inc()

	switch det.Verdict.Decision {
	case detect.DecisionAutoReply:
		return s.sendAndRecord(ctx, span, reply, settings, det)

	case detect.DecisionFlagForReview:
		return s.record(ctx, span, reply, domain.AutoReplyLog{
			Status:     domain.StatusFlaggedForReview,
			Confidence: det.Verdict.Confidence,
			IntentType: intentOf(det),
		})

	default: // no_action: nothing to do, nothing to persist.
		span.SetAttributes(attribute.String("outcome", string(detect.DecisionNoAction)))
		return ProcessOutcome{Processed: true}, nil
	}
}

// sendAndRecord composes the booking message, invokes the Sender, and
// records the attempt as sent or send_failed.
func (s *ReplyService) sendAndRecord(ctx context.Context, span trace.Span, reply *domain.InboundReply, settings *domain.AutoReplySettings, det *detect.Detection) (ProcessOutcome, error) {
	msg := compose.Reply(reply.ContactName, settings.BookingLink, settings.CustomTemplate, reply.Subject)

	if _, err := s.Sender.Send(ctx, reply.ContactEmail, msg.Subject, msg.Body); err != nil {
		return s.record(ctx, span, reply, domain.AutoReplyLog{
			Status:        domain.StatusSendFailed,
			Confidence:    det.Verdict.Confidence,
			IntentType:    intentOf(det),
			ComposedReply: msg.Body,
			ErrorMessage:  err.Error(),
		})
	}

	now := time.Now().UTC()
	return s.record(ctx, span, reply, domain.AutoReplyLog{
		Status:        domain.StatusSent,
		Confidence:    det.Verdict.Confidence,
		IntentType:    intentOf(det),
		ComposedReply: msg.Body,
		SentAt:        &now,
	})
}

// record fills the identity/snippet fields, appends the row, and derives
// the caller-facing outcome from the written status.
func (s *ReplyService) record(ctx context.Context, span trace.Span, reply *domain.InboundReply, row domain.AutoReplyLog) (ProcessOutcome, error) {
	row.UserID = reply.UserID
	row.ReplyID = reply.ID
	row.ContactID = reply.ContactID
	row.Snippet = clipRunes(reply.Body, snippetMaxRunes)

	if _, err := repo.AppendLog(s.DB.WithContext(ctx), &row); err != nil {
		return ProcessOutcome{}, err
	}

	span.SetAttributes(attribute.String("outcome", row.Status))
	return ProcessOutcome{
		Processed:        true,
		AutoReplySent:    row.Status == domain.StatusSent,
		FlaggedForReview: row.Status == domain.StatusFlaggedForReview,
		Status:           row.Status,
		ErrorMessage:     row.ErrorMessage,
	}, nil
}

// ClassifyPreview runs the two-pass pipeline without side effects: no log
// row is written regardless of the verdict. Intended for operator preview
// and debugging.
func (s *ReplyService) ClassifyPreview(ctx context.Context, text string) (*detect.Detection, error) {
	tr := otel.Tracer("services/ReplyService")
	ctx, span := tr.Start(ctx, "ClassifyPreview")
	defer span.End()

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyReply
	}
	if s.MaxReplyRunes > 0 && utf8.RuneCountInString(text) > s.MaxReplyRunes {
		return nil, ErrReplyTooLong
	}
	det, err := s.Detector.Detect(ctx, text)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("verdict.decision", string(det.Verdict.Decision)))
	return det, nil
}

// Ingest stores one candidate reply pushed by the upstream reply detector.
func (s *ReplyService) Ingest(ctx context.Context, reply *domain.InboundReply) (*domain.InboundReply, error) {
	reply.Body = strings.TrimSpace(reply.Body)
	if reply.Body == "" {
		return nil, ErrEmptyReply
	}
	if s.MaxReplyRunes > 0 && utf8.RuneCountInString(reply.Body) > s.MaxReplyRunes {
		return nil, ErrReplyTooLong
	}
	if strings.TrimSpace(reply.ContactID) == "" {
		return nil, ErrMissingContact
	}
	return repo.CreateReply(s.DB.WithContext(ctx), reply)
}

// Reply fetches one reply scoped to its owner.
func (s *ReplyService) Reply(ctx context.Context, userID, id string) (*domain.InboundReply, error) {
	r, err := repo.GetReply(s.DB.WithContext(ctx), userID, id)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrReplyNotFound
		}
		return nil, err
	}
	return r, nil
}

// Logs returns a page of a user's attempt log, most recent first, plus the
// total row count for pagination.
func (s *ReplyService) Logs(ctx context.Context, userID string, page, pageSize int) ([]domain.AutoReplyLog, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := repo.CountLogs(s.DB.WithContext(ctx), userID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.AutoReplyLog{}, 0, nil
	}
	items, err := repo.ListLogsPage(s.DB.WithContext(ctx), userID, offset, pageSize)
	return items, total, err
}

// PendingReview returns the rows awaiting human review, most recent first.
func (s *ReplyService) PendingReview(ctx context.Context, userID string) ([]domain.AutoReplyLog, error) {
	return repo.ListPendingReview(s.DB.WithContext(ctx), userID)
}

// intentOf extracts the classified intent for a log row: the second pass's
// view when available, otherwise the first's. Empty on the fast path.
func intentOf(det *detect.Detection) string {
	if det.Pass2 != nil {
		return string(det.Pass2.Intent)
	}
	if det.Pass1 != nil {
		return string(det.Pass1.Intent)
	}
	return ""
}

// clipRunes truncates s to at most max runes.
func clipRunes(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}

// isNotFound reports whether err is GORM's record-not-found error.
func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
