// Reply HTTP handlers.
//
// This file exposes the REST endpoints around inbound replies and the
// auto-reply decision pipeline:
//   - POST /replies                (ingest a candidate reply)
//   - POST /classify               (side-effect-free two-pass preview)
//   - POST /replies/{id}/process   (manual processing trigger)
//   - GET  /logs                   (paginated attempt log)
//   - GET  /logs/pending-review    (operator review queue)
//
// Handlers are transport-thin: they validate input, call application
// services, and translate results into HTTP responses.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/replypilot/go-reply-engine/internal/detect"
	"github.com/replypilot/go-reply-engine/internal/domain"
	"github.com/replypilot/go-reply-engine/internal/services"
)

//
// Service contracts (context-aware)
//

// ReplyService defines the reply-pipeline operations consumed by HTTP
// handlers. Implementations must honor the provided context for
// cancellation and timeouts.
type ReplyService interface {
	// Ingest stores one candidate reply.
	Ingest(ctx context.Context, reply *domain.InboundReply) (*domain.InboundReply, error)
	// Reply fetches one reply scoped to its owner.
	Reply(ctx context.Context, userID, id string) (*domain.InboundReply, error)
	// ClassifyPreview runs detection without writing a log row.
	ClassifyPreview(ctx context.Context, text string) (*detect.Detection, error)
	// ProcessReply runs detection and acts on the verdict.
	ProcessReply(ctx context.Context, reply *domain.InboundReply, settings *domain.AutoReplySettings) (services.ProcessOutcome, error)
	// Logs returns a page of the attempt log plus the total count.
	Logs(ctx context.Context, userID string, page, pageSize int) ([]domain.AutoReplyLog, int64, error)
	// PendingReview returns rows awaiting human review.
	PendingReview(ctx context.Context, userID string) ([]domain.AutoReplyLog, error)
}

// SettingsService defines read/update access to auto-reply settings.
type SettingsService interface {
	Get(ctx context.Context, userID string) (*domain.AutoReplySettings, error)
	Update(ctx context.Context, userID string, enabled bool, bookingLink, customTemplate string) (*domain.AutoReplySettings, error)
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints for replies, logs, and settings.
type Handlers struct {
	replySvc    ReplyService
	settingsSvc SettingsService
}

// New constructs a Handlers instance bound to the given services.
func New(replySvc ReplyService, settingsSvc SettingsService) *Handlers {
	return &Handlers{replySvc: replySvc, settingsSvc: settingsSvc}
}

// userID extracts the authenticated user id from the Gin context (set by
// upstream auth middleware), falling back to the X-User-ID header and
// finally to "demo-user".
func userID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-User-ID")); h != "" {
			return h
		}
	}
	return "demo-user"
}

// atoiDefault parses a query parameter, returning def on empty or bad input.
func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

//
// DTOs
//

// IngestReplyRequest is the JSON payload for ingesting a candidate reply.
type IngestReplyRequest struct {
	ContactID    string `json:"contact_id" binding:"required" example:"ct_8321"`
	ContactName  string `json:"contact_name" example:"Dana Whitfield"`
	ContactEmail string `json:"contact_email" example:"dana@acme.example"`
	Subject      string `json:"subject" example:"Quick question about Q3"`
	Body         string `json:"body" binding:"required" example:"Yes, let's set up a call."`
	// ReceivedAt defaults to now when omitted (RFC 3339).
	ReceivedAt string `json:"received_at,omitempty" example:"2025-06-02T10:04:05Z"`
}

// ClassifyRequest is the JSON payload for the classification preview.
type ClassifyRequest struct {
	Text string `json:"text" binding:"required" example:"Sounds good, send me the link"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
	Total    int64 `json:"total"`
}

// LogsResponse is the paginated attempt-log payload.
type LogsResponse struct {
	Items      []domain.AutoReplyLog `json:"items"`
	Pagination Pagination            `json:"pagination"`
}

//
// Endpoints
//

// IngestReply handles POST /replies.
func (h *Handlers) IngestReply(c *gin.Context) {
	var req IngestReplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
		return
	}

	reply := &domain.InboundReply{
		UserID:       userID(c),
		ContactID:    req.ContactID,
		ContactName:  req.ContactName,
		ContactEmail: req.ContactEmail,
		Subject:      req.Subject,
		Body:         req.Body,
	}
	if req.ReceivedAt != "" {
		ts, err := time.Parse(time.RFC3339, req.ReceivedAt)
		if err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "received_at must be RFC 3339")
			return
		}
		reply.ReceivedAt = ts.UTC()
	}

	out, err := h.replySvc.Ingest(c.Request.Context(), reply)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrEmptyReply),
			errors.Is(err, services.ErrReplyTooLong),
			errors.Is(err, services.ErrMissingContact):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		default:
			fail(c, http.StatusInternalServerError, ErrCodeIngestFailed, "could not ingest reply")
		}
		return
	}
	ok(c, http.StatusCreated, out)
}

// Classify handles POST /classify. It never writes a log row.
func (h *Handlers) Classify(c *gin.Context) {
	var req ClassifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
		return
	}

	det, err := h.replySvc.ClassifyPreview(c.Request.Context(), req.Text)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrEmptyReply),
			errors.Is(err, services.ErrReplyTooLong):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		default:
			fail(c, http.StatusBadGateway, ErrCodeClassifyFailed, "classification failed")
		}
		return
	}
	ok(c, http.StatusOK, det)
}

// ProcessReply handles POST /replies/:id/process, the manual trigger for
// one reply. The scheduler uses the same service path.
func (h *Handlers) ProcessReply(c *gin.Context) {
	uid := userID(c)
	ctx := c.Request.Context()

	reply, err := h.replySvc.Reply(ctx, uid, c.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrReplyNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "reply not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeProcessFailed, "could not load reply")
		return
	}

	settings, err := h.settingsSvc.Get(ctx, uid)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeProcessFailed, "could not load settings")
		return
	}

	outcome, err := h.replySvc.ProcessReply(ctx, reply, settings)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrAutoReplyDisabled),
			errors.Is(err, services.ErrMissingBookingLink):
			fail(c, http.StatusConflict, ErrCodeConflict, err.Error())
		default:
			fail(c, http.StatusInternalServerError, ErrCodeProcessFailed, "processing failed")
		}
		return
	}
	ok(c, http.StatusOK, outcome)
}

// ListLogs handles GET /logs with ?page and ?page_size.
func (h *Handlers) ListLogs(c *gin.Context) {
	page := atoiDefault(c.Query("page"), 1)
	pageSize := atoiDefault(c.Query("page_size"), 20)

	items, total, err := h.replySvc.Logs(c.Request.Context(), userID(c), page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, "could not list logs")
		return
	}
	ok(c, http.StatusOK, LogsResponse{
		Items: items,
		Pagination: Pagination{
			Page:     page,
			PageSize: pageSize,
			Total:    total,
		},
	})
}

// ListPendingReview handles GET /logs/pending-review.
func (h *Handlers) ListPendingReview(c *gin.Context) {
	items, err := h.replySvc.PendingReview(c.Request.Context(), userID(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, "could not list pending reviews")
		return
	}
	ok(c, http.StatusOK, gin.H{"items": items})
}
