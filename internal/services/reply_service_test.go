package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/replypilot/go-reply-engine/internal/detect"
	"github.com/replypilot/go-reply-engine/internal/domain"
	"github.com/replypilot/go-reply-engine/internal/mail"
	"github.com/replypilot/go-reply-engine/internal/repo"
)

// ----- Fakes -----

type stubClassifier struct {
	pass1    detect.IntentResult
	pass2    detect.IntentResult
	pass1Err error
	pass2Err error
}

func (s *stubClassifier) ClassifyPass1(ctx context.Context, text string) (detect.IntentResult, error) {
	return s.pass1, s.pass1Err
}

func (s *stubClassifier) ClassifyPass2(ctx context.Context, text string, first detect.IntentResult) (detect.IntentResult, error) {
	return s.pass2, s.pass2Err
}

type fakeSender struct {
	sendErr error
	calls   int
	lastTo  string
	lastSub string
	lastBod string
}

func (f *fakeSender) Send(ctx context.Context, to, subject, body string) (mail.SendResult, error) {
	f.calls++
	f.lastTo, f.lastSub, f.lastBod = to, subject, body
	if f.sendErr != nil {
		return mail.SendResult{}, f.sendErr
	}
	return mail.SendResult{MessageID: "msg-1"}, nil
}

// ----- Helpers -----

func newServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func enabledSettings() *domain.AutoReplySettings {
	return &domain.AutoReplySettings{
		UserID:      "u1",
		Enabled:     true,
		BookingLink: "https://cal.example/u1",
	}
}

func bookingReply(t *testing.T, db *gorm.DB) *domain.InboundReply {
	t.Helper()
	r, err := repo.CreateReply(db, &domain.InboundReply{
		UserID:       "u1",
		ContactID:    "c1",
		ContactName:  "dana whitfield",
		ContactEmail: "dana@acme.example",
		Subject:      "Quick question",
		Body:         "Yes, works for me. Send me the link!",
	})
	if err != nil {
		t.Fatalf("CreateReply: %v", err)
	}
	return r
}

func newService(db *gorm.DB, cls detect.ClassifierPort, sender mail.Sender) *ReplyService {
	return NewReplyService(db, detect.NewDetector(cls), sender)
}

func logsFor(t *testing.T, db *gorm.DB, replyID string) []domain.AutoReplyLog {
	t.Helper()
	rows, err := repo.ListLogsByReply(db, "u1", replyID)
	if err != nil {
		t.Fatalf("ListLogsByReply: %v", err)
	}
	return rows
}

// ----- ProcessReply -----

func TestProcessReply_AutoReply_SendsAndLogsSent(t *testing.T) {
	db := newServiceDB(t)
	reply := bookingReply(t, db)
	sender := &fakeSender{}
	svc := newService(db, &stubClassifier{
		pass1: detect.IntentResult{Intent: detect.IntentBooking, Confidence: 95},
		pass2: detect.IntentResult{Intent: detect.IntentBooking, Confidence: 90},
	}, sender)

	out, err := svc.ProcessReply(context.Background(), reply, enabledSettings())
	if err != nil {
		t.Fatalf("ProcessReply: %v", err)
	}
	if !out.Processed || !out.AutoReplySent || out.FlaggedForReview {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if out.Status != domain.StatusSent {
		t.Fatalf("expected sent status, got %q", out.Status)
	}
	if sender.calls != 1 || sender.lastTo != "dana@acme.example" {
		t.Fatalf("unexpected send: calls=%d to=%q", sender.calls, sender.lastTo)
	}
	if !strings.Contains(sender.lastBod, "https://cal.example/u1") {
		t.Fatalf("outgoing body should carry the booking link: %q", sender.lastBod)
	}

	rows := logsFor(t, db, reply.ID)
	if len(rows) != 1 {
		t.Fatalf("expected exactly one log row, got %d", len(rows))
	}
	row := rows[0]
	if row.Status != domain.StatusSent || row.SentAt == nil {
		t.Fatalf("unexpected row: %+v", row)
	}
	if row.Confidence != 90 || row.IntentType != string(detect.IntentBooking) {
		t.Fatalf("row should carry verdict confidence and intent: %+v", row)
	}
	if row.ComposedReply == "" || row.Snippet == "" {
		t.Fatalf("row should carry the composed reply and snippet: %+v", row)
	}
}

func TestProcessReply_SendFailure_LogsSendFailed(t *testing.T) {
	db := newServiceDB(t)
	reply := bookingReply(t, db)
	sender := &fakeSender{sendErr: errors.New("relay refused")}
	svc := newService(db, &stubClassifier{
		pass1: detect.IntentResult{Intent: detect.IntentBooking, Confidence: 95},
		pass2: detect.IntentResult{Intent: detect.IntentBooking, Confidence: 90},
	}, sender)

	out, err := svc.ProcessReply(context.Background(), reply, enabledSettings())
	if err != nil {
		t.Fatalf("ProcessReply: %v", err)
	}
	if out.Status != domain.StatusSendFailed || out.AutoReplySent {
		t.Fatalf("unexpected outcome: %+v", out)
	}

	rows := logsFor(t, db, reply.ID)
	if len(rows) != 1 || rows[0].Status != domain.StatusSendFailed {
		t.Fatalf("expected one send_failed row, got %+v", rows)
	}
	if rows[0].ErrorMessage != "relay refused" {
		t.Fatalf("row should carry the delivery error: %+v", rows[0])
	}
	if rows[0].ComposedReply == "" {
		t.Fatalf("failed sends keep the composed reply for the retry: %+v", rows[0])
	}
}

func TestProcessReply_ClassifierError_LogsError(t *testing.T) {
	db := newServiceDB(t)
	reply := bookingReply(t, db)
	svc := newService(db, &stubClassifier{pass1Err: errors.New("provider down")}, &fakeSender{})

	out, err := svc.ProcessReply(context.Background(), reply, enabledSettings())
	if err != nil {
		t.Fatalf("classifier failures become log rows, not errors: %v", err)
	}
	if out.Status != domain.StatusError {
		t.Fatalf("expected error status, got %+v", out)
	}

	rows := logsFor(t, db, reply.ID)
	if len(rows) != 1 || rows[0].Status != domain.StatusError {
		t.Fatalf("expected one error row, got %+v", rows)
	}
	if !strings.Contains(rows[0].ErrorMessage, "provider down") {
		t.Fatalf("row should carry the classifier error: %+v", rows[0])
	}
}

func TestProcessReply_FlagForReview_LogsRow(t *testing.T) {
	db := newServiceDB(t)
	reply := bookingReply(t, db)
	sender := &fakeSender{}
	// Below the auto-reply gate but inside the review band.
	svc := newService(db, &stubClassifier{
		pass1: detect.IntentResult{Intent: detect.IntentBooking, Confidence: 85},
		pass2: detect.IntentResult{Intent: detect.IntentBooking, Confidence: 70},
	}, sender)

	out, err := svc.ProcessReply(context.Background(), reply, enabledSettings())
	if err != nil {
		t.Fatalf("ProcessReply: %v", err)
	}
	if !out.FlaggedForReview || out.AutoReplySent {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if sender.calls != 0 {
		t.Fatal("flagged replies must not be sent")
	}

	rows := logsFor(t, db, reply.ID)
	if len(rows) != 1 || rows[0].Status != domain.StatusFlaggedForReview {
		t.Fatalf("expected one flagged row, got %+v", rows)
	}
}

func TestProcessReply_NoAction_WritesNoRow(t *testing.T) {
	db := newServiceDB(t)
	reply, err := repo.CreateReply(db, &domain.InboundReply{
		UserID:       "u1",
		ContactID:    "c1",
		ContactEmail: "dana@acme.example",
		Body:         "Not interested, please remove me.",
	})
	if err != nil {
		t.Fatalf("CreateReply: %v", err)
	}
	svc := newService(db, &stubClassifier{}, &fakeSender{})

	out, err := svc.ProcessReply(context.Background(), reply, enabledSettings())
	if err != nil {
		t.Fatalf("ProcessReply: %v", err)
	}
	if !out.Processed || out.Status != "" {
		t.Fatalf("no_action should process without a status: %+v", out)
	}
	if rows := logsFor(t, db, reply.ID); len(rows) != 0 {
		t.Fatalf("no_action must write no row, got %+v", rows)
	}
}

func TestProcessReply_MissingContactEmail_LogsSkipped(t *testing.T) {
	db := newServiceDB(t)
	reply, err := repo.CreateReply(db, &domain.InboundReply{
		UserID:    "u1",
		ContactID: "c1",
		Body:      "Yes, works for me. Send me the link!",
	})
	if err != nil {
		t.Fatalf("CreateReply: %v", err)
	}
	sender := &fakeSender{}
	svc := newService(db, &stubClassifier{
		pass1: detect.IntentResult{Intent: detect.IntentBooking, Confidence: 95},
		pass2: detect.IntentResult{Intent: detect.IntentBooking, Confidence: 90},
	}, sender)

	out, err := svc.ProcessReply(context.Background(), reply, enabledSettings())
	if err != nil {
		t.Fatalf("ProcessReply: %v", err)
	}
	if out.Status != domain.StatusSkipped {
		t.Fatalf("expected skipped, got %+v", out)
	}
	if sender.calls != 0 {
		t.Fatal("skipped replies must not be sent")
	}
	if rows := logsFor(t, db, reply.ID); len(rows) != 1 || rows[0].Status != domain.StatusSkipped {
		t.Fatalf("expected one skipped row, got %+v", rows)
	}
}

func TestProcessReply_TerminalRow_Idempotent(t *testing.T) {
	db := newServiceDB(t)
	reply := bookingReply(t, db)
	sender := &fakeSender{}
	svc := newService(db, &stubClassifier{
		pass1: detect.IntentResult{Intent: detect.IntentBooking, Confidence: 95},
		pass2: detect.IntentResult{Intent: detect.IntentBooking, Confidence: 90},
	}, sender)

	if _, err := svc.ProcessReply(context.Background(), reply, enabledSettings()); err != nil {
		t.Fatalf("first ProcessReply: %v", err)
	}
	out, err := svc.ProcessReply(context.Background(), reply, enabledSettings())
	if err != nil {
		t.Fatalf("second ProcessReply: %v", err)
	}
	if out.Processed {
		t.Fatalf("terminal reply must not be reprocessed: %+v", out)
	}
	if sender.calls != 1 {
		t.Fatalf("expected exactly one send, got %d", sender.calls)
	}
	if rows := logsFor(t, db, reply.ID); len(rows) != 1 {
		t.Fatalf("expected exactly one row, got %d", len(rows))
	}
}

func TestProcessReply_RetryableRow_AllowsRetry(t *testing.T) {
	db := newServiceDB(t)
	reply := bookingReply(t, db)
	sender := &fakeSender{sendErr: errors.New("relay refused")}
	svc := newService(db, &stubClassifier{
		pass1: detect.IntentResult{Intent: detect.IntentBooking, Confidence: 95},
		pass2: detect.IntentResult{Intent: detect.IntentBooking, Confidence: 90},
	}, sender)

	if _, err := svc.ProcessReply(context.Background(), reply, enabledSettings()); err != nil {
		t.Fatalf("first ProcessReply: %v", err)
	}
	sender.sendErr = nil

	out, err := svc.ProcessReply(context.Background(), reply, enabledSettings())
	if err != nil {
		t.Fatalf("second ProcessReply: %v", err)
	}
	if out.Status != domain.StatusSent {
		t.Fatalf("retry should succeed, got %+v", out)
	}
	if rows := logsFor(t, db, reply.ID); len(rows) != 2 {
		t.Fatalf("expected send_failed then sent rows, got %+v", rows)
	}
}

func TestProcessReply_GuardsSettings(t *testing.T) {
	db := newServiceDB(t)
	reply := bookingReply(t, db)
	svc := newService(db, &stubClassifier{}, &fakeSender{})

	if _, err := svc.ProcessReply(context.Background(), reply, &domain.AutoReplySettings{UserID: "u1"}); !errors.Is(err, ErrAutoReplyDisabled) {
		t.Fatalf("expected ErrAutoReplyDisabled, got %v", err)
	}
	if _, err := svc.ProcessReply(context.Background(), reply, &domain.AutoReplySettings{
		UserID: "u1", Enabled: true,
	}); !errors.Is(err, ErrMissingBookingLink) {
		t.Fatalf("expected ErrMissingBookingLink, got %v", err)
	}
	if rows := logsFor(t, db, reply.ID); len(rows) != 0 {
		t.Fatalf("guard failures must not write rows, got %+v", rows)
	}
}

// ----- ClassifyPreview -----

func TestClassifyPreview_NoSideEffects(t *testing.T) {
	db := newServiceDB(t)
	svc := newService(db, &stubClassifier{
		pass1: detect.IntentResult{Intent: detect.IntentBooking, Confidence: 95},
		pass2: detect.IntentResult{Intent: detect.IntentBooking, Confidence: 90},
	}, &fakeSender{})

	det, err := svc.ClassifyPreview(context.Background(), "Yes, works for me. Send me the link!")
	if err != nil {
		t.Fatalf("ClassifyPreview: %v", err)
	}
	if det.Verdict.Decision != detect.DecisionAutoReply {
		t.Fatalf("unexpected verdict: %+v", det.Verdict)
	}

	var n int64
	if err := db.Model(&domain.AutoReplyLog{}).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Fatalf("preview must not write log rows, got %d", n)
	}
}

func TestClassifyPreview_ValidatesInput(t *testing.T) {
	db := newServiceDB(t)
	svc := newService(db, &stubClassifier{}, &fakeSender{})

	if _, err := svc.ClassifyPreview(context.Background(), "   "); !errors.Is(err, ErrEmptyReply) {
		t.Fatalf("expected ErrEmptyReply, got %v", err)
	}

	svc.MaxReplyRunes = 5
	if _, err := svc.ClassifyPreview(context.Background(), "this is far too long"); !errors.Is(err, ErrReplyTooLong) {
		t.Fatalf("expected ErrReplyTooLong, got %v", err)
	}
}

// ----- Ingest / Reply / Logs -----

func TestIngest_Validation(t *testing.T) {
	db := newServiceDB(t)
	svc := newService(db, &stubClassifier{}, &fakeSender{})
	ctx := context.Background()

	if _, err := svc.Ingest(ctx, &domain.InboundReply{UserID: "u1", ContactID: "c1", Body: "  "}); !errors.Is(err, ErrEmptyReply) {
		t.Fatalf("expected ErrEmptyReply, got %v", err)
	}
	if _, err := svc.Ingest(ctx, &domain.InboundReply{UserID: "u1", Body: "hi"}); !errors.Is(err, ErrMissingContact) {
		t.Fatalf("expected ErrMissingContact, got %v", err)
	}

	r, err := svc.Ingest(ctx, &domain.InboundReply{UserID: "u1", ContactID: "c1", Body: " hi there "})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if r.ID == "" || r.Body != "hi there" {
		t.Fatalf("unexpected ingested reply: %+v", r)
	}
}

func TestReply_NotFound(t *testing.T) {
	db := newServiceDB(t)
	svc := newService(db, &stubClassifier{}, &fakeSender{})

	if _, err := svc.Reply(context.Background(), "u1", "missing"); !errors.Is(err, ErrReplyNotFound) {
		t.Fatalf("expected ErrReplyNotFound, got %v", err)
	}
}

func TestLogs_Pagination(t *testing.T) {
	db := newServiceDB(t)
	svc := newService(db, &stubClassifier{}, &fakeSender{})

	for i := 0; i < 3; i++ {
		if _, err := repo.AppendLog(db, &domain.AutoReplyLog{
			UserID: "u1", ReplyID: fmt.Sprintf("r%d", i), Status: domain.StatusError,
		}); err != nil {
			t.Fatalf("AppendLog: %v", err)
		}
	}

	items, total, err := svc.Logs(context.Background(), "u1", 1, 2)
	if err != nil {
		t.Fatalf("Logs: %v", err)
	}
	if total != 3 || len(items) != 2 {
		t.Fatalf("unexpected page: total=%d items=%d", total, len(items))
	}

	// Out-of-range values normalize instead of failing.
	items, total, err = svc.Logs(context.Background(), "u1", 0, -1)
	if err != nil {
		t.Fatalf("Logs: %v", err)
	}
	if total != 3 || len(items) != 3 {
		t.Fatalf("unexpected normalized page: total=%d items=%d", total, len(items))
	}

	// A user with no rows gets an empty page, not an error.
	items, total, err = svc.Logs(context.Background(), "nobody", 1, 10)
	if err != nil {
		t.Fatalf("Logs: %v", err)
	}
	if total != 0 || len(items) != 0 {
		t.Fatalf("expected empty page, got total=%d items=%d", total, len(items))
	}
}
