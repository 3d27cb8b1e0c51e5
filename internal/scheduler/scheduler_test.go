package scheduler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/replypilot/go-reply-engine/internal/detect"
	"github.com/replypilot/go-reply-engine/internal/domain"
	"github.com/replypilot/go-reply-engine/internal/mail"
	"github.com/replypilot/go-reply-engine/internal/repo"
	"github.com/replypilot/go-reply-engine/internal/services"
)

// ----- Fakes -----

type stubClassifier struct {
	pass1    detect.IntentResult
	pass2    detect.IntentResult
	pass1Err error
}

func (s *stubClassifier) ClassifyPass1(ctx context.Context, text string) (detect.IntentResult, error) {
	return s.pass1, s.pass1Err
}

func (s *stubClassifier) ClassifyPass2(ctx context.Context, text string, first detect.IntentResult) (detect.IntentResult, error) {
	return s.pass2, nil
}

type fakeSender struct {
	sendErr error
	calls   int
}

func (f *fakeSender) Send(ctx context.Context, to, subject, body string) (mail.SendResult, error) {
	f.calls++
	if f.sendErr != nil {
		return mail.SendResult{}, f.sendErr
	}
	return mail.SendResult{MessageID: "msg-1"}, nil
}

// ----- Helpers -----

func newSchedDB(t *testing.T) *gorm.DB {
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

func newSched(t *testing.T, db *gorm.DB, cls detect.ClassifierPort, sender mail.Sender, opts Options) *Scheduler {
	t.Helper()
	svc := services.NewReplyService(db, detect.NewDetector(cls), sender)
	return New(db, svc, opts, zerolog.Nop())
}

func seedUser(t *testing.T, db *gorm.DB, userID string) {
	t.Helper()
	if err := repo.UpsertSettings(db, &domain.AutoReplySettings{
		UserID:      userID,
		Enabled:     true,
		BookingLink: "https://cal.example/" + userID,
	}); err != nil {
		t.Fatalf("UpsertSettings: %v", err)
	}
}

func seedReply(t *testing.T, db *gorm.DB, userID, body string) *domain.InboundReply {
	t.Helper()
	r, err := repo.CreateReply(db, &domain.InboundReply{
		UserID:       userID,
		ContactID:    "c1",
		ContactName:  "Dana",
		ContactEmail: "dana@acme.example",
		Body:         body,
	})
	if err != nil {
		t.Fatalf("CreateReply: %v", err)
	}
	return r
}

func backdatedRow(t *testing.T, db *gorm.DB, userID, replyID, status string, at time.Time) {
	t.Helper()
	row := domain.AutoReplyLog{UserID: userID, ReplyID: replyID, Status: status}
	if _, err := repo.AppendLog(db, &row); err != nil {
		t.Fatalf("AppendLog: %v", err)
	}
	if err := db.Model(&domain.AutoReplyLog{}).
		Where("id = ?", row.ID).
		Update("created_at", at).Error; err != nil {
		t.Fatalf("backdate: %v", err)
	}
}

// ----- FoldStatus / Eligible / BackoffDelay -----

func TestFoldStatus(t *testing.T) {
	now := time.Now().UTC()
	rows := []domain.AutoReplyLog{
		{Status: domain.StatusSendFailed, CreatedAt: now},
		{Status: domain.StatusError, CreatedAt: now.Add(-time.Hour)},
		{Status: domain.StatusSkipped, CreatedAt: now.Add(-2 * time.Hour)},
	}

	st := FoldStatus(rows)
	if st.LatestStatus != domain.StatusSendFailed {
		t.Fatalf("latest status should come from the newest row, got %q", st.LatestStatus)
	}
	if st.AttemptCount != 2 {
		t.Fatalf("only retryable rows count as attempts, got %d", st.AttemptCount)
	}
	if !st.LastAttemptAt.Equal(now) {
		t.Fatalf("unexpected LastAttemptAt: %v", st.LastAttemptAt)
	}

	if st := FoldStatus(nil); st.LatestStatus != "" || st.AttemptCount != 0 {
		t.Fatalf("empty history should fold to zero value, got %+v", st)
	}
}

func TestEligible(t *testing.T) {
	now := time.Now().UTC()
	base := 5 * time.Minute
	const maxAttempts = 3

	cases := []struct {
		name string
		st   ProcessingStatus
		want bool
	}{
		{"never attempted", ProcessingStatus{}, true},
		{"terminal sent", ProcessingStatus{LatestStatus: domain.StatusSent, AttemptCount: 0, LastAttemptAt: now.Add(-24 * time.Hour)}, false},
		{"terminal flagged", ProcessingStatus{LatestStatus: domain.StatusFlaggedForReview, LastAttemptAt: now.Add(-24 * time.Hour)}, false},
		{"terminal exhausted", ProcessingStatus{LatestStatus: domain.StatusExhausted, AttemptCount: 3, LastAttemptAt: now.Add(-24 * time.Hour)}, false},
		{"skipped is permanent", ProcessingStatus{LatestStatus: domain.StatusSkipped, LastAttemptAt: now.Add(-24 * time.Hour)}, false},
		{"retryable, backoff elapsed", ProcessingStatus{LatestStatus: domain.StatusError, AttemptCount: 1, LastAttemptAt: now.Add(-6 * time.Minute)}, true},
		{"retryable, inside backoff", ProcessingStatus{LatestStatus: domain.StatusError, AttemptCount: 1, LastAttemptAt: now.Add(-time.Minute)}, false},
		{"second attempt doubles the wait", ProcessingStatus{LatestStatus: domain.StatusSendFailed, AttemptCount: 2, LastAttemptAt: now.Add(-6 * time.Minute)}, false},
		{"second attempt after doubled wait", ProcessingStatus{LatestStatus: domain.StatusSendFailed, AttemptCount: 2, LastAttemptAt: now.Add(-11 * time.Minute)}, true},
		{"attempt cap reached", ProcessingStatus{LatestStatus: domain.StatusError, AttemptCount: 3, LastAttemptAt: now.Add(-24 * time.Hour)}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Eligible(tc.st, now, base, maxAttempts); got != tc.want {
				t.Fatalf("Eligible(%+v) = %t, want %t", tc.st, got, tc.want)
			}
		})
	}
}

func TestBackoffDelay_Doubles(t *testing.T) {
	base := 5 * time.Minute

	if d := BackoffDelay(base, 0); d != base {
		t.Fatalf("attempt 0: %s", d)
	}
	if d := BackoffDelay(base, 1); d != base {
		t.Fatalf("attempt 1: %s", d)
	}
	for n := 1; n < 10; n++ {
		cur, next := BackoffDelay(base, n), BackoffDelay(base, n+1)
		if next != 2*cur {
			t.Fatalf("wait(%d)=%s, wait(%d)=%s; expected doubling", n, cur, n+1, next)
		}
	}
}

// ----- RunOnce -----

func TestRunOnce_ProcessesEligibleReply(t *testing.T) {
	db := newSchedDB(t)
	seedUser(t, db, "u1")
	reply := seedReply(t, db, "u1", "Yes, works for me. Send me the link!")

	sender := &fakeSender{}
	s := newSched(t, db, &stubClassifier{
		pass1: detect.IntentResult{Intent: detect.IntentBooking, Confidence: 95},
		pass2: detect.IntentResult{Intent: detect.IntentBooking, Confidence: 90},
	}, sender, Options{})

	s.RunOnce(context.Background())

	if sender.calls != 1 {
		t.Fatalf("expected one send, got %d", sender.calls)
	}
	rows, err := repo.ListLogsByReply(db, "u1", reply.ID)
	if err != nil {
		t.Fatalf("ListLogsByReply: %v", err)
	}
	if len(rows) != 1 || rows[0].Status != domain.StatusSent {
		t.Fatalf("expected one sent row, got %+v", rows)
	}

	// A second tick must not touch the terminal reply.
	s.RunOnce(context.Background())
	if sender.calls != 1 {
		t.Fatalf("terminal reply re-sent: %d calls", sender.calls)
	}
}

func TestRunOnce_SkipsDisabledUsers(t *testing.T) {
	db := newSchedDB(t)
	if err := repo.UpsertSettings(db, &domain.AutoReplySettings{
		UserID: "u1", Enabled: false, BookingLink: "https://cal.example/u1",
	}); err != nil {
		t.Fatalf("UpsertSettings: %v", err)
	}
	seedReply(t, db, "u1", "Yes, works for me!")

	sender := &fakeSender{}
	s := newSched(t, db, &stubClassifier{
		pass1: detect.IntentResult{Intent: detect.IntentBooking, Confidence: 95},
		pass2: detect.IntentResult{Intent: detect.IntentBooking, Confidence: 90},
	}, sender, Options{})

	s.RunOnce(context.Background())
	if sender.calls != 0 {
		t.Fatalf("disabled user processed: %d calls", sender.calls)
	}
}

func TestRunOnce_RespectsBackoffWindow(t *testing.T) {
	db := newSchedDB(t)
	seedUser(t, db, "u1")
	reply := seedReply(t, db, "u1", "Yes, works for me. Send me the link!")

	// One recent failure: inside the base backoff window, so the tick must
	// leave the reply alone.
	backdatedRow(t, db, "u1", reply.ID, domain.StatusError, time.Now().UTC().Add(-time.Minute))

	sender := &fakeSender{}
	s := newSched(t, db, &stubClassifier{
		pass1: detect.IntentResult{Intent: detect.IntentBooking, Confidence: 95},
		pass2: detect.IntentResult{Intent: detect.IntentBooking, Confidence: 90},
	}, sender, Options{BaseRetryDelay: 5 * time.Minute})

	s.RunOnce(context.Background())
	if sender.calls != 0 {
		t.Fatalf("reply inside backoff window was attempted: %d calls", sender.calls)
	}

	// Backdate the failure beyond the window and the retry goes through.
	if err := db.Model(&domain.AutoReplyLog{}).
		Where("reply_id = ?", reply.ID).
		Update("created_at", time.Now().UTC().Add(-10*time.Minute)).Error; err != nil {
		t.Fatalf("backdate: %v", err)
	}
	s.RunOnce(context.Background())
	if sender.calls != 1 {
		t.Fatalf("expected retry after backoff, got %d calls", sender.calls)
	}
}

func TestRunOnce_EscalatesExhaustedReplies(t *testing.T) {
	db := newSchedDB(t)
	seedUser(t, db, "u1")
	reply := seedReply(t, db, "u1", "Yes, works for me. Send me the link!")

	// Three old failures: the attempt cap is reached, so the tick must not
	// retry but must escalate exactly once.
	old := time.Now().UTC().Add(-48 * time.Hour)
	for i := 0; i < 3; i++ {
		backdatedRow(t, db, "u1", reply.ID, domain.StatusSendFailed, old.Add(time.Duration(i)*time.Hour))
	}

	sender := &fakeSender{}
	s := newSched(t, db, &stubClassifier{
		pass1: detect.IntentResult{Intent: detect.IntentBooking, Confidence: 95},
		pass2: detect.IntentResult{Intent: detect.IntentBooking, Confidence: 90},
	}, sender, Options{MaxRetryAttempts: 3})

	s.RunOnce(context.Background())
	if sender.calls != 0 {
		t.Fatalf("capped reply was retried: %d calls", sender.calls)
	}

	rows, err := repo.ListLogsByReply(db, "u1", reply.ID)
	if err != nil {
		t.Fatalf("ListLogsByReply: %v", err)
	}
	var exhausted int
	for _, r := range rows {
		if r.Status == domain.StatusExhausted {
			exhausted++
			if r.ErrorMessage == "" {
				t.Fatalf("exhausted row should explain itself: %+v", r)
			}
		}
	}
	if exhausted != 1 {
		t.Fatalf("expected exactly one exhausted row, got %d", exhausted)
	}

	// Re-running the tick (and the sweep) must not write a second one.
	s.RunOnce(context.Background())
	if err := s.EscalationSweep(context.Background(), "u1"); err != nil {
		t.Fatalf("EscalationSweep: %v", err)
	}
	rows, err = repo.ListLogsByReply(db, "u1", reply.ID)
	if err != nil {
		t.Fatalf("ListLogsByReply: %v", err)
	}
	exhausted = 0
	for _, r := range rows {
		if r.Status == domain.StatusExhausted {
			exhausted++
		}
	}
	if exhausted != 1 {
		t.Fatalf("escalation must be exactly-once, got %d exhausted rows", exhausted)
	}
}

func TestRunOnce_ClassifierErrorBecomesLogRow(t *testing.T) {
	db := newSchedDB(t)
	seedUser(t, db, "u1")
	reply := seedReply(t, db, "u1", "Yes, works for me!")

	s := newSched(t, db, &stubClassifier{pass1Err: errors.New("provider down")}, &fakeSender{}, Options{})
	s.RunOnce(context.Background())

	rows, err := repo.ListLogsByReply(db, "u1", reply.ID)
	if err != nil {
		t.Fatalf("ListLogsByReply: %v", err)
	}
	if len(rows) != 1 || rows[0].Status != domain.StatusError {
		t.Fatalf("expected one error row, got %+v", rows)
	}
}

func TestRunOnce_LookbackExcludesOldReplies(t *testing.T) {
	db := newSchedDB(t)
	seedUser(t, db, "u1")

	old, err := repo.CreateReply(db, &domain.InboundReply{
		UserID:       "u1",
		ContactID:    "c1",
		ContactEmail: "dana@acme.example",
		Body:         "Yes, works for me!",
		ReceivedAt:   time.Now().UTC().Add(-14 * 24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("CreateReply: %v", err)
	}

	sender := &fakeSender{}
	s := newSched(t, db, &stubClassifier{
		pass1: detect.IntentResult{Intent: detect.IntentBooking, Confidence: 95},
		pass2: detect.IntentResult{Intent: detect.IntentBooking, Confidence: 90},
	}, sender, Options{Lookback: 72 * time.Hour})

	s.RunOnce(context.Background())
	if sender.calls != 0 {
		t.Fatalf("reply outside the lookback window was processed: %d calls", sender.calls)
	}
	if rows, _ := repo.ListLogsByReply(db, "u1", old.ID); len(rows) != 0 {
		t.Fatalf("expected no rows for an out-of-window reply, got %+v", rows)
	}
}

// ----- Lifecycle -----

func TestSchedulerStartStop(t *testing.T) {
	db := newSchedDB(t)
	s := newSched(t, db, &stubClassifier{}, &fakeSender{}, Options{Interval: time.Hour})

	s.Start(context.Background())
	s.Stop()
	// Stop must be safe to call twice.
	s.Stop()
}

func TestNew_Defaults(t *testing.T) {
	db := newSchedDB(t)
	s := newSched(t, db, &stubClassifier{}, &fakeSender{}, Options{})

	if s.opts.Interval <= 0 || s.opts.BaseRetryDelay <= 0 ||
		s.opts.MaxRetryAttempts <= 0 || s.opts.Lookback <= 0 || s.opts.BatchLimit <= 0 {
		t.Fatalf("defaults not applied: %+v", s.opts)
	}
}
