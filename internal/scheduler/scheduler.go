// Package scheduler drives the auto-reply retry pipeline. A single
// timer-driven loop wakes on a fixed interval plus random jitter, visits
// every user with auto-reply enabled and a booking link configured, folds
// each candidate reply's log history into a ProcessingStatus, and hands the
// eligible ones to the reply service sequentially. After each user's batch
// it runs the escalation sweep, which promotes retry-exhausted replies to a
// terminal exhausted row exactly once.
//
// The scheduler is an explicit, constructible object: it owns its ticker,
// random source, and stop channel, so independent instances can be built in
// tests without shared global state. At-most-once processing relies on the
// single-instance assumption documented on Start; eligibility is computed
// from a fresh read every tick (read, decide, append).
package scheduler

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/replypilot/go-reply-engine/internal/domain"
	"github.com/replypilot/go-reply-engine/internal/repo"
	"github.com/replypilot/go-reply-engine/internal/services"
)

var (
	// tickTotal counts scheduler wake-ups.
	tickTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "autoreply_scheduler_ticks_total",
		Help: "Total number of scheduler ticks.",
	})

	// attemptTotal counts processing attempts by resulting log status
	// ("none" when no row was written).
	attemptTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "autoreply_attempts_total",
		Help: "Total processing attempts by resulting status.",
	}, []string{"status"})

	// escalationTotal counts exhausted rows written by the sweep.
	escalationTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "autoreply_escalations_total",
		Help: "Total replies escalated to the exhausted state.",
	})
)

func init() {
	prometheus.MustRegister(tickTotal, attemptTotal, escalationTotal)
}

// ProcessingStatus is the fold of all log rows for one reply id. It is
// derived fresh each tick, never stored.
type ProcessingStatus struct {
	// LatestStatus is the status of the most recent row; empty when the
	// reply has never been attempted.
	LatestStatus string
	// AttemptCount is the number of retryable-failure rows
	// (error + send_failed).
	AttemptCount int
	// LastAttemptAt is the creation time of the most recent row.
	LastAttemptAt time.Time
}

// FoldStatus reduces a reply's log rows (most recent first, as the repo
// returns them) into a ProcessingStatus.
func FoldStatus(rows []domain.AutoReplyLog) ProcessingStatus {
	var st ProcessingStatus
	if len(rows) == 0 {
		return st
	}
	st.LatestStatus = rows[0].Status
	st.LastAttemptAt = rows[0].CreatedAt
	for _, r := range rows {
		if domain.IsRetryableStatus(r.Status) {
			st.AttemptCount++
		}
	}
	return st
}

// Eligible reports whether a reply may be attempted now.
//
// A reply is eligible when it has never been attempted, or when its latest
// row is a retryable failure, the attempt cap has not been reached, and the
// exponential backoff window (baseDelay × 2^(attempts−1)) has elapsed.
// Terminal and skipped rows make a reply permanently ineligible.
func Eligible(st ProcessingStatus, now time.Time, baseDelay time.Duration, maxAttempts int) bool {
	if st.LatestStatus == "" {
		return true
	}
	if !domain.IsRetryableStatus(st.LatestStatus) {
		return false
	}
	if st.AttemptCount >= maxAttempts {
		return false
	}
	return now.Sub(st.LastAttemptAt) >= BackoffDelay(baseDelay, st.AttemptCount)
}

// BackoffDelay returns the wait required after the given number of failed
// attempts: baseDelay × 2^(attempts−1).
func BackoffDelay(baseDelay time.Duration, attempts int) time.Duration {
	if attempts <= 1 {
		return baseDelay
	}
	return baseDelay << (attempts - 1)
}

// Options configures a Scheduler.
type Options struct {
	// Interval between ticks; Jitter adds up to that much random delay on
	// top of each interval so the loop decorrelates from other periodic
	// jobs.
	Interval time.Duration
	Jitter   time.Duration

	// BaseRetryDelay seeds the exponential backoff between attempts.
	BaseRetryDelay time.Duration
	// MaxRetryAttempts caps retryable failures before escalation.
	MaxRetryAttempts int

	// Lookback bounds how far back candidate replies are considered.
	Lookback time.Duration
	// BatchLimit caps replies fetched per user per tick.
	BatchLimit int
}

// Scheduler runs the retry loop. Construct with New; do not copy.
type Scheduler struct {
	db   *gorm.DB
	svc  *services.ReplyService
	opts Options
	log  zerolog.Logger
	rng  *rand.Rand

	stop chan struct{}
	done sync.WaitGroup
	once sync.Once
}

// New constructs a Scheduler. Zero option fields get conservative defaults.
func New(db *gorm.DB, svc *services.ReplyService, opts Options, log zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = 2 * time.Minute
	}
	if opts.Jitter < 0 {
		opts.Jitter = 0
	}
	if opts.BaseRetryDelay <= 0 {
		opts.BaseRetryDelay = 5 * time.Minute
	}
	if opts.MaxRetryAttempts <= 0 {
		opts.MaxRetryAttempts = 3
	}
	if opts.Lookback <= 0 {
		opts.Lookback = 72 * time.Hour
	}
	if opts.BatchLimit <= 0 {
		opts.BatchLimit = 50
	}
	return &Scheduler{
		db:   db,
		svc:  svc,
		opts: opts,
		log:  log.With().Str("component", "scheduler").Logger(),
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
		stop: make(chan struct{}),
	}
}

// Start launches the timer loop in its own goroutine. Exactly one scheduler
// instance may run against a given database; the read-decide-append
// eligibility check is not safe under concurrent schedulers.
func (s *Scheduler) Start(ctx context.Context) {
	s.done.Add(1)
	go func() {
		defer s.done.Done()
		s.log.Info().
			Dur("interval", s.opts.Interval).
			Dur("jitter", s.opts.Jitter).
			Int("max_attempts", s.opts.MaxRetryAttempts).
			Msg("scheduler started")
		for {
			timer := time.NewTimer(s.nextDelay())
			select {
			case <-ctx.Done():
				timer.Stop()
				s.log.Info().Msg("scheduler stopped: context done")
				return
			case <-s.stop:
				timer.Stop()
				s.log.Info().Msg("scheduler stopped")
				return
			case <-timer.C:
				s.RunOnce(ctx)
			}
		}
	}()
}

// Stop signals the loop to exit and waits for it.
func (s *Scheduler) Stop() {
	s.once.Do(func() { close(s.stop) })
	s.done.Wait()
}

// nextDelay is the interval plus a random jitter slice.
func (s *Scheduler) nextDelay() time.Duration {
	d := s.opts.Interval
	if s.opts.Jitter > 0 {
		d += time.Duration(s.rng.Int63n(int64(s.opts.Jitter)))
	}
	return d
}

// RunOnce executes one full tick: every enabled user, sequentially, then
// that user's escalation sweep. Exported so tests and operator tooling can
// drive the pipeline without the timer.
func (s *Scheduler) RunOnce(ctx context.Context) {
	tickTotal.Inc()
	now := time.Now().UTC()

	userIDs, err := repo.ListAutoReplyUsers(s.db.WithContext(ctx))
	if err != nil {
		s.log.Error().Err(err).Msg("list auto-reply users")
		return
	}

	for _, userID := range userIDs {
		if ctx.Err() != nil {
			return
		}
		if err := s.runUser(ctx, userID, now); err != nil {
			// One user's failure must not starve the rest of the batch.
			s.log.Error().Err(err).Str("user_id", userID).Msg("user batch failed")
		}
	}
}

// runUser processes one user's eligible replies and then sweeps for
// exhausted ones.
func (s *Scheduler) runUser(ctx context.Context, userID string, now time.Time) error {
	db := s.db.WithContext(ctx)

	settings, err := repo.GetSettings(db, userID)
	if err != nil {
		return err
	}
	if !settings.Enabled || settings.BookingLink == "" {
		return nil
	}

	replies, err := repo.ListCandidateReplies(db, userID, now.Add(-s.opts.Lookback), s.opts.BatchLimit)
	if err != nil {
		return err
	}

	for i := range replies {
		reply := &replies[i]

		rows, err := repo.ListLogsByReply(db, userID, reply.ID)
		if err != nil {
			return err
		}
		st := FoldStatus(rows)
		if !Eligible(st, now, s.opts.BaseRetryDelay, s.opts.MaxRetryAttempts) {
			continue
		}

		outcome, err := s.svc.ProcessReply(ctx, reply, settings)
		if err != nil {
			s.log.Error().Err(err).
				Str("user_id", userID).
				Str("reply_id", reply.ID).
				Msg("process reply")
			continue
		}

		status := outcome.Status
		if status == "" {
			status = "none"
		}
		attemptTotal.WithLabelValues(status).Inc()
		s.log.Debug().
			Str("user_id", userID).
			Str("reply_id", reply.ID).
			Str("status", status).
			Int("attempts", st.AttemptCount+1).
			Msg("reply processed")
	}

	return s.EscalationSweep(ctx, userID)
}

// EscalationSweep promotes replies whose retryable-failure count has reached
// the attempt cap to a terminal exhausted row. The repo query excludes
// replies that already carry an exhausted row, so the sweep is idempotent:
// re-running it never writes a second row.
func (s *Scheduler) EscalationSweep(ctx context.Context, userID string) error {
	db := s.db.WithContext(ctx)

	ids, err := repo.ListExhaustionCandidates(db, userID, s.opts.MaxRetryAttempts)
	if err != nil {
		return err
	}
	for _, replyID := range ids {
		if _, err := repo.AppendLog(db, &domain.AutoReplyLog{
			UserID:       userID,
			ReplyID:      replyID,
			Status:       domain.StatusExhausted,
			ErrorMessage: "retry attempts exhausted; needs human attention",
		}); err != nil {
			return err
		}
		escalationTotal.Inc()
		s.log.Warn().
			Str("user_id", userID).
			Str("reply_id", replyID).
			Msg("reply escalated to exhausted")
	}
	return nil
}
