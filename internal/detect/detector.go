// Package detect – detector.
//
// This file orchestrates one detection call: pattern validation, the
// negation fast path, the two classifier passes, and the verdict. Each step
// appends an entry to the audit trail, which exists purely for
// observability; nothing downstream reads it back into the decision.
// Classifier errors are not caught here. They propagate to the caller,
// which owns converting them into retryable log rows. The detector performs
// no retries of its own.
package detect

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Audit step names, in pipeline order.
const (
	StepStart            = "start"
	StepPatternValidated = "pattern_validated"
	StepFastPath         = "fast_path"
	StepPass1Complete    = "pass1_complete"
	StepPass2Complete    = "pass2_complete"
	StepVerdict          = "verdict_determined"
)

// AuditEntry records one pipeline transition.
type AuditEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Step      string    `json:"step"`
	Result    string    `json:"result"`
	Details   string    `json:"details,omitempty"`
}

// Detection is the full outcome of one detector run: the verdict plus every
// intermediate signal and the audit trail. Pass1/Pass2 are nil when the
// negation fast path skipped the classifier.
type Detection struct {
	Patterns PatternValidation `json:"patterns"`
	Pass1    *IntentResult     `json:"pass1,omitempty"`
	Pass2    *IntentResult     `json:"pass2,omitempty"`
	Verdict  FinalVerdict      `json:"verdict"`
	Trace    []AuditEntry      `json:"trace"`
	Elapsed  time.Duration     `json:"elapsed"`
}

// Detector drives the detection pipeline over an injected classifier.
type Detector struct {
	Classifier ClassifierPort
}

// NewDetector constructs a Detector bound to the given classifier.
func NewDetector(c ClassifierPort) *Detector {
	return &Detector{Classifier: c}
}

// Detect runs the full pipeline for one reply text.
//
// Pipeline: start → pattern_validated → [fast path when negation language
// appears without booking language: no_action, both passes skipped] →
// pass1_complete → pass2_complete → verdict_determined. The terminal audit
// entry records total elapsed time.
func (d *Detector) Detect(ctx context.Context, text string) (*Detection, error) {
	tr := otel.Tracer("detect/Detector")
	ctx, span := tr.Start(ctx, "Detect",
		trace.WithAttributes(attribute.Int("reply.length", len(text))),
	)
	defer span.End()

	start := time.Now()
	det := &Detection{}
	det.append(StepStart, "ok", "")

	det.Patterns = ValidatePatterns(text)
	det.append(StepPatternValidated, "ok", fmt.Sprintf(
		"booking=%t negation=%t question=%t reschedule=%t constraints=%t matches=%d",
		det.Patterns.HasBookingLanguage, det.Patterns.HasNegationLanguage,
		det.Patterns.HasQuestionLanguage, det.Patterns.HasRescheduleLanguage,
		det.Patterns.HasConstraints, len(det.Patterns.Matches)))

	// Fast path: unambiguous negation needs no model calls.
	if det.Patterns.HasNegationLanguage && !det.Patterns.HasBookingLanguage {
		det.Verdict = FinalVerdict{
			Decision:   DecisionNoAction,
			Confidence: 0,
			Reasoning:  "negation language without booking language; classifier passes skipped",
		}
		det.append(StepFastPath, string(DecisionNoAction), det.Verdict.Reasoning)
		det.finish(start)
		span.SetAttributes(attribute.String("verdict.decision", string(det.Verdict.Decision)))
		return det, nil
	}

	pass1, err := d.Classifier.ClassifyPass1(ctx, text)
	if err != nil {
		return nil, err
	}
	det.Pass1 = &pass1
	det.append(StepPass1Complete, string(pass1.Intent),
		fmt.Sprintf("confidence=%d", pass1.Confidence))

	pass2, err := d.Classifier.ClassifyPass2(ctx, text, pass1)
	if err != nil {
		return nil, err
	}
	det.Pass2 = &pass2
	det.append(StepPass2Complete, string(pass2.Intent),
		fmt.Sprintf("confidence=%d", pass2.Confidence))

	det.Verdict = Decide(pass1, pass2, det.Patterns)
	det.finish(start)
	span.SetAttributes(
		attribute.String("verdict.decision", string(det.Verdict.Decision)),
		attribute.Int("verdict.confidence", det.Verdict.Confidence),
	)
	return det, nil
}

// append adds one audit entry with the current timestamp.
func (det *Detection) append(step, result, details string) {
	det.Trace = append(det.Trace, AuditEntry{
		Timestamp: time.Now().UTC(),
		Step:      step,
		Result:    result,
		Details:   details,
	})
}

// finish records the verdict step with total elapsed time.
func (det *Detection) finish(start time.Time) {
	det.Elapsed = time.Since(start)
	det.append(StepVerdict, string(det.Verdict.Decision),
		fmt.Sprintf("elapsed=%s", det.Elapsed))
}
