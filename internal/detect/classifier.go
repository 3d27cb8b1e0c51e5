// Package detect – classifier contract.
//
// This file defines the closed intent enum, the per-pass result value, and
// the ClassifierPort interface the detector depends on. Both passes must be
// genuinely independent invocations: pass 2 receives pass 1's result only so
// it can be prompted to form its own second opinion, never to revise the
// first one. Implementations must return an error on provider failure,
// timeout, or unparsable output; a failed pass is a retryable processing
// error and is never allowed to default to a "safe" classification.
package detect

import (
	"context"
	"fmt"
)

// IntentType is the closed set of reply intents the classifier may return.
type IntentType string

// Reply intents.
const (
	IntentBooking       IntentType = "booking"
	IntentInterested    IntentType = "interested"
	IntentQuestion      IntentType = "question"
	IntentNotInterested IntentType = "not_interested"
	IntentUnsubscribe   IntentType = "unsubscribe"
	IntentOutOfOffice   IntentType = "out_of_office"
	IntentOther         IntentType = "other"
)

// ParseIntentType validates a raw intent string against the closed enum.
func ParseIntentType(s string) (IntentType, error) {
	switch IntentType(s) {
	case IntentBooking, IntentInterested, IntentQuestion, IntentNotInterested,
		IntentUnsubscribe, IntentOutOfOffice, IntentOther:
		return IntentType(s), nil
	}
	return "", fmt.Errorf("unknown intent type %q", s)
}

// IntentResult is the outcome of one classification pass. Produced once,
// never mutated.
type IntentResult struct {
	Intent     IntentType `json:"intent"`
	Confidence int        `json:"confidence"` // clamped to [0,100]
	Reasoning  string     `json:"reasoning"`
}

// TwoPassResult bundles both passes for the side-effect-free preview API.
type TwoPassResult struct {
	Pass1 IntentResult `json:"pass1"`
	Pass2 IntentResult `json:"pass2"`
}

// ClassifierPort abstracts the two AI classification passes so they can be
// mocked or swapped without touching the verdict rules. Implementations must
// honor the context for cancellation and deadlines and must not share
// mutable state between the two calls.
type ClassifierPort interface {
	// ClassifyPass1 classifies the raw reply text.
	ClassifyPass1(ctx context.Context, text string) (IntentResult, error)

	// ClassifyPass2 classifies the same text a second time. The first
	// pass's result is supplied as context for the independent-second-
	// opinion prompt, not as a draft to edit.
	ClassifyPass2(ctx context.Context, text string, first IntentResult) (IntentResult, error)
}

// ClampConfidence forces a raw confidence value into [0,100].
func ClampConfidence(c int) int {
	if c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return c
}
