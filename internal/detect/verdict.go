// Package detect – verdict rule table.
//
// This file combines the two classification passes and the lexical signals
// into the final decision. The rules form an ordered table; the first rule
// whose condition holds wins. An automated send requires the conjunction of
// four independent signals: both passes say booking at high confidence, the
// text itself carries booking language, and nothing in the text hedges the
// agreement. Everything short of that is either reviewed by a human or
// dropped.
package detect

import "fmt"

// Decision is the final action for a reply.
type Decision string

// Decisions.
const (
	DecisionAutoReply     Decision = "auto_reply"
	DecisionFlagForReview Decision = "flag_for_review"
	DecisionNoAction      Decision = "no_action"
)

// Confidence thresholds for the rule table.
const (
	// Pass1AutoReplyMin / Pass2AutoReplyMin gate the automated send.
	Pass1AutoReplyMin = 93
	Pass2AutoReplyMin = 80

	// Pass1ReviewMin / Pass2ReviewMin gate the weaker "both say booking,
	// let a human look" band.
	Pass1ReviewMin = 75
	Pass2ReviewMin = 60
)

// FinalVerdict is the outcome of one detection call. Computed once,
// never mutated.
type FinalVerdict struct {
	IsConfirmedYes   bool     `json:"is_confirmed_yes"`
	ShouldAutoReply  bool     `json:"should_auto_reply"`
	ShouldFlagReview bool     `json:"should_flag_review"`
	Confidence       int      `json:"confidence"`
	Decision         Decision `json:"decision"`
	Reasoning        string   `json:"reasoning"`
}

// Decide applies the ordered rule table to both passes and the lexical
// signals. It is a total function: every input combination lands on exactly
// one rule.
func Decide(pass1, pass2 IntentResult, patterns PatternValidation) FinalVerdict {
	p1Booking := pass1.Intent == IntentBooking
	p2Booking := pass2.Intent == IntentBooking

	// Rule 1: negation language overrides any AI output, including a
	// high-confidence booking consensus.
	if patterns.HasNegationLanguage {
		return FinalVerdict{
			Decision:   DecisionNoAction,
			Confidence: 0,
			Reasoning:  "reply contains negation language; lexical signal overrides classifier output",
		}
	}

	// Rule 2: unanimous high-confidence booking, corroborated by the text,
	// with no hedges. The only path to an automated send.
	if p1Booking && p2Booking &&
		pass1.Confidence >= Pass1AutoReplyMin &&
		pass2.Confidence >= Pass2AutoReplyMin &&
		patterns.HasBookingLanguage &&
		!patterns.HasConstraints {
		return FinalVerdict{
			IsConfirmedYes:  true,
			ShouldAutoReply: true,
			Decision:        DecisionAutoReply,
			Confidence:      min(pass1.Confidence, pass2.Confidence),
			Reasoning:       "both passes report booking at auto-reply confidence with booking language and no constraints",
		}
	}

	// Rule 3: unanimous booking at the weaker thresholds, corroborated by
	// the text, but short of rule 2.
	if p1Booking && p2Booking &&
		pass1.Confidence >= Pass1ReviewMin &&
		pass2.Confidence >= Pass2ReviewMin &&
		patterns.HasBookingLanguage {
		return FinalVerdict{
			IsConfirmedYes:   true,
			ShouldFlagReview: true,
			Decision:         DecisionFlagForReview,
			Confidence:       min(pass1.Confidence, pass2.Confidence),
			Reasoning:        "both passes report booking but below auto-reply confidence; needs human review",
		}
	}

	// Rule 4: the passes disagree on booking. Disagreement is always
	// reviewed, never acted on.
	if p1Booking != p2Booking {
		return FinalVerdict{
			ShouldFlagReview: true,
			Decision:         DecisionFlagForReview,
			Confidence:       0,
			Reasoning: fmt.Sprintf(
				"classifier passes disagree: pass1=%s(%d) pass2=%s(%d)",
				pass1.Intent, pass1.Confidence, pass2.Intent, pass2.Confidence),
		}
	}

	// Rule 5: a booking-sounding reply carrying a condition or question is
	// never auto-sent.
	if patterns.HasConstraints && (p1Booking || p2Booking) {
		return FinalVerdict{
			ShouldFlagReview: true,
			Decision:         DecisionFlagForReview,
			Confidence:       min(pass1.Confidence, pass2.Confidence),
			Reasoning:        "booking intent with constraint language; needs human review",
		}
	}

	// Rule 6: nothing actionable.
	return FinalVerdict{
		Decision:   DecisionNoAction,
		Confidence: 0,
		Reasoning:  "no actionable booking consensus",
	}
}
