// Package detect implements the reply-intent detection pipeline: the lexical
// pattern validator, the two-pass AI classifier contract, the verdict rule
// table, and the detector that orchestrates them.
//
// This file implements the pattern validator. It is a pure function of the
// reply text: the text is lower-cased once and scanned against six ordered
// phrase lists. The first hit per category satisfies that category's boolean
// (later phrases in the list are not needed for the decision), but every
// matching phrase is still recorded so the audit trail shows exactly what
// the validator saw.
package detect

import "strings"

// PatternValidation is the lexical signal set extracted from a reply.
// It is immutable once produced and carries no error conditions.
type PatternValidation struct {
	// HasBookingLanguage is true when a strong-yes phrase appears.
	HasBookingLanguage bool
	// HasNegationLanguage is true when a strong-no or negation phrase
	// appears. Negation is authoritative: the verdict table checks it
	// before anything else.
	HasNegationLanguage bool
	// HasQuestionLanguage is true when the reply asks something.
	HasQuestionLanguage bool
	// HasRescheduleLanguage is true when the reply defers to a later time.
	HasRescheduleLanguage bool
	// HasConstraints is true when agreement is hedged with a condition.
	HasConstraints bool
	// Matches lists every matched phrase as "category:phrase", in scan order.
	Matches []string
}

// Phrase lists, scanned in order. Ordering within a list puts the most
// common phrasings first so the usual case short-circuits early.
var (
	strongYesPhrases = []string{
		"yes", "sure", "sounds good", "sounds great", "let's do it",
		"lets do it", "let's book", "i'm in", "im in", "happy to",
		"works for me", "that works", "i'm free", "im free", "i am free",
		"count me in", "absolutely", "definitely", "book a time",
		"send the link", "send me the link", "schedule a call",
		"set up a call", "let's chat", "lets chat", "let's talk",
		"lets talk", "i'd love to", "would love to", "keen to",
	}

	strongNoPhrases = []string{
		"not interested", "no interest", "no thanks", "no thank you",
		"please remove", "remove me", "unsubscribe", "stop emailing",
		"stop contacting", "don't contact", "do not contact",
		"never contact", "leave me alone", "take me off",
	}

	negationPhrases = []string{
		"not a fit", "not the right", "not looking", "not for us",
		"not for me", "no need", "we already have", "already have a",
		"already using", "we use", "not at this time", "not right now",
		"no budget", "don't need", "do not need", "won't be",
		"will not be", "can't make", "cannot make", "pass on this",
		"i'll pass", "we'll pass",
	}

	questionPhrases = []string{
		"?", "what is", "what's", "how much", "how does", "how do",
		"can you", "could you", "would you", "do you", "is there",
		"what are", "who is", "who are", "tell me more",
	}

	constraintPhrases = []string{
		"but ", "however", "depends", "depending", "as long as", "only if",
		"if you", "if we", "if the", "need to know", "need more",
		"first i", "before we", "before i", "once we", "once i",
		"assuming", "provided that", "on the condition",
	}

	reschedulePhrases = []string{
		"next week", "next month", "next quarter", "later this",
		"in a few weeks", "in a few months", "after the", "circle back",
		"reach back", "follow up later", "check back", "touch base later",
		"reschedule", "another time", "some other time", "down the road",
		"busy right now", "swamped",
	}
)

// patternCategories fixes the scan order. Negation-bearing categories come
// first because they gate the cheapest possible exit in the detector.
var patternCategories = []struct {
	name    string
	phrases []string
}{
	{"strong_no", strongNoPhrases},
	{"negation", negationPhrases},
	{"strong_yes", strongYesPhrases},
	{"question", questionPhrases},
	{"constraint", constraintPhrases},
	{"reschedule", reschedulePhrases},
}

// ValidatePatterns scans the reply text and returns the lexical signal set.
// It is deterministic, total, and never fails.
func ValidatePatterns(text string) PatternValidation {
	lower := strings.ToLower(text)

	var v PatternValidation
	hit := make(map[string]bool, len(patternCategories))

	for _, cat := range patternCategories {
		for _, phrase := range cat.phrases {
			if !strings.Contains(lower, phrase) {
				continue
			}
			v.Matches = append(v.Matches, cat.name+":"+strings.TrimSpace(phrase))
			hit[cat.name] = true
		}
	}

	v.HasNegationLanguage = hit["strong_no"] || hit["negation"]
	v.HasBookingLanguage = hit["strong_yes"]
	v.HasQuestionLanguage = hit["question"]
	v.HasConstraints = hit["constraint"]
	v.HasRescheduleLanguage = hit["reschedule"]
	return v
}
