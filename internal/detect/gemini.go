// Package detect – Gemini-backed classifier.
//
// This file implements ClassifierPort on top of Google's Gemini API via
// google.golang.org/genai. Each pass is one GenerateContent round trip with
// a JSON response schema, a per-call deadline, and temperature 0 so repeated
// runs over the same reply are stable. Any provider error, deadline
// expiry, or malformed model output is returned to the caller as an error.
package detect

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.0-flash"

const pass1Prompt = `You classify cold-email replies from sales prospects.
Classify the reply below into exactly one intent:
booking (explicitly agrees to a meeting or asks to schedule one),
interested (positive but no explicit agreement to meet),
question (asks for information before committing),
not_interested, unsubscribe, out_of_office, other.

Only choose "booking" when the prospect unambiguously agreed to meet.
Respond with JSON only: {"intent": "...", "confidence": 0-100, "reasoning": "..."}.

Reply:
%s`

const pass2Prompt = `You are a second, independent reviewer of a cold-email reply.
Another classifier read the same reply and concluded: intent=%s, confidence=%d.
Do NOT defer to that conclusion and do NOT revise it. Read the reply from
scratch and form your own judgment; disagreeing is expected when the reply
is ambiguous. Same intents and output format as a first-pass classifier:
booking, interested, question, not_interested, unsubscribe, out_of_office, other.
Respond with JSON only: {"intent": "...", "confidence": 0-100, "reasoning": "..."}.

Reply:
%s`

// GeminiClassifier implements ClassifierPort using the Gemini API.
type GeminiClassifier struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewGeminiClassifier builds a classifier bound to one model. timeout is the
// per-pass deadline; a hung call is cut off and surfaces as a retryable
// error upstream.
func NewGeminiClassifier(ctx context.Context, apiKey, model string, timeout time.Duration) (*GeminiClassifier, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiClassifier{client: client, model: model, timeout: timeout}, nil
}

// ClassifyPass1 runs the first pass over the raw reply text.
func (g *GeminiClassifier) ClassifyPass1(ctx context.Context, text string) (IntentResult, error) {
	res, err := g.generate(ctx, fmt.Sprintf(pass1Prompt, text))
	if err != nil {
		return IntentResult{}, fmt.Errorf("pass1: %w", err)
	}
	return res, nil
}

// ClassifyPass2 runs the second, independent pass. The first pass's result
// appears in the prompt only so the model can be told not to anchor on it.
func (g *GeminiClassifier) ClassifyPass2(ctx context.Context, text string, first IntentResult) (IntentResult, error) {
	res, err := g.generate(ctx, fmt.Sprintf(pass2Prompt, first.Intent, first.Confidence, text))
	if err != nil {
		return IntentResult{}, fmt.Errorf("pass2: %w", err)
	}
	return res, nil
}

// generate performs one model round trip and parses the JSON payload.
func (g *GeminiClassifier) generate(ctx context.Context, prompt string) (IntentResult, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.client.Models.GenerateContent(ctx, g.model,
		genai.Text(prompt),
		&genai.GenerateContentConfig{
			Temperature:      genai.Ptr[float32](0),
			ResponseMIMEType: "application/json",
		},
	)
	if err != nil {
		return IntentResult{}, fmt.Errorf("generate content: %w", err)
	}

	return parseIntentJSON(resp.Text())
}

// rawIntent mirrors the JSON shape the prompts request.
type rawIntent struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// parseIntentJSON decodes and validates one pass's model output. Unparsable
// output or an intent outside the closed enum is an error, never a default.
func parseIntentJSON(s string) (IntentResult, error) {
	s = strings.TrimSpace(s)
	// Models occasionally wrap JSON in a markdown fence despite the MIME type.
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	if s == "" {
		return IntentResult{}, fmt.Errorf("empty classifier output")
	}

	var raw rawIntent
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return IntentResult{}, fmt.Errorf("unparsable classifier output: %w", err)
	}
	intent, err := ParseIntentType(strings.ToLower(strings.TrimSpace(raw.Intent)))
	if err != nil {
		return IntentResult{}, err
	}
	return IntentResult{
		Intent:     intent,
		Confidence: ClampConfidence(int(raw.Confidence)),
		Reasoning:  strings.TrimSpace(raw.Reasoning),
	}, nil
}
