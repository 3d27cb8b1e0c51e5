// Package mail defines the outbound delivery boundary. The engine never
// speaks SMTP or provider OAuth itself; it hands finished messages to a
// delivery relay (the service that owns mailbox plumbing, throttling, and
// warm-up) and records the outcome.
package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// SendResult reports a successful delivery hand-off.
type SendResult struct {
	MessageID string `json:"message_id"`
}

// Sender is the send capability consumed by the reply processor. A returned
// error means the message was not accepted for delivery; the processor
// records it as a send failure and retries later.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) (SendResult, error)
}

// RelaySender delivers messages by POSTing them to the configured relay
// endpoint. It is the production Sender implementation.
type RelaySender struct {
	URL    string
	Token  string
	Client *http.Client
}

// NewRelaySender builds a RelaySender with its own HTTP client and timeout.
func NewRelaySender(url, token string, timeout time.Duration) *RelaySender {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &RelaySender{
		URL:    url,
		Token:  token,
		Client: &http.Client{Timeout: timeout},
	}
}

// relayRequest is the JSON body sent to the relay.
type relayRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// relayResponse is the JSON body returned by the relay.
type relayResponse struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id"`
	Error     string `json:"error"`
}

// Send posts the message to the relay and interprets the response. Non-2xx
// statuses and success=false both surface as errors.
func (s *RelaySender) Send(ctx context.Context, to, subject, body string) (SendResult, error) {
	payload, err := json.Marshal(relayRequest{To: to, Subject: subject, Body: body})
	if err != nil {
		return SendResult{}, fmt.Errorf("encode relay request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(payload))
	if err != nil {
		return SendResult{}, fmt.Errorf("build relay request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.Token)
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return SendResult{}, fmt.Errorf("relay request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return SendResult{}, fmt.Errorf("read relay response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return SendResult{}, fmt.Errorf("relay returned status %d", resp.StatusCode)
	}

	var out relayResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return SendResult{}, fmt.Errorf("decode relay response: %w", err)
	}
	if !out.Success {
		if out.Error == "" {
			out.Error = "relay reported failure"
		}
		return SendResult{}, fmt.Errorf("relay rejected message: %s", out.Error)
	}
	return SendResult{MessageID: out.MessageID}, nil
}
