// Package services defines the business logic for reply processing,
// classification previews, and auto-reply settings. This file centralizes
// common service-level error values so that they can be consistently
// returned by service methods and checked by callers.
//
// These errors are intended for internal use by the service layer;
// translation into user-facing messages or HTTP status codes should be
// performed at the handler layer.
package services

import "errors"

var (
	// ErrEmptyReply is returned when a classification or ingest request
	// carries no reply text.
	ErrEmptyReply = errors.New("reply text is empty")

	// ErrReplyTooLong is returned when reply text exceeds the configured
	// maximum length.
	ErrReplyTooLong = errors.New("reply text too long")

	// ErrReplyNotFound indicates the requested reply does not exist or is
	// not accessible to the current user.
	ErrReplyNotFound = errors.New("reply not found")

	// ErrMissingContact is returned when an ingested reply lacks a contact
	// identity.
	ErrMissingContact = errors.New("reply has no contact")

	// ErrAutoReplyDisabled is returned when processing is requested for a
	// user who has not enabled auto-reply.
	ErrAutoReplyDisabled = errors.New("auto-reply is disabled for this user")

	// ErrMissingBookingLink is returned when auto-reply is enabled but no
	// booking link is configured.
	ErrMissingBookingLink = errors.New("no booking link configured")

	// ErrInvalidBookingLink is returned when a settings update carries a
	// booking link that is not an absolute http(s) URL.
	ErrInvalidBookingLink = errors.New("booking link must be an absolute http(s) URL")
)
