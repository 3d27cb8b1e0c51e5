// Package compose renders the outgoing auto-reply message. Rendering is a
// pure string transformation: a template (the built-in default or the
// user's custom one) with {{FirstName}} and {{BookingLink}} placeholders,
// plus a "Re:" subject derived from the original outbound message.
package compose

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Placeholders recognized in templates.
const (
	PlaceholderFirstName   = "{{FirstName}}"
	PlaceholderBookingLink = "{{BookingLink}}"
)

// defaultTemplate is used when the user has not configured a custom one.
const defaultTemplate = `Hi {{FirstName}},

Great to hear from you! You can grab a time that works for you right here:

{{BookingLink}}

Looking forward to it.`

// fallbackFirstName greets contacts whose name is unknown.
const fallbackFirstName = "there"

// Message is a rendered outgoing reply.
type Message struct {
	Subject string
	Body    string
}

// Reply renders the auto-reply for one contact. customTemplate overrides the
// default when non-empty; originalSubject seeds the "Re:" subject line.
func Reply(contactName, bookingLink, customTemplate, originalSubject string) Message {
	tpl := customTemplate
	if strings.TrimSpace(tpl) == "" {
		tpl = defaultTemplate
	}

	body := strings.NewReplacer(
		PlaceholderFirstName, FirstName(contactName),
		PlaceholderBookingLink, bookingLink,
	).Replace(tpl)

	return Message{
		Subject: replySubject(originalSubject),
		Body:    body,
	}
}

// FirstName extracts and title-cases the first word of a contact's name,
// falling back to a neutral greeting when the name is blank.
func FirstName(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return fallbackFirstName
	}
	return cases.Title(language.English).String(strings.ToLower(fields[0]))
}

// replySubject prefixes "Re:" unless the subject already carries one.
func replySubject(original string) string {
	s := strings.TrimSpace(original)
	if s == "" {
		return "Re: our conversation"
	}
	if strings.HasPrefix(strings.ToLower(s), "re:") {
		return s
	}
	return "Re: " + s
}
