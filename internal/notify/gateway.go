// Package notify defines the Notification Gateway contract consumed by the
// orchestration services, plus the Telegram implementation and the message
// templates. Core code never talks to Telegram directly; it sees only the
// tri-state delivery outcome below.
package notify

import "context"

// Outcome classifies the result of one delivery attempt sequence. The
// orchestrator branches on the variant instead of inspecting error types.
type Outcome int

const (
	// Delivered means the message reached the provider for this recipient.
	Delivered Outcome = iota
	// PermanentRejection means the recipient is unreachable for good (bot
	// blocked, account deleted). Never retried; the caller should clear
	// the member's delivery-capability flag and move on.
	PermanentRejection
	// TransientFailure means delivery failed after the bounded in-call
	// retries (network trouble, provider hiccups). The recipient stays
	// deliverable; the enclosing job counts it as a non-fatal miss.
	TransientFailure
)

// String returns the outcome label used in logs and metrics.
func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case PermanentRejection:
		return "permanent_rejection"
	case TransientFailure:
		return "transient_failure"
	default:
		return "unknown"
	}
}

// Choice is one interactive button offered with a message. Data is the
// opaque callback payload echoed back when the recipient presses it.
type Choice struct {
	Label string
	Data  string
}

// Gateway delivers formatted messages to members and to the group channel.
// Implementations own rate limiting, provider backpressure handling, and
// transient-retry policy; callers only see the final Outcome. The error is
// informational (last failure) and is nil when Outcome is Delivered.
type Gateway interface {
	// Deliver sends a direct message to one member, with optional button
	// rows.
	Deliver(ctx context.Context, recipientID int64, text string, choices [][]Choice) (Outcome, error)

	// Announce posts to the bound group channel, optionally inside a forum
	// topic.
	Announce(ctx context.Context, chatID int64, topicID *int, text string) (Outcome, error)
}
