// events/events.go
package events

import (
	"context"
	"time"
)

// Type names a domain event emitted after a committed state change.
type Type string

const (
	ReferralCreated Type = "referral.created"
	RewardGranted   Type = "reward.granted"
	PurchaseStamped Type = "referral.purchase_stamped"
)

// Event is the envelope written to the bus. Key is the partition key
// (the sharer's user id) so events for one referrer stay ordered.
type Event struct {
	ID         string            `json:"id"`
	Type       Type              `json:"type"`
	Key        string            `json:"-"`
	OccurredAt time.Time         `json:"occurred_at"`
	Data       map[string]string `json:"data"`
}

// Publisher ships events. Publish failures never undo committed state;
// callers log and carry on.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
	Close()
}

// Noop drops every event. Used when no broker is configured.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
func (Noop) Close()                               {}
