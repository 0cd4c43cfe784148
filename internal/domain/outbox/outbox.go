// Package outbox defines how committed domain facts leave the transaction
// that produced them.
package outbox

import "context"

// Event is a committed domain fact. EventKey identifies the aggregate it
// belongs to; consumers that need ordering partition on it.
type Event interface {
	EventName() string
	EventKey() string
}

type Handler func(ctx context.Context, e Event) error

// Publisher is called after commit only. Failing to publish never undoes the
// commit.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

type Subscriber interface {
	Subscribe(eventName string, h Handler)
}
