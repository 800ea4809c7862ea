// Package eventbus is the typed message channel (C3) between the stub,
// scheduler, workers, and external event sources. It is FIFO per sender;
// the scheduler is meant to be its single logical consumer.
package eventbus

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Kind enumerates the message variants carried on the bus.
type Kind int

const (
	Construct Kind = iota
	Start
	Pause
	Resume
	Stop
	Remove
	SetMode
	SetMaxSpeed
	Subscribe
	DumpOne
	DumpAll
	NetworkChanged
	AccountChanged
	ForegroundChanged
	AppUninstall
	TaskCompleted
	TaskFailed
	TaskOffline
	TaskRunning
	Reschedule
)

// Reply is fulfilled exactly once on a message's ReplyPort.
type Reply struct {
	Err     error
	Payload any
}

// Envelope is one message on the bus.
type Envelope struct {
	ID        uuid.UUID
	Kind      Kind
	UID       uint64
	TaskID    uint32
	Payload   any
	ReplyPort chan Reply
}

// NewReplyPort allocates a single-producer-single-consumer reply channel
// of capacity 1, so the producer never blocks on a caller that already
// gave up waiting.
func NewReplyPort() chan Reply {
	return make(chan Reply, 1)
}

// Bus is a single buffered channel of Envelope, grounded on the channel-
// based event-dispatch idiom observed in the pack's go-claw engine.go
// (other_examples), since the teacher has no equivalent event bus of its
// own.
type Bus struct {
	ch chan Envelope
}

// New returns a Bus with the given buffer depth.
func New(buffer int) *Bus {
	return &Bus{ch: make(chan Envelope, buffer)}
}

// Publish enqueues env, blocking only if the buffer is full.
func (b *Bus) Publish(ctx context.Context, env Envelope) error {
	select {
	case b.ch <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive is the consumer-side channel; the scheduler ranges over it.
func (b *Bus) Receive() <-chan Envelope {
	return b.ch
}

// Request publishes env (stamping a fresh reply port and correlation id if
// absent) and waits for its reply or ctx's deadline.
func (b *Bus) Request(ctx context.Context, env Envelope) (Reply, error) {
	if env.ID == uuid.Nil {
		env.ID = uuid.New()
	}
	if env.ReplyPort == nil {
		env.ReplyPort = NewReplyPort()
	}
	if err := b.Publish(ctx, env); err != nil {
		return Reply{}, err
	}
	select {
	case r := <-env.ReplyPort:
		return r, nil
	case <-ctx.Done():
		return Reply{}, fmt.Errorf("eventbus: request %s: %w", env.ID, ctx.Err())
	}
}

// Fulfill sends r on port exactly once; it never blocks since reply ports
// are always buffered by one.
func Fulfill(port chan Reply, r Reply) {
	if port == nil {
		return
	}
	select {
	case port <- r:
	default:
	}
}
