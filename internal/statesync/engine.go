// Package statesync is the bus-driven bulk re-reasoning engine (C8): it
// consumes network/account/foreground/uninstall events and applies the
// eight canonical taskstore.BulkStatement values of §4.2 in one
// transaction each, then requests a reschedule. Grounded on
// original_source/services/src/manage/scheduler/state/sql.rs's statement
// set and idempotency contract; the teacher has no equivalent (its state
// transitions are all single-row), so the bus-consumer loop shape is
// grounded on the pack's go-claw engine.go (other_examples) dispatch
// idiom already reused for internal/eventbus.
package statesync

import (
	"context"
	"log/slog"

	"project-tachyon/internal/eventbus"
	"project-tachyon/internal/taskstore"
)

// NetworkStatus is the payload carried on a NetworkChanged envelope.
type NetworkStatus struct {
	Online  bool
	Type    string
	Metered bool
	Roaming bool
}

// AccountSet is the payload carried on an AccountChanged envelope: the
// uids that just went active and the ones that just went inactive.
type AccountSet struct {
	Active   []uint64
	Inactive []uint64
}

// ForegroundState is the payload carried on a ForegroundChanged envelope:
// uid's app moved to or from the foreground.
type ForegroundState struct {
	UID        uint64
	Foreground bool
}

// UninstallEvent is the payload carried on an AppUninstall envelope.
// Special selects the special-terminate statement (fail-and-freeze every
// row for the uid) over the ordinary app-uninstall one (soft-delete every
// row for the uid).
type UninstallEvent struct {
	UID     uint64
	Special bool
}

// Store is the subset of taskstore.Store this package needs.
type Store interface {
	BulkUpdate(stmt taskstore.BulkStatement) error
}

// Engine drains bus events and applies bulk state transitions.
type Engine struct {
	store  Store
	bus    *eventbus.Bus
	logger *slog.Logger
}

func New(store Store, bus *eventbus.Bus, logger *slog.Logger) *Engine {
	return &Engine{store: store, bus: bus, logger: logger}
}

// Run drains the bus until ctx is cancelled, applying one bulk statement
// (or a composite pair) per relevant event and posting Reschedule after.
func (e *Engine) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-e.bus.Receive():
			if !ok {
				return
			}
			e.handle(ctx, env)
		}
	}
}

// Handle applies a single bus envelope synchronously. Exposed so a
// caller that already owns the bus's single consumer loop (the
// cmd/agentd scheduler) can dispatch state-sync events inline instead of
// running a second, competing consumer via Run.
func (e *Engine) Handle(ctx context.Context, env eventbus.Envelope) {
	e.handle(ctx, env)
}

func (e *Engine) handle(ctx context.Context, env eventbus.Envelope) {
	var err error
	switch env.Kind {
	case eventbus.NetworkChanged:
		status, ok := env.Payload.(NetworkStatus)
		if !ok {
			return
		}
		err = e.applyNetworkChanged(status)
	case eventbus.AccountChanged:
		set, ok := env.Payload.(AccountSet)
		if !ok {
			return
		}
		err = e.applyAccountChanged(set)
	case eventbus.ForegroundChanged:
		fg, ok := env.Payload.(ForegroundState)
		if !ok {
			return
		}
		err = e.applyForegroundChanged(fg)
	case eventbus.AppUninstall:
		u, ok := env.Payload.(UninstallEvent)
		if !ok {
			return
		}
		err = e.applyUninstall(u)
	default:
		return
	}

	if err != nil {
		if e.logger != nil {
			e.logger.Warn("statesync: bulk statement failed", "kind", env.Kind, "error", err)
		}
		eventbus.Fulfill(env.ReplyPort, eventbus.Reply{Err: err})
		return
	}

	eventbus.Fulfill(env.ReplyPort, eventbus.Reply{})
	_ = e.bus.Publish(ctx, eventbus.Envelope{Kind: eventbus.Reschedule})
}

// applyNetworkChanged picks one of the three network statements per
// §4.2: offline takes priority over metered/roaming-unavailable, which
// in turn takes priority over plain availability.
func (e *Engine) applyNetworkChanged(status NetworkStatus) error {
	if !status.Online {
		return e.store.BulkUpdate(taskstore.NetworkOffline())
	}
	if status.Metered || status.Roaming {
		return e.store.BulkUpdate(taskstore.NetworkUnavailable(status.Type, status.Metered, status.Roaming))
	}
	return e.store.BulkUpdate(taskstore.NetworkAvailable())
}

func (e *Engine) applyAccountChanged(set AccountSet) error {
	if len(set.Inactive) > 0 {
		if err := e.store.BulkUpdate(taskstore.AccountUnavailable(set.Inactive)); err != nil {
			return err
		}
	}
	if len(set.Active) > 0 {
		if err := e.store.BulkUpdate(taskstore.AccountAvailable(set.Active)); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) applyForegroundChanged(fg ForegroundState) error {
	if fg.Foreground {
		return e.store.BulkUpdate(taskstore.AppAvailable(fg.UID))
	}
	return e.store.BulkUpdate(taskstore.AppUnavailable(fg.UID))
}

func (e *Engine) applyUninstall(u UninstallEvent) error {
	if u.Special {
		return e.store.BulkUpdate(taskstore.SpecialTerminate(u.UID))
	}
	return e.store.BulkUpdate(taskstore.AppUninstall(u.UID))
}
