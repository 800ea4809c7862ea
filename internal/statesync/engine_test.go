package statesync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"project-tachyon/internal/eventbus"
	"project-tachyon/internal/taskstore"
)

type fakeStore struct {
	applied []taskstore.BulkStatement
}

func (f *fakeStore) BulkUpdate(stmt taskstore.BulkStatement) error {
	f.applied = append(f.applied, stmt)
	return nil
}

func TestEngineAppliesNetworkOffline(t *testing.T) {
	store := &fakeStore{}
	bus := eventbus.New(4)
	engine := New(store, bus, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go engine.Run(ctx)

	require.NoError(t, bus.Publish(ctx, eventbus.Envelope{
		Kind:    eventbus.NetworkChanged,
		Payload: NetworkStatus{Online: false},
	}))

	require.Eventually(t, func() bool { return len(store.applied) == 1 }, time.Second, 5*time.Millisecond)
}

func TestEngineAppliesAccountChangedBothAxes(t *testing.T) {
	store := &fakeStore{}
	bus := eventbus.New(4)
	engine := New(store, bus, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go engine.Run(ctx)

	require.NoError(t, bus.Publish(ctx, eventbus.Envelope{
		Kind:    eventbus.AccountChanged,
		Payload: AccountSet{Active: []uint64{1}, Inactive: []uint64{2}},
	}))

	require.Eventually(t, func() bool { return len(store.applied) == 2 }, time.Second, 5*time.Millisecond)
}

func TestEngineAppliesForegroundChanged(t *testing.T) {
	store := &fakeStore{}
	bus := eventbus.New(4)
	engine := New(store, bus, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go engine.Run(ctx)

	require.NoError(t, bus.Publish(ctx, eventbus.Envelope{
		Kind:    eventbus.ForegroundChanged,
		Payload: ForegroundState{UID: 5, Foreground: false},
	}))

	require.Eventually(t, func() bool { return len(store.applied) == 1 }, time.Second, 5*time.Millisecond)
}

func TestEngineAppliesUninstallSpecialTerminate(t *testing.T) {
	store := &fakeStore{}
	bus := eventbus.New(4)
	engine := New(store, bus, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go engine.Run(ctx)

	require.NoError(t, bus.Publish(ctx, eventbus.Envelope{
		Kind:    eventbus.AppUninstall,
		Payload: UninstallEvent{UID: 7, Special: true},
	}))

	require.Eventually(t, func() bool { return len(store.applied) == 1 }, time.Second, 5*time.Millisecond)
}

func TestEnginePostsReschedule(t *testing.T) {
	store := &fakeStore{}
	bus := eventbus.New(4)
	engine := New(store, bus, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	// Drive handle() directly (rather than Run's consumer loop) so this
	// test isn't racing its own assertion against the engine for the
	// single Reschedule envelope on the shared bus.
	engine.handle(ctx, eventbus.Envelope{
		Kind:    eventbus.NetworkChanged,
		Payload: NetworkStatus{Online: true},
	})

	select {
	case env := <-bus.Receive():
		require.Equal(t, eventbus.Reschedule, env.Kind)
	case <-time.After(time.Second):
		t.Fatal("expected a Reschedule envelope")
	}
}
