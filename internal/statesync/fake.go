package statesync

import (
	"context"
	"sync"

	"github.com/sweeney/ledpanel/internal/logic"
)

// Push is one recorded PushState call.
type Push struct {
	Chip  int
	Pin   int
	State bool
}

// FakeClient records pushes and serves a scripted snapshot.
type FakeClient struct {
	mu sync.Mutex

	// Pushes contains every push attempted while connected.
	Pushes []Push

	// Pulls counts PullSnapshot calls made while connected.
	Pulls int

	// Snapshot is returned by PullSnapshot.
	Snapshot logic.Snapshot

	// PushError, if set, is returned by PushState (the push is still recorded).
	PushError error

	// PullError, if set, is returned by PullSnapshot.
	PullError error

	// Connected controls IsConnected and the short-circuit.
	Connected bool

	// Block, if set, is waited on by PushState before returning.
	Block chan struct{}
}

// NewFakeClient creates a connected FakeClient.
func NewFakeClient() *FakeClient {
	return &FakeClient{Connected: true}
}

// PushState records the push.
func (f *FakeClient) PushState(ctx context.Context, chip, pin int, state bool) error {
	f.mu.Lock()
	if !f.Connected {
		f.mu.Unlock()
		return nil
	}
	f.Pushes = append(f.Pushes, Push{Chip: chip, Pin: pin, State: state})
	err := f.PushError
	block := f.Block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// PullSnapshot returns the scripted snapshot.
func (f *FakeClient) PullSnapshot(ctx context.Context) (logic.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.Connected {
		return nil, nil
	}
	f.Pulls++
	if f.PullError != nil {
		return nil, f.PullError
	}
	return f.Snapshot, nil
}

// IsConnected reports the scripted link state.
func (f *FakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// PushLog returns a copy of the recorded pushes.
func (f *FakeClient) PushLog() []Push {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Push(nil), f.Pushes...)
}
