package triage

import (
	"context"
	"errors"
)

// ErrNoDraft is returned by update functions that need an existing draft.
var ErrNoDraft = errors.New("no active draft")

// UpdateFunc mutates the current draft of a key. ok is false when there is
// no live draft, in which case d is nil. Returning a nil draft clears the key.
type UpdateFunc func(d *Draft, ok bool) (*Draft, error)

// SessionStore keeps one draft per session key, evicting drafts that have
// not been written for longer than its TTL.
type SessionStore interface {
	Get(ctx context.Context, key SessionKey) (*Draft, bool, error)
	Set(ctx context.Context, key SessionKey, d *Draft) error
	Clear(ctx context.Context, key SessionKey) error

	// Update runs fn as an atomic read-modify-write on key. Concurrent
	// updates of the same key are serialized.
	Update(ctx context.Context, key SessionKey, fn UpdateFunc) (*Draft, error)
}
