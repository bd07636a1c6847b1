package domain

import (
	"context"
	"time"
)

// Store keeps activations and their pending scans. Every operation on a
// desktop session id is atomic with respect to the others on the same id.
type Store interface {
	// Activate arms scanning for desktopID until sessionExpiresAt at the
	// latest and issues a fresh token. Any previous token and mobile binding
	// stop working immediately.
	Activate(ctx context.Context, desktopID string, sessionExpiresAt time.Time) (Activation, error)
	// Deactivate drops the activation, its tokens and queued items. It is a
	// no-op for an inactive session.
	Deactivate(ctx context.Context, desktopID string) error
	CheckActive(ctx context.Context, desktopID string) (bool, error)
	// BindMobile exchanges an activation token for a mobile session token,
	// replacing any earlier binding.
	BindMobile(ctx context.Context, token string) (Binding, error)
	// CheckMobile returns the desktop session id a mobile session token is
	// currently bound to without changing any state.
	CheckMobile(ctx context.Context, mobileToken string) (string, error)
	// Enqueue appends item to an active desktop session. SubmittedAt is
	// stamped while the session is held, so it never disagrees with queue
	// order.
	Enqueue(ctx context.Context, desktopID string, item ScannedItem) error
	// EnqueueMobile verifies the mobile binding and appends item in one step
	// and returns the item as queued.
	EnqueueMobile(ctx context.Context, mobileToken string, item ScannedItem) (ScannedItem, error)
	// Drain returns and removes every queued item, oldest first.
	Drain(ctx context.Context, desktopID string) ([]ScannedItem, error)
}
