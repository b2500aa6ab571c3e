package notifications

import (
	"context"
	"sync/atomic"

	"github.com/benmeehan/proximity-agent/internal/models"
)

// PermissionGate blocks issuance while notification permission is revoked.
// Cancellation always passes through so outstanding notifications can still be withdrawn.
type PermissionGate struct {
	next    Notifier
	granted atomic.Bool
}

// NewPermissionGate wraps next with the given initial permission state.
func NewPermissionGate(next Notifier, granted bool) *PermissionGate {
	g := &PermissionGate{next: next}
	g.granted.Store(granted)
	return g
}

func (g *PermissionGate) Grant()        { g.granted.Store(true) }
func (g *PermissionGate) Revoke()       { g.granted.Store(false) }
func (g *PermissionGate) Granted() bool { return g.granted.Load() }

// Issue forwards to the wrapped notifier when permission is granted.
func (g *PermissionGate) Issue(ctx context.Context, n models.Notification) (string, error) {
	if !g.Granted() {
		return "", ErrPermissionDenied
	}
	return g.next.Issue(ctx, n)
}

// Cancel forwards to the wrapped notifier.
func (g *PermissionGate) Cancel(ctx context.Context, handle string) error {
	return g.next.Cancel(ctx, handle)
}
