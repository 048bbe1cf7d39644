package dispatch

import (
	"context"
	"time"

	"github.com/nodebridge/nodebridge/pkg/confirm"
)

// SessionInfo carries connection identity into handler context so query
// handlers can report on the session they run in.
type SessionInfo struct {
	ConnID      string
	RemoteAddr  string
	ConnectedAt time.Time
	Ledger      *confirm.Ledger
}

type sessionKey struct{}

// WithSession attaches session info to a context.
func WithSession(ctx context.Context, info *SessionInfo) context.Context {
	return context.WithValue(ctx, sessionKey{}, info)
}

// SessionFromContext returns the session info, or nil outside a session.
func SessionFromContext(ctx context.Context) *SessionInfo {
	info, _ := ctx.Value(sessionKey{}).(*SessionInfo)
	return info
}
