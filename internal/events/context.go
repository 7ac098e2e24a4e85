package events

import "context"

type scopeKey struct{}

// Scope identifies the user and conversation a request belongs to.
type Scope struct {
	UserID         string
	ConversationID string
}

// WithScope returns a context carrying the request scope, so that
// components deep in the call chain can attribute their events.
func WithScope(ctx context.Context, userID, conversationID string) context.Context {
	return context.WithValue(ctx, scopeKey{}, Scope{UserID: userID, ConversationID: conversationID})
}

// ScopeFrom extracts the request scope from ctx. It is zero when unset.
func ScopeFrom(ctx context.Context) Scope {
	s, _ := ctx.Value(scopeKey{}).(Scope)
	return s
}
