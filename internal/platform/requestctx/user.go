// Package requestctx carries per-request identity and session values.
package requestctx

import (
	"context"
	"strings"
)

// AnonymousUserID is the user id reported for anonymous visitors.
const AnonymousUserID = "0"

// Account is the identity a request is rendered for.
type Account struct {
	UserID      string
	DisplayName string
	Roles       []string
}

// Anonymous returns the account of an unauthenticated visitor.
func Anonymous() Account {
	return Account{UserID: AnonymousUserID, DisplayName: "Anonymous", Roles: []string{"anonymous"}}
}

// IsAnonymous reports whether the account is the anonymous visitor.
func (a Account) IsAnonymous() bool {
	id := strings.TrimSpace(a.UserID)
	return id == "" || id == AnonymousUserID
}

// Equal reports whether two accounts carry the same identity and roles.
func (a Account) Equal(other Account) bool {
	if a.UserID != other.UserID || a.DisplayName != other.DisplayName || len(a.Roles) != len(other.Roles) {
		return false
	}
	for i := range a.Roles {
		if a.Roles[i] != other.Roles[i] {
			return false
		}
	}
	return true
}

type accountContextKey struct{}

type sessionIDContextKey struct{}

// WithAccount stores the rendering account in context.
func WithAccount(ctx context.Context, account Account) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, accountContextKey{}, account)
}

// AccountFromContext returns the account stored in context, or the
// anonymous account when none is present.
func AccountFromContext(ctx context.Context) Account {
	if ctx == nil {
		return Anonymous()
	}
	account, ok := ctx.Value(accountContextKey{}).(Account)
	if !ok {
		return Anonymous()
	}
	return account
}

// WithUserID stores a user identifier in context.
func WithUserID(ctx context.Context, userID string) context.Context {
	account := AccountFromContext(ctx)
	account.UserID = userID
	return WithAccount(ctx, account)
}

// UserIDFromContext returns the user identifier stored in context.
func UserIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	account, ok := ctx.Value(accountContextKey{}).(Account)
	if !ok {
		return ""
	}
	return account.UserID
}

// WithSessionID stores the session identifier in context.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, sessionIDContextKey{}, sessionID)
}

// SessionIDFromContext returns the session identifier stored in context.
func SessionIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	value, _ := ctx.Value(sessionIDContextKey{}).(string)
	value = strings.TrimSpace(value)
	return value, value != ""
}
