package ambient

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/louisbranch/pagesnap/internal/platform/requestctx"
)

// DefaultBaseURL is the transient top-level request installed on Enter.
const DefaultBaseURL = "/"

// Guard serializes snapshot runs over a Host and swaps in an anonymous
// context for their duration.
type Guard struct {
	host         *Host
	baseURL      string
	lock         chan struct{}
	newSessionID func() string
}

// GuardOption configures a Guard.
type GuardOption func(*Guard)

// WithBaseURL sets the URL of the transient top-level request.
func WithBaseURL(baseURL string) GuardOption {
	return func(g *Guard) {
		if baseURL = strings.TrimSpace(baseURL); baseURL != "" {
			g.baseURL = baseURL
		}
	}
}

// WithSessionIDs overrides session id generation.
func WithSessionIDs(fn func() string) GuardOption {
	return func(g *Guard) {
		if fn != nil {
			g.newSessionID = fn
		}
	}
}

// NewGuard returns a guard over host. A nil host gets a fresh one.
func NewGuard(host *Host, opts ...GuardOption) *Guard {
	if host == nil {
		host = &Host{}
	}
	g := &Guard{
		host:         host,
		baseURL:      DefaultBaseURL,
		lock:         make(chan struct{}, 1),
		newSessionID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Host returns the guarded host.
func (g *Guard) Host() *Host {
	return g.host
}

// Enter waits for the run lock, captures the ambient slot and installs a
// transient request at the base URL, the anonymous account and a fresh
// anonymous session. The caller must Exit the returned scope.
func (g *Guard) Enter(ctx context.Context) (*Scope, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case g.lock <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	saved := g.host.capture()
	session := &Session{ID: g.newSessionID(), Anonymous: true, Values: map[string]string{}}
	account := requestctx.Anonymous()

	reqCtx := requestctx.WithAccount(context.Background(), account)
	reqCtx = requestctx.WithSessionID(reqCtx, session.ID)
	transient, err := http.NewRequestWithContext(reqCtx, http.MethodGet, g.baseURL, nil)
	if err != nil {
		<-g.lock
		return nil, fmt.Errorf("build transient request: %w", err)
	}

	g.host.install(State{
		Requests: append(append([]*http.Request(nil), saved.Requests...), transient),
		Account:  account,
		Session:  session,
	})
	return &Scope{guard: g, saved: saved, transient: transient}, nil
}

// Scope is one entered guard. It exposes the swapped-in context and
// restores the captured state on Exit.
type Scope struct {
	guard     *Guard
	saved     State
	transient *http.Request
	once      sync.Once
}

// Exit reinstalls the captured state and releases the run lock. Calls after
// the first are no-ops.
func (s *Scope) Exit() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.guard.host.install(s.saved)
		<-s.guard.lock
	})
}

// Saved returns the state captured on Enter.
func (s *Scope) Saved() State {
	return s.saved
}

// Transient returns the top-level request installed on Enter.
func (s *Scope) Transient() *http.Request {
	return s.transient
}

// Current returns the active request.
func (s *Scope) Current() *http.Request {
	return s.guard.host.CurrentRequest()
}

// Push makes r the active request.
func (s *Scope) Push(r *http.Request) {
	s.guard.host.Push(r)
}

// Pop removes the active request.
func (s *Scope) Pop() {
	s.guard.host.Pop()
}

// Account returns the account installed for the run.
func (s *Scope) Account() requestctx.Account {
	return s.guard.host.Account()
}

// Session returns the run session, creating an anonymous one if rendering
// cleared it.
func (s *Scope) Session() *Session {
	host := s.guard.host
	if session := host.Session(); session != nil {
		return session
	}
	session := &Session{ID: s.guard.newSessionID(), Anonymous: true, Values: map[string]string{}}
	host.SetSession(session)
	return session
}

type scopeContextKey struct{}

// WithScope stores scope in ctx.
func WithScope(ctx context.Context, scope *Scope) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, scopeContextKey{}, scope)
}

// ScopeFromContext returns the scope stored in ctx.
func ScopeFromContext(ctx context.Context) (*Scope, bool) {
	if ctx == nil {
		return nil, false
	}
	scope, ok := ctx.Value(scopeContextKey{}).(*Scope)
	return scope, ok && scope != nil
}
