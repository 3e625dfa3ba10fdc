// Package ambient owns the process-wide request, account and session slot
// that page rendering reads, and the guard that swaps it for an anonymous
// context during a snapshot run.
package ambient

import (
	"context"
	"net/http"
	"sync"

	"github.com/louisbranch/pagesnap/internal/platform/requestctx"
)

// Session is the visitor session active while a page renders.
type Session struct {
	ID        string
	Anonymous bool
	Values    map[string]string
}

// State is a captured copy of the ambient slot.
type State struct {
	Requests []*http.Request
	Account  requestctx.Account
	Session  *Session
}

// Request returns the active request of the captured stack, or nil.
func (s State) Request() *http.Request {
	if len(s.Requests) == 0 {
		return nil
	}
	return s.Requests[len(s.Requests)-1]
}

// Host holds the ambient slot. The zero value is an empty anonymous slot.
type Host struct {
	mu       sync.Mutex
	requests []*http.Request
	account  requestctx.Account
	session  *Session
	hasState bool
	// serving admits one served request at a time.
	serving chan struct{}
}

// NewHost returns a host seeded with state.
func NewHost(state State) *Host {
	h := &Host{}
	h.install(state)
	return h
}

// State returns a copy of the current slot.
func (h *Host) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.captureLocked()
}

// CurrentRequest returns the active request, or nil.
func (h *Host) CurrentRequest() *http.Request {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.requests) == 0 {
		return nil
	}
	return h.requests[len(h.requests)-1]
}

// Account returns the current account; an untouched host is anonymous.
func (h *Host) Account() requestctx.Account {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.hasState {
		return requestctx.Anonymous()
	}
	return h.account
}

// Session returns the current session, which may be nil.
func (h *Host) Session() *Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.session
}

// Serve installs r, account and session as the live state for the request
// being served and returns a release func that reinstalls the previous
// state. Served requests take turns; Serve waits for its turn or ctx.
func (h *Host) Serve(ctx context.Context, r *http.Request, account requestctx.Account, session *Session) (func(), error) {
	if ctx == nil {
		ctx = context.Background()
	}
	turn := h.turn()
	select {
	case turn <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	previous := h.capture()
	h.install(State{
		Requests: append(append([]*http.Request(nil), previous.Requests...), r),
		Account:  account,
		Session:  session,
	})
	var once sync.Once
	return func() {
		once.Do(func() {
			h.install(previous)
			<-turn
		})
	}, nil
}

func (h *Host) turn() chan struct{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.serving == nil {
		h.serving = make(chan struct{}, 1)
	}
	return h.serving
}

// SetAccount replaces the current account.
func (h *Host) SetAccount(account requestctx.Account) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.account = account
	h.hasState = true
}

// SetSession replaces the current session.
func (h *Host) SetSession(session *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.session = session
	h.hasState = true
}

// Push makes r the active request.
func (h *Host) Push(r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.requests = append(h.requests, r)
}

// Pop removes and returns the active request.
func (h *Host) Pop() *http.Request {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.requests) == 0 {
		return nil
	}
	top := h.requests[len(h.requests)-1]
	h.requests[len(h.requests)-1] = nil
	h.requests = h.requests[:len(h.requests)-1]
	return top
}

func (h *Host) capture() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.captureLocked()
}

func (h *Host) captureLocked() State {
	account := h.account
	if !h.hasState {
		account = requestctx.Anonymous()
	}
	return State{
		Requests: append([]*http.Request(nil), h.requests...),
		Account:  account,
		Session:  h.session,
	}
}

func (h *Host) install(state State) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.requests = append([]*http.Request(nil), state.Requests...)
	h.account = state.Account
	h.session = state.Session
	h.hasState = true
}
