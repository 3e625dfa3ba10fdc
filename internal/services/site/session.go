package site

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/louisbranch/pagesnap/internal/platform/requestctx"
	"github.com/louisbranch/pagesnap/internal/services/snapshot/ambient"
)

// sessionCookieName is the visitor session cookie.
const sessionCookieName = "pagesnap_session"

// withAmbient makes the served request, its account and its visitor
// session the host's live state until the response is written. A snapshot
// started by next captures that state and restores it when the run ends.
func withAmbient(host *ambient.Host) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if host == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			account := requestctx.AccountFromContext(r.Context())
			session := visitorSession(w, r, account)
			r = r.WithContext(requestctx.WithSessionID(r.Context(), session.ID))

			release, err := host.Serve(r.Context(), r, account, session)
			if err != nil {
				http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
				return
			}
			defer release()
			next.ServeHTTP(w, r)
		})
	}
}

// visitorSession returns the session named by the request cookie, issuing
// a new cookie when there is none.
func visitorSession(w http.ResponseWriter, r *http.Request, account requestctx.Account) *ambient.Session {
	id := ""
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		id = strings.TrimSpace(cookie.Value)
	}
	if id == "" {
		id = uuid.NewString()
		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookieName,
			Value:    id,
			Path:     "/",
			HttpOnly: true,
			Secure:   r.TLS != nil,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return &ambient.Session{ID: id, Anonymous: account.IsAnonymous(), Values: map[string]string{}}
}
