package render

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	apperrors "github.com/louisbranch/pagesnap/internal/platform/errors"
	"github.com/louisbranch/pagesnap/internal/platform/requestctx"
	"github.com/louisbranch/pagesnap/internal/services/snapshot/ambient"
)

func TestRenderReturnsBody(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /node/7", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<p>seven</p>"))
	})
	scope := enter(t)

	result, err := NewHarness(HandlerEngine{Handler: mux}).Render(context.Background(), scope, "/node/7")
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if result.HTML != "<p>seven</p>" || result.StatusCode != http.StatusOK || result.URL != "/node/7" {
		t.Fatalf("Render() = %+v", result)
	}
	if result.ContentType != "text/html; charset=utf-8" {
		t.Fatalf("content type = %q", result.ContentType)
	}
}

func TestRenderRequestCarriesAnonymousContext(t *testing.T) {
	scope := enter(t)
	var (
		gotAccount requestctx.Account
		gotSession string
		gotScope   *ambient.Scope
		gotCurrent *http.Request
		gotRequest *http.Request
	)
	engine := EngineFunc(func(r *http.Request) (Response, error) {
		gotAccount = requestctx.AccountFromContext(r.Context())
		gotSession, _ = requestctx.SessionIDFromContext(r.Context())
		gotScope, _ = ambient.ScopeFromContext(r.Context())
		gotCurrent = scope.Current()
		gotRequest = r
		return Response{StatusCode: http.StatusOK}, nil
	})

	if _, err := NewHarness(engine).Render(context.Background(), scope, "/node/7"); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if !gotAccount.IsAnonymous() {
		t.Fatalf("account = %+v, want anonymous", gotAccount)
	}
	if gotSession == "" || gotSession != scope.Session().ID {
		t.Fatalf("session = %q, want %q", gotSession, scope.Session().ID)
	}
	if gotScope != scope {
		t.Fatal("expected scope on request context")
	}
	if gotCurrent != gotRequest {
		t.Fatal("expected dispatched request to be the active request")
	}
	if scope.Current() != scope.Transient() {
		t.Fatal("expected active request to be popped after dispatch")
	}
	if gotRequest.RequestURI != "/node/7" {
		t.Fatalf("RequestURI = %q", gotRequest.RequestURI)
	}
}

func TestRenderRejectsActiveRequestURI(t *testing.T) {
	scope := enter(t)
	dispatched := false
	engine := EngineFunc(func(*http.Request) (Response, error) {
		dispatched = true
		return Response{StatusCode: http.StatusOK}, nil
	})

	_, err := NewHarness(engine).Render(context.Background(), scope, "http://site.test/")
	if !apperrors.HasCode(err, apperrors.CodeRecursiveRender) {
		t.Fatalf("Render() error = %v, want RECURSIVE_RENDER", err)
	}
	if dispatched {
		t.Fatal("recursive render must not dispatch")
	}
}

func TestNestedSelfEmbedFailsOuterRender(t *testing.T) {
	scope := enter(t)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /node/5", func(w http.ResponseWriter, r *http.Request) {
		// Page 5 embeds itself; the embed error is swallowed by the page.
		_, _ = Nested(r.Context(), "/node/5")
		_, _ = w.Write([]byte("<p>five</p>"))
	})

	_, err := NewHarness(HandlerEngine{Handler: mux}).Render(context.Background(), scope, "/node/5")
	if !apperrors.HasCode(err, apperrors.CodeRecursiveRender) {
		t.Fatalf("Render() error = %v, want RECURSIVE_RENDER", err)
	}
}

func TestNestedRendersSubPage(t *testing.T) {
	scope := enter(t)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /node/1", func(w http.ResponseWriter, r *http.Request) {
		inner, err := Nested(r.Context(), "/node/2")
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("<main>" + inner.HTML + "</main>"))
	})
	mux.HandleFunc("GET /node/2", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<p>two</p>"))
	})

	result, err := NewHarness(HandlerEngine{Handler: mux}).Render(context.Background(), scope, "/node/1")
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if result.HTML != "<main><p>two</p></main>" {
		t.Fatalf("HTML = %q", result.HTML)
	}
}

func TestNestedCycleIsBoundedByDepth(t *testing.T) {
	scope := enter(t)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /node/{id}", func(w http.ResponseWriter, r *http.Request) {
		next := "/node/a"
		if r.PathValue("id") == "a" {
			next = "/node/b"
		}
		if _, err := Nested(r.Context(), next); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("ok"))
	})

	_, err := NewHarness(HandlerEngine{Handler: mux}, WithMaxDepth(4)).Render(context.Background(), scope, "/node/a")
	if !apperrors.HasCode(err, apperrors.CodeRenderEngine) {
		t.Fatalf("Render() error = %v, want RENDER_ENGINE", err)
	}
	if !strings.Contains(err.Error(), "depth 4") {
		t.Fatalf("expected depth error, got %v", err)
	}
}

func TestNestedOutsideRender(t *testing.T) {
	_, err := Nested(context.Background(), "/node/1")
	if !apperrors.HasCode(err, apperrors.CodeRenderEngine) {
		t.Fatalf("Nested() error = %v", err)
	}
}

func TestRenderNon2xxStatus(t *testing.T) {
	scope := enter(t)
	mux := http.NewServeMux()

	_, err := NewHarness(HandlerEngine{Handler: mux}).Render(context.Background(), scope, "/missing")
	if !apperrors.HasCode(err, apperrors.CodeRenderEngine) {
		t.Fatalf("Render() error = %v, want RENDER_ENGINE", err)
	}
	if !strings.Contains(err.Error(), "status 404") {
		t.Fatalf("expected status in error, got %v", err)
	}
}

func TestRenderEngineError(t *testing.T) {
	scope := enter(t)
	boom := errors.New("boom")
	engine := EngineFunc(func(*http.Request) (Response, error) { return Response{}, boom })

	_, err := NewHarness(engine).Render(context.Background(), scope, "/node/1")
	if !apperrors.HasCode(err, apperrors.CodeRenderEngine) || !errors.Is(err, boom) {
		t.Fatalf("Render() error = %v", err)
	}
}

func TestRenderTimeout(t *testing.T) {
	scope := enter(t)
	engine := EngineFunc(func(r *http.Request) (Response, error) {
		<-r.Context().Done()
		return Response{StatusCode: http.StatusOK}, nil
	})

	_, err := NewHarness(engine, WithTimeout(10*time.Millisecond)).Render(context.Background(), scope, "/slow")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Render() error = %v, want deadline exceeded", err)
	}
}

func TestRenderRequiresScopeAndEngine(t *testing.T) {
	if _, err := NewHarness(nil).Render(context.Background(), enter(t), "/"); !apperrors.HasCode(err, apperrors.CodeRenderEngine) {
		t.Fatalf("nil engine error = %v", err)
	}
	engine := EngineFunc(func(*http.Request) (Response, error) { return Response{StatusCode: http.StatusOK}, nil })
	if _, err := NewHarness(engine).Render(context.Background(), nil, "/"); !apperrors.HasCode(err, apperrors.CodeRenderEngine) {
		t.Fatalf("nil scope error = %v", err)
	}
}

func TestHandlerEngineDefaultsStatus(t *testing.T) {
	engine := HandlerEngine{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, "<html></html>")
	})}
	req, _ := http.NewRequest(http.MethodGet, "/", nil)

	resp, err := engine.Dispatch(req)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.HasPrefix(resp.ContentType, "text/html") {
		t.Fatalf("content type = %q", resp.ContentType)
	}
}

func enter(t *testing.T) *ambient.Scope {
	t.Helper()
	scope, err := ambient.NewGuard(nil).Enter(context.Background())
	if err != nil {
		t.Fatalf("Enter() error = %v", err)
	}
	t.Cleanup(scope.Exit)
	return scope
}

func TestDepthTracksNesting(t *testing.T) {
	scope := enter(t)
	depths := map[string]int{}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /outer", func(w http.ResponseWriter, r *http.Request) {
		depths["outer"] = Depth(r.Context())
		if _, err := Nested(r.Context(), "/inner"); err != nil {
			t.Errorf("Nested() error = %v", err)
		}
	})
	mux.HandleFunc("GET /inner", func(w http.ResponseWriter, r *http.Request) {
		depths["inner"] = Depth(r.Context())
		if !InRender(r.Context()) {
			t.Error("expected inner request to be in a render")
		}
	})

	if _, err := NewHarness(HandlerEngine{Handler: mux}).Render(context.Background(), scope, "/outer"); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if depths["outer"] != 1 || depths["inner"] != 2 {
		t.Fatalf("depths = %v", depths)
	}
	if Depth(context.Background()) != 0 || InRender(context.Background()) {
		t.Fatal("expected depth 0 outside a render")
	}
}
