package render

import (
	"bytes"
	"net/http"
)

// Response is what an engine produced for one request.
type Response struct {
	StatusCode  int
	Body        []byte
	ContentType string
}

// Engine dispatches a request internally and returns the produced response.
type Engine interface {
	Dispatch(r *http.Request) (Response, error)
}

// EngineFunc adapts a function to Engine.
type EngineFunc func(r *http.Request) (Response, error)

// Dispatch calls f(r).
func (f EngineFunc) Dispatch(r *http.Request) (Response, error) {
	return f(r)
}

// HandlerEngine serves requests through an http.Handler into memory. No
// listener or outer middleware is involved.
type HandlerEngine struct {
	Handler http.Handler
}

// Dispatch serves r and captures the response.
func (e HandlerEngine) Dispatch(r *http.Request) (Response, error) {
	w := &bufferedResponse{header: http.Header{}}
	e.Handler.ServeHTTP(w, r)
	status := w.status
	if status == 0 {
		status = http.StatusOK
	}
	return Response{
		StatusCode:  status,
		Body:        w.body.Bytes(),
		ContentType: w.header.Get("Content-Type"),
	}, nil
}

type bufferedResponse struct {
	header http.Header
	body   bytes.Buffer
	status int
}

func (w *bufferedResponse) Header() http.Header {
	return w.header
}

func (w *bufferedResponse) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
}

func (w *bufferedResponse) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	if w.header.Get("Content-Type") == "" {
		w.header.Set("Content-Type", http.DetectContentType(p))
	}
	return w.body.Write(p)
}
