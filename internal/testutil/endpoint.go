package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/roach88/docpost/internal/value"
)

// RecordedRequest is one request received by an Endpoint.
type RecordedRequest struct {
	Method string
	Path   string
	Header http.Header
	Raw    []byte

	// Body is Raw decoded as JSON (nil when empty or not JSON).
	Body any
}

// RespondFunc produces the status and JSON body for a request. A string
// body is written verbatim.
type RespondFunc func(req RecordedRequest) (status int, body any)

// Endpoint is a fake remote HTTP endpoint that records every request.
type Endpoint struct {
	*httptest.Server

	mu       sync.Mutex
	requests []RecordedRequest
	respond  RespondFunc
}

// NewEndpoint starts an endpoint answering with respond, closed on cleanup.
func NewEndpoint(t testing.TB, respond RespondFunc) *Endpoint {
	t.Helper()
	e := &Endpoint{respond: respond}
	e.Server = httptest.NewServer(http.HandlerFunc(e.serve))
	t.Cleanup(e.Close)
	return e
}

func (e *Endpoint) serve(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	rec := RecordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Header: r.Header.Clone(),
		Raw:    raw,
	}
	if len(raw) > 0 {
		if v, err := value.Decode(raw); err == nil {
			rec.Body = v
		}
	}

	e.mu.Lock()
	e.requests = append(e.requests, rec)
	respond := e.respond
	e.mu.Unlock()

	status, body := respond(rec)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	switch b := body.(type) {
	case nil:
	case string:
		io.WriteString(w, b)
	default:
		json.NewEncoder(w).Encode(b)
	}
}

// Requests returns a copy of the requests received so far.
func (e *Endpoint) Requests() []RecordedRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]RecordedRequest(nil), e.requests...)
}

// Count returns the number of requests received so far.
func (e *Endpoint) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.requests)
}

// SetRespond swaps the responder.
func (e *Endpoint) SetRespond(respond RespondFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.respond = respond
}

// Echo answers 200 with {field: <request body>}. An empty field echoes the
// body itself.
func Echo(field string) RespondFunc {
	return func(req RecordedRequest) (int, any) {
		if field == "" {
			return http.StatusOK, req.Body
		}
		return http.StatusOK, map[string]any{field: req.Body}
	}
}

// Status answers every request with a fixed status and body.
func Status(code int, body any) RespondFunc {
	return func(RecordedRequest) (int, any) {
		return code, body
	}
}

// FailWhen answers 500 for requests whose body matches fail, and delegates
// the rest to next.
func FailWhen(fail func(body any) bool, next RespondFunc) RespondFunc {
	return func(req RecordedRequest) (int, any) {
		if fail(req.Body) {
			return http.StatusInternalServerError, map[string]any{"error": "boom"}
		}
		return next(req)
	}
}
