// Package proxy is a stateless HTTP endpoint that forwards calls to one
// configured API, adding the API key server-side.
//
// A call is a JSON object:
//
//	{"method": "GET", "endpoint": "/v1/items", "headers": {...}, "body": ...}
//
// Every field is optional. Fields missing from the call fall back to the
// configured defaults; headers are merged key by key with the call's
// headers winning. With a configuration document the stored method,
// headers and body sit between the call and the configured defaults. The
// upstream JSON response is returned as {"data": ...}.
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/roach88/docpost/internal/docstore"
	"github.com/roach88/docpost/internal/remote"
	"github.com/roach88/docpost/internal/value"
)

// Forwarder performs the upstream request. *remote.Client satisfies it.
type Forwarder interface {
	Do(ctx context.Context, req remote.Request) (any, error)
}

// Call is the decoded proxy request.
type Call struct {
	Method   string            `json:"method,omitempty"`
	Endpoint string            `json:"endpoint,omitempty"`
	Headers  map[string]string `json:"headers,omitempty"`
	Body     any               `json:"body,omitempty"`
}

// Defaults apply to fields a call leaves out.
type Defaults struct {
	Method  string
	Headers map[string]string
	Body    any
}

// Over layers d on top of base: set fields of d win and headers merge key
// by key.
func (d Defaults) Over(base Defaults) Defaults {
	out := Defaults{Method: d.Method, Body: d.Body, Headers: mergeHeaders(base.Headers, d.Headers)}
	if out.Method == "" {
		out.Method = base.Method
	}
	if out.Body == nil {
		out.Body = base.Body
	}
	return out
}

// Merge applies defaults under call.
func Merge(call Call, d Defaults) remote.Request {
	req := remote.Request{
		Method: call.Method,
		Path:   call.Endpoint,
		Body:   call.Body,
	}
	if req.Method == "" {
		req.Method = d.Method
	}
	if req.Body == nil {
		req.Body = d.Body
	}
	req.Headers = mergeHeaders(d.Headers, call.Headers)
	return req
}

// mergeHeaders returns base overlaid with top, or nil when both are empty.
func mergeHeaders(base, top map[string]string) map[string]string {
	if len(base)+len(top) == 0 {
		return nil
	}
	out := make(map[string]string, len(base)+len(top))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range top {
		out[k] = v
	}
	return out
}

// Documents reads stored documents. *docstore.Store satisfies it.
type Documents interface {
	Get(ctx context.Context, path string) (docstore.Snapshot, error)
}

// Server serves the proxy endpoint.
type Server struct {
	upstream Forwarder
	defaults Defaults
	logger   *slog.Logger

	docs    Documents
	docPath string
}

// Option configures a Server.
type Option func(*Server)

// WithConfigDocument reads the document at path on every call and layers
// its "method", "headers" and "body" fields over the configured defaults.
// A missing or malformed document is logged and skipped.
func WithConfigDocument(docs Documents, path string) Option {
	return func(s *Server) {
		s.docs = docs
		s.docPath = path
	}
}

// New creates a proxy server.
func New(upstream Forwarder, defaults Defaults, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{upstream: upstream, defaults: defaults, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Defaults returns the defaults for one call: the configuration document,
// if any, over the configured defaults.
func (s *Server) Defaults(ctx context.Context) (Defaults, error) {
	if s.docs == nil || s.docPath == "" {
		return s.defaults, nil
	}
	snap, err := s.docs.Get(ctx, s.docPath)
	if err != nil {
		return Defaults{}, err
	}
	if !snap.Exists {
		s.logger.Warn("configuration document not found, using defaults", "path", s.docPath)
		return s.defaults, nil
	}
	stored, err := decodeDocument(snap.Data)
	if err != nil {
		s.logger.Warn("invalid configuration document, using defaults", "path", s.docPath, "error", err)
		return s.defaults, nil
	}
	return stored.Over(s.defaults), nil
}

// decodeDocument reads the call fields a configuration document may set.
func decodeDocument(data value.Object) (Defaults, error) {
	raw, err := value.Marshal(data)
	if err != nil {
		return Defaults{}, err
	}
	var stored Call
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&stored); err != nil {
		return Defaults{}, err
	}
	return Defaults{Method: stored.Method, Headers: stored.Headers, Body: stored.Body}, nil
}

// Router returns the HTTP routes: POST / and POST /proxy.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/", s.handleProxy).Methods(http.MethodPost)
	router.HandleFunc("/proxy", s.handleProxy).Methods(http.MethodPost)
	return router
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()
	s.logger.Info("proxy listening", "addr", addr)

	select {
	case <-ctx.Done():
		s.logger.Info("proxy shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-serverErr:
		return err
	}
}

func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	call, err := decodeCall(r.Body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	defaults, err := s.Defaults(r.Context())
	if err != nil {
		s.logger.Error("error reading configuration document", "path", s.docPath, "error", err)
		respondError(w, http.StatusInternalServerError, "Configuration unavailable")
		return
	}

	req := Merge(call, defaults)
	data, err := s.upstream.Do(r.Context(), req)
	if err != nil {
		s.logger.Error("error processing proxy request", "method", req.Method, "endpoint", req.Path, "error", err)
		var se *remote.StatusError
		if errors.As(err, &se) {
			respondError(w, http.StatusBadGateway, fmt.Sprintf("API request failed with status %d", se.StatusCode))
			return
		}
		respondError(w, http.StatusBadGateway, "API request failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"data": data})
}

// decodeCall reads a call; an empty body is an empty call.
func decodeCall(r io.Reader) (Call, error) {
	var call Call
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(&call); err != nil {
		if errors.Is(err, io.EOF) {
			return Call{}, nil
		}
		return Call{}, err
	}
	return call, nil
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_, _ = w.Write(response)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
