// Package api exposes the post verbs over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/subaquatic-pierre/postmanager/internal/auth"
	"github.com/subaquatic-pierre/postmanager/internal/logging"
	"github.com/subaquatic-pierre/postmanager/internal/method"
	"github.com/subaquatic-pierre/postmanager/internal/metrics"
	"github.com/subaquatic-pierre/postmanager/internal/post"
	"github.com/subaquatic-pierre/postmanager/internal/storage"
	"github.com/subaquatic-pierre/postmanager/pkg/protocol"
)

// maxBodySize bounds create and update bodies. Media arrives inline as data
// URLs, so this is generous.
const maxBodySize = 32 << 20

var errInvalidBody = errors.New("There was an error parsing event body. invalid JSON")

var collectionName = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Server serves every collection found under one storage root.
type Server struct {
	root *storage.Adapter
	auth *auth.Auth

	mu       sync.Mutex
	managers map[string]*post.Manager

	// writeMu serializes mutating verbs within this process.
	writeMu sync.Mutex
}

// NewServer creates a Server over root. Collections live in root's
// "{collection}/" namespace. A nil authHandler disables token checks.
func NewServer(root *storage.Adapter, authHandler *auth.Auth) *Server {
	if authHandler == nil {
		authHandler = auth.New("")
	}
	return &Server{
		root:     root,
		auth:     authHandler,
		managers: make(map[string]*post.Manager),
	}
}

// Handler returns the HTTP handler with all routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Public
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("OPTIONS /", s.handlePreflight)
	mux.HandleFunc("GET /{collection}", s.verb(method.List))
	mux.HandleFunc("GET /{collection}/{id}", s.verb(method.Get))
	mux.HandleFunc("GET /{collection}/{id}/media/{name}", s.handleMedia)

	// Mutations require a token when a secret is configured
	mux.Handle("POST /{collection}", s.auth.Middleware(s.mutation(method.Create)))
	mux.Handle("PUT /{collection}/{id}", s.auth.Middleware(s.mutation(method.Update)))
	mux.Handle("DELETE /{collection}/{id}", s.auth.Middleware(s.mutation(method.Delete)))

	return metrics.Middleware(logging.Middleware(mux))
}

// Manager returns the manager for collection, creating it on first use.
func (s *Server) Manager(ctx context.Context, collection string) (*post.Manager, error) {
	if !collectionName.MatchString(collection) {
		return nil, &post.Error{Kind: post.ErrValidation, Message: fmt.Sprintf("invalid collection %q", collection)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if m, ok := s.managers[collection]; ok {
		return m, nil
	}
	m, err := post.NewManager(ctx, s.root.Child(collection+"/"), collection)
	if err != nil {
		return nil, err
	}
	s.managers[collection] = m
	logging.Info("collection opened",
		logging.Collection(collection),
		logging.Backend(s.root.Type()),
		logging.Root(m.Adapter().Root()))
	return m, nil
}

// ─── Health ─────────────────────────────────────────────────────────────────

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok", "backend": s.root.Type()})
}

func (s *Server) handlePreflight(w http.ResponseWriter, r *http.Request) {
	setCORS(w)
	w.WriteHeader(http.StatusOK)
}

// ─── Verbs ──────────────────────────────────────────────────────────────────

func (s *Server) verb(h method.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := newRequest(w, r)
		if err != nil {
			s.sendError(w, http.StatusBadRequest, err.Error())
			return
		}
		m, err := s.Manager(r.Context(), r.PathValue("collection"))
		if err != nil {
			s.sendError(w, method.StatusFor(err), "Unable to open collection. "+err.Error())
			return
		}
		s.writeResult(w, r, h(r.Context(), req, m))
	}
}

func (s *Server) mutation(h method.Handler) http.Handler {
	next := s.verb(h)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.writeMu.Lock()
		defer s.writeMu.Unlock()
		next(w, r)
	})
}

func (s *Server) writeResult(w http.ResponseWriter, r *http.Request, res method.Result) {
	resp, err := res.Response()
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if res.Err != "" {
		logging.WithContext(r.Context()).Warn("request failed",
			zap.Int("status", res.Status),
			zap.String("error", res.Err))
	}
	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	io.WriteString(w, resp.Body)
}

// ─── Media ──────────────────────────────────────────────────────────────────

// handleMedia returns the raw media bytes with their stored content type, or
// a JSON {"name", "media"} encoding when ?format= is given.
func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id < 0 {
		s.sendError(w, http.StatusBadRequest, fmt.Sprintf("invalid post id %q", r.PathValue("id")))
		return
	}
	m, err := s.Manager(r.Context(), r.PathValue("collection"))
	if err != nil {
		s.sendError(w, method.StatusFor(err), "Unable to open collection. "+err.Error())
		return
	}
	p, err := m.GetByID(r.Context(), id)
	if err != nil {
		s.sendError(w, method.StatusFor(err), "Blog not found. "+err.Error())
		return
	}

	name := r.PathValue("name")
	if format := r.URL.Query().Get("format"); format != "" {
		encoded, err := p.GetMedia(r.Context(), name, format)
		if err != nil {
			s.sendError(w, method.StatusFor(err), "Media not found. "+err.Error())
			return
		}
		s.writeResult(w, r, method.Result{
			Body:   map[string]string{"name": name, "media": encoded},
			Status: http.StatusOK,
		})
		return
	}

	data, entry, err := p.Media().GetMediaBytes(r.Context(), name)
	if err != nil {
		s.sendError(w, method.StatusFor(err), "Media not found. "+err.Error())
		return
	}
	setCORS(w)
	w.Header().Set("Content-Type", entry.FileType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func newRequest(w http.ResponseWriter, r *http.Request) (*protocol.Request, error) {
	req := &protocol.Request{
		Method: r.Method,
		Path:   r.URL.Path,
	}
	if q := r.URL.Query(); len(q) > 0 {
		req.Query = make(map[string]string, len(q))
		for k := range q {
			req.Query[k] = q.Get(k)
		}
	}
	if r.Body != nil && r.Method != http.MethodGet {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
		if err != nil {
			return nil, fmt.Errorf("read request body: %w", err)
		}
		if len(body) > 0 {
			if !json.Valid(body) {
				return nil, errInvalidBody
			}
			req.Body = body
		}
	}
	return req, nil
}

func setCORS(w http.ResponseWriter) {
	for k, v := range protocol.DefaultHeaders() {
		w.Header().Set(k, v)
	}
}

func (s *Server) sendError(w http.ResponseWriter, code int, message string) {
	setCORS(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(protocol.NewErrorBody(message))
}
