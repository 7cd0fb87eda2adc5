package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/jeanpaul/recall/internal/analytics"
	"github.com/jeanpaul/recall/internal/health"
	"github.com/jeanpaul/recall/internal/memory"
	"github.com/jeanpaul/recall/internal/tools"
)

const maxBodyBytes = 1 << 20

// SessionHeader carries the optional analytics session of an HTTP call.
const SessionHeader = "X-Session-ID"

// Summarizer reduces the tool-call log on demand.
type Summarizer interface {
	Summary(ctx context.Context, opts analytics.SummaryOptions) (analytics.Summary, error)
}

// UserLister lists stored users by opaque reference.
type UserLister interface {
	ListUsers(ctx context.Context) ([]memory.UserSummary, error)
}

// Options configures the gateway. Nil optional fields disable their routes.
type Options struct {
	Catalog       Catalog
	Users         UserLister
	Health        health.Checker
	HealthTimeout time.Duration
	ToolLog       Summarizer
	Summary       analytics.SummaryOptions
	// Metrics serves /metrics when set.
	Metrics http.Handler
	// MCP is mounted at /mcp over streamable HTTP when set.
	MCP     *mcpserver.MCPServer
	Logger  *zap.Logger
	Version string
}

// Server is the HTTP gateway in front of the tool facade.
type Server struct {
	opts Options
	log  *zap.Logger
}

// New creates a gateway server from opts.
func New(opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{opts: opts, log: log}
}

// Router returns the chi router with every route mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	if s.opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.opts.Metrics)
	}
	if s.opts.MCP != nil {
		r.Handle("/mcp", mcpserver.NewStreamableHTTPServer(s.opts.MCP))
	}

	r.Get("/v1/tools", s.handleListTools)
	r.Post("/v1/tools/{name}", s.handleCallTool)
	r.Get("/v1/analytics/summary", s.handleSummary)
	r.Get("/v1/users", s.handleListUsers)
	return r
}

// ListenAndServe serves the router on addr until ctx is done, then shuts
// down gracefully within shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.log.Info("http gateway listening", zap.String("addr", addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.opts.Health == nil {
		respondJSON(w, http.StatusOK, map[string]any{"status": "ok", "version": s.opts.Version})
		return
	}
	st := health.Check(r.Context(), s.opts.Health, s.opts.HealthTimeout)
	status, code := "ok", http.StatusOK
	if !st.Healthy() {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	respondJSON(w, code, map[string]any{"status": status, "version": s.opts.Version, "store": st})
}

func (s *Server) handleListTools(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"tools": s.opts.Catalog.Definitions()})
}

func (s *Server) handleCallTool(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondJSON(w, http.StatusRequestEntityTooLarge, tools.Response{
				Error: &tools.Error{Kind: tools.KindValidation, Message: "request body too large"},
			})
			return
		}
		respondJSON(w, http.StatusBadRequest, tools.Response{
			Error: &tools.Error{Kind: tools.KindValidation, Message: "cannot read request body"},
		})
		return
	}
	sessionID := r.Header.Get(SessionHeader)
	if sessionID == "" {
		sessionID = r.URL.Query().Get("session_id")
	}

	resp := s.opts.Catalog.Invoke(r.Context(), tools.Request{
		Tool:      name,
		Arguments: json.RawMessage(body),
		SessionID: sessionID,
	})
	code := http.StatusOK
	if !resp.OK {
		code = statusForKind(resp.Error.Kind)
		if resp.Error.Retryable() {
			w.Header().Set("Retry-After", "1")
		}
	}
	respondJSON(w, code, resp)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	opts := s.opts.Summary
	q := r.URL.Query()
	if v := q.Get("top_k"); v != "" {
		k, err := strconv.Atoi(v)
		if err != nil || k < 1 {
			respondError(w, http.StatusBadRequest, tools.KindValidation, "top_k must be a positive integer")
			return
		}
		opts.TopK = k
	}
	if v := q.Get("windows"); v != "" {
		windows, err := parseWindows(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, tools.KindValidation, err.Error())
			return
		}
		opts.Windows = windows
	}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			respondError(w, http.StatusBadRequest, tools.KindValidation, "since must be an RFC 3339 timestamp")
			return
		}
		opts.Since = since
	}

	summary, err := s.opts.ToolLog.Summary(r.Context(), opts)
	if err != nil {
		s.log.Error("summarize tool log", zap.Error(err))
		respondError(w, http.StatusInternalServerError, tools.KindInternal, "tool log could not be read")
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

func parseWindows(v string) ([]int, error) {
	var windows []int
	for _, part := range strings.Split(v, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 2 {
			return nil, errors.New("windows must be a comma-separated list of integers >= 2")
		}
		windows = append(windows, n)
	}
	return windows, nil
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.opts.Users.ListUsers(r.Context())
	if err != nil {
		kind := string(memory.KindOf(err))
		if kind == tools.KindInternal {
			s.log.Error("list users", zap.Error(err))
		}
		respondError(w, statusForKind(kind), kind, "users could not be listed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"users": users})
}

func statusForKind(kind string) int {
	switch kind {
	case tools.KindValidation:
		return http.StatusBadRequest
	case tools.KindNotFound:
		return http.StatusNotFound
	case tools.KindLockTimeout, tools.KindCanceled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, kind, message string) {
	respondJSON(w, status, tools.Response{Error: &tools.Error{Kind: kind, Message: message}})
}
