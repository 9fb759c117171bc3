package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/teemow/venuedesk/internal/instrumentation"
	"github.com/teemow/venuedesk/internal/logging"
	"github.com/teemow/venuedesk/internal/model"
)

const (
	// DefaultAPIAddr is the default address for the API server.
	DefaultAPIAddr = ":8080"

	// WebhookTokenHeader carries the shared secret on SMS webhook calls.
	WebhookTokenHeader = "X-Webhook-Token"

	defaultMaxResults = 50
	maxRequestBody    = 1 << 20
)

// APIServerConfig configures the JSON API.
type APIServerConfig struct {
	Addr string

	// WebhookToken, when set, is required on POST /webhooks/sms.
	WebhookToken string

	// MaxResults caps refreshes whose request does not set maxResults.
	MaxResults int

	Health *HealthChecker
}

// APIServer exposes the email cache, the suggestion step and the SMS
// webhook over HTTP.
type APIServer struct {
	sc     *ServerContext
	config APIServerConfig

	mu         sync.Mutex
	httpServer *http.Server
	addr       string
}

// NewAPIServer creates an API server backed by sc.
func NewAPIServer(sc *ServerContext, config APIServerConfig) *APIServer {
	if config.Addr == "" {
		config.Addr = DefaultAPIAddr
	}
	if config.MaxResults <= 0 {
		config.MaxResults = defaultMaxResults
	}
	if config.Health == nil {
		config.Health = NewHealthChecker(sc)
	}
	return &APIServer{sc: sc, config: config, addr: config.Addr}
}

// RefreshRequest is the body of POST /api/refresh.
type RefreshRequest struct {
	MaxResults   int    `json:"maxResults"`
	ForceRefresh bool   `json:"forceRefresh"`
	Query        string `json:"query"`
}

// EmailsResponse lists messages.
type EmailsResponse struct {
	Emails []model.Message `json:"emails"`
	Count  int             `json:"count"`
}

// PendingResponse lists open pending actions.
type PendingResponse struct {
	Pending []model.PendingAction `json:"pending"`
	Count   int                   `json:"count"`
}

// SMSWebhookRequest is an inbound SMS delivered by a gateway.
type SMSWebhookRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
	Text string `json:"text"`
}

// ErrorResponse is returned with every non-2xx status.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Handler returns the routed, instrumented handler.
func (s *APIServer) Handler() http.Handler {
	mux := http.NewServeMux()
	s.config.Health.RegisterHealthEndpoints(mux)
	mux.HandleFunc("POST /api/refresh", s.handleRefresh)
	mux.HandleFunc("GET /api/emails", s.handleEmails)
	mux.HandleFunc("POST /api/suggest", s.handleSuggest)
	mux.HandleFunc("GET /api/pending", s.handlePending)
	mux.HandleFunc("POST /webhooks/sms", s.handleSMSWebhook)

	return otelhttp.NewHandler(s.instrument(mux), "venuedesk.api")
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *APIServer) instrument(mux *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		mux.ServeHTTP(rec, r)

		// The mux sets r.Pattern; unmatched requests share one label.
		pattern := r.Pattern
		if pattern == "" {
			pattern = "unmatched"
		}
		s.sc.Metrics().RecordHTTPRequest(r.Context(), r.Method, pattern, rec.status, time.Since(start))
	})
}

func (s *APIServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := decodeBody(w, r, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.MaxResults <= 0 {
		req.MaxResults = s.config.MaxResults
	}

	msgs, err := s.sc.Mailbox().GetAllEmails(r.Context(), req.MaxResults, req.ForceRefresh, req.Query)
	if err != nil {
		s.internalError(w, r, "refresh failed", err)
		return
	}
	s.config.Health.SetReady(true)
	writeJSON(w, http.StatusOK, EmailsResponse{Emails: nonNil(msgs), Count: len(msgs)})
}

func (s *APIServer) handleEmails(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.sc.Mailbox().Emails(r.Context())
	if err != nil {
		s.internalError(w, r, "loading emails failed", err)
		return
	}
	writeJSON(w, http.StatusOK, EmailsResponse{Emails: nonNil(msgs), Count: len(msgs)})
}

func (s *APIServer) handleSuggest(w http.ResponseWriter, r *http.Request) {
	out, err := s.sc.Suggester().Run(r.Context())
	if err != nil {
		s.internalError(w, r, "suggestion failed", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *APIServer) handlePending(w http.ResponseWriter, _ *http.Request) {
	open := s.sc.Pending().Open()
	if open == nil {
		open = []model.PendingAction{}
	}
	writeJSON(w, http.StatusOK, PendingResponse{Pending: open, Count: len(open)})
}

func (s *APIServer) handleSMSWebhook(w http.ResponseWriter, r *http.Request) {
	if !s.webhookAuthorized(r) {
		s.sc.Logger().WarnContext(r.Context(), "rejected sms webhook",
			slog.String("token", logging.SanitizeToken(r.Header.Get(WebhookTokenHeader))))
		writeError(w, http.StatusUnauthorized, "invalid webhook token")
		return
	}

	var req SMSWebhookRequest
	if err := decodeBody(w, r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.From) == "" {
		writeError(w, http.StatusBadRequest, "from is required")
		return
	}

	res := s.sc.Commands().ResolveCommand(r.Context(), req.Text, req.From)
	writeJSON(w, http.StatusOK, res)
}

func (s *APIServer) webhookAuthorized(r *http.Request) bool {
	if s.config.WebhookToken == "" {
		return true
	}
	got := r.Header.Get(WebhookTokenHeader)
	return subtle.ConstantTimeCompare([]byte(got), []byte(s.config.WebhookToken)) == 1
}

func (s *APIServer) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	ctx := r.Context()
	s.sc.Logger().ErrorContext(ctx, msg,
		logging.Operation(r.Method+" "+r.URL.Path),
		slog.String("trace_id", instrumentation.GetTraceID(ctx)),
		slog.String("span_id", instrumentation.GetSpanID(ctx)),
		logging.Err(err))
	status := http.StatusInternalServerError
	if errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusGatewayTimeout
	}
	writeError(w, status, msg)
}

// decodeBody reads a JSON body of at most maxRequestBody bytes. With
// allowEmpty, an empty body leaves v untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, v any, allowEmpty bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

func nonNil(msgs []model.Message) []model.Message {
	if msgs == nil {
		return []model.Message{}
	}
	return msgs
}

// Start serves until Shutdown is called.
func (s *APIServer) Start() error {
	return s.StartWithReadySignal(nil)
}

// StartWithReadySignal binds the listener, closes ready once bound, and
// serves until Shutdown.
func (s *APIServer) StartWithReadySignal(ready chan<- struct{}) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       DefaultMetricsIdleTimeout,
		BaseContext:       func(net.Listener) context.Context { return s.sc.Context() },
	}
	s.mu.Lock()
	s.httpServer = srv
	s.addr = ln.Addr().String()
	s.mu.Unlock()

	s.sc.Logger().Info("starting API server", "addr", s.Addr())
	if ready != nil {
		close(ready)
	}
	return srv.Serve(ln)
}

// Shutdown gracefully stops the API server.
func (s *APIServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// Addr returns the listen address; after start it is the bound address.
func (s *APIServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}
