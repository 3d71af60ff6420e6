package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/solatis/tidegate/internal/action"
	"github.com/solatis/tidegate/internal/core/auth"
	"github.com/solatis/tidegate/internal/evalctx"
	"github.com/solatis/tidegate/internal/types"
)

// HTTPConfig holds transport limits for the HTTP handlers.
type HTTPConfig struct {
	AllowedOrigin string
	MaxBodyBytes  int64
}

// SessionInitRequest is the browser's first call on page load.
type SessionInitRequest struct {
	SessionID string         `json:"sid"`
	Meta      map[string]any `json:"meta"`
}

// SessionInitResponse is what the browser acts on.
type SessionInitResponse struct {
	VisitID  types.DecisionID        `json:"visit_id"`
	Action   *types.ActionDescriptor `json:"action"`
	Criteria []string                `json:"criteria"`
}

// HTTPHandler serves the browser and privileged HTTP endpoints.
type HTTPHandler struct {
	service *DecisionService
	auth    *auth.Authenticator
	cfg     HTTPConfig
	logger  zerolog.Logger
}

// NewHTTPHandler creates the handler. A nil authenticator disables the
// privileged endpoint.
func NewHTTPHandler(service *DecisionService, authenticator *auth.Authenticator, cfg HTTPConfig, logger zerolog.Logger) *HTTPHandler {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = types.MaxDecisionBodySize
	}
	if cfg.AllowedOrigin == "" {
		cfg.AllowedOrigin = "*"
	}
	return &HTTPHandler{
		service: service,
		auth:    authenticator,
		cfg:     cfg,
		logger:  logger.With().Str("component", "http").Logger(),
	}
}

// Router registers all routes.
func (h *HTTPHandler) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(h.recoveryMiddleware, h.loggingMiddleware)

	r.HandleFunc("/healthz", h.Health).Methods(http.MethodGet)

	session := r.PathPrefix("/v1/session").Subrouter()
	session.Use(h.corsMiddleware)
	session.HandleFunc("/init", h.SessionInit).Methods(http.MethodPost, http.MethodOptions)

	if h.auth != nil {
		r.Handle("/v1/decide", h.auth.Middleware(http.HandlerFunc(h.Decide))).Methods(http.MethodPost)
	}
	return r
}

// Health reports liveness.
func (h *HTTPHandler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// SessionInit decides for an unauthenticated browser page load.
func (h *HTTPHandler) SessionInit(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	var req SessionInitRequest
	if err := h.decodeBody(w, r, &req); err != nil {
		h.respondDecodeError(w, err)
		return
	}
	if req.SessionID == "" {
		req.SessionID = types.NewSecretID()
	}

	out, err := h.service.Decide(r.Context(), Request{
		Input:     BrowserInput(r, req.Meta),
		Caller:    action.CallerBrowser,
		SessionID: req.SessionID,
	})
	if err != nil {
		respondError(w, httpStatusFor(err), err.Error())
		return
	}

	respondJSON(w, http.StatusOK, SessionInitResponse{
		VisitID:  out.DecisionID,
		Action:   out.Action,
		Criteria: out.Criteria,
	})
}

// Decide serves the privileged decision for a server-side integration.
func (h *HTTPHandler) Decide(w http.ResponseWriter, r *http.Request) {
	var in types.DecisionInput
	if err := h.decodeBody(w, r, &in); err != nil {
		h.respondDecodeError(w, err)
		return
	}

	out, err := h.service.Decide(r.Context(), Request{
		Input:  in,
		Caller: action.CallerPrivileged,
		SiteID: auth.SiteIDFromContext(r.Context()),
	})
	if err != nil {
		respondError(w, httpStatusFor(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, out)
}

// BrowserInput derives the decision input for a browser page load from the
// session-init request and the client metadata. The page URL, referrer and
// page method come from metadata; everything else from the request.
func BrowserInput(r *http.Request, meta map[string]any) types.DecisionInput {
	headers := make(map[string]string, len(r.Header))
	for name, values := range r.Header {
		if len(values) > 0 && !strings.EqualFold(name, "Cookie") {
			headers[name] = values[0]
		}
	}
	cookies := make(map[string]string)
	for _, c := range r.Cookies() {
		cookies[c.Name] = c.Value
	}

	in := types.DecisionInput{
		Method:     metaString(meta, "page_http_method"),
		Referrer:   metaString(meta, "referrer"),
		UserAgent:  r.UserAgent(),
		Headers:    headers,
		Cookies:    cookies,
		RemoteIP:   evalctx.ClientIP(r.Header, r.RemoteAddr),
		ClientMeta: meta,
	}
	if in.Method == "" {
		in.Method = http.MethodGet
	}
	if in.Referrer == "" {
		in.Referrer = r.Referer()
	}
	if page, err := url.Parse(metaString(meta, "url")); err == nil {
		in.Path = page.Path
	}
	return in
}

func metaString(meta map[string]any, key string) string {
	s, _ := meta[key].(string)
	return strings.TrimSpace(s)
}

// decodeBody reads at most MaxBodyBytes of JSON into dest. An empty body
// decodes as an empty object.
func (h *HTTPHandler) decodeBody(w http.ResponseWriter, r *http.Request, dest any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes))
	if err != nil {
		return err
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil
	}
	if body[0] != '{' {
		return fmt.Errorf("%w: body must be a JSON object", types.ErrInvalidDecisionInput)
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("%w: %v", types.ErrInvalidDecisionInput, err)
	}
	return nil
}

func (h *HTTPHandler) respondDecodeError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		respondError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("body exceeds %d bytes", tooLarge.Limit))
		return
	}
	respondError(w, httpStatusFor(err), err.Error())
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// Middleware

func (h *HTTPHandler) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := h.cfg.AllowedOrigin
		if origin != "*" && r.Header.Get("Origin") != origin {
			origin = ""
		}
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
			w.Header().Set("Access-Control-Max-Age", "86400")
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (h *HTTPHandler) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		h.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func (h *HTTPHandler) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				h.logger.Error().Interface("panic", p).Str("path", r.URL.Path).Msg("panic recovered")
				respondError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
