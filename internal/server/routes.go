package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/hybroai/a2a-agent-inspector/internal/ctxkeys"
	inspectorerrors "github.com/hybroai/a2a-agent-inspector/internal/errors"
	"github.com/hybroai/a2a-agent-inspector/internal/inspector"
	"github.com/hybroai/a2a-agent-inspector/internal/security"
)

// APIPrefix is where the inspector operations are mounted.
const APIPrefix = "/api/v1/inspector"

// Handler builds the complete HTTP handler.
//
//	GET  /                              service descriptor
//	GET  {liveness}, {readiness}        health
//	GET  /metrics                       Prometheus
//	POST /api/v1/inspector/validate-url admission check only
//	POST /api/v1/inspector/load         fetch agent card
//	POST /api/v1/inspector/inspect      fetch and validate agent card
//	POST /api/v1/inspector/send-message relay one message
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.httpMetrics)
	r.Use(s.cors.Middleware)

	// Health and metrics bypass the API security pipeline
	r.Get("/", s.handleIndex)
	r.Method(http.MethodGet, s.cfg.Health.LivenessPath, s.healthHandler)
	r.Method(http.MethodGet, s.cfg.Health.ReadinessPath, s.healthHandler)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route(APIPrefix, func(api chi.Router) {
		api.Use(s.pipeline.Wrap)
		api.Use(s.auditRequest)
		api.Post("/validate-url", s.handleValidateURL)
		api.Post("/load", s.handleLoad)
		api.Post("/inspect", s.handleInspect)
		api.Post("/send-message", s.handleSendMessage)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		inspectorerrors.WriteHTTPError(w, inspectorerrors.ErrNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		inspectorerrors.WriteHTTPError(w, &inspectorerrors.InspectorError{
			Code:    http.StatusMethodNotAllowed,
			Message: "Method not allowed",
			Hint:    "Inspector operations are POST requests with a JSON body",
		})
	})

	return otelhttp.NewHandler(r, "inspector",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

// ── Middleware ──

// httpMetrics counts responses by route pattern and status code.
func (s *Server) httpMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		code := ww.Status()
		if code == 0 {
			code = http.StatusOK
		}
		s.metrics.RecordHTTPRequest(route, code)
	})
}

// auditRequest attaches request metadata and an audit entry to the
// context, and logs the entry once the operation has filled it in.
func (s *Server) auditRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := ctxkeys.WithRequestMeta(r.Context(), ctxkeys.RequestMeta{
			RequestID: middleware.GetReqID(r.Context()),
			ClientIP:  security.TrustedClientIP(r.RemoteAddr, r.Header.Get("X-Forwarded-For"), s.cfg.Listen.TrustedProxies),
		})
		entry := &ctxkeys.AuditEntry{StartTime: time.Now()}
		ctx = ctxkeys.WithAuditEntry(ctx, entry)
		r = r.WithContext(ctx)

		next.ServeHTTP(w, r)

		if entry.Operation != "" {
			s.auditLogger.LogRequest(ctx)
		}
	})
}

// ── Handlers ──

// IndexResponse describes the service at GET /.
type IndexResponse struct {
	Service          string            `json:"service"`
	Version          string            `json:"version"`
	Status           string            `json:"status"`
	ClientGeneration string            `json:"client_generation"`
	Endpoints        map[string]string `json:"endpoints"`
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, IndexResponse{
		Service:          "A2A Agent Inspector",
		Version:          s.version,
		Status:           "running",
		ClientGeneration: s.service.Generation(),
		Endpoints: map[string]string{
			"validate_url":  "POST " + APIPrefix + "/validate-url",
			"load_agent":    "POST " + APIPrefix + "/load",
			"inspect_agent": "POST " + APIPrefix + "/inspect",
			"send_message":  "POST " + APIPrefix + "/send-message",
		},
	})
}

// inspectRequest is the JSON body of every inspector operation.
type inspectRequest struct {
	URL     string `json:"url"`
	Message string `json:"message"`
}

// ValidateURLResponse is the body of a successful validate-url call.
type ValidateURLResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) handleValidateURL(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest(w, r, false)
	if !ok {
		return
	}
	if err := s.service.ValidateURL(r.Context(), req.URL); err != nil {
		inspectorerrors.WriteHTTPError(w, inspectorerrors.ErrURLRejected.WithMessage(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, ValidateURLResponse{Success: true})
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest(w, r, false)
	if !ok {
		return
	}
	writeEnvelope(w, s.service.LoadCard(r.Context(), req.URL))
}

func (s *Server) handleInspect(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest(w, r, false)
	if !ok {
		return
	}
	writeEnvelope(w, s.service.InspectCard(r.Context(), req.URL))
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest(w, r, true)
	if !ok {
		return
	}
	writeEnvelope(w, s.service.SendMessage(r.Context(), req.URL, req.Message))
}

// decodeRequest reads the JSON body. It writes a 400 and returns false
// when the body is malformed or a required field is missing.
func decodeRequest(w http.ResponseWriter, r *http.Request, needMessage bool) (inspectRequest, bool) {
	var req inspectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			inspectorerrors.WriteHTTPError(w, &inspectorerrors.InspectorError{
				Code:    http.StatusRequestEntityTooLarge,
				Message: "Request body too large",
				Hint:    "Raise inspector.max_message_size in inspector.yaml",
			})
		case errors.Is(err, io.EOF):
			inspectorerrors.WriteHTTPError(w, inspectorerrors.ErrInvalidRequest.WithMessage("Request body is empty"))
		default:
			inspectorerrors.WriteHTTPError(w, inspectorerrors.ErrInvalidRequest)
		}
		return req, false
	}

	switch {
	case needMessage && (strings.TrimSpace(req.URL) == "" || req.Message == ""):
		inspectorerrors.WriteHTTPError(w, inspectorerrors.ErrInvalidRequest.WithMessage("url and message are required"))
		return req, false
	case strings.TrimSpace(req.URL) == "":
		inspectorerrors.WriteHTTPError(w, inspectorerrors.ErrInvalidRequest.WithMessage("url is required"))
		return req, false
	}
	return req, true
}

// writeEnvelope maps an envelope onto the HTTP contract: success is 200
// with the envelope, admission rejection 400, any other failure 502.
func writeEnvelope(w http.ResponseWriter, env inspector.Envelope) {
	switch {
	case env.Success:
		writeJSON(w, http.StatusOK, env)
	case env.Failure == inspector.FailureAdmission:
		inspectorerrors.WriteHTTPError(w, inspectorerrors.ErrURLRejected.WithMessage(env.Error))
	case env.Failure == inspector.FailureProtocol:
		inspectorerrors.WriteHTTPError(w, inspectorerrors.ErrAgentError.WithMessage(env.Error))
	default:
		inspectorerrors.WriteHTTPError(w, inspectorerrors.ErrAgentUnreachable.WithMessage(env.Error))
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
