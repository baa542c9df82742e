// Package api exposes the HTTP surface of the audio gateway: the processing
// catch-all, the parameter preview, metadata probing, and operational
// endpoints.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/audio-gateway/internal/config"
	"github.com/JakeFAU/audio-gateway/internal/gateway"
	"github.com/JakeFAU/audio-gateway/internal/metrics"
	"github.com/JakeFAU/audio-gateway/internal/processor"
)

// Server wires HTTP handlers to the processing pipeline.
type Server struct {
	router     chi.Router
	proc       *processor.Processor
	signer     *gateway.Signer
	safe       gateway.SafeChars
	limits     gateway.ParseLimits
	limiter    *clientLimiter
	reqTimeout time.Duration
	cfg        config.ApplicationConfig
	logger     *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(proc *processor.Processor, cfg config.Config, logger *zap.Logger) *Server {
	limits := gateway.ParseLimits{MaxFilterOps: cfg.Processor.MaxFilterOps}
	if len(cfg.Processor.DisabledFilters) > 0 {
		limits.DisabledFilters = make(map[string]struct{}, len(cfg.Processor.DisabledFilters))
		for _, name := range cfg.Processor.DisabledFilters {
			limits.DisabledFilters[name] = struct{}{}
		}
	}

	s := &Server{
		proc:   proc,
		signer: gateway.NewSigner([]byte(cfg.Application.HMACSecret)),
		safe:   gateway.NewSafeChars(cfg.Storage.SafeChars),
		limits: limits,
		cfg:    cfg.Application,
		logger: logger,
	}
	if cfg.Application.RateLimit.RPS > 0 {
		s.limiter = newClientLimiter(cfg.Application.RateLimit.RPS, cfg.Application.RateLimit.Burst)
	}
	s.reqTimeout = time.Duration(cfg.Processor.TimeoutSeconds+30) * time.Second

	r := chi.NewRouter()
	r.Use(s.requestIDMiddleware)
	r.Use(s.urlLengthMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: "NotFound", Detail: "no such route"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		s.writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "BadRequest", Detail: "method not allowed"})
	})

	r.Get("/health", s.health)
	r.Get("/healthz", s.health)
	r.Get("/readyz", s.ready)
	r.Handle("/metrics", metrics.Handler())
	r.Get("/openapi.json", s.openAPI)
	r.Get("/api-schema", s.openAPI)

	// Operational endpoints stay reachable when a client is throttled.
	r.Group(func(r chi.Router) {
		if s.limiter != nil {
			r.Use(s.rateLimitMiddleware)
		}
		r.Use(s.timeoutMiddleware)
		r.Get("/params/*", s.params)
		r.Get("/meta/*", s.meta)
		r.Get("/*", s.process)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// authorize parses and verifies a signed request path. prefix names the
// route segment to strip before the signature, "" for the processing
// catch-all.
func (s *Server) authorize(r *http.Request, prefix string) (string, *gateway.Params, error) {
	path := strings.TrimPrefix(r.URL.EscapedPath(), prefix)
	parts, err := gateway.ParsePath(path)
	if err != nil {
		return "", nil, err
	}
	params, err := gateway.ParseQuery(parts.SourceURI, r.URL.Query(), s.limits)
	if err != nil {
		return "", nil, err
	}

	if parts.Signature == gateway.SignatureUnsafe {
		if !s.cfg.AllowUnsafe {
			return "", nil, gateway.E(gateway.KindUnauthorized, "unsigned requests are not allowed")
		}
		return parts.SourceURI, params, nil
	}
	canonical := gateway.CanonicalString(parts.SourceURI, params, s.safe)
	if err := s.signer.Verify(parts.Signature, canonical); err != nil {
		return "", nil, err
	}
	return parts.SourceURI, params, nil
}

// process is the main catch-all: verify, transform, serve bytes.
func (s *Server) process(w http.ResponseWriter, r *http.Request) {
	uri, params, err := s.authorize(r, "")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.proc.Process(r.Context(), uri, params)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", res.MIME)
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Data)))
	w.Header().Set("X-Cache", res.CacheStatus)
	w.Header().Set("X-Fingerprint", res.Fingerprint)
	if _, err := w.Write(res.Data); err != nil {
		s.logger.Warn("artifact write failed", zap.Error(err))
	}
}

// params previews the parsed parameter record without processing anything.
// The preview is signature-gated like the processing route so it cannot be
// used to probe valid signatures.
func (s *Server) params(w http.ResponseWriter, r *http.Request) {
	_, params, err := s.authorize(r, "/params")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, params)
}

// meta probes the source and returns the tool's JSON description of it.
func (s *Server) meta(w http.ResponseWriter, r *http.Request) {
	uri, _, err := s.authorize(r, "/meta")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	doc, err := s.proc.Meta(r.Context(), uri)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(doc); err != nil {
		s.logger.Warn("metadata write failed", zap.Error(err))
	}
}

// health always answers 200; a degraded store is reported, not fatal.
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := s.proc.Ping(ctx); err != nil {
		s.writeJSON(w, http.StatusOK, map[string]string{
			"status": "degraded",
			"detail": err.Error(),
		})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ready answers 503 while a backing store is unreachable so load balancers
// stop routing to this instance.
func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := s.proc.Ping(ctx); err != nil {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"detail": err.Error(),
		})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) openAPI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write([]byte(openAPIDocument)); err != nil {
		s.logger.Warn("schema write failed", zap.Error(err))
	}
}

// statusOf is the only place error kinds become HTTP status codes.
func statusOf(kind gateway.Kind) int {
	switch kind {
	case gateway.KindBadRequest:
		return http.StatusBadRequest
	case gateway.KindUnauthorized:
		return http.StatusUnauthorized
	case gateway.KindNotFound:
		return http.StatusNotFound
	case gateway.KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case gateway.KindTimeout:
		return http.StatusGatewayTimeout
	case gateway.KindUpstream:
		return http.StatusBadGateway
	case gateway.KindProcessing, gateway.KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := gateway.KindOf(err)
	status := statusOf(kind)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	} else {
		s.logger.Debug("request rejected", zap.String("path", r.URL.Path), zap.Error(err))
	}
	s.writeJSON(w, status, errorResponse{Error: string(kind), Detail: gateway.Detail(err)})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("write JSON failed", zap.Error(err))
	}
}
