package app

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/inferplane/inferplane/modules/forwarder"
	pkgmodel "github.com/inferplane/inferplane/pkg/model"
	"github.com/inferplane/inferplane/pkg/util/log"
)

func (a *App) registerRoutes(r *mux.Router) {
	r.HandleFunc("/health", a.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/register", a.handleRegister).Methods(http.MethodPost)
	r.HandleFunc("/heartbeat/{node_id}", a.handleHeartbeat).Methods(http.MethodPost)
	r.HandleFunc("/infer", a.authenticated(a.rateLimited(a.handleInfer))).Methods(http.MethodPost)
	r.HandleFunc("/metrics", a.handleMetrics).Methods(http.MethodGet)
	r.Handle("/metrics/prometheus", promhttp.HandlerFor(a.metrics.Registerer(), promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/api/status/buildinfo", a.handleBuildInfo).Methods(http.MethodGet)

	if a.cfg.EnableStreaming {
		r.HandleFunc("/infer/stream", a.authenticated(a.rateLimited(a.handleInferStream))).Methods(http.MethodPost)
	}
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, pkgmodel.StatusResponse{Status: "ok"})
}

func (a *App) handleRegister(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		a.writeError(w, "/register", http.StatusBadRequest, "could not read request body")
		return
	}

	var req pkgmodel.RegisterNodeRequest
	if err := pkgmodel.DecodeStrict(body, &req); err != nil {
		a.writeError(w, "/register", http.StatusBadRequest, "malformed register request: "+err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		a.writeError(w, "/register", http.StatusBadRequest, err.Error())
		return
	}
	if err := a.registry.Register(req.NodeID, req.URL, req.MaxCapacity); err != nil {
		a.writeError(w, "/register", http.StatusBadRequest, err.Error())
		return
	}

	a.metrics.RecordRequest("/register", http.StatusOK)
	writeJSON(w, http.StatusOK, pkgmodel.StatusResponse{Status: "ok"})
}

func (a *App) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	nodeID := mux.Vars(r)["node_id"]
	if !a.registry.Heartbeat(nodeID) {
		a.writeError(w, "/heartbeat", http.StatusNotFound, "unknown node")
		return
	}
	a.metrics.RecordRequest("/heartbeat", http.StatusOK)
	writeJSON(w, http.StatusOK, pkgmodel.StatusResponse{Status: "ok"})
}

// requestIDFor echoes the caller's X-Request-ID if present, generating
// one otherwise, so the same ID is set on the response, propagated to
// the node, and used in logs.
func requestIDFor(r *http.Request) string {
	if id := r.Header.Get("X-Request-ID"); id != "" {
		return id
	}
	return uuid.NewString()
}

func (a *App) handleInfer(w http.ResponseWriter, r *http.Request, tenantID string) {
	start := time.Now()
	defer func() { a.metrics.RecordLatency("/infer", time.Since(start)) }()

	requestID := requestIDFor(r)
	w.Header().Set("X-Request-ID", requestID)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		a.writeError(w, "/infer", http.StatusBadRequest, "could not read request body")
		return
	}

	var req pkgmodel.InferenceRequest
	if err := pkgmodel.DecodeStrict(body, &req); err != nil {
		a.writeError(w, "/infer", http.StatusBadRequest, "malformed inference request: "+err.Error())
		return
	}
	req.ApplyDefaults()
	if err := req.Validate(); err != nil {
		a.writeError(w, "/infer", http.StatusBadRequest, err.Error())
		return
	}

	resp, err := a.forwarder.Forward(r.Context(), req, requestID)
	if err != nil {
		a.writeForwardError(w, "/infer", err)
		return
	}

	a.metrics.RecordRequest("/infer", http.StatusOK)
	writeJSON(w, http.StatusOK, resp)
}

// handleInferStream proxies the selected node's /infer response body to
// the caller without buffering or decoding it, so whatever streaming
// transport the node speaks passes through unmodified. Unlike
// handleInfer it bypasses the forwarder's JSON response handling
// entirely, since that path fully reads and unmarshals the body.
func (a *App) handleInferStream(w http.ResponseWriter, r *http.Request, tenantID string) {
	start := time.Now()
	defer func() { a.metrics.RecordLatency("/infer/stream", time.Since(start)) }()

	requestID := requestIDFor(r)
	w.Header().Set("X-Request-ID", requestID)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		a.writeError(w, "/infer/stream", http.StatusBadRequest, "could not read request body")
		return
	}

	var req pkgmodel.InferenceRequest
	if err := pkgmodel.DecodeStrict(body, &req); err != nil {
		a.writeError(w, "/infer/stream", http.StatusBadRequest, "malformed inference request: "+err.Error())
		return
	}
	req.ApplyDefaults()
	if err := req.Validate(); err != nil {
		a.writeError(w, "/infer/stream", http.StatusBadRequest, err.Error())
		return
	}

	statusErr := a.forwarder.StreamForward(r.Context(), w, req, requestID)
	if statusErr != nil {
		a.writeForwardError(w, "/infer/stream", statusErr)
		return
	}
	a.metrics.RecordRequest("/infer/stream", http.StatusOK)
}

func (a *App) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.metrics.Snapshot())
}

func (a *App) handleBuildInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": "dev"})
}

// authenticated resolves X-API-Key to a tenant before calling next.
func (a *App) authenticated(next func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := a.auth.Authenticate(r.Header.Get("X-API-Key"))
		if err != nil {
			a.writeError(w, r.URL.Path, http.StatusUnauthorized, err.Error())
			return
		}
		next(w, r, tenantID)
	}
}

// rateLimited enforces the tenant's sliding-window budget before calling
// next; must wrap the innermost handler, after authenticated resolves
// the tenant ID.
func (a *App) rateLimited(next func(http.ResponseWriter, *http.Request, string)) func(http.ResponseWriter, *http.Request, string) {
	return func(w http.ResponseWriter, r *http.Request, tenantID string) {
		if !a.ratelimit.Allow(tenantID) {
			a.metrics.RecordRateLimitHit()
			a.writeError(w, r.URL.Path, http.StatusTooManyRequests, "tenant rate limit exceeded")
			return
		}
		next(w, r, tenantID)
	}
}

func (a *App) writeForwardError(w http.ResponseWriter, endpoint string, err error) {
	a.metrics.RecordError(endpoint)

	if statusErr, ok := err.(*forwarder.StatusError); ok {
		a.writeError(w, endpoint, statusErr.StatusCode, statusErr.Message)
		return
	}
	a.writeError(w, endpoint, http.StatusInternalServerError, err.Error())
}

func (a *App) writeError(w http.ResponseWriter, endpoint string, status int, msg string) {
	level.Warn(log.Logger).Log("msg", "request failed", "endpoint", endpoint, "status", status, "err", msg)
	a.metrics.RecordRequest(endpoint, status)
	a.metrics.RecordError(endpoint)
	writeJSON(w, status, pkgmodel.ErrorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
