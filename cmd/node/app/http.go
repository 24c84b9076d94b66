package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/inferplane/inferplane/modules/queue"
	pkgmodel "github.com/inferplane/inferplane/pkg/model"
	"github.com/inferplane/inferplane/pkg/util/log"
)

func (a *App) registerRoutes(r *mux.Router) {
	r.HandleFunc("/health", a.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/infer", a.handleInfer).Methods(http.MethodPost)
	r.HandleFunc("/api/status/buildinfo", a.handleBuildInfo).Methods(http.MethodGet)
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, pkgmodel.StatusResponse{Status: "ok"})
}

func (a *App) handleBuildInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": "dev"})
}

func (a *App) handleInfer(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() { a.metrics.RecordLatency("/infer", time.Since(start)) }()

	requestID := r.Header.Get("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
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

	handle := a.pipeline.Queue().Put(req, requestID)

	ctx, cancel := context.WithTimeout(r.Context(), a.cfg.RequestTimeout)
	defer cancel()

	resp, err := handle.Wait(ctx)
	if err != nil {
		if errors.Is(err, queue.ErrQueueFull) {
			a.writeError(w, "/infer", http.StatusTooManyRequests, err.Error())
			return
		}
		a.writeError(w, "/infer", http.StatusInternalServerError, err.Error())
		return
	}

	a.metrics.RecordRequest("/infer", http.StatusOK)
	writeJSON(w, http.StatusOK, resp)
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
