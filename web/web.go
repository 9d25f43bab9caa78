// Package web exposes a running pipeline to the browser renderer as a small JSON API.
package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"

	"github.com/pkg/errors"
	"github.com/rs/cors"
	"goji.io"
	"goji.io/pat"

	"go.viam.com/fieldscout/device"
	"go.viam.com/fieldscout/logging"
	"go.viam.com/fieldscout/scout"
	"go.viam.com/fieldscout/utils"
)

// Pipeline is the part of scout.Pipeline the API drives.
type Pipeline interface {
	Devices() scout.DeviceList
	RefreshDevices(ctx context.Context) scout.DeviceList
	Start(ctx context.Context, deviceID string) error
	Stop(ctx context.Context) error
	SwitchDevice(ctx context.Context, deviceID string) error
	Snapshot() scout.Snapshot
	ToggleVisibility(category string) bool
	SetContextLabel(label string) error
}

// maxBodyBytes caps request bodies; every request body is a tiny JSON object.
const maxBodyBytes = 1 << 16

// DebugTraceHeader, when present on a request, forces debug logging for everything that request
// does and tags those lines with the header's value.
const DebugTraceHeader = "X-Debug-Trace"

type service struct {
	pipeline Pipeline
	logger   logging.Logger
}

// NewHandler returns the API handler. With no origins, any origin may call the API.
func NewHandler(pipeline Pipeline, corsOrigins []string, logger logging.Logger) http.Handler {
	svc := &service{pipeline: pipeline, logger: logger}

	mux := goji.NewMux()
	mux.Use(debugTrace)
	mux.HandleFunc(pat.Get("/api/devices"), svc.listDevices)
	mux.HandleFunc(pat.Post("/api/devices/refresh"), svc.refreshDevices)
	mux.HandleFunc(pat.Post("/api/session/start"), svc.startSession)
	mux.HandleFunc(pat.Post("/api/session/stop"), svc.stopSession)
	mux.HandleFunc(pat.Post("/api/session/switch"), svc.switchDevice)
	mux.HandleFunc(pat.Get("/api/overlay"), svc.overlay)
	mux.HandleFunc(pat.Post("/api/categories/:category/toggle"), svc.toggleCategory)
	mux.HandleFunc(pat.Put("/api/context"), svc.setContext)

	corsHandler := cors.AllowAll()
	if len(corsOrigins) > 0 {
		corsHandler = cors.New(cors.Options{
			AllowedOrigins: corsOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut},
			AllowedHeaders: []string{"Content-Type", DebugTraceHeader},
		})
	}
	return corsHandler.Handler(mux)
}

func debugTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, ok := r.Header[http.CanonicalHeaderKey(DebugTraceHeader)]; ok {
			traceID := ""
			if len(id) > 0 {
				traceID = id[0]
			}
			r = r.WithContext(logging.WithDebugTrace(r.Context(), traceID))
		}
		next.ServeHTTP(w, r)
	})
}

type deviceRequest struct {
	DeviceID string `json:"device_id"`
}

type contextRequest struct {
	Label string `json:"label"`
}

type toggleResponse struct {
	Category string `json:"category"`
	Hidden   bool   `json:"hidden"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (svc *service) listDevices(w http.ResponseWriter, r *http.Request) {
	svc.writeJSON(w, http.StatusOK, svc.pipeline.Devices())
}

func (svc *service) refreshDevices(w http.ResponseWriter, r *http.Request) {
	svc.writeJSON(w, http.StatusOK, svc.pipeline.RefreshDevices(r.Context()))
}

func (svc *service) startSession(w http.ResponseWriter, r *http.Request) {
	var req deviceRequest
	if err := decodeBody(r, &req, true); err != nil {
		svc.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if err := svc.pipeline.Start(r.Context(), req.DeviceID); err != nil {
		svc.writeError(w, r, statusFor(err), err)
		return
	}
	svc.writeJSON(w, http.StatusOK, svc.pipeline.Snapshot())
}

func (svc *service) stopSession(w http.ResponseWriter, r *http.Request) {
	if err := svc.pipeline.Stop(r.Context()); err != nil {
		svc.writeError(w, r, statusFor(err), err)
		return
	}
	svc.writeJSON(w, http.StatusOK, svc.pipeline.Snapshot())
}

func (svc *service) switchDevice(w http.ResponseWriter, r *http.Request) {
	var req deviceRequest
	if err := decodeBody(r, &req, false); err != nil {
		svc.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if req.DeviceID == "" {
		svc.writeError(w, r, http.StatusBadRequest, errors.New("device_id is required"))
		return
	}
	if err := svc.pipeline.SwitchDevice(r.Context(), req.DeviceID); err != nil {
		svc.writeError(w, r, statusFor(err), err)
		return
	}
	svc.writeJSON(w, http.StatusOK, svc.pipeline.Snapshot())
}

func (svc *service) overlay(w http.ResponseWriter, r *http.Request) {
	svc.writeJSON(w, http.StatusOK, svc.pipeline.Snapshot())
}

func (svc *service) toggleCategory(w http.ResponseWriter, r *http.Request) {
	category, err := url.PathUnescape(pat.Param(r, "category"))
	if err != nil || category == "" {
		svc.writeError(w, r, http.StatusBadRequest, errors.New("invalid category"))
		return
	}
	hidden := svc.pipeline.ToggleVisibility(category)
	svc.writeJSON(w, http.StatusOK, toggleResponse{Category: category, Hidden: hidden})
}

func (svc *service) setContext(w http.ResponseWriter, r *http.Request) {
	var req contextRequest
	if err := decodeBody(r, &req, false); err != nil {
		svc.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if err := svc.pipeline.SetContextLabel(req.Label); err != nil {
		svc.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	svc.writeJSON(w, http.StatusOK, svc.pipeline.Snapshot())
}

// statusFor maps pipeline errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, device.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, device.ErrDeviceUnavailable):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(r *http.Request, out interface{}, allowEmpty bool) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return errors.Wrap(err, "invalid request body")
	}
	return nil
}

func (svc *service) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", utils.MimeTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		svc.logger.Debugw("cannot write response", "error", err)
	}
}

func (svc *service) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	if status >= http.StatusInternalServerError {
		svc.logger.CErrorw(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	} else {
		svc.logger.CDebugw(r.Context(), "request rejected", "path", r.URL.Path, "status", status, "error", err)
	}
	svc.writeJSON(w, status, errorResponse{Error: err.Error()})
}
