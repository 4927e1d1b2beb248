package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	errs "github.com/arkilian/streamcatalog/internal/errors"
	"github.com/arkilian/streamcatalog/pkg/types"
)

// StreamService is the stream metadata service behind the HTTP API.
type StreamService interface {
	GetStream(ctx context.Context, org, name string, streamType types.StreamType) (types.StreamDescriptor, error)
	ListStreams(ctx context.Context, org string, streamType *types.StreamType, fetchSchema bool) ([]types.StreamDescriptor, error)
	DeleteStream(ctx context.Context, org, name string, streamType types.StreamType) error
	SaveSettings(ctx context.Context, org, name string, streamType types.StreamType, settings types.StreamSettings) error
}

// ListStreamsResponse is the body of a stream listing.
type ListStreamsResponse struct {
	List []types.StreamDescriptor `json:"list"`
}

// MessageResponse acknowledges a mutation.
type MessageResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// StreamHandler serves the /v1/{org}/streams routes.
type StreamHandler struct {
	service StreamService
	logger  *slog.Logger
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(service StreamService, logger *slog.Logger) *StreamHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamHandler{
		service: service,
		logger:  logger.With("component", "http_streams"),
	}
}

// Register adds the stream routes to mux.
func (h *StreamHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/{org}/streams", h.list)
	mux.HandleFunc("GET /v1/{org}/streams/{name}", h.get)
	mux.HandleFunc("DELETE /v1/{org}/streams/{name}", h.delete)
	mux.HandleFunc("PUT /v1/{org}/streams/{name}/settings", h.saveSettings)
}

func (h *StreamHandler) list(w http.ResponseWriter, r *http.Request) {
	var streamType *types.StreamType
	if raw := r.URL.Query().Get("type"); raw != "" {
		st, err := types.ParseStreamType(raw)
		if err != nil {
			h.fail(w, r, errs.NewInvalidArgument(err.Error()))
			return
		}
		streamType = &st
	}

	fetchSchema := false
	if raw := r.URL.Query().Get("fetch_schema"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			h.fail(w, r, errs.NewInvalidArgument(fmt.Sprintf("invalid fetch_schema %q", raw)))
			return
		}
		fetchSchema = v
	}

	list, err := h.service.ListStreams(r.Context(), r.PathValue("org"), streamType, fetchSchema)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ListStreamsResponse{List: list})
}

func (h *StreamHandler) get(w http.ResponseWriter, r *http.Request) {
	streamType, ok := h.streamType(w, r)
	if !ok {
		return
	}

	desc, err := h.service.GetStream(r.Context(), r.PathValue("org"), r.PathValue("name"), streamType)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, desc)
}

func (h *StreamHandler) delete(w http.ResponseWriter, r *http.Request) {
	streamType, ok := h.streamType(w, r)
	if !ok {
		return
	}

	name := r.PathValue("name")
	if err := h.service.DeleteStream(r.Context(), r.PathValue("org"), name, streamType); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Code: http.StatusOK, Message: fmt.Sprintf("stream [%s] deleted", name)})
}

func (h *StreamHandler) saveSettings(w http.ResponseWriter, r *http.Request) {
	streamType, ok := h.streamType(w, r)
	if !ok {
		return
	}

	var settings types.StreamSettings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		h.fail(w, r, errs.NewInvalidArgument(fmt.Sprintf("invalid request body: %v", err)))
		return
	}

	name := r.PathValue("name")
	if err := h.service.SaveSettings(r.Context(), r.PathValue("org"), name, streamType, settings); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Code: http.StatusOK, Message: fmt.Sprintf("stream [%s] settings saved", name)})
}

// streamType parses the ?type= parameter, defaulting to logs.
func (h *StreamHandler) streamType(w http.ResponseWriter, r *http.Request) (types.StreamType, bool) {
	st, err := types.ParseStreamType(r.URL.Query().Get("type"))
	if err != nil {
		h.fail(w, r, errs.NewInvalidArgument(err.Error()))
		return "", false
	}
	return st, true
}

// fail maps a service error onto a status code and writes it.
func (h *StreamHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	resp := ErrorResponse{
		Error:         err.Error(),
		Code:          errs.GetCode(err),
		Stage:         errs.GetStage(err),
		RequestID:     GetRequestID(r.Context()),
		CorrelationID: GetCorrelationID(r.Context()),
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path,
			"status", status, "stage", resp.Stage, "request_id", resp.RequestID,
			"correlation_id", resp.CorrelationID, "err", err)
	}
	writeError(w, status, resp)
}

// StatusFor returns the HTTP status for an error outcome.
func StatusFor(err error) int {
	switch {
	case errs.IsNotFound(err):
		return http.StatusNotFound
	case errs.IsConflict(err):
		return http.StatusConflict
	case errs.IsMalformedSettings(err):
		return http.StatusUnprocessableEntity
	case errs.GetCode(err) == errs.CodeInvalidArgument:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
