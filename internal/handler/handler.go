package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/angeloszaimis/ai-orchestrator/internal/orchestrator"
	"github.com/angeloszaimis/ai-orchestrator/internal/request"
)

const (
	maxBodyBytes    = 1 << 20
	requestIDHeader = "X-Request-ID"
)

// Processor is the orchestrator entry point.
type Processor interface {
	Process(ctx context.Context, req *request.Request) (*request.Response, error)
}

type GenerateRequest struct {
	request.Params
	Payload    json.RawMessage `json:"payload"`
	Priority   int             `json:"priority"`
	DeadlineMS int64           `json:"deadline_ms"`
}

type GenerateResponse struct {
	Payload     json.RawMessage `json:"payload"`
	Source      request.Source  `json:"source"`
	BackendID   string          `json:"backend_id,omitempty"`
	Degraded    bool            `json:"degraded"`
	Fingerprint string          `json:"fingerprint"`
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id"`
}

type GenerateHandler struct {
	logger    *slog.Logger
	processor Processor
}

func NewGenerateHandler(logger *slog.Logger, processor Processor) *GenerateHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &GenerateHandler{
		logger:    logger,
		processor: processor,
	}
}

func (h *GenerateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get(requestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	w.Header().Set(requestIDHeader, requestID)
	logger := h.logger.With(slog.String("request_id", requestID))

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, requestID, "method not allowed")
		return
	}

	var body GenerateRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, requestID, "malformed JSON body: "+err.Error())
		return
	}

	var deadline time.Time
	if body.DeadlineMS > 0 {
		deadline = time.Now().Add(time.Duration(body.DeadlineMS) * time.Millisecond)
	}

	req, err := request.New(body.Params, body.Payload, body.Priority, deadline)
	if err != nil {
		writeError(w, http.StatusBadRequest, requestID, err.Error())
		return
	}

	start := time.Now()
	resp, err := h.processor.Process(r.Context(), req)
	if err != nil {
		status := statusFor(err)
		logger.Warn("Request failed",
			slog.String("fingerprint", req.Fingerprint),
			slog.Int("status", status),
			slog.String("error", err.Error()))
		writeError(w, status, requestID, err.Error())
		return
	}

	logger.Info("Request served",
		slog.String("fingerprint", resp.Fingerprint),
		slog.String("source", string(resp.Source)),
		slog.String("backend", resp.BackendID),
		slog.Duration("latency", time.Since(start)))

	w.Header().Set("X-Source", string(resp.Source))
	if resp.BackendID != "" {
		w.Header().Set("X-Backend-Server", resp.BackendID)
	}
	writeJSON(w, http.StatusOK, GenerateResponse{
		Payload:     encodePayload(resp.Payload),
		Source:      resp.Source,
		BackendID:   resp.BackendID,
		Degraded:    resp.Degraded,
		Fingerprint: resp.Fingerprint,
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, request.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, orchestrator.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// encodePayload passes JSON through untouched and quotes anything else.
func encodePayload(payload []byte) json.RawMessage {
	if json.Valid(payload) {
		return payload
	}
	quoted, _ := json.Marshal(string(payload))
	return quoted
}

func writeError(w http.ResponseWriter, status int, requestID, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, RequestID: requestID})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
