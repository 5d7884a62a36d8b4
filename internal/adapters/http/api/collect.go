package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	service "github.com/okian/footprint/internal/app"
	"github.com/okian/footprint/internal/domain/payload"
	"github.com/okian/footprint/internal/domain/ratelimit"
	"github.com/okian/footprint/pkg/logger"
	"github.com/okian/footprint/pkg/metrics"
)

// CollectDependencies defines what POST /collect needs.
type CollectDependencies interface {
	Allow(ctx context.Context, rawIP string) (ratelimit.Result, error)
	CollectClient(ctx context.Context, in service.ClientInput) error
}

// CollectHandler accepts browser telemetry.
type CollectHandler struct {
	deps         CollectDependencies
	maxBodyBytes int64
	now          func() time.Time
	logger       logger.Logger
}

// NewCollectHandler creates a new collect handler.
func NewCollectHandler(deps CollectDependencies, maxBodyBytes int64) *CollectHandler {
	return &CollectHandler{deps: deps, maxBodyBytes: maxBodyBytes, now: time.Now}
}

// HandleCollect handles POST /collect requests. The rate limit is checked
// before the body is read so rejected clients cost no parsing.
func (h *CollectHandler) HandleCollect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rawIP := clientIP(r)

	res, err := h.deps.Allow(ctx, rawIP)
	switch {
	case errors.Is(err, ratelimit.ErrLimitExceeded):
		w.Header().Set("Retry-After", strconv.Itoa(int(res.RetryAfter(h.now()).Seconds())))
		writeError(w, http.StatusTooManyRequests, msgTooManyRequests)
		return
	case err != nil:
		h.logger.Error(ctx, "rate limiter failed", logger.Error(err))
		writeError(w, http.StatusInternalServerError, msgInternalError)
		return
	}

	p, err := h.readPayload(w, r)
	if err != nil {
		metrics.RecordValidationFailure()
		h.logger.Debug(ctx, "rejected client payload", logger.Error(err))
		if errors.Is(err, ErrPayloadTooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, msgPayloadTooLarge)
			return
		}
		writeError(w, http.StatusBadRequest, msgInvalidPayload)
		return
	}

	err = h.deps.CollectClient(ctx, service.ClientInput{
		RemoteIP:  rawIP,
		UserAgent: r.UserAgent(),
		Referer:   r.Referer(),
		Payload:   p,
	})
	if err != nil {
		h.logger.Error(ctx, "client record not persisted", logger.Error(err))
		writeError(w, http.StatusInternalServerError, msgInternalError)
		return
	}

	writeJSON(w, http.StatusOK, ackResponse{OK: true})
}

// readPayload reads at most maxBodyBytes and validates them. Failures wrap
// ErrPayloadTooLarge or ErrBadRequest.
func (h *CollectHandler) readPayload(w http.ResponseWriter, r *http.Request) (payload.ClientPayload, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return payload.ClientPayload{}, fmt.Errorf("%w: %w", ErrPayloadTooLarge, err)
		}
		return payload.ClientPayload{}, fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	p, err := payload.Validate(body)
	if err != nil {
		return payload.ClientPayload{}, fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	return p, nil
}
