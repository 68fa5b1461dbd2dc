package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/Flashl3opard/structify/internal/bridge"
	"github.com/Flashl3opard/structify/internal/cache"
	"github.com/Flashl3opard/structify/internal/metrics"
	"github.com/Flashl3opard/structify/pkg/logging/logging"
)

type chartRequest struct {
	Prompt string `json:"prompt"`
}

// ChartHandler holds dependencies for the /api/chart endpoint.
type ChartHandler struct {
	Converter   bridge.Converter
	Cache       cache.ResultCache
	CacheTTL    time.Duration
	VersionID   string
	Model       string
	Instruction string

	// FlightTimeout bounds a shared conversion once it no longer follows
	// the context of the request that started it. Zero leaves it to the
	// converter's own timeout.
	FlightTimeout time.Duration

	group singleflight.Group
}

func NewChartHandler(conv bridge.Converter, c cache.ResultCache, ttl time.Duration, versionID, model, instruction string) *ChartHandler {
	if c == nil {
		c = cache.Nop{}
	}
	return &ChartHandler{
		Converter:   conv,
		Cache:       c,
		CacheTTL:    ttl,
		VersionID:   versionID,
		Model:       model,
		Instruction: instruction,
	}
}

// Chart handles POST /api/chart. A body that is not a JSON object with a
// string prompt counts as a missing prompt.
func (h *ChartHandler) Chart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)
	start := time.Now()

	body, ok := readBody(w, r)
	if !ok {
		return
	}

	var req chartRequest
	if err := json.Unmarshal(body, &req); err != nil {
		logger.Debug("chart request body is not valid JSON", zap.Error(err))
		req.Prompt = ""
	}

	if req.Prompt == "" {
		h.fail(w, logger, bridge.PromptRequired(), start)
		return
	}

	key := cache.BuildResultKey(h.Model, h.Instruction, req.Prompt, h.VersionID)
	cacheKey := key.String()

	ctx = logging.WithFields(ctx,
		zap.String("hash_key", key.Hash),
		zap.String("model_id", key.ModelID),
	)
	logger = logging.L(ctx)

	cached, hit, err := h.Cache.Get(ctx, cacheKey)
	if err != nil {
		// Cache is best-effort; log and treat as miss.
		logger.Warn("result_cache_get_error", zap.Error(err))
	}
	if hit {
		metrics.BridgeRequestsTotal.WithLabelValues("ok").Inc()
		logger.Info("bridge_decision",
			zap.Bool("cache_hit", true),
			zap.Duration("total_latency_ms", time.Since(start)),
		)
		writeRaw(w, http.StatusOK, cached)
		return
	}

	flight := h.group.DoChan(cacheKey, func() (any, error) {
		// Detached from the request that started the flight: other requests
		// may be waiting on it after that client has gone.
		flightCtx := context.WithoutCancel(ctx)
		if h.FlightTimeout > 0 {
			var cancel context.CancelFunc
			flightCtx, cancel = context.WithTimeout(flightCtx, h.FlightTimeout)
			defer cancel()
		}

		records, err := h.Converter.Convert(flightCtx, req.Prompt)
		if err != nil {
			return nil, err
		}
		encoded, err := records.Encode()
		if err != nil {
			return nil, err
		}
		if err := h.Cache.Set(flightCtx, cacheKey, encoded, h.CacheTTL); err != nil {
			logger.Warn("result_cache_set_error", zap.Error(err))
		}
		return encoded, nil
	})

	var res singleflight.Result
	select {
	case res = <-flight:
	case <-ctx.Done():
		h.fail(w, logger, ctx.Err(), start)
		return
	}
	if res.Err != nil {
		h.fail(w, logger, res.Err, start)
		return
	}

	metrics.BridgeRequestsTotal.WithLabelValues("ok").Inc()
	logger.Info("bridge_decision",
		zap.Bool("cache_hit", false),
		zap.Bool("shared", res.Shared),
		zap.Duration("total_latency_ms", time.Since(start)),
	)
	writeRaw(w, http.StatusOK, res.Val.([]byte))
}

func (h *ChartHandler) fail(w http.ResponseWriter, logger *zap.Logger, err error, start time.Time) {
	be := bridge.AsError(err)
	status := be.HTTPStatus()

	metrics.BridgeRequestsTotal.WithLabelValues(string(be.Kind)).Inc()

	fields := []zap.Field{
		zap.String("outcome", string(be.Kind)),
		zap.Int("status", status),
		zap.Duration("total_latency_ms", time.Since(start)),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		logger.Error("bridge_decision", fields...)
	} else {
		logger.Info("bridge_decision", fields...)
	}

	if be.RetryAfter > 0 {
		secs := int64((be.RetryAfter + time.Second - 1) / time.Second)
		w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
	}
	writeJSON(w, status, be.Envelope())
}
