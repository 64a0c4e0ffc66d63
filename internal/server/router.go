package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/l0p7/eventdesk/internal/logging"
	"github.com/l0p7/eventdesk/internal/metrics"
)

// CacheStats is the slice of the query cache the health endpoint reports.
type CacheStats interface {
	Len() int
	SnapshotSize(ctx context.Context) (int64, error)
}

// HandlerOptions wires the HTTP surface.
type HandlerOptions struct {
	Logger            *slog.Logger
	Metrics           *metrics.Recorder
	CorrelationHeader string
	Cache             CacheStats
	// Mount registers the application routes.
	Mount func(chi.Router) error
}

// NewHandler builds the router serving the application next to /healthz and
// /metrics.
func NewHandler(opts HandlerOptions) (http.Handler, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	logger = logger.With(slog.String("agent", "http"))
	header := strings.TrimSpace(opts.CorrelationHeader)
	if header == "" {
		header = "X-Request-ID"
	}

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(correlate(header))
	r.Use(requestLog(logger))
	r.Use(chimw.Recoverer)

	r.Get("/healthz", health(logger, opts.Cache))
	r.Handle("/metrics", opts.Metrics.Handler())
	if opts.Mount != nil {
		if err := opts.Mount(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// correlate reuses the inbound correlation id or mints one, and echoes it on
// the response.
func correlate(header string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimSpace(r.Header.Get(header))
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set(header, id)
			next.ServeHTTP(w, r.WithContext(logging.WithCorrelationID(r.Context(), id)))
		})
	}
}

func requestLog(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			logger.LogAttrs(r.Context(), slog.LevelInfo, "request served",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Float64("latency_ms", float64(time.Since(start))/float64(time.Millisecond)),
				slog.String("correlation_id", logging.CorrelationID(r.Context())),
			)
		})
	}
}

func health(logger *slog.Logger, stats CacheStats) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := map[string]any{
			"status":     "ok",
			"observedAt": time.Now().UTC(),
		}
		if stats != nil {
			status["cacheEntries"] = stats.Len()
			snapshots, err := stats.SnapshotSize(r.Context())
			if err != nil {
				logger.Error("snapshot size query failed", slog.Any("error", err))
				status["status"] = "degraded"
			}
			status["snapshotEntries"] = snapshots
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(status); err != nil {
			logger.Error("health encode failed", slog.Any("error", err))
		}
	}
}
