package jobs

import (
	"log/slog"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/ledger/internal/platform/httpx"
)

// QueueStats is the default queue's depth as served on /jobs/health.
type QueueStats struct {
	Queue          string  `json:"queue"`
	Pending        int     `json:"pending"`
	Active         int     `json:"active"`
	Scheduled      int     `json:"scheduled"`
	Retry          int     `json:"retry"`
	Archived       int     `json:"archived"`
	ProcessedToday int     `json:"processed_today"`
	FailedToday    int     `json:"failed_today"`
	LatencySeconds float64 `json:"latency_seconds"`
}

// Stats reads the default queue. A queue nothing was ever enqueued on
// reports zeros.
func Stats(inspector *asynq.Inspector) (QueueStats, error) {
	stats := QueueStats{Queue: QueueDefault}
	if inspector == nil {
		return stats, nil
	}
	queues, err := inspector.Queues()
	if err != nil {
		return stats, err
	}
	if !slices.Contains(queues, QueueDefault) {
		return stats, nil
	}
	info, err := inspector.GetQueueInfo(QueueDefault)
	if err != nil {
		return stats, err
	}
	stats.Pending = info.Pending
	stats.Active = info.Active
	stats.Scheduled = info.Scheduled
	stats.Retry = info.Retry
	stats.Archived = info.Archived
	stats.ProcessedToday = info.Processed
	stats.FailedToday = info.Failed
	stats.LatencySeconds = info.Latency.Seconds()
	return stats, nil
}

// Handler exposes queue observability over HTTP.
type Handler struct {
	inspector *asynq.Inspector
	logger    *slog.Logger
}

// NewHandler constructs an HTTP handler for jobs endpoints.
func NewHandler(inspector *asynq.Inspector, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{inspector: inspector, logger: logger}
}

// MountRoutes attaches job routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/health", h.health)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	stats, err := Stats(h.inspector)
	if err != nil {
		h.logger.Warn("jobs health", slog.Any("error", err))
		httpx.Problem(w, http.StatusServiceUnavailable, http.StatusText(http.StatusServiceUnavailable), "queue unavailable")
		return
	}
	httpx.JSON(w, http.StatusOK, stats)
}
