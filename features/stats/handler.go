package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"lumen/ingest/internal/middleware"
)

type DocumentRepo interface {
	CountByUser(ctx context.Context, userID string) (int, error)
}

type JobRepo interface {
	CountFailedByUser(ctx context.Context, userID string) (int, error)
}

type ChunkRepo interface {
	CountByUser(ctx context.Context, userID string) (int, error)
}

type Handler struct {
	docRepo   DocumentRepo
	jobRepo   JobRepo
	chunkRepo ChunkRepo
}

func NewHandler(d DocumentRepo, j JobRepo, c ChunkRepo) *Handler {
	return &Handler{docRepo: d, jobRepo: j, chunkRepo: c}
}

type StatsResponse struct {
	Documents  int `json:"documents"`
	Chunks     int `json:"chunks"`
	FailedJobs int `json:"failed_jobs"`
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, ok := middleware.GetUser(ctx)
	if !ok {
		h.writeError(ctx, w, "UNAUTHORIZED", "Missing user", http.StatusUnauthorized)
		return
	}

	dCount, err := h.docRepo.CountByUser(ctx, user.ID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count documents", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count documents", http.StatusInternalServerError)
		return
	}

	cCount, err := h.chunkRepo.CountByUser(ctx, user.ID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count chunks", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count chunks", http.StatusInternalServerError)
		return
	}

	fCount, err := h.jobRepo.CountFailedByUser(ctx, user.ID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count failed jobs", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count failed jobs", http.StatusInternalServerError)
		return
	}

	resp := StatsResponse{
		Documents:  dCount,
		Chunks:     cCount,
		FailedJobs: fCount,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": resp}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
