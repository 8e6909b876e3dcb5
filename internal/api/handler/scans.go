package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/vitrin-app/vitrin-backend/internal/api/respond"
	"github.com/vitrin-app/vitrin-backend/internal/notify"
	"github.com/vitrin-app/vitrin-backend/internal/scan"
)

// RunScans triggers a full scan run outside the hourly schedule.
// The run is synchronous: the response carries the per-kind outcomes.
// @Summary Run all scans now
// @Description Runs the four threshold scans immediately and reports their outcomes. Safe next to the hourly schedule — duplicate work dedups.
// @Tags admin
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /admin/scans/run [post]
func (h *Handler) RunScans(w http.ResponseWriter, r *http.Request) {
	res := scan.RunAll(r.Context(), h.scans, h.logger)

	kinds := make([]map[string]interface{}, 0, len(res.Results))
	for i := range res.Results {
		k := &res.Results[i]
		kinds = append(kinds, map[string]interface{}{
			"kind":        k.Kind,
			"pages":       k.Pages,
			"scanned":     k.Scanned,
			"notified":    k.Notified,
			"deduped":     k.Deduped,
			"skipped":     k.Skipped,
			"failed":      k.Failed,
			"transitions": k.Transitions,
			"duration_ms": k.Duration.Milliseconds(),
			"error":       k.Error,
		})
	}

	status := "completed"
	if len(res.Errors) > 0 {
		status = "completed_with_errors"
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":      status,
		"scanned":     res.Scanned,
		"notified":    res.Notified,
		"deduped":     res.Deduped,
		"failed":      res.Failed,
		"transitions": res.Transitions,
		"duration_ms": res.Duration.Milliseconds(),
		"errors":      res.Errors,
		"scans":       kinds,
	})
}

// AnnouncePromotion notifies a store's followers about a promotion.
// @Summary Announce a promotion
// @Description Sends the new-promotion notification to every follower of the promotion's store. Re-announcing within 24h is a no-op.
// @Tags admin
// @Produce json
// @Param promotionID path int true "Promotion ID"
// @Success 200 {object} notify.AnnounceResult
// @Failure 400 {object} respond.ErrorResponse
// @Failure 404 {object} respond.ErrorResponse
// @Failure 409 {object} respond.ErrorResponse
// @Router /admin/promotions/{promotionID}/announce [post]
func (h *Handler) AnnouncePromotion(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "promotionID"), 10, 64)
	if err != nil {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_ID", "Promotion ID must be an integer")
		return
	}

	res, err := notify.AnnouncePromotion(r.Context(), h.pool, id)
	if errors.Is(err, notify.ErrPromotionNotFound) {
		respond.WriteError(w, http.StatusNotFound, "NOT_FOUND", "Promotion not found")
		return
	}
	if errors.Is(err, notify.ErrPromotionInactive) {
		respond.WriteError(w, http.StatusConflict, "INACTIVE", "Promotion is not active")
		return
	}
	if err != nil {
		h.logger.Error("Announce failed", "promotion_id", id, "error", err)
		respond.WriteError(w, http.StatusInternalServerError, "ANNOUNCE_FAILED", "Failed to announce promotion")
		return
	}

	respond.WriteJSONObject(w, http.StatusOK, res)
}
