package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"timekill-backend/internal/middleware"
	"timekill-backend/internal/models"
	"timekill-backend/internal/repository"
	"timekill-backend/internal/services"
)

type HumanizerHandler struct {
	humanizer     *services.HumanizerService
	humanizerRepo *repository.HumanizerRepo
	entitlements  *services.EntitlementService
}

func NewHumanizerHandler(humanizer *services.HumanizerService, humanizerRepo *repository.HumanizerRepo, entitlements *services.EntitlementService) *HumanizerHandler {
	return &HumanizerHandler{
		humanizer:     humanizer,
		humanizerRepo: humanizerRepo,
		entitlements:  entitlements,
	}
}

// Humanize runs the full loop synchronously. Runs are bounded by the time
// budget so the request never outlives roughly twenty seconds of work.
func (h *HumanizerHandler) Humanize(w http.ResponseWriter, r *http.Request) {
	var req models.HumanizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	userID := middleware.GetUserID(r.Context())

	result, err := h.humanizer.Humanize(r.Context(), userID, req.Text, req.Settings)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *HumanizerHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	limit := parseIntParam(r, "limit", 20)
	if limit > 100 {
		limit = 100
	}
	offset := parseIntParam(r, "offset", 0)

	runs, total, err := h.humanizerRepo.ListRuns(r.Context(), userID, limit, offset)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to load runs", r))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"runs":   runs,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

func (h *HumanizerHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	year, week := nowISOWeek()
	stats, err := h.humanizerRepo.GetStats(r.Context(), userID, year, week)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to load stats", r))
		return
	}

	plan, err := h.entitlements.PlanFor(r.Context(), userID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to resolve plan", r))
		return
	}
	limits := h.entitlements.LimitsFor(plan)

	remaining := interface{}(nil)
	if models.IsUnlimited(limits.HumanizerCreditsPerWeek) {
		remaining = "unlimited"
	} else {
		left := limits.HumanizerCreditsPerWeek - stats.CreditsThisWeek
		if left < 0 {
			left = 0
		}
		remaining = left
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"stats":             stats,
		"plan":              plan,
		"credits_remaining": remaining,
	})
}

func nowISOWeek() (int, int) {
	return time.Now().UTC().ISOWeek()
}

func parseIntParam(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}
