package handlers

import (
	"net/http"

	"timekill-backend/internal/middleware"
	"timekill-backend/internal/models"
	"timekill-backend/internal/repository"
	"timekill-backend/internal/services"
)

type UserHandler struct {
	userRepo      *repository.UserRepo
	humanizerRepo *repository.HumanizerRepo
	entitlements  *services.EntitlementService
}

func NewUserHandler(userRepo *repository.UserRepo, humanizerRepo *repository.HumanizerRepo, entitlements *services.EntitlementService) *UserHandler {
	return &UserHandler{
		userRepo:      userRepo,
		humanizerRepo: humanizerRepo,
		entitlements:  entitlements,
	}
}

func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	user, err := h.userRepo.GetByID(r.Context(), userID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "User not found", r))
		return
	}

	plan, err := h.entitlements.PlanFor(r.Context(), userID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to resolve plan", r))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user":   user,
		"plan":   plan,
		"limits": h.entitlements.LimitsFor(plan),
	})
}

// Usage reports the current week's credit consumption against the plan
// ceiling.
func (h *UserHandler) Usage(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	plan, err := h.entitlements.PlanFor(r.Context(), userID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to resolve plan", r))
		return
	}
	limits := h.entitlements.LimitsFor(plan)

	year, week := nowISOWeek()
	used, err := h.humanizerRepo.WeeklyCreditsUsed(r.Context(), userID, year, week)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to load usage", r))
		return
	}

	resp := map[string]interface{}{
		"plan":         plan,
		"iso_year":     year,
		"iso_week":     week,
		"credits_used": used,
	}
	if models.IsUnlimited(limits.HumanizerCreditsPerWeek) {
		resp["credits_limit"] = "unlimited"
	} else {
		resp["credits_limit"] = limits.HumanizerCreditsPerWeek
		remaining := limits.HumanizerCreditsPerWeek - used
		if remaining < 0 {
			remaining = 0
		}
		resp["credits_remaining"] = remaining
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *UserHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	if err := h.userRepo.Delete(r.Context(), userID); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to delete account", r))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Account deleted"})
}
