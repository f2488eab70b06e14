package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"timekill-backend/internal/middleware"
	"timekill-backend/internal/models"
	"timekill-backend/internal/repository"
	"timekill-backend/internal/services"
)

const maxUploadBytes = 25 * 1024 * 1024 // 25MB

type PairsHandler struct {
	setRepo      *repository.SetRepo
	jobRepo      *repository.JobRepo
	cache        *services.CacheGateway
	entitlements *services.EntitlementService
	fileExtract  *services.FileExtractService
	redis        *redis.Client
	storagePath  string
	dailyLimit   int
}

func NewPairsHandler(
	setRepo *repository.SetRepo,
	jobRepo *repository.JobRepo,
	cache *services.CacheGateway,
	entitlements *services.EntitlementService,
	fileExtract *services.FileExtractService,
	redisClient *redis.Client,
	storagePath string,
	dailyLimit int,
) *PairsHandler {
	return &PairsHandler{
		setRepo:      setRepo,
		jobRepo:      jobRepo,
		cache:        cache,
		entitlements: entitlements,
		fileExtract:  fileExtract,
		redis:        redisClient,
		storagePath:  storagePath,
		dailyLimit:   dailyLimit,
	}
}

// Generate accepts raw notes and queues an extraction job. The response
// carries the set and job IDs so the client can follow progress over the
// WebSocket.
func (h *PairsHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req models.GeneratePairsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	h.startExtraction(w, r, req.Title, req.Notes)
}

// Upload accepts a txt, md, pdf or docx file, extracts its text and queues
// the same extraction flow Generate uses.
func (h *PairsHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > maxUploadBytes {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResp("FILE_TOO_LARGE", "File size exceeds 25MB limit", r))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "No file provided", r))
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	switch ext {
	case ".txt", ".md", ".pdf", ".docx":
	default:
		writeJSON(w, http.StatusUnsupportedMediaType, errorResp("UNSUPPORTED_FORMAT", "File type not supported", r))
		return
	}

	userID := middleware.GetUserID(r.Context())

	// Spool to disk so the pdf reader can seek.
	dir := filepath.Join(h.storagePath, userID.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to store upload", r))
		return
	}
	path := filepath.Join(dir, uuid.New().String()+ext)

	dst, err := os.Create(path)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to store upload", r))
		return
	}
	if _, err := io.Copy(dst, file); err != nil {
		dst.Close()
		os.Remove(path)
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to store upload", r))
		return
	}
	dst.Close()
	defer os.Remove(path)

	notes, err := h.fileExtract.ExtractTextFromPath(path)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResp("EXTRACTION_FAILED", err.Error(), r))
		return
	}

	title := strings.TrimSuffix(header.Filename, ext)
	h.startExtraction(w, r, title, notes)
}

func (h *PairsHandler) startExtraction(w http.ResponseWriter, r *http.Request, title, notes string) {
	userID := middleware.GetUserID(r.Context())

	if strings.TrimSpace(notes) == "" {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed",
			map[string]string{"notes": "Notes are required"}, r))
		return
	}
	if strings.TrimSpace(title) == "" {
		title = "Untitled Set"
	}

	plan, err := h.entitlements.PlanFor(r.Context(), userID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to resolve plan", r))
		return
	}
	limits := h.entitlements.LimitsFor(plan)

	if len(notes) > limits.MaxDocumentLength {
		handleServiceError(w, r, &services.DocumentTooLongError{Length: len(notes), Max: limits.MaxDocumentLength})
		return
	}

	if !models.IsUnlimited(limits.TotalDocuments) {
		count, err := h.setRepo.CountByUser(r.Context(), userID)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to count sets", r))
			return
		}
		if count >= limits.TotalDocuments {
			handleServiceError(w, r, &services.ForbiddenError{Message: "Document limit reached for your plan"})
			return
		}
	}

	if err := h.cache.AllowDaily(r.Context(), "extraction", userID.String(), h.dailyLimit); err != nil {
		handleServiceError(w, r, err)
		return
	}

	set := &models.NoteSet{
		UserID:    userID,
		Title:     title,
		NotesText: notes,
		Status:    "pending",
	}
	if err := h.setRepo.Create(r.Context(), set); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to create note set", r))
		return
	}

	job := &models.Job{
		ID:          uuid.New(),
		UserID:      userID,
		Type:        "pair-extraction",
		Status:      "queued",
		ReferenceID: set.ID,
		MaxRetries:  3,
		CreatedAt:   time.Now(),
	}

	if err := h.jobRepo.Create(r.Context(), job); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to create job", r))
		return
	}

	jobBytes, _ := json.Marshal(job)
	h.redis.LPush(r.Context(), "queue:pair-extraction", string(jobBytes))

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"set_id": set.ID,
		"job_id": job.ID,
		"status": "queued",
	})
}

func (h *PairsHandler) ListSets(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	limit := parseIntParam(r, "limit", 20)
	if limit > 100 {
		limit = 100
	}
	offset := parseIntParam(r, "offset", 0)

	sets, total, err := h.setRepo.ListByUser(r.Context(), userID, limit, offset)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to load sets", r))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sets":   sets,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

func (h *PairsHandler) GetSet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid set ID", r))
		return
	}

	set, err := h.setRepo.GetByID(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Note set not found", r))
		return
	}

	userID := middleware.GetUserID(r.Context())
	if set.UserID != userID {
		writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", "Access denied", r))
		return
	}

	pairs, err := h.setRepo.ListPairs(r.Context(), set.ID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to load pairs", r))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"set":   set,
		"pairs": pairs,
	})
}

func (h *PairsHandler) DeleteSet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid set ID", r))
		return
	}

	userID := middleware.GetUserID(r.Context())
	if err := h.setRepo.Delete(r.Context(), id, userID); err != nil {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Note set not found", r))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Note set deleted"})
}
