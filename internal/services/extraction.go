package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"google.golang.org/api/option"

	"timekill-backend/internal/models"
	"timekill-backend/internal/repository"
)

// ExtractionService turns raw study notes into term/definition pairs. Jobs
// arrive through the worker pool, so every method here runs off the request
// path.
type ExtractionService struct {
	client   *genai.Client
	model    *genai.GenerativeModel
	setRepo  *repository.SetRepo
	jobRepo  *repository.JobRepo
	cache    *CacheGateway
	redis    *redis.Client
	rateChan chan struct{} // Token bucket
}

func NewExtractionService(
	apiKey string,
	concurrentReqs int,
	setRepo *repository.SetRepo,
	jobRepo *repository.JobRepo,
	cache *CacheGateway,
	redisClient *redis.Client,
) (*ExtractionService, error) {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel("gemini-3-flash-preview")
	model.SetTemperature(0.3)
	model.SetTopP(0.95)
	model.ResponseMIMEType = "application/json"

	rateChan := make(chan struct{}, concurrentReqs)
	for i := 0; i < concurrentReqs; i++ {
		rateChan <- struct{}{}
	}

	return &ExtractionService{
		client:   client,
		model:    model,
		setRepo:  setRepo,
		jobRepo:  jobRepo,
		cache:    cache,
		redis:    redisClient,
		rateChan: rateChan,
	}, nil
}

func (s *ExtractionService) Close() {
	s.client.Close()
}

// acquireRate blocks until a rate slot is available
func (s *ExtractionService) acquireRate(ctx context.Context) error {
	select {
	case <-s.rateChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Minute):
		return fmt.Errorf("timeout waiting for Gemini rate slot")
	}
}

func (s *ExtractionService) releaseRate() {
	s.rateChan <- struct{}{}
}

// PublishUpdate sends a WebSocket update via Redis pub/sub
func (s *ExtractionService) PublishUpdate(ctx context.Context, userID uuid.UUID, msg models.WSMessage) {
	data, _ := json.Marshal(msg)
	s.redis.Publish(ctx, fmt.Sprintf("user_updates:%s", userID.String()), string(data))
}

// ExtractPairs handles the full pair extraction flow for one note set.
func (s *ExtractionService) ExtractPairs(ctx context.Context, job *models.Job) error {
	set, err := s.setRepo.GetByID(ctx, job.ReferenceID)
	if err != nil {
		return fmt.Errorf("failed to load note set: %w", err)
	}

	// Identical notes within the cache window reuse the stored pairs and
	// skip the Gemini call entirely.
	if cached, ok := s.cache.GetPairs(ctx, set.NotesText); ok {
		if err := s.setRepo.ReplacePairs(ctx, set.ID, cached); err != nil {
			return err
		}
		s.publishCompleted(ctx, job, set.ID)
		return nil
	}

	if err := s.acquireRate(ctx); err != nil {
		return err
	}
	defer s.releaseRate()

	s.PublishUpdate(ctx, job.UserID, models.WSMessage{
		Type: "status_update",
		Payload: models.StatusUpdate{
			JobID: job.ID, Step: 1, StepName: "Extracting Pairs",
		},
	})

	prompt := buildPairPrompt(set.NotesText)

	resp, err := s.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return fmt.Errorf("Gemini API error: %w", err)
	}

	rawText := extractText(resp)
	pairs, err := parsePairArray(rawText)
	if err != nil {
		return err
	}
	if len(pairs) == 0 {
		return fmt.Errorf("no usable pairs extracted from notes")
	}

	if err := s.setRepo.ReplacePairs(ctx, set.ID, pairs); err != nil {
		return err
	}

	s.cache.StorePairs(ctx, set.NotesText, pairs)
	s.publishCompleted(ctx, job, set.ID)
	return nil
}

func (s *ExtractionService) publishCompleted(ctx context.Context, job *models.Job, setID uuid.UUID) {
	s.PublishUpdate(ctx, job.UserID, models.WSMessage{
		Type: "job_completed",
		Payload: models.CompletedEvent{
			JobID: job.ID, ResultID: setID, ResultType: "note_set",
		},
	})
}

func buildPairPrompt(notes string) string {
	var b strings.Builder

	b.WriteString("You are an expert study material creator. Extract term/definition pairs from the notes below.\n\n")
	b.WriteString("CRITICAL: Return ONLY a valid JSON array. No preamble, no markdown, no backticks.\n\n")
	b.WriteString(`Rules:
- Each term must be under 10 words
- Each definition must be under 60 words and self-contained
- No two pairs may cover the same term
- Only extract pairs actually supported by the notes; never invent facts

JSON schema per pair:
{"term": "string", "definition": "string"}
`)

	b.WriteString("\n---NOTES---\n")
	b.WriteString(notes)
	b.WriteString("\n---END---\n")

	return b.String()
}

// parsePairArray tolerates markdown fences and surrounding prose around the
// JSON array, the same failure modes the rewrite parser handles.
func parsePairArray(rawText string) ([]models.Pair, error) {
	rawText = strings.TrimPrefix(rawText, "```json")
	rawText = strings.TrimPrefix(rawText, "```")
	rawText = strings.TrimSuffix(rawText, "```")
	rawText = strings.TrimSpace(rawText)

	type pairJSON struct {
		Term       string `json:"term"`
		Definition string `json:"definition"`
	}

	var raw []pairJSON
	if err := json.Unmarshal([]byte(rawText), &raw); err != nil {
		start := strings.Index(rawText, "[")
		end := strings.LastIndex(rawText, "]")
		if start >= 0 && end > start {
			json.Unmarshal([]byte(rawText[start:end+1]), &raw)
		}
	}

	if len(raw) == 0 {
		return nil, fmt.Errorf("failed to parse pair array from model output")
	}

	pairs := make([]models.Pair, 0, len(raw))
	seen := make(map[string]bool)
	for _, p := range raw {
		term := strings.TrimSpace(p.Term)
		def := strings.TrimSpace(p.Definition)
		if term == "" || def == "" {
			continue
		}
		key := strings.ToLower(term)
		if seen[key] {
			log.Printf("skipping duplicate extracted term %q", term)
			continue
		}
		seen[key] = true
		pairs = append(pairs, models.Pair{
			Term:       term,
			Definition: def,
			Position:   len(pairs),
		})
	}
	return pairs, nil
}
