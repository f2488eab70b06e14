package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"timekill-backend/internal/models"
)

const (
	// Candidates shorter than this share of the original are truncations
	// and are rejected before any detection call.
	minLengthRatio = 0.8

	// The acceptance floor relaxes by this much per iteration, trading
	// fidelity for detectability once high-fidelity rounds keep failing.
	floorDecayPerIteration = 0.05

	// The floor never relaxes below this, whatever the iteration count.
	absoluteSemanticFloor = 0.75
)

type resultCache interface {
	GetHumanizeResult(ctx context.Context, text string) (*models.HumanizeResult, bool)
	StoreHumanizeResult(ctx context.Context, text string, result *models.HumanizeResult)
	AllowDaily(ctx context.Context, kind, userID string, ceiling int) error
}

type runRecorder interface {
	CreateRun(ctx context.Context, run *models.HumanizerRun) error
}

type entitlementGate interface {
	Authorize(ctx context.Context, userID uuid.UUID, text string) (int, error)
	Consume(ctx context.Context, userID uuid.UUID, credits int) error
}

// HumanizerService drives the iterative rewrite loop: detect a baseline,
// then paraphrase the running best until the detection score reaches the
// target, iterations or the time budget run out.
//
// All collaborators are injected so tests can run against fakes.
type HumanizerService struct {
	detector     Detector
	rewriter     Rewriter
	scorer       SimilarityScorer
	cache        resultCache
	runs         runRecorder
	entitlements entitlementGate
	pubsub       *redis.Client
	dailyLimit   int
}

func NewHumanizerService(
	detector Detector,
	rewriter Rewriter,
	scorer SimilarityScorer,
	cache resultCache,
	runs runRecorder,
	entitlements entitlementGate,
	pubsubClient *redis.Client,
	dailyLimit int,
) *HumanizerService {
	return &HumanizerService{
		detector:     detector,
		rewriter:     rewriter,
		scorer:       scorer,
		cache:        cache,
		runs:         runs,
		entitlements: entitlements,
		pubsub:       pubsubClient,
		dailyLimit:   dailyLimit,
	}
}

// candidate is one scored rewrite. bestCandidate only ever moves to a
// strictly lower score, so its score is monotonically non-increasing across
// the whole run.
type candidate struct {
	text       string
	score      float64
	similarity float64
}

type evaluated struct {
	candidate
	ok bool
}

func (s *HumanizerService) Humanize(ctx context.Context, userID uuid.UUID, text string, overrides *models.HumanizerSettings) (*models.HumanizeResult, error) {
	if userID == uuid.Nil {
		return nil, &UnauthorizedError{Message: "Missing user"}
	}
	if strings.TrimSpace(text) == "" {
		return nil, &ValidationError{Fields: map[string]string{"text": "Text is required"}}
	}

	// Both quota layers must pass before any expensive work: the weekly
	// plan ledger and the daily redis counter are independent gates.
	credits, err := s.entitlements.Authorize(ctx, userID, text)
	if err != nil {
		return nil, err
	}

	if err := s.cache.AllowDaily(ctx, "humanizer", userID.String(), s.dailyLimit); err != nil {
		return nil, err
	}

	// A cache hit returns the stored result verbatim and consumes no
	// weekly credit.
	if cached, ok := s.cache.GetHumanizeResult(ctx, text); ok {
		return cached, nil
	}

	var settings models.HumanizerSettings
	if overrides != nil {
		settings = *overrides
	}
	settings = settings.WithDefaults()

	start := time.Now()

	// Baseline detection on the unmodified input. A failure here is fatal:
	// there is no best-so-far to fall back to yet.
	baseline, err := s.detector.Detect(ctx, text)
	if err != nil {
		return nil, err
	}

	var result *models.HumanizeResult
	if baseline.Score <= settings.TargetScore {
		// Already human enough; skip every rewrite call.
		result = &models.HumanizeResult{
			HumanizedText: text,
			SaplingScore:  baseline.Score,
			Iterations:    0,
			Similarity:    1.0,
		}
	} else {
		best := candidate{text: text, score: baseline.Score, similarity: 1.0}
		result = s.runLoop(ctx, userID, text, best, settings, start)
	}

	// Cache write, run log and credit debit are independent best-effort
	// operations; none of them may fail the call at this point.
	s.cache.StoreHumanizeResult(ctx, text, result)

	run := &models.HumanizerRun{
		UserID:           userID,
		InputText:        text,
		OutputText:       result.HumanizedText,
		SaplingScore:     result.SaplingScore,
		Iterations:       result.Iterations,
		FailedIterations: result.FailedIterations,
		Similarity:       result.Similarity,
		CreditsUsed:      credits,
	}
	if err := s.runs.CreateRun(ctx, run); err != nil {
		log.Printf("failed to record humanizer run for user %s: %v", userID, err)
	}

	if err := s.entitlements.Consume(ctx, userID, credits); err != nil {
		log.Printf("failed to debit %d credits for user %s: %v", credits, userID, err)
	}

	return result, nil
}

func (s *HumanizerService) runLoop(ctx context.Context, userID uuid.UUID, original string, best candidate, settings models.HumanizerSettings, start time.Time) *models.HumanizeResult {
	budget := time.Duration(*settings.TimeBudgetMs) * time.Millisecond
	iterations := 0
	failed := 0

	for iter := 0; iter < settings.MaxIterations; iter++ {
		// Budget is advisory and checked at iteration boundaries only;
		// in-flight calls are never aborted mid-iteration.
		if time.Since(start) >= budget {
			break
		}

		floor := dynamicFloor(settings.SemanticFloor, iter)

		hitTarget, err := s.runIteration(ctx, original, &best, iter, floor, settings.TargetScore)
		iterations++
		if err != nil {
			// A single bad round never aborts the run once a baseline
			// exists; continue with the best found so far.
			failed++
			log.Printf("humanizer iteration %d failed for user %s: %v", iter, userID, err)
		}

		s.publishProgress(ctx, userID, iter, best.score, settings.TargetScore, start)

		if hitTarget {
			break
		}
	}

	return &models.HumanizeResult{
		HumanizedText:    best.text,
		SaplingScore:     best.score,
		Iterations:       iterations,
		Similarity:       best.similarity,
		FailedIterations: failed,
	}
}

// runIteration runs one rewrite round. It reports whether the running best
// reached the target score.
func (s *HumanizerService) runIteration(ctx context.Context, original string, best *candidate, iter int, floor, target float64) (bool, error) {
	// Paraphrase the current best, not the original, so transformations
	// compound across rounds.
	rewrites, err := s.rewriter.Rewrite(ctx, best.text, iter, floor)
	if err != nil {
		return false, err
	}

	scored := s.evaluateBatch(ctx, original, rewrites, floor)

	// Reduce serially in batch order: ties keep the earlier candidate, and
	// the first one that drops the best to the target ends the whole loop.
	for _, c := range scored {
		if !c.ok {
			continue
		}
		if c.score < best.score {
			*best = c.candidate
			if best.score <= target {
				return true, nil
			}
		}
	}

	return false, nil
}

// evaluateBatch scores one round's rewrites concurrently. Results land in an
// indexed slice so reduction order stays deterministic regardless of which
// detection call finishes first.
func (s *HumanizerService) evaluateBatch(ctx context.Context, original string, rewrites []string, floor float64) []evaluated {
	minLen := int(minLengthRatio * float64(len(original)))
	results := make([]evaluated, len(rewrites))

	var wg sync.WaitGroup
	for i, text := range rewrites {
		wg.Add(1)
		go func(i int, text string) {
			defer wg.Done()

			// Truncated outputs are rejected without a detection call.
			if len(text) < minLen {
				return
			}

			// Similarity is local and cheap; it gates the paid call.
			sim := s.scorer.Score(original, text)
			if sim < floor {
				return
			}

			det, err := s.detector.Detect(ctx, text)
			if err != nil {
				log.Printf("candidate detection failed, skipping: %v", err)
				return
			}

			results[i] = evaluated{candidate: candidate{text: text, score: det.Score, similarity: sim}, ok: true}
		}(i, text)
	}
	wg.Wait()

	return results
}

// dynamicFloor relaxes the similarity bar as iterations accumulate, clamped
// to the absolute floor.
func dynamicFloor(semanticFloor float64, iteration int) float64 {
	floor := semanticFloor - float64(iteration)*floorDecayPerIteration
	if floor < absoluteSemanticFloor {
		return absoluteSemanticFloor
	}
	return floor
}

func (s *HumanizerService) publishProgress(ctx context.Context, userID uuid.UUID, iteration int, bestScore, targetScore float64, start time.Time) {
	if s.pubsub == nil {
		return
	}

	msg := models.WSMessage{
		Type: "humanizer_progress",
		Payload: models.HumanizerProgress{
			Iteration:   iteration,
			BestScore:   bestScore,
			TargetScore: targetScore,
			ElapsedMs:   time.Since(start).Milliseconds(),
		},
	}
	data, _ := json.Marshal(msg)
	s.pubsub.Publish(ctx, fmt.Sprintf("user_updates:%s", userID.String()), string(data))
}
