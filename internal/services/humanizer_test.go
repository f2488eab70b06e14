package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"timekill-backend/internal/models"
)

// ─── Fakes ───

type fakeDetector struct {
	mu     sync.Mutex
	scores map[string]float64
	errOn  map[string]error
	calls  []string
}

func (f *fakeDetector) Detect(ctx context.Context, text string) (models.DetectionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, text)
	if err, ok := f.errOn[text]; ok {
		return models.DetectionResult{}, err
	}
	score, ok := f.scores[text]
	if !ok {
		score = 0.9
	}
	return models.DetectionResult{Score: score, Text: text}, nil
}

func (f *fakeDetector) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeDetector) called(text string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c == text {
			return true
		}
	}
	return false
}

type fakeRewriter struct {
	mu      sync.Mutex
	perIter map[int][]string
	errOn   map[int]error
	calls   int
}

func (f *fakeRewriter) Rewrite(ctx context.Context, text string, iteration int, semanticFloor float64) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err, ok := f.errOn[iteration]; ok {
		return nil, err
	}
	if rewrites, ok := f.perIter[iteration]; ok {
		return rewrites, nil
	}
	return []string{"default rewrite candidate text here we go"}, nil
}

type fakeScorer struct {
	similarities map[string]float64
	fallback     float64
}

func (f *fakeScorer) Score(original, candidate string) float64 {
	if sim, ok := f.similarities[candidate]; ok {
		return sim
	}
	if f.fallback > 0 {
		return f.fallback
	}
	return 0.9
}

type fakeCache struct {
	mu       sync.Mutex
	stored   map[string]*models.HumanizeResult
	counters map[string]int
	ceiling  int
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		stored:   make(map[string]*models.HumanizeResult),
		counters: make(map[string]int),
		ceiling:  0, // 0 = no ceiling in tests
	}
}

func (f *fakeCache) GetHumanizeResult(ctx context.Context, text string) (*models.HumanizeResult, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.stored[text]
	if !ok {
		return nil, false
	}
	copied := *r
	copied.Cached = true
	return &copied, true
}

func (f *fakeCache) StoreHumanizeResult(ctx context.Context, text string, result *models.HumanizeResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stored[text] = result
}

func (f *fakeCache) AllowDaily(ctx context.Context, kind, userID string, ceiling int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counters[userID]++
	if f.ceiling > 0 && f.counters[userID] > f.ceiling {
		return &RateLimitError{Limit: f.ceiling}
	}
	return nil
}

type fakeRuns struct {
	mu   sync.Mutex
	runs []*models.HumanizerRun
}

func (f *fakeRuns) CreateRun(ctx context.Context, run *models.HumanizerRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, run)
	return nil
}

type fakeGate struct {
	mu           sync.Mutex
	authorizeErr error
	consumed     int
}

func (f *fakeGate) Authorize(ctx context.Context, userID uuid.UUID, text string) (int, error) {
	if f.authorizeErr != nil {
		return 0, f.authorizeErr
	}
	return CreditsForText(text), nil
}

func (f *fakeGate) Consume(ctx context.Context, userID uuid.UUID, credits int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.consumed += credits
	return nil
}

type humanizerFixture struct {
	svc      *HumanizerService
	detector *fakeDetector
	rewriter *fakeRewriter
	cache    *fakeCache
	runs     *fakeRuns
	gate     *fakeGate
}

func newHumanizerFixture(detector *fakeDetector, rewriter *fakeRewriter, scorer SimilarityScorer) *humanizerFixture {
	cache := newFakeCache()
	runs := &fakeRuns{}
	gate := &fakeGate{}
	return &humanizerFixture{
		svc:      NewHumanizerService(detector, rewriter, scorer, cache, runs, gate, nil, 50),
		detector: detector,
		rewriter: rewriter,
		cache:    cache,
		runs:     runs,
		gate:     gate,
	}
}

func intPtr(v int) *int { return &v }

// ─── Loop scenarios ───

func TestHumanize_ShortCircuitAlreadyHuman(t *testing.T) {
	input := "The cat sat on the mat."
	detector := &fakeDetector{scores: map[string]float64{input: 0.1}}
	rewriter := &fakeRewriter{}
	f := newHumanizerFixture(detector, rewriter, &fakeScorer{})

	result, err := f.svc.Humanize(context.Background(), uuid.New(), input, nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if result.HumanizedText != input {
		t.Errorf("Expected output to equal input exactly, got %q", result.HumanizedText)
	}
	if result.Iterations != 0 {
		t.Errorf("Expected 0 iterations, got %d", result.Iterations)
	}
	if result.Similarity != 1.0 {
		t.Errorf("Expected similarity 1.0, got %v", result.Similarity)
	}
	if result.SaplingScore != 0.1 {
		t.Errorf("Expected baseline score 0.1, got %v", result.SaplingScore)
	}
	if rewriter.calls != 0 {
		t.Errorf("Expected no rewrite calls on short-circuit, got %d", rewriter.calls)
	}
}

func TestHumanize_StopsAfterFirstGoodRewrite(t *testing.T) {
	input := "This content was quite obviously written by a machine model."
	winner := "Honestly, a machine model pretty clearly wrote this content."

	detector := &fakeDetector{scores: map[string]float64{
		input:  0.9,
		winner: 0.15,
	}}
	rewriter := &fakeRewriter{perIter: map[int][]string{
		0: {winner},
	}}
	scorer := &fakeScorer{similarities: map[string]float64{winner: 0.9}}
	f := newHumanizerFixture(detector, rewriter, scorer)

	result, err := f.svc.Humanize(context.Background(), uuid.New(), input, nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if result.HumanizedText != winner {
		t.Errorf("Expected winning candidate as output, got %q", result.HumanizedText)
	}
	if result.Iterations != 1 {
		t.Errorf("Expected loop to stop after iteration 1, got %d", result.Iterations)
	}
	if result.SaplingScore != 0.15 {
		t.Errorf("Expected score 0.15, got %v", result.SaplingScore)
	}
	if result.Similarity != 0.9 {
		t.Errorf("Expected similarity 0.9, got %v", result.Similarity)
	}
	if rewriter.calls != 1 {
		t.Errorf("Expected exactly 1 rewrite round, got %d", rewriter.calls)
	}
}

func TestHumanize_AllCandidatesFailFloor(t *testing.T) {
	input := "Original text that no rewrite manages to stay close to at all."

	detector := &fakeDetector{scores: map[string]float64{input: 0.9}}
	rewriter := &fakeRewriter{perIter: map[int][]string{}}
	// every candidate lands below the 0.75 absolute floor
	scorer := &fakeScorer{fallback: 0.5}
	f := newHumanizerFixture(detector, rewriter, scorer)

	result, err := f.svc.Humanize(context.Background(), uuid.New(), input, &models.HumanizerSettings{MaxIterations: 3})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if result.HumanizedText != input {
		t.Errorf("Expected original text back, got %q", result.HumanizedText)
	}
	if result.SaplingScore != 0.9 {
		t.Errorf("Expected baseline score retained, got %v", result.SaplingScore)
	}
	if result.Iterations != 3 {
		t.Errorf("Expected all 3 iterations to run, got %d", result.Iterations)
	}
	// floor-failing candidates never reach the detector
	if detector.callCount() != 1 {
		t.Errorf("Expected only the baseline detection call, got %d", detector.callCount())
	}
}

func TestHumanize_ShortCandidateNeverScored(t *testing.T) {
	input := "A reasonably long original sentence that sets the length bar for all rewrite candidates."
	tooShort := "Way too short."
	longEnough := "A reasonably long rewritten sentence that clears the length bar for rewrite candidates fine."

	detector := &fakeDetector{scores: map[string]float64{
		input:      0.9,
		tooShort:   0.01, // would win if it were eligible
		longEnough: 0.5,
	}}
	rewriter := &fakeRewriter{perIter: map[int][]string{
		0: {tooShort, longEnough},
	}}
	scorer := &fakeScorer{fallback: 0.9}
	f := newHumanizerFixture(detector, rewriter, scorer)

	result, err := f.svc.Humanize(context.Background(), uuid.New(), input, &models.HumanizerSettings{MaxIterations: 1})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if detector.called(tooShort) {
		t.Error("Short candidate consumed a detection call")
	}
	if result.HumanizedText != longEnough {
		t.Errorf("Expected the long candidate to win, got %q", result.HumanizedText)
	}
}

func TestHumanize_BestScoreMonotonic(t *testing.T) {
	input := "Original machine flavored text used as the seed for every round here."
	better := "Rewritten once this machine flavored text reads slightly more casually now."
	worse := "Rewritten twice this text somehow reads even more robotic than before sadly."

	detector := &fakeDetector{scores: map[string]float64{
		input:  0.9,
		better: 0.5,
		worse:  0.7, // worse than the running best, must be ignored
	}}
	rewriter := &fakeRewriter{perIter: map[int][]string{
		0: {better},
		1: {worse},
	}}
	scorer := &fakeScorer{fallback: 0.9}
	f := newHumanizerFixture(detector, rewriter, scorer)

	result, err := f.svc.Humanize(context.Background(), uuid.New(), input, &models.HumanizerSettings{MaxIterations: 2})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if result.HumanizedText != better {
		t.Errorf("Expected the iteration-0 candidate retained, got %q", result.HumanizedText)
	}
	if result.SaplingScore != 0.5 {
		t.Errorf("Expected best score 0.5, got %v", result.SaplingScore)
	}
	if result.Iterations != 2 {
		t.Errorf("Expected 2 iterations, got %d", result.Iterations)
	}
}

func TestHumanize_TieKeepsEarlierCandidate(t *testing.T) {
	input := "Original machine flavored text used as the seed for every round here."
	first := "First rewrite of the machine flavored text keeping the same overall length."
	tied := "Second rewrite of the machine flavored text keeping the same overall length."

	detector := &fakeDetector{scores: map[string]float64{
		input: 0.9,
		first: 0.5,
		tied:  0.5, // equal score never replaces
	}}
	rewriter := &fakeRewriter{perIter: map[int][]string{
		0: {first},
		1: {tied},
	}}
	scorer := &fakeScorer{fallback: 0.9}
	f := newHumanizerFixture(detector, rewriter, scorer)

	result, err := f.svc.Humanize(context.Background(), uuid.New(), input, &models.HumanizerSettings{MaxIterations: 2})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if result.HumanizedText != first {
		t.Errorf("Expected tie to keep the earlier candidate, got %q", result.HumanizedText)
	}
}

func TestHumanize_ZeroTimeBudgetSkipsIterating(t *testing.T) {
	input := "Text with a high baseline score and no time budget to fix it."
	detector := &fakeDetector{scores: map[string]float64{input: 0.9}}
	rewriter := &fakeRewriter{}
	f := newHumanizerFixture(detector, rewriter, &fakeScorer{})

	result, err := f.svc.Humanize(context.Background(), uuid.New(), input, &models.HumanizerSettings{TimeBudgetMs: intPtr(0)})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if result.Iterations != 0 {
		t.Errorf("Expected 0 iterations with zero budget, got %d", result.Iterations)
	}
	if result.HumanizedText != input {
		t.Errorf("Expected original text back, got %q", result.HumanizedText)
	}
	if rewriter.calls != 0 {
		t.Errorf("Expected no rewrite calls, got %d", rewriter.calls)
	}
	if detector.callCount() != 1 {
		t.Errorf("Expected exactly the baseline detection call, got %d", detector.callCount())
	}
}

func TestHumanize_IterationErrorSwallowed(t *testing.T) {
	input := "Seed text where the very first rewrite round blows up completely."
	recovery := "Seed text where the second rewrite round quietly saves the whole run."

	detector := &fakeDetector{scores: map[string]float64{
		input:    0.9,
		recovery: 0.1,
	}}
	rewriter := &fakeRewriter{
		errOn:   map[int]error{0: &GenerationError{Reason: "model overloaded"}},
		perIter: map[int][]string{1: {recovery}},
	}
	scorer := &fakeScorer{fallback: 0.9}
	f := newHumanizerFixture(detector, rewriter, scorer)

	result, err := f.svc.Humanize(context.Background(), uuid.New(), input, &models.HumanizerSettings{MaxIterations: 3})
	if err != nil {
		t.Fatalf("Iteration failure must not surface, got %v", err)
	}

	if result.HumanizedText != recovery {
		t.Errorf("Expected recovery candidate, got %q", result.HumanizedText)
	}
	if result.FailedIterations != 1 {
		t.Errorf("Expected 1 failed iteration recorded, got %d", result.FailedIterations)
	}
	if result.Iterations != 2 {
		t.Errorf("Expected 2 iterations (failed + winning), got %d", result.Iterations)
	}
}

func TestHumanize_BaselineDetectionFailureIsFatal(t *testing.T) {
	input := "Text whose baseline detection call fails outright."
	detector := &fakeDetector{
		scores: map[string]float64{},
		errOn:  map[string]error{input: &DetectionError{Status: 503, Body: "down"}},
	}
	f := newHumanizerFixture(detector, &fakeRewriter{}, &fakeScorer{})

	_, err := f.svc.Humanize(context.Background(), uuid.New(), input, nil)

	var detErr *DetectionError
	if !errors.As(err, &detErr) {
		t.Fatalf("Expected *DetectionError surfaced, got %T: %v", err, err)
	}
	if detErr.Status != 503 {
		t.Errorf("Expected status 503, got %d", detErr.Status)
	}
}

// ─── Gateway interactions ───

func TestHumanize_CacheHitSkipsEverything(t *testing.T) {
	input := "Identical request within the cache TTL."
	detector := &fakeDetector{scores: map[string]float64{input: 0.9}}
	rewriter := &fakeRewriter{}
	f := newHumanizerFixture(detector, rewriter, &fakeScorer{})

	f.cache.stored[input] = &models.HumanizeResult{
		HumanizedText: "previously computed output",
		SaplingScore:  0.12,
		Iterations:    2,
		Similarity:    0.88,
	}

	result, err := f.svc.Humanize(context.Background(), uuid.New(), input, nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if result.HumanizedText != "previously computed output" {
		t.Errorf("Expected cached output verbatim, got %q", result.HumanizedText)
	}
	if !result.Cached {
		t.Error("Expected result marked as cached")
	}
	if detector.callCount() != 0 {
		t.Errorf("Cache hit must not invoke the detector, got %d calls", detector.callCount())
	}
	if rewriter.calls != 0 {
		t.Errorf("Cache hit must not invoke the rewriter, got %d calls", rewriter.calls)
	}
	// cache hits consume no weekly credit
	if f.gate.consumed != 0 {
		t.Errorf("Cache hit must not consume credits, consumed %d", f.gate.consumed)
	}
	if len(f.runs.runs) != 0 {
		t.Errorf("Cache hit must not append a run record, got %d", len(f.runs.runs))
	}
}

func TestHumanize_ResultIsCachedAfterRun(t *testing.T) {
	input := "Fresh input that should land in the cache after the first run."
	detector := &fakeDetector{scores: map[string]float64{input: 0.1}}
	f := newHumanizerFixture(detector, &fakeRewriter{}, &fakeScorer{})

	if _, err := f.svc.Humanize(context.Background(), uuid.New(), input, nil); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if _, ok := f.cache.stored[input]; !ok {
		t.Error("Expected result stored in cache after run")
	}
}

func TestHumanize_RepeatCallPayloadIdentical(t *testing.T) {
	input := "Second call within the TTL must serialize exactly like the first."
	detector := &fakeDetector{scores: map[string]float64{input: 0.1}}
	f := newHumanizerFixture(detector, &fakeRewriter{}, &fakeScorer{})

	userID := uuid.New()
	first, err := f.svc.Humanize(context.Background(), userID, input, nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	second, err := f.svc.Humanize(context.Background(), userID, input, nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !second.Cached || first.Cached {
		t.Fatalf("Expected only the second result marked cached, got %v then %v", first.Cached, second.Cached)
	}

	firstJSON, err := json.Marshal(first)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	secondJSON, err := json.Marshal(second)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if !bytes.Equal(firstJSON, secondJSON) {
		t.Errorf("Expected byte-identical payloads, got\n%s\nvs\n%s", firstJSON, secondJSON)
	}
	if strings.Contains(string(secondJSON), "cached") {
		t.Errorf("Cached flag must not be serialized, got %s", secondJSON)
	}
}

func TestHumanize_DailyCeilingRejects(t *testing.T) {
	input := "Any input past the daily ceiling."
	detector := &fakeDetector{scores: map[string]float64{input: 0.1}}
	f := newHumanizerFixture(detector, &fakeRewriter{}, &fakeScorer{})
	f.cache.ceiling = 2

	userID := uuid.New()
	for i := 0; i < 2; i++ {
		if _, err := f.svc.Humanize(context.Background(), userID, input, nil); err != nil {
			t.Fatalf("Call %d should pass, got %v", i+1, err)
		}
	}

	_, err := f.svc.Humanize(context.Background(), userID, input, nil)
	var rateErr *RateLimitError
	if !errors.As(err, &rateErr) {
		t.Fatalf("Expected *RateLimitError past ceiling, got %T: %v", err, err)
	}
}

func TestHumanize_EntitlementRejectionBeforeWork(t *testing.T) {
	input := strings.Repeat("a", 600)
	detector := &fakeDetector{}
	f := newHumanizerFixture(detector, &fakeRewriter{}, &fakeScorer{})
	f.gate.authorizeErr = &InsufficientCreditsError{Requested: 2, Remaining: 0}

	_, err := f.svc.Humanize(context.Background(), uuid.New(), input, nil)

	var credErr *InsufficientCreditsError
	if !errors.As(err, &credErr) {
		t.Fatalf("Expected *InsufficientCreditsError, got %T: %v", err, err)
	}
	if detector.callCount() != 0 {
		t.Error("Entitlement rejection must happen before any detection call")
	}
}

func TestHumanize_MissingUser(t *testing.T) {
	f := newHumanizerFixture(&fakeDetector{}, &fakeRewriter{}, &fakeScorer{})

	_, err := f.svc.Humanize(context.Background(), uuid.Nil, "some text", nil)

	var unauthorized *UnauthorizedError
	if !errors.As(err, &unauthorized) {
		t.Fatalf("Expected *UnauthorizedError, got %T: %v", err, err)
	}
}

func TestHumanize_RecordsRunAndConsumesCredits(t *testing.T) {
	input := strings.Repeat("b", 700) // 2 credits
	detector := &fakeDetector{scores: map[string]float64{input: 0.1}}
	f := newHumanizerFixture(detector, &fakeRewriter{}, &fakeScorer{})

	userID := uuid.New()
	if _, err := f.svc.Humanize(context.Background(), userID, input, nil); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if len(f.runs.runs) != 1 {
		t.Fatalf("Expected 1 run record, got %d", len(f.runs.runs))
	}
	run := f.runs.runs[0]
	if run.UserID != userID {
		t.Errorf("Run recorded for wrong user")
	}
	if run.CreditsUsed != 2 {
		t.Errorf("Expected 2 credits on run record, got %d", run.CreditsUsed)
	}
	if f.gate.consumed != 2 {
		t.Errorf("Expected 2 credits consumed, got %d", f.gate.consumed)
	}
}

// ─── Floor decay ───

func TestDynamicFloor(t *testing.T) {
	tests := []struct {
		floor     float64
		iteration int
		expected  float64
	}{
		{0.85, 0, 0.85},
		{0.85, 1, 0.80},
		{0.85, 2, 0.75},
		{0.85, 3, 0.75}, // clamped
		{0.85, 10, 0.75},
		{0.90, 1, 0.85},
		{0.75, 0, 0.75},
	}

	for _, tc := range tests {
		got := dynamicFloor(tc.floor, tc.iteration)
		if diff := got - tc.expected; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("dynamicFloor(%v, %d) = %v, expected %v", tc.floor, tc.iteration, got, tc.expected)
		}
		if got < 0.75 || got > tc.floor {
			t.Errorf("dynamicFloor(%v, %d) = %v, outside [0.75, %v]", tc.floor, tc.iteration, got, tc.floor)
		}
	}
}
