package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"

	"google.golang.org/api/option"
)

// Rewriter produces several diverse paraphrases of a text. The semantic
// floor is passed to the prompt as a target only; actual enforcement happens
// locally via the similarity scorer.
type Rewriter interface {
	Rewrite(ctx context.Context, text string, iteration int, semanticFloor float64) ([]string, error)
}

// RewriteService generates paraphrases with Gemini Flash.
type RewriteService struct {
	client    *genai.Client
	modelName string
	rateChan  chan struct{} // Token bucket
}

func NewRewriteService(apiKey string, concurrentReqs int) (*RewriteService, error) {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	rateChan := make(chan struct{}, concurrentReqs)
	for i := 0; i < concurrentReqs; i++ {
		rateChan <- struct{}{}
	}

	return &RewriteService{
		client:    client,
		modelName: "gemini-3-flash-preview",
		rateChan:  rateChan,
	}, nil
}

func (s *RewriteService) Close() {
	s.client.Close()
}

// acquireRate blocks until a rate slot is available
func (s *RewriteService) acquireRate(ctx context.Context) error {
	select {
	case <-s.rateChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Minute):
		return fmt.Errorf("timeout waiting for Gemini rate slot")
	}
}

func (s *RewriteService) releaseRate() {
	s.rateChan <- struct{}{}
}

func (s *RewriteService) Rewrite(ctx context.Context, text string, iteration int, semanticFloor float64) ([]string, error) {
	if err := s.acquireRate(ctx); err != nil {
		return nil, err
	}
	defer s.releaseRate()

	count := rewriteCount(iteration)

	// Temperature rises with each failed round to push the model toward
	// more divergent phrasings.
	model := s.client.GenerativeModel(s.modelName)
	model.SetTemperature(rewriteTemperature(iteration))
	model.SetTopP(0.95)
	// Constrained JSON output; the bracket-scanning parser stays as a
	// fallback for providers that ignore the MIME type.
	model.ResponseMIMEType = "application/json"

	prompt := buildRewritePrompt(text, count, semanticFloor)

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, &GenerationError{Reason: fmt.Sprintf("Gemini API error: %v", err)}
	}

	rawText := extractText(resp)
	rewrites, err := parseRewriteArray(rawText)
	if err != nil {
		return nil, err
	}

	return rewrites, nil
}

func rewriteTemperature(iteration int) float32 {
	return float32(0.5 + 0.1*float64(iteration))
}

// rewriteCount asks for mildly more diversity in later rounds, capped at 5.
func rewriteCount(iteration int) int {
	extra := iteration
	if extra > 2 {
		extra = 2
	}
	return 3 + extra
}

func buildRewritePrompt(text string, count int, semanticFloor float64) string {
	var b strings.Builder

	b.WriteString("You are an expert editor who rewrites text so it reads like natural human writing.\n\n")
	b.WriteString("CRITICAL: Return ONLY a valid JSON array of strings. No preamble, no markdown, no backticks.\n\n")
	b.WriteString(fmt.Sprintf("Produce exactly %d distinct rewrites of the text below.\n\n", count))
	b.WriteString(`Rules:
- Preserve every fact, name, number, and claim exactly
- Do NOT reuse the original sentence structure; vary rhythm and word choice
- Keep roughly the original length; never truncate or summarize
- Use contractions, varied sentence lengths, and plain vocabulary
`)
	b.WriteString(fmt.Sprintf("- Aim to keep at least %.0f%% semantic similarity to the original\n", semanticFloor*100))

	b.WriteString("\n---TEXT START---\n")
	b.WriteString(text)
	b.WriteString("\n---TEXT END---\n")

	return b.String()
}

// parseRewriteArray tolerates models wrapping the JSON array in prose or
// code fences: strip fences, then scan for the first '[' and last ']'.
func parseRewriteArray(rawText string) ([]string, error) {
	rawText = strings.TrimPrefix(rawText, "```json")
	rawText = strings.TrimPrefix(rawText, "```")
	rawText = strings.TrimSuffix(rawText, "```")
	rawText = strings.TrimSpace(rawText)

	var rewrites []string
	if err := json.Unmarshal([]byte(rawText), &rewrites); err != nil {
		start := strings.Index(rawText, "[")
		end := strings.LastIndex(rawText, "]")
		if start < 0 || end <= start {
			return nil, &GenerationError{Reason: "no JSON array found in model response"}
		}
		if err := json.Unmarshal([]byte(rawText[start:end+1]), &rewrites); err != nil {
			return nil, &GenerationError{Reason: fmt.Sprintf("failed to parse rewrite array: %v", err)}
		}
	}

	// Drop empty entries the model sometimes pads with.
	valid := rewrites[:0]
	for _, r := range rewrites {
		if strings.TrimSpace(r) != "" {
			valid = append(valid, r)
		}
	}

	if len(valid) == 0 {
		return nil, &GenerationError{Reason: "model returned no usable rewrites"}
	}

	return valid, nil
}

func extractText(resp *genai.GenerateContentResponse) string {
	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				if t, ok := part.(genai.Text); ok {
					text.WriteString(string(t))
				}
			}
		}
	}
	return text.String()
}
