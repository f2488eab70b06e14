package services

import (
	"strings"
	"testing"
)

func TestParsePairArray(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected int
		wantErr  bool
	}{
		{
			name:     "plain array",
			input:    `[{"term":"osmosis","definition":"Movement of water across a membrane."}]`,
			expected: 1,
		},
		{
			name: "fenced array",
			input: "```json\n" +
				`[{"term":"mitosis","definition":"Cell division producing identical cells."},{"term":"meiosis","definition":"Cell division producing gametes."}]` +
				"\n```",
			expected: 2,
		},
		{
			name:     "array buried in prose",
			input:    `Here are your pairs: [{"term":"ATP","definition":"The cell's energy currency."}] Hope that helps!`,
			expected: 1,
		},
		{
			name:     "duplicate terms collapse",
			input:    `[{"term":"Enzyme","definition":"A biological catalyst."},{"term":"enzyme","definition":"Speeds up reactions."}]`,
			expected: 1,
		},
		{
			name:     "blank entries dropped",
			input:    `[{"term":"","definition":"orphan"},{"term":"valid","definition":"kept"}]`,
			expected: 1,
		},
		{
			name:    "no array at all",
			input:   "I cannot extract pairs from this.",
			wantErr: true,
		},
		{
			name:    "only blank entries",
			input:   `[{"term":"","definition":""}]`,
			wantErr: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			pairs, err := parsePairArray(tc.input)
			if tc.wantErr {
				if err == nil {
					t.Fatal("Expected parse error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if len(pairs) != tc.expected {
				t.Errorf("Expected %d pairs, got %d", tc.expected, len(pairs))
			}
			for i, p := range pairs {
				if p.Position != i {
					t.Errorf("Pair %d has position %d", i, p.Position)
				}
			}
		})
	}
}

func TestBuildPairPrompt(t *testing.T) {
	notes := "The mitochondria is the powerhouse of the cell."
	prompt := buildPairPrompt(notes)

	if !strings.Contains(prompt, notes) {
		t.Error("Prompt missing the source notes")
	}
	if !strings.Contains(prompt, "JSON array") {
		t.Error("Prompt missing the JSON array demand")
	}
	if !strings.Contains(prompt, "never invent facts") {
		t.Error("Prompt missing the grounding rule")
	}
}
