package models

import (
	"time"

	"github.com/google/uuid"
)

// NoteSet is a named batch of term/definition pairs extracted from one
// submission of notes.
type NoteSet struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Title     string    `json:"title"`
	NotesText string    `json:"notes_text"`
	Status    string    `json:"status"` // "pending" | "processing" | "completed" | "failed"
	PairCount int       `json:"pair_count"`
	CreatedAt time.Time `json:"created_at"`
}

type Pair struct {
	ID         uuid.UUID `json:"id"`
	SetID      uuid.UUID `json:"set_id"`
	Term       string    `json:"term"`
	Definition string    `json:"definition"`
	Position   int       `json:"position"`
	CreatedAt  time.Time `json:"created_at"`
}

type GeneratePairsRequest struct {
	Title string `json:"title"`
	Notes string `json:"notes"`
}
