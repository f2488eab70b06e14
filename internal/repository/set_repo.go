package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"timekill-backend/internal/models"
)

type SetRepo struct {
	pool *pgxpool.Pool
}

func NewSetRepo(pool *pgxpool.Pool) *SetRepo {
	return &SetRepo{pool: pool}
}

func (r *SetRepo) Create(ctx context.Context, s *models.NoteSet) error {
	s.ID = uuid.New()
	s.Status = "pending"

	query := `INSERT INTO note_sets (id, user_id, title, notes_text, status)
		VALUES ($1, $2, $3, $4, $5) RETURNING created_at`

	return r.pool.QueryRow(ctx, query,
		s.ID, s.UserID, s.Title, s.NotesText, s.Status,
	).Scan(&s.CreatedAt)
}

func (r *SetRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.NoteSet, error) {
	s := &models.NoteSet{}
	query := `SELECT id, user_id, title, notes_text, status, pair_count, created_at
		FROM note_sets WHERE id = $1`

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&s.ID, &s.UserID, &s.Title, &s.NotesText, &s.Status, &s.PairCount, &s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *SetRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.NoteSet, int, error) {
	var total int
	err := r.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM note_sets WHERE user_id = $1", userID,
	).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	query := `SELECT id, user_id, title, notes_text, status, pair_count, created_at
		FROM note_sets WHERE user_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var sets []*models.NoteSet
	for rows.Next() {
		s := &models.NoteSet{}
		err := rows.Scan(&s.ID, &s.UserID, &s.Title, &s.NotesText, &s.Status, &s.PairCount, &s.CreatedAt)
		if err != nil {
			return nil, 0, err
		}
		sets = append(sets, s)
	}

	return sets, total, rows.Err()
}

// CountByUser backs the TotalDocuments plan limit.
func (r *SetRepo) CountByUser(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM note_sets WHERE user_id = $1", userID,
	).Scan(&count)
	return count, err
}

func (r *SetRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := r.pool.Exec(ctx, "UPDATE note_sets SET status = $1 WHERE id = $2", status, id)
	return err
}

func (r *SetRepo) Delete(ctx context.Context, id uuid.UUID, userID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, "DELETE FROM note_sets WHERE id = $1 AND user_id = $2", id, userID)
	return err
}

// ReplacePairs stores the extracted pairs for a set and marks it completed.
func (r *SetRepo) ReplacePairs(ctx context.Context, setID uuid.UUID, pairs []models.Pair) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM pairs WHERE set_id = $1", setID); err != nil {
		return err
	}

	for i, p := range pairs {
		_, err := tx.Exec(ctx,
			`INSERT INTO pairs (id, set_id, term, definition, position) VALUES ($1, $2, $3, $4, $5)`,
			uuid.New(), setID, p.Term, p.Definition, i,
		)
		if err != nil {
			return err
		}
	}

	_, err = tx.Exec(ctx,
		"UPDATE note_sets SET status = 'completed', pair_count = $1 WHERE id = $2",
		len(pairs), setID,
	)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *SetRepo) ListPairs(ctx context.Context, setID uuid.UUID) ([]*models.Pair, error) {
	query := `SELECT id, set_id, term, definition, position, created_at
		FROM pairs WHERE set_id = $1 ORDER BY position ASC`

	rows, err := r.pool.Query(ctx, query, setID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pairs []*models.Pair
	for rows.Next() {
		p := &models.Pair{}
		err := rows.Scan(&p.ID, &p.SetID, &p.Term, &p.Definition, &p.Position, &p.CreatedAt)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, p)
	}

	return pairs, rows.Err()
}
