package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"discord-render-bot/internal/domain"
	"discord-render-bot/internal/domain/model"
	"discord-render-bot/internal/domain/ports/repository"
)

var _ repository.BannedWordRepository = (*BannedWordRepo)(nil)

type BannedWordRepo struct {
	db *sql.DB
}

func NewBannedWordRepo(db *DB) *BannedWordRepo {
	return &BannedWordRepo{db: db.db}
}

func (r *BannedWordRepo) Add(ctx context.Context, word *model.BannedWord) error {
	w := strings.TrimSpace(word.Word)
	if w == "" {
		return domain.ErrInvalidArgument
	}
	if word.AddedAt.IsZero() {
		word.AddedAt = time.Now()
	}
	partial := 0
	if word.Partial {
		partial = 1
	}
	// word is COLLATE NOCASE, so the primary key enforces the
	// case-insensitive uniqueness.
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO banned_words (word, partial, added_by, added_at) VALUES (?, ?, ?, ?)`,
		w, partial, word.AddedBy, word.AddedAt.UnixMilli())
	if err != nil && strings.Contains(err.Error(), "UNIQUE") {
		return domain.ErrAlreadyExists
	}
	return err
}

func (r *BannedWordRepo) Remove(ctx context.Context, word string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM banned_words WHERE word = ? COLLATE NOCASE`, strings.TrimSpace(word))
	return checkAffected(res, err)
}

func (r *BannedWordRepo) List(ctx context.Context) ([]model.BannedWord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT word, partial, added_by, added_at FROM banned_words ORDER BY word`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.BannedWord
	for rows.Next() {
		var w model.BannedWord
		var partial int
		var addedMs int64
		if err := rows.Scan(&w.Word, &partial, &w.AddedBy, &addedMs); err != nil {
			return nil, err
		}
		w.Partial = partial != 0
		w.AddedAt = time.UnixMilli(addedMs)
		out = append(out, w)
	}
	return out, rows.Err()
}
