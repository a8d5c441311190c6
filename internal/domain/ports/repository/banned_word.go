package repository

import (
	"context"

	"discord-render-bot/internal/domain/model"
)

type BannedWordRepository interface {
	// Add stores a new entry; the word is unique case-insensitively.
	Add(ctx context.Context, word *model.BannedWord) error
	// Remove deletes by word, case-insensitively. ErrNotFound when absent.
	Remove(ctx context.Context, word string) error
	List(ctx context.Context) ([]model.BannedWord, error)
}
