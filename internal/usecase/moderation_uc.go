package usecase

import (
	"context"
	"strings"

	"discord-render-bot/internal/domain"
	"discord-render-bot/internal/domain/model"
	"discord-render-bot/internal/domain/ports/repository"
	"discord-render-bot/internal/infra/guard"

	"github.com/rs/zerolog"
)

// ModerationUseCase is the owner-only banned-word CRUD. Every mutation
// invalidates the guard's cached list.
type ModerationUseCase struct {
	words repository.BannedWordRepository
	guard *guard.Guard
	log   *zerolog.Logger
}

func NewModerationUseCase(words repository.BannedWordRepository, g *guard.Guard, logger *zerolog.Logger) *ModerationUseCase {
	ulog := logger.With().Str("component", "ModerationUC").Logger()
	return &ModerationUseCase{words: words, guard: g, log: &ulog}
}

func (uc *ModerationUseCase) Add(ctx context.Context, word string, partial bool, addedBy string) error {
	word = strings.TrimSpace(word)
	if word == "" {
		return domain.ErrInvalidArgument
	}
	if err := uc.words.Add(ctx, &model.BannedWord{Word: word, Partial: partial, AddedBy: addedBy}); err != nil {
		return err
	}
	uc.guard.Invalidate()
	uc.log.Info().Str("word", word).Bool("partial", partial).Str("by", addedBy).Msg("banned word added")
	return nil
}

func (uc *ModerationUseCase) Remove(ctx context.Context, word string) error {
	if err := uc.words.Remove(ctx, word); err != nil {
		return err
	}
	uc.guard.Invalidate()
	uc.log.Info().Str("word", word).Msg("banned word removed")
	return nil
}

func (uc *ModerationUseCase) List(ctx context.Context) ([]model.BannedWord, error) {
	return uc.words.List(ctx)
}
