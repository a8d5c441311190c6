package repository

import (
	"context"

	"discord-render-bot/internal/domain/model"
)

type UpscaleJobRepository interface {
	Insert(ctx context.Context, job *model.UpscaleJob) error
	FindByID(ctx context.Context, id string) (*model.UpscaleJob, error)
	SetRunning(ctx context.Context, id, backendPromptID string) error
	SetCompleted(ctx context.Context, id string, filenames []string) error
	SetFailed(ctx context.Context, id, message string) error
	ListQueued(ctx context.Context) ([]*model.UpscaleJob, error)
}
