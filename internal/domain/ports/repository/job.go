package repository

import (
	"context"

	"discord-render-bot/internal/domain/model"
)

type JobRepository interface {
	// Insert persists a new job with status queued and stamps created_at.
	Insert(ctx context.Context, job *model.Job) error

	FindByID(ctx context.Context, id string) (*model.Job, error)

	// SetRunning stamps started_at and records the backend prompt id.
	SetRunning(ctx context.Context, id, backendPromptID string) error
	// SetCompleted stamps completed_at and stores the output filenames.
	SetCompleted(ctx context.Context, id string, filenames []string) error
	// SetFailed stamps completed_at and stores the failure message.
	SetFailed(ctx context.Context, id, message string) error

	// CountQueuedBefore counts queued jobs created strictly before the given
	// job; used to display queue position.
	CountQueuedBefore(ctx context.Context, id string) (int, error)

	// ListQueued returns queued jobs in created_at order, for the boot
	// recovery sweep.
	ListQueued(ctx context.Context) ([]*model.Job, error)
}
