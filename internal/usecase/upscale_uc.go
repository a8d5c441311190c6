package usecase

import (
	"context"
	"fmt"

	"discord-render-bot/internal/domain"
	"discord-render-bot/internal/domain/model"
	"discord-render-bot/internal/domain/ports/adapter"
	"discord-render-bot/internal/domain/ports/repository"
	"discord-render-bot/internal/infra/queue"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// UpscaleUseCase derives an upscale job from a completed generation: it
// pulls the source image out of the renderer's file store, re-uploads it to
// the input folder, persists the row, and enqueues it.
type UpscaleUseCase struct {
	jobs         repository.JobRepository
	upscales     repository.UpscaleJobRepository
	renderer     adapter.RendererAdapter
	runner       *queue.Runner
	upscaleModel string
	log          *zerolog.Logger
}

func NewUpscaleUseCase(
	jobs repository.JobRepository,
	upscales repository.UpscaleJobRepository,
	renderer adapter.RendererAdapter,
	runner *queue.Runner,
	upscaleModel string,
	logger *zerolog.Logger,
) *UpscaleUseCase {
	ulog := logger.With().Str("component", "UpscaleUC").Logger()
	return &UpscaleUseCase{
		jobs:         jobs,
		upscales:     upscales,
		renderer:     renderer,
		runner:       runner,
		upscaleModel: upscaleModel,
		log:          &ulog,
	}
}

// Submit upscales the first output image of a completed job. Requester-only.
func (uc *UpscaleUseCase) Submit(ctx context.Context, sourceJobID, requesterID string, origin Origin, ephemeralToken string) (*model.UpscaleJob, error) {
	src, err := uc.jobs.FindByID(ctx, sourceJobID)
	if err != nil {
		return nil, err
	}
	if src.RequesterID != requesterID {
		return nil, domain.ErrNotAllowed
	}
	if src.Status != model.JobStatusCompleted || len(src.OutputImages) == 0 {
		return nil, fmt.Errorf("%w: job has no output image", domain.ErrInvalidArgument)
	}
	filename := src.OutputImages[0]

	// The result may live in an output subfolder; rediscover its location
	// through the history entry before fetching.
	subfolder, imgType := "", "output"
	if entry, err := uc.renderer.History(ctx, src.BackendPromptID); err == nil && entry != nil {
		for _, images := range entry.Outputs {
			for _, img := range images {
				if img.Filename == filename {
					subfolder, imgType = img.Subfolder, img.Type
				}
			}
		}
	}

	data, err := uc.renderer.FetchImage(ctx, filename, subfolder, imgType)
	if err != nil {
		return nil, fmt.Errorf("fetch source image: %w", err)
	}
	uploaded, err := uc.renderer.UploadImage(ctx, data, filename)
	if err != nil {
		return nil, fmt.Errorf("upload source image: %w", err)
	}

	job := model.UpscaleJob{
		ID:                  uuid.NewString(),
		RequesterID:         requesterID,
		OriginScopeID:       origin.ScopeID,
		OriginChannelID:     origin.ChannelID,
		SourceJobID:         src.ID,
		SourceImageFilename: uploaded.Name,
		UpscaleModel:        uc.upscaleModel,
	}
	if err := uc.upscales.Insert(ctx, &job); err != nil {
		return nil, fmt.Errorf("persist upscale job: %w", err)
	}
	uc.runner.Enqueue(job.ID, queue.KindUpscale, ephemeralToken)

	uc.log.Info().Str("job_id", job.ID).Str("source_job_id", src.ID).Msg("upscale enqueued")
	return &job, nil
}
