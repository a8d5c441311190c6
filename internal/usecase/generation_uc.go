package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"discord-render-bot/internal/domain"
	"discord-render-bot/internal/domain/model"
	"discord-render-bot/internal/domain/ports/repository"
	"discord-render-bot/internal/infra/guard"
	"discord-render-bot/internal/infra/metrics"
	"discord-render-bot/internal/infra/queue"
	"discord-render-bot/internal/infra/session"
	"discord-render-bot/internal/infra/workflow"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// PolicyError lists the banned entries a submission matched.
type PolicyError struct {
	Matches []model.BannedWord
}

func (e *PolicyError) Error() string {
	words := make([]string, len(e.Matches))
	for i, m := range e.Matches {
		words[i] = m.Word
	}
	return "blocked by content policy: " + strings.Join(words, ", ")
}

func (e *PolicyError) Unwrap() error { return domain.ErrPolicyViolation }

// Origin carries where a submission came from.
type Origin struct {
	ScopeID   string
	ChannelID string
}

// GenerationUseCase owns the path from a finished draft to an enqueued job,
// and the derived re-roll / edit operations.
type GenerationUseCase struct {
	jobs   repository.JobRepository
	drafts *session.DraftStore
	guard  *guard.Guard
	binder *workflow.Binder
	runner *queue.Runner
	log    *zerolog.Logger
}

func NewGenerationUseCase(
	jobs repository.JobRepository,
	drafts *session.DraftStore,
	g *guard.Guard,
	binder *workflow.Binder,
	runner *queue.Runner,
	logger *zerolog.Logger,
) *GenerationUseCase {
	ulog := logger.With().Str("component", "GenerationUC").Logger()
	return &GenerationUseCase{jobs: jobs, drafts: drafts, guard: g, binder: binder, runner: runner, log: &ulog}
}

// Submit validates the requester's draft, runs the content guard over both
// prompts, revalidates the template, persists the job, enqueues it, and
// destroys the draft. Returns the job and its queue position.
func (uc *GenerationUseCase) Submit(ctx context.Context, requesterID string, origin Origin, ephemeralToken string) (*model.Job, int, error) {
	draft, err := uc.drafts.Get(requesterID)
	if err != nil {
		return nil, 0, err
	}

	if strings.TrimSpace(draft.PositivePrompt) == "" {
		metrics.IncSubmission("validation")
		return nil, 0, invalid("positive prompt", "must not be empty")
	}

	matches, err := uc.guard.Check(ctx, draft.PositivePrompt+" "+draft.NegativePrompt)
	if err != nil {
		return nil, 0, fmt.Errorf("content guard: %w", err)
	}
	if len(matches) > 0 {
		metrics.IncGuardBlock()
		metrics.IncSubmission("policy")
		return nil, 0, &PolicyError{Matches: matches}
	}

	// Catch template drift before persisting anything.
	if err := uc.binder.ValidateBase(); err != nil {
		metrics.IncSubmission("bind")
		return nil, 0, fmt.Errorf("%w: %v", domain.ErrBindFailed, err)
	}

	job := draft.ToJob()
	job.ID = uuid.NewString()
	job.RequesterID = requesterID
	job.OriginScopeID = origin.ScopeID
	job.OriginChannelID = origin.ChannelID

	if err := uc.jobs.Insert(ctx, &job); err != nil {
		return nil, 0, fmt.Errorf("persist job: %w", err)
	}
	position, err := uc.jobs.CountQueuedBefore(ctx, job.ID)
	if err != nil {
		position = 0
	}

	uc.runner.Enqueue(job.ID, queue.KindGeneration, ephemeralToken)
	uc.drafts.Delete(requesterID)
	metrics.IncSubmission("accepted")

	uc.log.Info().Str("job_id", job.ID).Str("requester", requesterID).
		Int("position", position).Msg("job submitted")
	return &job, position, nil
}

// Reroll synthesises a fresh job from a completed one with a new seed.
// Requester-only.
func (uc *GenerationUseCase) Reroll(ctx context.Context, jobID, requesterID, ephemeralToken string) (*model.Job, error) {
	src, err := uc.jobs.FindByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if src.RequesterID != requesterID {
		return nil, domain.ErrNotAllowed
	}

	job := *src
	job.ID = uuid.NewString()
	job.Seed = session.RandomSeed()
	job.Status = model.JobStatusQueued
	job.BackendPromptID = ""
	job.OutputImages = nil
	job.ErrorMessage = ""
	job.StartedAt = nil
	job.CompletedAt = nil
	job.CreatedAt = time.Time{} // Insert stamps now

	if err := uc.jobs.Insert(ctx, &job); err != nil {
		return nil, fmt.Errorf("persist reroll: %w", err)
	}
	uc.runner.Enqueue(job.ID, queue.KindGeneration, ephemeralToken)

	uc.log.Info().Str("job_id", job.ID).Str("source_job_id", jobID).Msg("reroll enqueued")
	return &job, nil
}

// EditDraft seeds a draft from a persisted job for the edit flow.
// Requester-only.
func (uc *GenerationUseCase) EditDraft(ctx context.Context, jobID, requesterID string) (*model.Draft, error) {
	src, err := uc.jobs.FindByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if src.RequesterID != requesterID {
		return nil, domain.ErrNotAllowed
	}
	return uc.drafts.InitFromJob(requesterID, src), nil
}

// Job loads a row for the share-prompt and delete flows.
func (uc *GenerationUseCase) Job(ctx context.Context, jobID string) (*model.Job, error) {
	return uc.jobs.FindByID(ctx, jobID)
}
