package queue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"discord-render-bot/internal/domain"
	"discord-render-bot/internal/domain/model"
	"discord-render-bot/internal/domain/ports/adapter"
	"discord-render-bot/internal/domain/ports/repository"
	"discord-render-bot/internal/infra/metrics"
	"discord-render-bot/internal/infra/workflow"

	"github.com/rs/zerolog"
)

const defaultPollInterval = 2 * time.Second

// Runner drains the FIFO one job at a time: bind, submit, poll, record,
// notify. The concurrency of 1 is a contract of the downstream renderer,
// not a tuning knob.
type Runner struct {
	jobs     repository.JobRepository
	upscales repository.UpscaleJobRepository
	binder   *workflow.Binder
	renderer adapter.RendererAdapter
	notifier adapter.ChatNotifier
	log      *zerolog.Logger

	pollInterval   time.Duration
	deadline       time.Duration
	upscaleEnabled bool

	q *fifo
}

func NewRunner(
	jobs repository.JobRepository,
	upscales repository.UpscaleJobRepository,
	binder *workflow.Binder,
	renderer adapter.RendererAdapter,
	notifier adapter.ChatNotifier,
	deadline time.Duration,
	upscaleEnabled bool,
	logger *zerolog.Logger,
) *Runner {
	runLog := logger.With().Str("component", "Runner").Logger()
	if deadline <= 0 {
		deadline = 300 * time.Second
	}
	return &Runner{
		jobs:           jobs,
		upscales:       upscales,
		binder:         binder,
		renderer:       renderer,
		notifier:       notifier,
		log:            &runLog,
		pollInterval:   defaultPollInterval,
		deadline:       deadline,
		upscaleEnabled: upscaleEnabled,
		q:              newFIFO(),
	}
}

// Enqueue appends a job and arms a wake-up. The ephemeral token, when
// present, is consumed exactly once by the runner.
func (r *Runner) Enqueue(jobID string, kind Kind, ephemeralToken string) {
	r.q.push(jobID, kind, ephemeralToken)
	metrics.SetQueueDepth(r.q.len())
}

// Len reports pending entries, excluding the one being processed.
func (r *Runner) Len() int { return r.q.len() }

// RecoverQueued re-enqueues rows left queued by a previous process, oldest
// first, so a restart preserves fairness. Their ephemeral tokens are gone
// with the old process.
func (r *Runner) RecoverQueued(ctx context.Context) error {
	gens, err := r.jobs.ListQueued(ctx)
	if err != nil {
		return fmt.Errorf("recover queued jobs: %w", err)
	}
	ups, err := r.upscales.ListQueued(ctx)
	if err != nil {
		return fmt.Errorf("recover queued upscale jobs: %w", err)
	}

	type pending struct {
		id      string
		kind    Kind
		created time.Time
	}
	all := make([]pending, 0, len(gens)+len(ups))
	for _, j := range gens {
		all = append(all, pending{j.ID, KindGeneration, j.CreatedAt})
	}
	for _, j := range ups {
		all = append(all, pending{j.ID, KindUpscale, j.CreatedAt})
	}
	sort.Slice(all, func(i, k int) bool { return all[i].created.Before(all[k].created) })

	for _, p := range all {
		r.q.push(p.id, p.kind, "")
	}
	if len(all) > 0 {
		r.log.Info().Int("count", len(all)).Msg("re-enqueued queued rows from store")
	}
	return nil
}

// Run drains the queue until the context is cancelled. Single goroutine;
// jobs never interleave.
func (r *Runner) Run(ctx context.Context) error {
	r.log.Info().Msg("runner started")
	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("runner stopping")
			return ctx.Err()
		case <-r.q.wake:
			for {
				head, ok := r.q.pop()
				if !ok {
					break
				}
				r.processOne(ctx, head)
				r.q.finish()
				metrics.SetQueueDepth(r.q.len())
				if ctx.Err() != nil {
					return ctx.Err()
				}
			}
		}
	}
}

func (r *Runner) processOne(ctx context.Context, e entry) {
	start := time.Now()
	var err error
	switch e.kind {
	case KindUpscale:
		err = r.processUpscale(ctx, e.jobID)
	default:
		err = r.processGeneration(ctx, e.jobID)
	}
	if err != nil {
		// Row status is already updated by the time errors surface here;
		// log and advance so the runner is never stuck.
		r.log.Error().Err(err).Str("job_id", e.jobID).Str("kind", string(e.kind)).Msg("job processing error")
	}
	r.log.Info().Str("job_id", e.jobID).Str("kind", string(e.kind)).
		Dur("duration", time.Since(start)).Msg("job finished")
}

func (r *Runner) processGeneration(ctx context.Context, jobID string) error {
	job, err := r.jobs.FindByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			r.log.Warn().Str("job_id", jobID).Msg("queued job row missing; dropping")
			return nil
		}
		return err
	}
	token := r.q.takeToken(jobID)

	graph, err := r.binder.BindGeneration(job)
	if err != nil {
		return r.failJob(ctx, job, token, fmt.Sprintf("workflow bind failed: %v", err))
	}

	submitStart := time.Now()
	promptID, err := r.renderer.Submit(ctx, graph)
	metrics.ObserveRendererCall("submit", int(time.Since(submitStart)/time.Millisecond), err == nil)
	if err != nil {
		return r.failJob(ctx, job, token, fmt.Sprintf("renderer submit failed: %v", err))
	}
	if err := r.jobs.SetRunning(ctx, job.ID, promptID); err != nil {
		return fmt.Errorf("set running: %w", err)
	}
	r.ephemeral(ctx, token, "Your render is running…")

	entry, err := r.poll(ctx, promptID)
	if err != nil {
		return r.failJob(ctx, job, token,
			fmt.Sprintf("render timed out waiting for backend prompt %s", promptID))
	}

	filenames := collectFilenames(entry)
	if len(filenames) == 0 {
		r.log.Warn().Str("job_id", job.ID).Str("prompt_id", promptID).Msg("completed with no output images")
	}
	if err := r.jobs.SetCompleted(ctx, job.ID, filenames); err != nil {
		return fmt.Errorf("set completed: %w", err)
	}
	metrics.IncJob(string(model.JobStatusCompleted), string(KindGeneration))

	r.postGenerationResult(ctx, job, promptID, filenames)
	r.ephemeral(ctx, token, "Done! Results posted.")
	return nil
}

func (r *Runner) processUpscale(ctx context.Context, jobID string) error {
	job, err := r.upscales.FindByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			r.log.Warn().Str("job_id", jobID).Msg("queued upscale row missing; dropping")
			return nil
		}
		return err
	}
	token := r.q.takeToken(jobID)

	// The ultimate template re-encodes the source prompts; best-effort, the
	// source row may already be purged.
	source, err := r.jobs.FindByID(ctx, job.SourceJobID)
	if err != nil {
		source = nil
	}

	graph, err := r.binder.BindUpscale(job, job.SourceImageFilename, source)
	if err != nil {
		return r.failUpscale(ctx, job, token, fmt.Sprintf("workflow bind failed: %v", err))
	}

	submitStart := time.Now()
	promptID, err := r.renderer.Submit(ctx, graph)
	metrics.ObserveRendererCall("submit", int(time.Since(submitStart)/time.Millisecond), err == nil)
	if err != nil {
		return r.failUpscale(ctx, job, token, fmt.Sprintf("renderer submit failed: %v", err))
	}
	if err := r.upscales.SetRunning(ctx, job.ID, promptID); err != nil {
		return fmt.Errorf("set running: %w", err)
	}
	r.ephemeral(ctx, token, "Your upscale is running…")

	entry, err := r.poll(ctx, promptID)
	if err != nil {
		return r.failUpscale(ctx, job, token,
			fmt.Sprintf("upscale timed out waiting for backend prompt %s", promptID))
	}

	filenames := collectFilenames(entry)
	if len(filenames) == 0 {
		r.log.Warn().Str("job_id", job.ID).Str("prompt_id", promptID).Msg("completed with no output images")
	}
	if err := r.upscales.SetCompleted(ctx, job.ID, filenames); err != nil {
		return fmt.Errorf("set completed: %w", err)
	}
	metrics.IncJob(string(model.JobStatusCompleted), string(KindUpscale))

	files := r.fetchResultFiles(ctx, promptID, filenames)
	if err := r.notifier.PostUpscaleResult(ctx, job.OriginChannelID, job.RequesterID, job.ID, files); err != nil {
		r.log.Warn().Err(err).Str("job_id", job.ID).Msg("failed to post upscale result")
	}
	r.ephemeral(ctx, token, "Done! Upscale posted.")
	return nil
}

// poll asks the history endpoint every pollInterval until the entry reports
// completion or the deadline elapses. Once completed, no further polling
// occurs for that prompt.
func (r *Runner) poll(ctx context.Context, promptID string) (*adapter.HistoryEntry, error) {
	deadline := time.Now().Add(r.deadline)
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			if time.Now().After(deadline) {
				return nil, fmt.Errorf("deadline elapsed")
			}
			entry, err := r.renderer.History(ctx, promptID)
			if err != nil || entry == nil {
				// Not ready; persistent inability resolves via the deadline.
				continue
			}
			if entry.Completed {
				return entry, nil
			}
		}
	}
}

// collectFilenames gathers filenames from every output node's images, node
// ids in sorted order so the result is deterministic.
func collectFilenames(entry *adapter.HistoryEntry) []string {
	nodeIDs := make([]string, 0, len(entry.Outputs))
	for id := range entry.Outputs {
		nodeIDs = append(nodeIDs, id)
	}
	sort.Strings(nodeIDs)

	filenames := []string{}
	for _, id := range nodeIDs {
		for _, img := range entry.Outputs[id] {
			filenames = append(filenames, img.Filename)
		}
	}
	return filenames
}

func (r *Runner) postGenerationResult(ctx context.Context, job *model.Job, promptID string, filenames []string) {
	files := r.fetchResultFiles(ctx, promptID, filenames)
	summary := adapter.JobSummary{
		Model:     job.Model,
		Sampler:   job.Sampler,
		Scheduler: job.Scheduler,
		Steps:     job.Steps,
		CFG:       job.CFG,
		Seed:      job.Seed,
		Size:      string(job.Size),
	}
	if err := r.notifier.PostResult(ctx, job.OriginChannelID, job.RequesterID, job.ID, summary, files, r.upscaleEnabled); err != nil {
		r.log.Warn().Err(err).Str("job_id", job.ID).Msg("failed to post result")
	}
}

// fetchResultFiles re-reads the history entry to rediscover each filename's
// subfolder/type, then downloads the bytes. Failures skip the file.
func (r *Runner) fetchResultFiles(ctx context.Context, promptID string, filenames []string) []adapter.ResultFile {
	entry, err := r.renderer.History(ctx, promptID)
	if err != nil || entry == nil {
		r.log.Warn().Str("prompt_id", promptID).Msg("history entry unavailable for attachment fetch")
		return nil
	}

	locations := map[string]adapter.HistoryImage{}
	for _, images := range entry.Outputs {
		for _, img := range images {
			locations[img.Filename] = img
		}
	}

	var files []adapter.ResultFile
	for _, name := range filenames {
		loc, ok := locations[name]
		if !ok {
			continue
		}
		data, err := r.renderer.FetchImage(ctx, loc.Filename, loc.Subfolder, loc.Type)
		if err != nil {
			r.log.Warn().Err(err).Str("filename", name).Msg("failed to fetch result image")
			continue
		}
		files = append(files, adapter.ResultFile{Filename: name, Data: data})
	}
	return files
}

func (r *Runner) failJob(ctx context.Context, job *model.Job, token, reason string) error {
	if err := r.jobs.SetFailed(ctx, job.ID, reason); err != nil {
		return fmt.Errorf("set failed: %w", err)
	}
	metrics.IncJob(string(model.JobStatusFailed), string(KindGeneration))
	if err := r.notifier.PostFailure(ctx, job.OriginChannelID, job.RequesterID, reason); err != nil {
		r.log.Warn().Err(err).Str("job_id", job.ID).Msg("failed to post failure notice")
	}
	r.ephemeral(ctx, token, "Your render failed: "+reason)
	return nil
}

func (r *Runner) failUpscale(ctx context.Context, job *model.UpscaleJob, token, reason string) error {
	if err := r.upscales.SetFailed(ctx, job.ID, reason); err != nil {
		return fmt.Errorf("set failed: %w", err)
	}
	metrics.IncJob(string(model.JobStatusFailed), string(KindUpscale))
	if err := r.notifier.PostFailure(ctx, job.OriginChannelID, job.RequesterID, reason); err != nil {
		r.log.Warn().Err(err).Str("job_id", job.ID).Msg("failed to post failure notice")
	}
	r.ephemeral(ctx, token, "Your upscale failed: "+reason)
	return nil
}

// ephemeral updates the requester's private reply; failures are expected
// (the token may have expired) and only logged.
func (r *Runner) ephemeral(ctx context.Context, token, content string) {
	if token == "" {
		return
	}
	if err := r.notifier.UpdateEphemeral(ctx, token, content); err != nil {
		r.log.Debug().Err(err).Msg("ephemeral update failed")
	}
}
