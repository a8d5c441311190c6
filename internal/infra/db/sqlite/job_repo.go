package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"discord-render-bot/internal/domain"
	"discord-render-bot/internal/domain/model"
	"discord-render-bot/internal/domain/ports/repository"
)

var _ repository.JobRepository = (*JobRepo)(nil)

type JobRepo struct {
	db *sql.DB
}

func NewJobRepo(db *DB) *JobRepo {
	return &JobRepo{db: db.db}
}

// persistedAdapter is the stored subset of an adapter slot; trigger words
// live in memory only.
type persistedAdapter struct {
	Name     string  `json:"name"`
	Strength float64 `json:"strength"`
}

func marshalAdapters(slots []model.AdapterSlot) (string, error) {
	out := make([]persistedAdapter, 0, len(slots))
	for _, a := range slots {
		if a.Empty() {
			continue
		}
		out = append(out, persistedAdapter{Name: a.Name, Strength: a.Strength})
	}
	b, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalAdapters(raw string) ([]model.AdapterSlot, error) {
	if raw == "" {
		return nil, nil
	}
	var stored []persistedAdapter
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, err
	}
	if len(stored) == 0 {
		return nil, nil
	}
	slots := make([]model.AdapterSlot, 0, len(stored))
	for _, a := range stored {
		slots = append(slots, model.AdapterSlot{Name: a.Name, Strength: a.Strength})
	}
	return slots, nil
}

func marshalFilenames(filenames []string) (string, error) {
	if filenames == nil {
		filenames = []string{}
	}
	b, err := json.Marshal(filenames)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *JobRepo) Insert(ctx context.Context, job *model.Job) error {
	if job.ID == "" {
		return fmt.Errorf("insert job: %w: empty id", domain.ErrInvalidArgument)
	}
	job.Status = model.JobStatusQueued
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	adapters, err := marshalAdapters(job.Adapters)
	if err != nil {
		return fmt.Errorf("marshal adapters: %w", err)
	}

	const q = `
INSERT INTO jobs (id, requester_id, origin_scope_id, origin_channel_id, status,
  model, sampler, scheduler, steps, cfg, seed, size,
  positive_prompt, negative_prompt, adapters_json, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = r.db.ExecContext(ctx, q,
		job.ID, job.RequesterID, job.OriginScopeID, job.OriginChannelID, string(job.Status),
		job.Model, job.Sampler, job.Scheduler, job.Steps, job.CFG, job.Seed, string(job.Size),
		job.PositivePrompt, job.NegativePrompt, adapters, job.CreatedAt.UnixMilli())
	return err
}

const jobColumns = `id, requester_id, origin_scope_id, origin_channel_id, status,
  model, sampler, scheduler, steps, cfg, seed, size,
  positive_prompt, negative_prompt, adapters_json,
  backend_prompt_id, output_images_json, error_message,
  created_at, started_at, completed_at`

func scanJob(row interface{ Scan(...any) error }) (*model.Job, error) {
	var j model.Job
	var status, size, adaptersRaw string
	var backendPromptID, outputsRaw, errorMsg sql.NullString
	var createdMs int64
	var startedMs, completedMs sql.NullInt64

	err := row.Scan(
		&j.ID, &j.RequesterID, &j.OriginScopeID, &j.OriginChannelID, &status,
		&j.Model, &j.Sampler, &j.Scheduler, &j.Steps, &j.CFG, &j.Seed, &size,
		&j.PositivePrompt, &j.NegativePrompt, &adaptersRaw,
		&backendPromptID, &outputsRaw, &errorMsg,
		&createdMs, &startedMs, &completedMs,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	j.Status = model.JobStatus(status)
	j.Size = model.Size(size)
	if j.Adapters, err = unmarshalAdapters(adaptersRaw); err != nil {
		return nil, fmt.Errorf("unmarshal adapters: %w", err)
	}
	if backendPromptID.Valid {
		j.BackendPromptID = backendPromptID.String
	}
	if outputsRaw.Valid {
		if err := json.Unmarshal([]byte(outputsRaw.String), &j.OutputImages); err != nil {
			return nil, fmt.Errorf("unmarshal output images: %w", err)
		}
		if j.OutputImages == nil {
			j.OutputImages = []string{}
		}
	}
	if errorMsg.Valid {
		j.ErrorMessage = errorMsg.String
	}
	j.CreatedAt = time.UnixMilli(createdMs)
	if startedMs.Valid {
		t := time.UnixMilli(startedMs.Int64)
		j.StartedAt = &t
	}
	if completedMs.Valid {
		t := time.UnixMilli(completedMs.Int64)
		j.CompletedAt = &t
	}
	return &j, nil
}

func (r *JobRepo) FindByID(ctx context.Context, id string) (*model.Job, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	return scanJob(row)
}

func (r *JobRepo) SetRunning(ctx context.Context, id, backendPromptID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, backend_prompt_id = ?, started_at = ? WHERE id = ?`,
		string(model.JobStatusRunning), backendPromptID, time.Now().UnixMilli(), id)
	return checkAffected(res, err)
}

func (r *JobRepo) SetCompleted(ctx context.Context, id string, filenames []string) error {
	outputs, err := marshalFilenames(filenames)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, output_images_json = ?, completed_at = ? WHERE id = ?`,
		string(model.JobStatusCompleted), outputs, time.Now().UnixMilli(), id)
	return checkAffected(res, err)
}

func (r *JobRepo) SetFailed(ctx context.Context, id, message string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, error_message = ?, completed_at = ? WHERE id = ?`,
		string(model.JobStatusFailed), message, time.Now().UnixMilli(), id)
	return checkAffected(res, err)
}

func (r *JobRepo) CountQueuedBefore(ctx context.Context, id string) (int, error) {
	const q = `
SELECT COUNT(*) FROM jobs
WHERE status = ? AND created_at < (SELECT created_at FROM jobs WHERE id = ?)`
	var n int
	err := r.db.QueryRowContext(ctx, q, string(model.JobStatusQueued), id).Scan(&n)
	return n, err
}

func (r *JobRepo) ListQueued(ctx context.Context) ([]*model.Job, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE status = ? ORDER BY created_at ASC`,
		string(model.JobStatusQueued))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// checkAffected translates a zero-row UPDATE into ErrNotFound.
func checkAffected(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
