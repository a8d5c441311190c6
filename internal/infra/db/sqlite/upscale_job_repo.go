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

var _ repository.UpscaleJobRepository = (*UpscaleJobRepo)(nil)

type UpscaleJobRepo struct {
	db *sql.DB
}

func NewUpscaleJobRepo(db *DB) *UpscaleJobRepo {
	return &UpscaleJobRepo{db: db.db}
}

func (r *UpscaleJobRepo) Insert(ctx context.Context, job *model.UpscaleJob) error {
	if job.ID == "" {
		return fmt.Errorf("insert upscale job: %w: empty id", domain.ErrInvalidArgument)
	}
	job.Status = model.JobStatusQueued
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	const q = `
INSERT INTO upscale_jobs (id, requester_id, origin_scope_id, origin_channel_id, status,
  source_job_id, source_image_filename, upscale_model, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, q,
		job.ID, job.RequesterID, job.OriginScopeID, job.OriginChannelID, string(job.Status),
		job.SourceJobID, job.SourceImageFilename, job.UpscaleModel, job.CreatedAt.UnixMilli())
	return err
}

const upscaleColumns = `id, requester_id, origin_scope_id, origin_channel_id, status,
  source_job_id, source_image_filename, upscale_model,
  backend_prompt_id, output_images_json, error_message,
  created_at, started_at, completed_at`

func scanUpscaleJob(row interface{ Scan(...any) error }) (*model.UpscaleJob, error) {
	var j model.UpscaleJob
	var status string
	var backendPromptID, outputsRaw, errorMsg sql.NullString
	var createdMs int64
	var startedMs, completedMs sql.NullInt64

	err := row.Scan(
		&j.ID, &j.RequesterID, &j.OriginScopeID, &j.OriginChannelID, &status,
		&j.SourceJobID, &j.SourceImageFilename, &j.UpscaleModel,
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

func (r *UpscaleJobRepo) FindByID(ctx context.Context, id string) (*model.UpscaleJob, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+upscaleColumns+` FROM upscale_jobs WHERE id = ?`, id)
	return scanUpscaleJob(row)
}

func (r *UpscaleJobRepo) SetRunning(ctx context.Context, id, backendPromptID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE upscale_jobs SET status = ?, backend_prompt_id = ?, started_at = ? WHERE id = ?`,
		string(model.JobStatusRunning), backendPromptID, time.Now().UnixMilli(), id)
	return checkAffected(res, err)
}

func (r *UpscaleJobRepo) SetCompleted(ctx context.Context, id string, filenames []string) error {
	outputs, err := marshalFilenames(filenames)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE upscale_jobs SET status = ?, output_images_json = ?, completed_at = ? WHERE id = ?`,
		string(model.JobStatusCompleted), outputs, time.Now().UnixMilli(), id)
	return checkAffected(res, err)
}

func (r *UpscaleJobRepo) SetFailed(ctx context.Context, id, message string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE upscale_jobs SET status = ?, error_message = ?, completed_at = ? WHERE id = ?`,
		string(model.JobStatusFailed), message, time.Now().UnixMilli(), id)
	return checkAffected(res, err)
}

func (r *UpscaleJobRepo) ListQueued(ctx context.Context) ([]*model.UpscaleJob, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+upscaleColumns+` FROM upscale_jobs WHERE status = ? ORDER BY created_at ASC`,
		string(model.JobStatusQueued))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.UpscaleJob
	for rows.Next() {
		j, err := scanUpscaleJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}
