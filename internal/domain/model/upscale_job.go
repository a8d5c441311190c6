package model

import "time"

// UpscaleJob is a derived job that re-renders one output image of a completed
// Job through an upscale workflow.
type UpscaleJob struct {
	ID              string
	RequesterID     string
	OriginScopeID   string
	OriginChannelID string
	Status          JobStatus

	SourceJobID         string
	SourceImageFilename string
	UpscaleModel        string

	BackendPromptID string
	OutputImages    []string
	ErrorMessage    string

	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}
