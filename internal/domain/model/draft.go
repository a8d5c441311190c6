package model

import "time"

// Draft is the in-memory, per-requester working copy of a job being built
// through the interactive form. Never persisted; a restart discards it.
type Draft struct {
	RequesterID string

	Model          string
	Sampler        string
	Scheduler      string
	Steps          int
	CFG            float64
	Seed           int64
	Size           Size
	PositivePrompt string
	NegativePrompt string
	Adapters       []AdapterSlot

	CreatedAt time.Time
}

// ToJob copies the draft into a fresh Job shell; the caller assigns identity,
// origin and status.
func (d *Draft) ToJob() Job {
	adapters := make([]AdapterSlot, len(d.Adapters))
	copy(adapters, d.Adapters)
	return Job{
		Model:          d.Model,
		Sampler:        d.Sampler,
		Scheduler:      d.Scheduler,
		Steps:          d.Steps,
		CFG:            d.CFG,
		Seed:           d.Seed,
		Size:           d.Size,
		PositivePrompt: d.PositivePrompt,
		NegativePrompt: d.NegativePrompt,
		Adapters:       adapters,
	}
}

// DraftFromJob seeds a draft from a persisted job for the edit flow.
// Trigger words are not persisted, so slots come back without them.
func DraftFromJob(j *Job) Draft {
	adapters := make([]AdapterSlot, len(j.Adapters))
	copy(adapters, j.Adapters)
	return Draft{
		RequesterID:    j.RequesterID,
		Model:          j.Model,
		Sampler:        j.Sampler,
		Scheduler:      j.Scheduler,
		Steps:          j.Steps,
		CFG:            j.CFG,
		Seed:           j.Seed,
		Size:           j.Size,
		PositivePrompt: j.PositivePrompt,
		NegativePrompt: j.NegativePrompt,
		Adapters:       adapters,
		CreatedAt:      time.Now(),
	}
}
