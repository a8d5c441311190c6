package adapter

import "context"

// ResultFile is one attachment of a result post.
type ResultFile struct {
	Filename string
	Data     []byte
}

// JobSummary is the structured recap shown beside a result.
type JobSummary struct {
	Model     string
	Sampler   string
	Scheduler string
	Steps     int
	CFG       float64
	Seed      int64
	Size      string
}

// ChatNotifier is what the runner needs from the chat platform: public result
// and failure posts, and best-effort private updates through a one-shot
// ephemeral token. All failures are logged, never fatal; the token may have
// expired.
type ChatNotifier interface {
	PostResult(ctx context.Context, channelID, requesterID, jobID string, summary JobSummary, files []ResultFile, upscaleEnabled bool) error
	PostUpscaleResult(ctx context.Context, channelID, requesterID, jobID string, files []ResultFile) error
	PostFailure(ctx context.Context, channelID, requesterID, reason string) error

	// UpdateEphemeral edits the requester's private reply via the ephemeral
	// token minted at interaction time.
	UpdateEphemeral(ctx context.Context, token, content string) error
}
