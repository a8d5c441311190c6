package adapter

import "context"

// TriggerWordOutcome distinguishes "definitively no words" from a transient
// lookup failure; only the first two outcomes may be cached.
type TriggerWordOutcome int

const (
	TriggerWordsFound TriggerWordOutcome = iota
	TriggerWordsDefinitelyEmpty
	TriggerWordsTransientFailure
)

type TriggerWordResult struct {
	Outcome TriggerWordOutcome
	Words   []string
}

// MetadataService is the port to the remote adapter-metadata index.
type MetadataService interface {
	// ByHash resolves trigger words by file hash. A 404 from the service is
	// definitive; rate limits and network errors are transient.
	ByHash(ctx context.Context, hash string) (TriggerWordResult, error)

	// Search resolves trigger words by free-text model search.
	Search(ctx context.Context, term string) (TriggerWordResult, error)
}
