package model

import "time"

// BannedWord is one content-policy entry. Partial entries match by substring;
// others match whole words only. Word is unique case-insensitively.
type BannedWord struct {
	Word    string
	Partial bool
	AddedBy string
	AddedAt time.Time
}
