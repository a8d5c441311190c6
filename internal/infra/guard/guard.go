package guard

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"time"

	"discord-render-bot/internal/domain/model"
	"discord-render-bot/internal/domain/ports/repository"

	"github.com/rs/zerolog"
)

const listTTL = 30 * time.Second

// Guard matches candidate strings against the banned-word list. The list is
// cached in process for a short TTL; any add/remove invalidates.
type Guard struct {
	repo repository.BannedWordRepository
	log  *zerolog.Logger

	mu       sync.Mutex
	cached   []model.BannedWord
	cachedAt time.Time
}

func New(repo repository.BannedWordRepository, log *zerolog.Logger) *Guard {
	return &Guard{repo: repo, log: log}
}

// Check returns the distinct entries that match the candidate text, in their
// stored casing. Partial entries match by substring; others whole-word.
func (g *Guard) Check(ctx context.Context, text string) ([]model.BannedWord, error) {
	words, err := g.list(ctx)
	if err != nil {
		return nil, err
	}

	lowered := strings.ToLower(text)
	var matched []model.BannedWord
	for _, w := range words {
		if w.Partial {
			if strings.Contains(lowered, strings.ToLower(w.Word)) {
				matched = append(matched, w)
			}
			continue
		}
		pattern := `(^|\W)` + regexp.QuoteMeta(strings.ToLower(w.Word)) + `(\W|$)`
		if ok, _ := regexp.MatchString(pattern, lowered); ok {
			matched = append(matched, w)
		}
	}
	return matched, nil
}

// Invalidate drops the cached list; called after any add/remove.
func (g *Guard) Invalidate() {
	g.mu.Lock()
	g.cached = nil
	g.cachedAt = time.Time{}
	g.mu.Unlock()
}

func (g *Guard) list(ctx context.Context) ([]model.BannedWord, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.cached != nil && time.Since(g.cachedAt) < listTTL {
		return g.cached, nil
	}
	words, err := g.repo.List(ctx)
	if err != nil {
		// Serve the stale list rather than letting a store hiccup bypass
		// the policy check.
		if g.cached != nil {
			g.log.Warn().Err(err).Msg("banned-word refresh failed; serving stale list")
			return g.cached, nil
		}
		return nil, err
	}
	if words == nil {
		words = []model.BannedWord{}
	}
	g.cached = words
	g.cachedAt = time.Now()
	return words, nil
}
