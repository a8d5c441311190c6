package metadata

import (
	"context"
	"strings"
	"sync"
	"time"

	"discord-render-bot/internal/domain/ports/adapter"

	"github.com/rs/zerolog"
)

const cacheTTL = 24 * time.Hour

type entry struct {
	words    []string
	cachedAt time.Time
}

// Cache resolves adapter trigger words with 24 h positive caching. Definitive
// empties ("not indexed") are cached too; transient failures are surfaced as
// empty lists but leave no cache entry, so the next interaction retries.
type Cache struct {
	renderer adapter.RendererAdapter
	remote   adapter.MetadataService
	log      *zerolog.Logger

	mu      sync.Mutex
	entries map[string]entry
}

func NewCache(renderer adapter.RendererAdapter, remote adapter.MetadataService, log *zerolog.Logger) *Cache {
	return &Cache{
		renderer: renderer,
		remote:   remote,
		log:      log,
		entries:  map[string]entry{},
	}
}

// TriggerWords returns the trigger words for an adapter filename.
func (c *Cache) TriggerWords(ctx context.Context, filename string) []string {
	c.mu.Lock()
	if e, ok := c.entries[filename]; ok && time.Since(e.cachedAt) < cacheTTL {
		c.mu.Unlock()
		return e.words
	}
	c.mu.Unlock()

	result := c.lookup(ctx, filename)
	switch result.Outcome {
	case adapter.TriggerWordsFound, adapter.TriggerWordsDefinitelyEmpty:
		c.mu.Lock()
		c.entries[filename] = entry{words: result.Words, cachedAt: time.Now()}
		c.mu.Unlock()
	case adapter.TriggerWordsTransientFailure:
		c.log.Debug().Str("adapter", filename).Msg("trigger-word lookup transiently failed; not cached")
	}
	if result.Words == nil {
		return []string{}
	}
	return result.Words
}

// lookup order: renderer-local plugin, remote by hash, remote by search with
// the raw then the normalised filename stem.
func (c *Cache) lookup(ctx context.Context, filename string) adapter.TriggerWordResult {
	if words, err := c.renderer.AdapterTriggerWordsLocal(ctx, filename); err == nil && len(words) > 0 {
		return adapter.TriggerWordResult{Outcome: adapter.TriggerWordsFound, Words: words}
	}

	sawTransient := false
	if hash, err := c.renderer.AdapterFileHash(ctx, filename); err == nil && hash != "" {
		res, _ := c.remote.ByHash(ctx, hash)
		switch res.Outcome {
		case adapter.TriggerWordsFound, adapter.TriggerWordsDefinitelyEmpty:
			return res
		case adapter.TriggerWordsTransientFailure:
			sawTransient = true
		}
	}

	stem := fileStem(filename)
	for _, term := range []string{stem, normalizeStem(stem)} {
		if term == "" {
			continue
		}
		res, _ := c.remote.Search(ctx, term)
		switch res.Outcome {
		case adapter.TriggerWordsFound:
			return res
		case adapter.TriggerWordsTransientFailure:
			sawTransient = true
		}
	}

	if sawTransient {
		return adapter.TriggerWordResult{Outcome: adapter.TriggerWordsTransientFailure}
	}
	return adapter.TriggerWordResult{Outcome: adapter.TriggerWordsDefinitelyEmpty}
}

func fileStem(filename string) string {
	stem := filename
	if i := strings.LastIndexByte(stem, '/'); i >= 0 {
		stem = stem[i+1:]
	}
	if i := strings.LastIndexByte(stem, '.'); i > 0 {
		stem = stem[:i]
	}
	return stem
}

var versionSuffixes = []string{"-v1", "-v2", "-v3", "_v1", "_v2", "_v3"}

// normalizeStem strips a trailing version marker and replaces separators
// with spaces for a looser search term.
func normalizeStem(stem string) string {
	lowered := strings.ToLower(stem)
	for _, suffix := range versionSuffixes {
		if strings.HasSuffix(lowered, suffix) {
			stem = stem[:len(stem)-len(suffix)]
			break
		}
	}
	stem = strings.NewReplacer("-", " ", "_", " ", ".", " ").Replace(stem)
	return strings.Join(strings.Fields(stem), " ")
}
