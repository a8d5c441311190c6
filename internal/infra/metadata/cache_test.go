package metadata

import (
	"context"
	"testing"

	"discord-render-bot/internal/domain/ports/adapter"

	"github.com/rs/zerolog"
)

type fakeRenderer struct {
	adapter.RendererAdapter

	localWords []string
	hash       string
}

func (f *fakeRenderer) AdapterTriggerWordsLocal(context.Context, string) ([]string, error) {
	return f.localWords, nil
}

func (f *fakeRenderer) AdapterFileHash(context.Context, string) (string, error) {
	return f.hash, nil
}

type fakeRemote struct {
	byHash   adapter.TriggerWordResult
	search   adapter.TriggerWordResult
	hashHits int
	searches int
}

func (f *fakeRemote) ByHash(context.Context, string) (adapter.TriggerWordResult, error) {
	f.hashHits++
	return f.byHash, nil
}

func (f *fakeRemote) Search(context.Context, string) (adapter.TriggerWordResult, error) {
	f.searches++
	return f.search, nil
}

func newTestCache(renderer *fakeRenderer, remote *fakeRemote) *Cache {
	logger := zerolog.Nop()
	return NewCache(renderer, remote, &logger)
}

func TestCache_LocalPluginWins(t *testing.T) {
	t.Parallel()

	remote := &fakeRemote{}
	c := newTestCache(&fakeRenderer{localWords: []string{"alpha"}}, remote)

	words := c.TriggerWords(context.Background(), "styleA.safetensors")
	if len(words) != 1 || words[0] != "alpha" {
		t.Fatalf("expected local words, got %v", words)
	}
	if remote.hashHits != 0 || remote.searches != 0 {
		t.Fatalf("remote must not be consulted when local answers")
	}
}

func TestCache_DefinitiveEmptyIsCached(t *testing.T) {
	t.Parallel()

	remote := &fakeRemote{
		byHash: adapter.TriggerWordResult{Outcome: adapter.TriggerWordsDefinitelyEmpty},
	}
	c := newTestCache(&fakeRenderer{hash: "abc123"}, remote)
	ctx := context.Background()

	if words := c.TriggerWords(ctx, "styleA.safetensors"); len(words) != 0 {
		t.Fatalf("expected empty, got %v", words)
	}
	first := remote.hashHits

	// Second lookup hits the cached empty; no further remote calls.
	c.TriggerWords(ctx, "styleA.safetensors")
	if remote.hashHits != first {
		t.Fatalf("definitive empty must be cached")
	}
}

func TestCache_TransientFailureNotCached(t *testing.T) {
	t.Parallel()

	remote := &fakeRemote{
		byHash: adapter.TriggerWordResult{Outcome: adapter.TriggerWordsTransientFailure},
		search: adapter.TriggerWordResult{Outcome: adapter.TriggerWordsTransientFailure},
	}
	c := newTestCache(&fakeRenderer{hash: "abc123"}, remote)
	ctx := context.Background()

	if words := c.TriggerWords(ctx, "styleA.safetensors"); len(words) != 0 {
		t.Fatalf("transient failure surfaces as empty list, got %v", words)
	}
	first := remote.hashHits

	// Retried next time because nothing was cached.
	c.TriggerWords(ctx, "styleA.safetensors")
	if remote.hashHits <= first {
		t.Fatalf("transient failure must be retried")
	}
}

func TestCache_PositiveResultCached(t *testing.T) {
	t.Parallel()

	remote := &fakeRemote{
		byHash: adapter.TriggerWordResult{Outcome: adapter.TriggerWordsFound, Words: []string{"w1", "w2"}},
	}
	c := newTestCache(&fakeRenderer{hash: "abc123"}, remote)
	ctx := context.Background()

	words := c.TriggerWords(ctx, "styleA.safetensors")
	if len(words) != 2 {
		t.Fatalf("expected 2 words, got %v", words)
	}
	first := remote.hashHits
	c.TriggerWords(ctx, "styleA.safetensors")
	if remote.hashHits != first {
		t.Fatalf("positive result must be cached")
	}
}

func TestCache_SearchFallbackUsesNormalizedStem(t *testing.T) {
	t.Parallel()

	remote := &fakeRemote{
		byHash: adapter.TriggerWordResult{Outcome: adapter.TriggerWordsDefinitelyEmpty},
	}
	// No hash: goes straight to search, raw stem then normalised.
	remote.search = adapter.TriggerWordResult{Outcome: adapter.TriggerWordsDefinitelyEmpty}
	c := newTestCache(&fakeRenderer{}, remote)

	c.TriggerWords(context.Background(), "cool-style_v2.safetensors")
	if remote.searches != 2 {
		t.Fatalf("expected raw + normalised search, got %d", remote.searches)
	}
}

func TestNormalizeStem(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"cool-style_v2": "cool style",
		"plain":         "plain",
		"a_b-c":         "a b c",
	}
	for in, want := range cases {
		if got := normalizeStem(in); got != want {
			t.Fatalf("normalizeStem(%q) = %q, want %q", in, got, want)
		}
	}
}
