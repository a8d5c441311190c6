package catalog

import (
	"context"
	"fmt"
	"strings"

	"discord-render-bot/internal/domain/model"
	"discord-render-bot/internal/domain/ports/adapter"

	"github.com/rs/zerolog"
)

const (
	// The chat widget caps dropdowns at 25 options.
	maxOptions  = 25
	maxAdapters = 100

	loraLoaderClass = "LoraLoader"
)

// checkpointClassPreference lists checkpoint loader classes best first. A
// class merely containing "CheckpointLoader" is accepted last, with a warning.
var checkpointClassPreference = []string{
	"CheckpointLoader|pysssss",
	"CheckpointLoaderSimple",
}

// samplerClassPreference lists sampler classes best first. Falling back to
// the stock KSampler is warned about: the stock node wires its graph
// differently from the efficient variants.
var samplerClassPreference = []string{
	"KSampler Adv. (Efficient)",
	"KSampler (Efficient)",
	"KSampler",
}

// Resolve builds the process-wide node catalog from the renderer's
// introspection endpoint. Called once at boot; the result is frozen.
func Resolve(ctx context.Context, rc adapter.RendererAdapter, log *zerolog.Logger) (*model.NodeCatalog, error) {
	info, err := rc.ObjectInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("introspect renderer: %w", err)
	}

	cat := &model.NodeCatalog{}

	cat.CheckpointClass = pickClass(info, checkpointClassPreference)
	if cat.CheckpointClass == "" {
		for name := range info {
			if strings.Contains(name, "CheckpointLoader") {
				cat.CheckpointClass = name
				log.Warn().Str("class", name).Msg("no known checkpoint loader class; using fuzzy match")
				break
			}
		}
	}
	if cat.CheckpointClass == "" {
		return nil, fmt.Errorf("renderer exposes no checkpoint loader class")
	}

	cat.SamplerClass = pickClass(info, samplerClassPreference)
	if cat.SamplerClass == "" {
		return nil, fmt.Errorf("renderer exposes no usable sampler class")
	}
	if cat.SamplerClass == "KSampler" {
		log.Warn().Msg("falling back to stock KSampler class; efficient sampler nodes not installed")
	}

	if cat.Models, err = requiredEnum(info, cat.CheckpointClass, "ckpt_name"); err != nil {
		return nil, err
	}
	if cat.Samplers, err = requiredEnum(info, cat.SamplerClass, "sampler_name"); err != nil {
		return nil, err
	}
	if cat.Schedulers, err = requiredEnum(info, cat.SamplerClass, "scheduler"); err != nil {
		return nil, err
	}

	// Adapters are optional: LoraLoader may be absent or empty.
	if adapters, err := requiredEnum(info, loraLoaderClass, "lora_name"); err == nil {
		cat.Adapters = adapters
	}

	cat.Models = truncate(cat.Models, maxOptions, "models", log)
	cat.Samplers = truncate(cat.Samplers, maxOptions, "samplers", log)
	cat.Schedulers = truncate(cat.Schedulers, maxOptions, "schedulers", log)
	cat.Adapters = truncate(cat.Adapters, maxAdapters, "adapters", log)

	log.Info().
		Str("checkpoint_class", cat.CheckpointClass).
		Str("sampler_class", cat.SamplerClass).
		Int("models", len(cat.Models)).
		Int("samplers", len(cat.Samplers)).
		Int("schedulers", len(cat.Schedulers)).
		Int("adapters", len(cat.Adapters)).
		Msg("node catalog resolved")
	return cat, nil
}

func pickClass(info map[string]any, preference []string) string {
	for _, name := range preference {
		if _, ok := info[name]; ok {
			return name
		}
	}
	return ""
}

// requiredEnum reads input.required.<field>[0] off a node schema, which the
// renderer encodes as a list of legal values.
func requiredEnum(info map[string]any, class, field string) ([]string, error) {
	schema, ok := info[class].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("node class %q missing from renderer catalog", class)
	}
	input, ok := schema["input"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("node class %q has no input block", class)
	}
	required, ok := input["required"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("node class %q has no required inputs", class)
	}
	entry, ok := required[field].([]any)
	if !ok || len(entry) == 0 {
		return nil, fmt.Errorf("node class %q has no %s enum", class, field)
	}
	values, ok := entry[0].([]any)
	if !ok {
		return nil, fmt.Errorf("node class %q %s is not an enum", class, field)
	}

	out := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("node class %q %s enum is empty", class, field)
	}
	return out, nil
}

func truncate(list []string, limit int, what string, log *zerolog.Logger) []string {
	if len(list) <= limit {
		return list
	}
	log.Warn().Str("list", what).Int("total", len(list)).Int("limit", limit).
		Msg("truncating option list")
	return list[:limit]
}
