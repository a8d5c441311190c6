package workflow

import (
	"fmt"
	"strconv"
	"strings"

	"discord-render-bot/internal/domain/model"
	"discord-render-bot/internal/domain/ports/adapter"
)

// Injected adapter nodes get ids from 2001 upward, well outside the
// template's id range, so the re-routing pass can skip them unambiguously.
const adapterNodeBase = 2001

// BindGeneration validates the base template, re-parses it into a fresh
// graph, and writes the job's parameters into it.
func (b *Binder) BindGeneration(job *model.Job) (adapter.Graph, error) {
	src, err := b.baseSource()
	if err != nil {
		return nil, err
	}
	graph, err := parseGraph(src)
	if err != nil {
		return nil, err
	}
	if err := validateGraph(graph, baseRequired); err != nil {
		return nil, err
	}

	active := job.ActiveAdapters()
	if len(active) > 0 {
		injectAdapterChain(graph, active)
	}

	w, h := job.Size.Dimensions()
	latent := nodeInputs(graph, nodeLatent)
	latent["width"] = w
	latent["height"] = h

	nodeInputs(graph, nodeCheckpoint)["ckpt_name"] = job.Model
	nodeInputs(graph, nodeSeed)["seed"] = job.Seed

	nodeInputs(graph, nodePositiveEncoder)["text"] = positiveText(job.PositivePrompt, active)
	nodeInputs(graph, nodeNegativeEncoder)["text"] = job.NegativePrompt

	primary := nodeInputs(graph, nodePrimarySampler)
	primary["sampler_name"] = job.Sampler
	primary["scheduler"] = job.Scheduler
	primary["steps"] = job.Steps
	primary["cfg"] = job.CFG

	// Aux samplers take only name and scheduler; their steps/cfg stay as the
	// template authored them.
	for _, id := range auxSamplerNodes {
		aux := nodeInputs(graph, id)
		aux["sampler_name"] = job.Sampler
		aux["scheduler"] = job.Scheduler
	}

	return graph, nil
}

// positiveText concatenates the user's positive prompt with the flattened
// trigger words of all active adapters. Empty result falls back to the
// user's prompt alone.
func positiveText(prompt string, adapters []model.AdapterSlot) string {
	parts := []string{prompt}
	for _, a := range adapters {
		parts = append(parts, a.TriggerWords...)
	}
	joined := strings.TrimSpace(strings.Join(parts, " "))
	if joined == "" {
		return prompt
	}
	return joined
}

// injectAdapterChain inserts up to four chained adapter loader nodes between
// the checkpoint and the rest of the graph. Slot 0 reads model/clip from the
// checkpoint's outputs 0 and 1; each later slot reads from its predecessor.
// Every pre-existing reference to the checkpoint's outputs is then rerouted
// to the last slot.
func injectAdapterChain(graph adapter.Graph, adapters []model.AdapterSlot) {
	injected := make(map[string]bool, len(adapters))

	prev := nodeCheckpoint
	last := nodeCheckpoint
	for i, a := range adapters {
		id := strconv.Itoa(adapterNodeBase + i)
		graph[id] = map[string]any{
			"class_type": "LoraLoader",
			"inputs": map[string]any{
				"lora_name":      a.Name,
				"strength_model": a.Strength,
				"strength_clip":  a.Strength,
				"model":          []any{prev, 0},
				"clip":           []any{prev, 1},
			},
		}
		injected[id] = true
		prev = id
		last = id
	}

	for nodeID := range graph {
		if injected[nodeID] {
			continue
		}
		inputs := nodeInputs(graph, nodeID)
		for field, value := range inputs {
			if idx, ok := refTo(value, nodeCheckpoint); ok && (idx == 0 || idx == 1) {
				inputs[field] = []any{last, idx}
			}
		}
	}
}

// refTo matches a reference array [source_node_id, output_index] against a
// source node. References are matched structurally, never by field name.
func refTo(value any, source string) (int, bool) {
	ref, ok := value.([]any)
	if !ok || len(ref) != 2 {
		return 0, false
	}
	if src, ok := ref[0].(string); !ok || src != source {
		return 0, false
	}
	switch idx := ref[1].(type) {
	case float64:
		return int(idx), true
	case int:
		return idx, true
	}
	return 0, false
}

// BindUpscale writes the uploaded source-image filename and the configured
// upscale model into the active upscale template. The ultimate variant also
// receives the source job's prompts.
func (b *Binder) BindUpscale(job *model.UpscaleJob, uploadedName string, source *model.Job) (adapter.Graph, error) {
	src, err := b.upscaleSource()
	if err != nil {
		return nil, err
	}
	graph, err := parseGraph(src)
	if err != nil {
		return nil, err
	}
	required := upscaleSimpleRequired
	if b.upscaleVariant == UpscaleUltimate {
		required = upscaleUltimateRequired
	}
	if err := validateGraph(graph, required); err != nil {
		return nil, err
	}

	if uploadedName == "" {
		return nil, fmt.Errorf("upscale bind: uploaded image name is empty")
	}
	nodeInputs(graph, upscaleNodeImageLoader)["image"] = uploadedName
	nodeInputs(graph, upscaleNodeModelLoader)["model_name"] = job.UpscaleModel

	if b.upscaleVariant == UpscaleUltimate && source != nil {
		nodeInputs(graph, upscaleNodePositiveEncoder)["text"] = source.PositivePrompt
		nodeInputs(graph, upscaleNodeNegativeEncoder)["text"] = source.NegativePrompt
	}

	return graph, nil
}
