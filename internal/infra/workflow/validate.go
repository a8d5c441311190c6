package workflow

import (
	"fmt"

	"discord-render-bot/internal/domain/ports/adapter"
)

// Fixed node ids of the base generation template. Adapter nodes are injected
// at 2001+ so they can never collide with these.
const (
	nodeLatent          = "271"
	nodeCheckpoint      = "152"
	nodeSeed            = "256"
	nodePositiveEncoder = "45"
	nodeNegativeEncoder = "46"
	nodePrimarySampler  = "22"
	nodeAuxSampler1     = "23"
	nodeAuxSampler2     = "24"
	nodeAuxSampler3     = "25"
)

var auxSamplerNodes = []string{nodeAuxSampler1, nodeAuxSampler2, nodeAuxSampler3}

// Upscale template node ids, shared by both variants; the ultimate variant
// additionally carries prompt encoders.
const (
	upscaleNodeImageLoader     = "101"
	upscaleNodeModelLoader     = "102"
	upscaleNodePositiveEncoder = "106"
	upscaleNodeNegativeEncoder = "107"
)

type requiredNode struct {
	id     string
	role   string
	fields []string
}

// baseRequired is the validation contract for the base generation graph.
// Aux samplers require only sampler_name and scheduler; writing steps or cfg
// to them is prohibited by the bind contract.
var baseRequired = []requiredNode{
	{nodeLatent, "latent size", []string{"width", "height"}},
	{nodeCheckpoint, "checkpoint", []string{"ckpt_name"}},
	{nodeSeed, "seed", []string{"seed"}},
	{nodePositiveEncoder, "positive encoder", []string{"text"}},
	{nodeNegativeEncoder, "negative encoder", []string{"text"}},
	{nodePrimarySampler, "primary sampler", []string{"sampler_name", "scheduler", "steps", "cfg"}},
	{nodeAuxSampler1, "aux sampler", []string{"sampler_name", "scheduler"}},
	{nodeAuxSampler2, "aux sampler", []string{"sampler_name", "scheduler"}},
	{nodeAuxSampler3, "aux sampler", []string{"sampler_name", "scheduler"}},
}

var upscaleSimpleRequired = []requiredNode{
	{upscaleNodeImageLoader, "image loader", []string{"image"}},
	{upscaleNodeModelLoader, "upscale model loader", []string{"model_name"}},
}

var upscaleUltimateRequired = []requiredNode{
	{upscaleNodeImageLoader, "image loader", []string{"image"}},
	{upscaleNodeModelLoader, "upscale model loader", []string{"model_name"}},
	{upscaleNodePositiveEncoder, "positive encoder", []string{"text"}},
	{upscaleNodeNegativeEncoder, "negative encoder", []string{"text"}},
}

// validateGraph short-circuits at the first missing node or field and
// returns a diagnostic naming both.
func validateGraph(graph adapter.Graph, required []requiredNode) error {
	for _, rn := range required {
		inputs := nodeInputs(graph, rn.id)
		if inputs == nil {
			return fmt.Errorf("template missing %s node %s", rn.role, rn.id)
		}
		for _, field := range rn.fields {
			v, ok := inputs[field]
			if !ok || v == nil {
				return fmt.Errorf("%s node %s missing required field %q", rn.role, rn.id, field)
			}
		}
	}
	return nil
}

// ValidateBase parses and validates the base generation template. Used at
// boot and re-run at submission time to catch template drift.
func (b *Binder) ValidateBase() error {
	src, err := b.baseSource()
	if err != nil {
		return err
	}
	graph, err := parseGraph(src)
	if err != nil {
		return err
	}
	return validateGraph(graph, baseRequired)
}

// ValidateUpscale validates the active upscale template against its own
// required-fields table.
func (b *Binder) ValidateUpscale() error {
	src, err := b.upscaleSource()
	if err != nil {
		return err
	}
	graph, err := parseGraph(src)
	if err != nil {
		return err
	}
	required := upscaleSimpleRequired
	if b.upscaleVariant == UpscaleUltimate {
		required = upscaleUltimateRequired
	}
	return validateGraph(graph, required)
}
