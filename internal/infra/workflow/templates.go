package workflow

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"discord-render-bot/internal/domain/ports/adapter"
)

// Upscale template variants selected by configuration.
const (
	UpscaleSimple   = "simple"
	UpscaleUltimate = "ultimate"
)

const (
	baseTemplateFile            = "txt2img.json"
	upscaleSimpleTemplateFile   = "upscale_simple.json"
	upscaleUltimateTemplateFile = "upscale_ultimate.json"
)

// Binder loads template graphs from disk at first use, caches their source
// text, and re-parses per bind so every job receives an independent copy.
type Binder struct {
	dir            string
	upscaleVariant string

	baseSrc    []byte
	upscaleSrc []byte
}

func NewBinder(dir, upscaleVariant string) *Binder {
	if upscaleVariant != UpscaleUltimate {
		upscaleVariant = UpscaleSimple
	}
	return &Binder{dir: dir, upscaleVariant: upscaleVariant}
}

func (b *Binder) baseSource() ([]byte, error) {
	if b.baseSrc == nil {
		src, err := os.ReadFile(filepath.Join(b.dir, baseTemplateFile))
		if err != nil {
			return nil, fmt.Errorf("load base template: %w", err)
		}
		b.baseSrc = src
	}
	return b.baseSrc, nil
}

func (b *Binder) upscaleSource() ([]byte, error) {
	if b.upscaleSrc == nil {
		file := upscaleSimpleTemplateFile
		if b.upscaleVariant == UpscaleUltimate {
			file = upscaleUltimateTemplateFile
		}
		src, err := os.ReadFile(filepath.Join(b.dir, file))
		if err != nil {
			return nil, fmt.Errorf("load upscale template: %w", err)
		}
		b.upscaleSrc = src
	}
	return b.upscaleSrc, nil
}

func parseGraph(src []byte) (adapter.Graph, error) {
	var graph adapter.Graph
	if err := json.Unmarshal(src, &graph); err != nil {
		return nil, fmt.Errorf("parse template graph: %w", err)
	}
	return graph, nil
}

// nodeInputs returns the inputs map of a node, or nil when the node or its
// inputs block is absent.
func nodeInputs(graph adapter.Graph, nodeID string) map[string]any {
	node, ok := graph[nodeID].(map[string]any)
	if !ok {
		return nil
	}
	inputs, ok := node["inputs"].(map[string]any)
	if !ok {
		return nil
	}
	return inputs
}
