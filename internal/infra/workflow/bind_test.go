package workflow

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"discord-render-bot/internal/domain/model"
	"discord-render-bot/internal/domain/ports/adapter"
)

// repoTemplates points tests at the real template files shipped with the bot.
const repoTemplates = "../../../workflows"

func testBinder(t *testing.T, variant string) *Binder {
	t.Helper()
	return NewBinder(repoTemplates, variant)
}

func testJob() *model.Job {
	return &model.Job{
		ID:             "job-1",
		Model:          "M",
		Sampler:        "dpmpp_2m_sde",
		Scheduler:      "karras",
		Steps:          28,
		CFG:            5,
		Seed:           42,
		Size:           model.SizePortrait,
		PositivePrompt: "a cat",
	}
}

func TestValidateBase(t *testing.T) {
	t.Parallel()
	if err := testBinder(t, UpscaleSimple).ValidateBase(); err != nil {
		t.Fatalf("shipped base template must validate: %v", err)
	}
}

func TestValidateUpscaleVariants(t *testing.T) {
	t.Parallel()
	for _, variant := range []string{UpscaleSimple, UpscaleUltimate} {
		if err := testBinder(t, variant).ValidateUpscale(); err != nil {
			t.Fatalf("%s template must validate: %v", variant, err)
		}
	}
}

func TestValidateBase_MissingFieldDiagnostic(t *testing.T) {
	t.Parallel()

	src, err := os.ReadFile(filepath.Join(repoTemplates, "txt2img.json"))
	if err != nil {
		t.Fatalf("read template: %v", err)
	}
	var graph adapter.Graph
	if err := json.Unmarshal(src, &graph); err != nil {
		t.Fatalf("parse: %v", err)
	}
	delete(graph[nodePrimarySampler].(map[string]any)["inputs"].(map[string]any), "cfg")

	broken, _ := json.Marshal(graph)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "txt2img.json"), broken, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	err = NewBinder(dir, UpscaleSimple).ValidateBase()
	if err == nil {
		t.Fatalf("expected validation failure")
	}
	if !strings.Contains(err.Error(), nodePrimarySampler) || !strings.Contains(err.Error(), "cfg") {
		t.Fatalf("diagnostic must name node and field, got: %v", err)
	}
}

func TestBindGeneration_HappyPath(t *testing.T) {
	t.Parallel()

	graph, err := testBinder(t, UpscaleSimple).BindGeneration(testJob())
	if err != nil {
		t.Fatalf("bind: %v", err)
	}

	if got := nodeInputs(graph, nodeCheckpoint)["ckpt_name"]; got != "M" {
		t.Fatalf("ckpt_name = %v", got)
	}
	if got := nodeInputs(graph, nodeSeed)["seed"]; got != int64(42) {
		t.Fatalf("seed = %v (%T)", got, got)
	}
	latent := nodeInputs(graph, nodeLatent)
	if latent["width"] != 832 || latent["height"] != 1216 {
		t.Fatalf("portrait size = (%v,%v)", latent["width"], latent["height"])
	}
	if got := nodeInputs(graph, nodePositiveEncoder)["text"]; got != "a cat" {
		t.Fatalf("positive text = %v", got)
	}
	if got := nodeInputs(graph, nodeNegativeEncoder)["text"]; got != "" {
		t.Fatalf("negative text = %v", got)
	}

	primary := nodeInputs(graph, nodePrimarySampler)
	if primary["sampler_name"] != "dpmpp_2m_sde" || primary["scheduler"] != "karras" ||
		primary["steps"] != 28 || primary["cfg"] != 5.0 {
		t.Fatalf("primary sampler fields wrong: %v", primary)
	}
}

// The locked contract: steps and cfg land only on the primary sampler; aux
// nodes keep their template-authored values.
func TestBindGeneration_AuxSamplersKeepTemplateStepsCFG(t *testing.T) {
	t.Parallel()

	binder := testBinder(t, UpscaleSimple)
	template, _ := parseGraph(binder.baseSrcForTest(t))

	graph, err := binder.BindGeneration(testJob())
	if err != nil {
		t.Fatalf("bind: %v", err)
	}

	for _, id := range auxSamplerNodes {
		bound := nodeInputs(graph, id)
		orig := nodeInputs(template, id)
		if bound["sampler_name"] != "dpmpp_2m_sde" || bound["scheduler"] != "karras" {
			t.Fatalf("aux %s name/scheduler not written", id)
		}
		if !reflect.DeepEqual(bound["steps"], orig["steps"]) || !reflect.DeepEqual(bound["cfg"], orig["cfg"]) {
			t.Fatalf("aux %s steps/cfg must keep template values", id)
		}
	}
}

func TestBindGeneration_Sizes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		size model.Size
		w, h int
	}{
		{model.SizePortrait, 832, 1216},
		{model.SizeSquare, 1024, 1024},
		{model.SizeLandscape, 1216, 832},
		{model.Size("bogus"), 832, 1216}, // unknown defaults to portrait
	}
	binder := testBinder(t, UpscaleSimple)
	for _, tc := range cases {
		job := testJob()
		job.Size = tc.size
		graph, err := binder.BindGeneration(job)
		if err != nil {
			t.Fatalf("bind %s: %v", tc.size, err)
		}
		latent := nodeInputs(graph, nodeLatent)
		if latent["width"] != tc.w || latent["height"] != tc.h {
			t.Fatalf("%s = (%v,%v), want (%d,%d)", tc.size, latent["width"], latent["height"], tc.w, tc.h)
		}
	}
}

func TestBindGeneration_AdapterChain(t *testing.T) {
	t.Parallel()

	job := testJob()
	job.Adapters = []model.AdapterSlot{
		{Name: "A.safetensors", Strength: 0.8, TriggerWords: []string{"alpha", "beta"}},
		{Name: "B.safetensors", Strength: 1.2, TriggerWords: []string{"gamma"}},
	}

	graph, err := testBinder(t, UpscaleSimple).BindGeneration(job)
	if err != nil {
		t.Fatalf("bind: %v", err)
	}

	first := nodeInputs(graph, "2001")
	if first == nil {
		t.Fatalf("slot 0 node 2001 missing")
	}
	if first["lora_name"] != "A.safetensors" || first["strength_model"] != 0.8 || first["strength_clip"] != 0.8 {
		t.Fatalf("slot 0 fields wrong: %v", first)
	}
	if !reflect.DeepEqual(first["model"], []any{nodeCheckpoint, 0}) ||
		!reflect.DeepEqual(first["clip"], []any{nodeCheckpoint, 1}) {
		t.Fatalf("slot 0 must read model/clip from checkpoint: %v", first)
	}

	second := nodeInputs(graph, "2002")
	if second == nil {
		t.Fatalf("slot 1 node 2002 missing")
	}
	if !reflect.DeepEqual(second["model"], []any{"2001", 0}) ||
		!reflect.DeepEqual(second["clip"], []any{"2001", 1}) {
		t.Fatalf("slot 1 must chain off slot 0: %v", second)
	}

	// Every other node's checkpoint reference is rerouted to the last slot.
	for nodeID := range graph {
		if nodeID == "2001" || nodeID == "2002" {
			continue
		}
		for field, value := range nodeInputs(graph, nodeID) {
			if idx, ok := refTo(value, nodeCheckpoint); ok && (idx == 0 || idx == 1) {
				t.Fatalf("node %s field %s still references checkpoint output %d", nodeID, field, idx)
			}
		}
	}
	// e.g. the positive encoder's clip went through the rewrite.
	if !reflect.DeepEqual(nodeInputs(graph, nodePositiveEncoder)["clip"], []any{"2002", 1}) {
		t.Fatalf("encoder clip not rerouted: %v", nodeInputs(graph, nodePositiveEncoder)["clip"])
	}

	// Trigger words of all active slots flow into the positive text.
	if got := nodeInputs(graph, nodePositiveEncoder)["text"]; got != "a cat alpha beta gamma" {
		t.Fatalf("positive text = %q", got)
	}
}

func TestBindGeneration_EmptyPromptFallsBack(t *testing.T) {
	t.Parallel()

	job := testJob()
	job.PositivePrompt = ""
	graph, err := testBinder(t, UpscaleSimple).BindGeneration(job)
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	if got := nodeInputs(graph, nodePositiveEncoder)["text"]; got != "" {
		t.Fatalf("expected empty fallback, got %q", got)
	}
}

// Binder determinism: re-validating the bound output succeeds, and two binds
// of the same job are deep-equal.
func TestBindGeneration_Deterministic(t *testing.T) {
	t.Parallel()

	binder := testBinder(t, UpscaleSimple)
	job := testJob()
	job.Adapters = []model.AdapterSlot{{Name: "A", Strength: 1}}

	g1, err := binder.BindGeneration(job)
	if err != nil {
		t.Fatalf("bind 1: %v", err)
	}
	g2, err := binder.BindGeneration(job)
	if err != nil {
		t.Fatalf("bind 2: %v", err)
	}
	if !reflect.DeepEqual(g1, g2) {
		t.Fatalf("bind is not deterministic")
	}
	if err := validateGraph(g1, baseRequired); err != nil {
		t.Fatalf("bound graph fails revalidation: %v", err)
	}

	// Independent copies: mutating one bind must not leak into the next.
	nodeInputs(g1, nodeCheckpoint)["ckpt_name"] = "tampered"
	g3, _ := binder.BindGeneration(job)
	if nodeInputs(g3, nodeCheckpoint)["ckpt_name"] != "M" {
		t.Fatalf("binds share state")
	}
}

func TestBindUpscale(t *testing.T) {
	t.Parallel()

	up := &model.UpscaleJob{ID: "up-1", UpscaleModel: "4x_esrgan.pth"}
	source := testJob()
	source.NegativePrompt = "blurry"

	t.Run("simple", func(t *testing.T) {
		graph, err := testBinder(t, UpscaleSimple).BindUpscale(up, "uploaded.png", source)
		if err != nil {
			t.Fatalf("bind: %v", err)
		}
		if got := nodeInputs(graph, upscaleNodeImageLoader)["image"]; got != "uploaded.png" {
			t.Fatalf("image = %v", got)
		}
		if got := nodeInputs(graph, upscaleNodeModelLoader)["model_name"]; got != "4x_esrgan.pth" {
			t.Fatalf("model_name = %v", got)
		}
	})

	t.Run("ultimate carries prompts", func(t *testing.T) {
		graph, err := testBinder(t, UpscaleUltimate).BindUpscale(up, "uploaded.png", source)
		if err != nil {
			t.Fatalf("bind: %v", err)
		}
		if got := nodeInputs(graph, upscaleNodePositiveEncoder)["text"]; got != "a cat" {
			t.Fatalf("positive = %v", got)
		}
		if got := nodeInputs(graph, upscaleNodeNegativeEncoder)["text"]; got != "blurry" {
			t.Fatalf("negative = %v", got)
		}
	})

	t.Run("empty upload name refused", func(t *testing.T) {
		if _, err := testBinder(t, UpscaleSimple).BindUpscale(up, "", source); err == nil {
			t.Fatalf("expected error for empty uploaded name")
		}
	})
}

// baseSrcForTest exposes the cached template source to assertions.
func (b *Binder) baseSrcForTest(t *testing.T) []byte {
	t.Helper()
	src, err := b.baseSource()
	if err != nil {
		t.Fatalf("load base template: %v", err)
	}
	return src
}
