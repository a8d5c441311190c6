package adapter

import "context"

// Graph is a renderer prompt graph: node id -> {class_type, inputs}.
type Graph = map[string]any

// HistoryImage locates one rendered file in the renderer's file store.
type HistoryImage struct {
	Filename  string
	Subfolder string
	Type      string
}

// HistoryEntry is the renderer's record of one submitted prompt.
type HistoryEntry struct {
	Completed bool
	StatusStr string
	// Outputs maps node id to the images that node produced.
	Outputs map[string][]HistoryImage
}

// UploadedImage is the renderer's answer to an image upload. Name may differ
// from the requested filename and is what graph injection must use.
type UploadedImage struct {
	Name      string
	Subfolder string
	Type      string
}

// RendererAdapter is the port to the local image-generation backend.
type RendererAdapter interface {
	// Ping probes reachability with a short timeout.
	Ping(ctx context.Context) bool

	// ObjectInfo returns the raw node catalog keyed by class name.
	ObjectInfo(ctx context.Context) (map[string]any, error)

	// Submit posts a graph and returns the backend prompt id.
	Submit(ctx context.Context, graph Graph) (string, error)

	// History returns nil (no error) when the prompt is not ready yet;
	// callers poll until Completed.
	History(ctx context.Context, promptID string) (*HistoryEntry, error)

	FetchImage(ctx context.Context, filename, subfolder, imgType string) ([]byte, error)
	UploadImage(ctx context.Context, data []byte, filename string) (*UploadedImage, error)

	// AdapterFileHash reads the embedded SHA-256 of an adapter file, if the
	// renderer exposes a metadata endpoint. Empty string when unavailable.
	AdapterFileHash(ctx context.Context, filename string) (string, error)

	// AdapterTriggerWordsLocal asks an optional renderer-side plugin for
	// trigger words. nil means the plugin is absent or answered nothing.
	AdapterTriggerWordsLocal(ctx context.Context, filename string) ([]string, error)
}
