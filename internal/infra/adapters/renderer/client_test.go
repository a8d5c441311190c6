package renderer

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"discord-render-bot/internal/domain/ports/adapter"
)

func testClient(handler http.Handler) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	return NewClient(Options{BaseURL: srv.URL}), srv
}

func TestPing(t *testing.T) {
	t.Parallel()

	c, srv := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/system_stats" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if !c.Ping(context.Background()) {
		t.Fatalf("expected ping true")
	}

	down := NewClient(Options{BaseURL: "http://127.0.0.1:1"})
	if down.Ping(context.Background()) {
		t.Fatalf("expected ping false for unreachable backend")
	}
}

func TestSubmit(t *testing.T) {
	t.Parallel()

	c, srv := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/prompt" || r.Method != http.MethodPost {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		w.Write([]byte(`{"prompt_id":"abc-123"}`))
	}))
	defer srv.Close()

	id, err := c.Submit(context.Background(), adapter.Graph{"1": map[string]any{}})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if id != "abc-123" {
		t.Fatalf("prompt id = %q", id)
	}
}

func TestSubmit_ProtocolErrorEmbedsBody(t *testing.T) {
	t.Parallel()

	c, srv := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "node type missing", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := c.Submit(context.Background(), adapter.Graph{})
	if err == nil {
		t.Fatalf("expected error")
	}
	var rErr *Error
	if !errors.As(err, &rErr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if rErr.Kind != Protocol {
		t.Fatalf("kind = %v", rErr.Kind)
	}
	if !strings.Contains(err.Error(), "node type missing") {
		t.Fatalf("body not embedded: %v", err)
	}
}

func TestSubmit_UnreachableClassified(t *testing.T) {
	t.Parallel()

	c := NewClient(Options{BaseURL: "http://127.0.0.1:1"})
	_, err := c.Submit(context.Background(), adapter.Graph{})
	var rErr *Error
	if !errors.As(err, &rErr) || rErr.Kind != Unreachable {
		t.Fatalf("expected Unreachable, got %v", err)
	}
}

func TestSubmit_ShapeError(t *testing.T) {
	t.Parallel()

	c, srv := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"unexpected":"shape"}`))
	}))
	defer srv.Close()

	_, err := c.Submit(context.Background(), adapter.Graph{})
	var rErr *Error
	if !errors.As(err, &rErr) || rErr.Kind != Shape {
		t.Fatalf("expected Shape, got %v", err)
	}
}

func TestHistory(t *testing.T) {
	t.Parallel()

	const body = `{
  "p-1": {
    "status": {"completed": true, "status_str": "success"},
    "outputs": {
      "301": {"images": [{"filename": "img_0001.png", "subfolder": "sub", "type": "output"}]}
    }
  }
}`
	c, srv := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/history/p-1" {
			w.Write([]byte(body))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	entry, err := c.History(context.Background(), "p-1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if entry == nil || !entry.Completed {
		t.Fatalf("entry = %+v", entry)
	}
	images := entry.Outputs["301"]
	if len(images) != 1 || images[0].Filename != "img_0001.png" || images[0].Subfolder != "sub" {
		t.Fatalf("images = %+v", images)
	}

	// 404 and network failure both read as "not ready".
	if entry, err := c.History(context.Background(), "unknown"); err != nil || entry != nil {
		t.Fatalf("404 must be (nil, nil), got (%v, %v)", entry, err)
	}
	down := NewClient(Options{BaseURL: "http://127.0.0.1:1"})
	if entry, err := down.History(context.Background(), "p-1"); err != nil || entry != nil {
		t.Fatalf("network failure must be (nil, nil), got (%v, %v)", entry, err)
	}
}

func TestUploadImage_ReturnedNameWins(t *testing.T) {
	t.Parallel()

	c, srv := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("multipart parse: %v", err)
		}
		if r.FormValue("overwrite") != "true" {
			t.Errorf("overwrite field missing")
		}
		w.Write([]byte(`{"name":"renamed (1).png","subfolder":"","type":"input"}`))
	}))
	defer srv.Close()

	up, err := c.UploadImage(context.Background(), []byte("png-bytes"), "original.png")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if up.Name != "renamed (1).png" {
		t.Fatalf("returned name must win, got %q", up.Name)
	}
}

func TestAdapterFileHash(t *testing.T) {
	t.Parallel()

	c, srv := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"sshs_model_hash":"deadbeef"}`))
	}))
	defer srv.Close()

	hash, err := c.AdapterFileHash(context.Background(), "styleA.safetensors")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if hash != "deadbeef" {
		t.Fatalf("hash = %q", hash)
	}
}

func TestAdapterTriggerWordsLocal_SplitsCommaJoined(t *testing.T) {
	t.Parallel()

	c, srv := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"trigger_words":["alpha, beta","gamma"]}`))
	}))
	defer srv.Close()

	words, err := c.AdapterTriggerWordsLocal(context.Background(), "styleA")
	if err != nil {
		t.Fatalf("trigger words: %v", err)
	}
	want := []string{"alpha", "beta", "gamma"}
	if len(words) != len(want) {
		t.Fatalf("words = %v", words)
	}
	for i := range want {
		if words[i] != want[i] {
			t.Fatalf("words = %v, want %v", words, want)
		}
	}
}
