package renderer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"discord-render-bot/internal/domain/ports/adapter"
)

var _ adapter.RendererAdapter = (*Client)(nil)

const (
	pingTimeout     = 5 * time.Second
	metadataTimeout = 10 * time.Second
)

type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// Client is the typed HTTP client to the image-generation backend.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

func NewClient(opts Options) *Client {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = "http://127.0.0.1:8188"
	}
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 300 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Client{httpClient: client, baseURL: base}
}

// Ping probes /system_stats with its own short timeout; 200 means up.
func (c *Client) Ping(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/system_stats", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer drain(resp)
	return resp.StatusCode == http.StatusOK
}

func (c *Client) ObjectInfo(ctx context.Context) (map[string]any, error) {
	resp, err := c.get(ctx, "object_info", c.baseURL+"/object_info")
	if err != nil {
		return nil, err
	}
	defer drain(resp)
	if resp.StatusCode/100 != 2 {
		return nil, protocolErr("object_info", resp)
	}
	var info map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, errOf(Shape, "object_info", err)
	}
	return info, nil
}

func (c *Client) Submit(ctx context.Context, graph adapter.Graph) (string, error) {
	body, err := json.Marshal(map[string]any{"prompt": graph})
	if err != nil {
		return "", errOf(Shape, "submit", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/prompt", bytes.NewReader(body))
	if err != nil {
		return "", errOf(Unreachable, "submit", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errOf(Unreachable, "submit", err)
	}
	defer drain(resp)
	if resp.StatusCode/100 != 2 {
		return "", protocolErr("submit", resp)
	}

	var parsed struct {
		PromptID string `json:"prompt_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", errOf(Shape, "submit", err)
	}
	if parsed.PromptID == "" {
		return "", errOf(Shape, "submit", fmt.Errorf("response missing prompt_id"))
	}
	return parsed.PromptID, nil
}

// History returns nil on 404 and on network failure; callers treat nil as
// "not ready" and keep polling until their deadline.
func (c *Client) History(ctx context.Context, promptID string) (*adapter.HistoryEntry, error) {
	resp, err := c.get(ctx, "history", c.baseURL+"/history/"+url.PathEscape(promptID))
	if err != nil {
		return nil, nil
	}
	defer drain(resp)
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode/100 != 2 {
		return nil, protocolErr("history", resp)
	}

	var parsed map[string]struct {
		Status struct {
			Completed bool   `json:"completed"`
			StatusStr string `json:"status_str"`
		} `json:"status"`
		Outputs map[string]struct {
			Images []struct {
				Filename  string `json:"filename"`
				Subfolder string `json:"subfolder"`
				Type      string `json:"type"`
			} `json:"images"`
		} `json:"outputs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, errOf(Shape, "history", err)
	}
	raw, ok := parsed[promptID]
	if !ok {
		return nil, nil
	}

	entry := &adapter.HistoryEntry{
		Completed: raw.Status.Completed,
		StatusStr: raw.Status.StatusStr,
		Outputs:   map[string][]adapter.HistoryImage{},
	}
	for nodeID, out := range raw.Outputs {
		images := make([]adapter.HistoryImage, 0, len(out.Images))
		for _, img := range out.Images {
			images = append(images, adapter.HistoryImage{
				Filename:  img.Filename,
				Subfolder: img.Subfolder,
				Type:      img.Type,
			})
		}
		entry.Outputs[nodeID] = images
	}
	return entry, nil
}

func (c *Client) FetchImage(ctx context.Context, filename, subfolder, imgType string) ([]byte, error) {
	q := url.Values{}
	q.Set("filename", filename)
	q.Set("subfolder", subfolder)
	q.Set("type", imgType)

	resp, err := c.get(ctx, "fetch_image", c.baseURL+"/view?"+q.Encode())
	if err != nil {
		return nil, err
	}
	defer drain(resp)
	if resp.StatusCode/100 != 2 {
		return nil, protocolErr("fetch_image", resp)
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) UploadImage(ctx context.Context, data []byte, filename string) (*adapter.UploadedImage, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("image", filename)
	if err != nil {
		return nil, errOf(Shape, "upload_image", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, errOf(Shape, "upload_image", err)
	}
	if err := w.WriteField("overwrite", "true"); err != nil {
		return nil, errOf(Shape, "upload_image", err)
	}
	if err := w.Close(); err != nil {
		return nil, errOf(Shape, "upload_image", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload/image", &buf)
	if err != nil {
		return nil, errOf(Unreachable, "upload_image", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errOf(Unreachable, "upload_image", err)
	}
	defer drain(resp)
	if resp.StatusCode/100 != 2 {
		return nil, protocolErr("upload_image", resp)
	}

	var parsed struct {
		Name      string `json:"name"`
		Subfolder string `json:"subfolder"`
		Type      string `json:"type"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, errOf(Shape, "upload_image", err)
	}
	if parsed.Name == "" {
		return nil, errOf(Shape, "upload_image", fmt.Errorf("response missing name"))
	}
	return &adapter.UploadedImage{Name: parsed.Name, Subfolder: parsed.Subfolder, Type: parsed.Type}, nil
}

// AdapterFileHash reads the embedded model hash via the optional metadata
// endpoint. Empty string when the endpoint is absent or carries no hash.
func (c *Client) AdapterFileHash(ctx context.Context, filename string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()

	q := url.Values{}
	q.Set("filename", filename)
	resp, err := c.get(ctx, "adapter_metadata", c.baseURL+"/view_metadata/loras?"+q.Encode())
	if err != nil {
		return "", err
	}
	defer drain(resp)
	if resp.StatusCode/100 != 2 {
		return "", nil
	}

	var meta map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return "", nil
	}
	for _, key := range []string{"sha256", "sshs_model_hash", "modelspec.hash.sha256"} {
		if v, ok := meta[key].(string); ok && v != "" {
			return v, nil
		}
	}
	return "", nil
}

// AdapterTriggerWordsLocal queries a renderer-side plugin that may not be
// installed. Entries can be comma-joined; they are split and trimmed.
func (c *Client) AdapterTriggerWordsLocal(ctx context.Context, filename string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()

	q := url.Values{}
	q.Set("name", filename)
	resp, err := c.get(ctx, "trigger_words_local", c.baseURL+"/api/lm/loras/get-trigger-words?"+q.Encode())
	if err != nil {
		return nil, err
	}
	defer drain(resp)
	if resp.StatusCode/100 != 2 {
		return nil, nil
	}

	var parsed struct {
		Success      bool     `json:"success"`
		TriggerWords []string `json:"trigger_words"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, nil
	}
	if !parsed.Success {
		return nil, nil
	}

	var words []string
	for _, entry := range parsed.TriggerWords {
		for _, part := range strings.Split(entry, ",") {
			if part = strings.TrimSpace(part); part != "" {
				words = append(words, part)
			}
		}
	}
	return words, nil
}

func (c *Client) get(ctx context.Context, op, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errOf(Unreachable, op, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errOf(Unreachable, op, err)
	}
	return resp, nil
}

func protocolErr(op string, resp *http.Response) *Error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return errOf(Protocol, op, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
