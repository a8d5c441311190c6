package civitai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"discord-render-bot/internal/domain/ports/adapter"
)

var _ adapter.MetadataService = (*Client)(nil)

type Options struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// Client queries the remote adapter-metadata index for trigger words.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

func NewClient(opts Options) *Client {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = "https://civitai.com"
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{httpClient: client, baseURL: base, apiKey: strings.TrimSpace(opts.APIKey)}
}

type modelVersion struct {
	TrainedWords []string `json:"trainedWords"`
}

// ByHash resolves a model version by file hash. 404 is definitive (the file
// is not indexed); 429 and network errors are transient and must not be
// cached by callers.
func (c *Client) ByHash(ctx context.Context, hash string) (adapter.TriggerWordResult, error) {
	resp, err := c.get(ctx, c.baseURL+"/api/v1/model-versions/by-hash/"+url.PathEscape(hash))
	if err != nil {
		return transient(), nil
	}
	defer drain(resp)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return adapter.TriggerWordResult{Outcome: adapter.TriggerWordsDefinitelyEmpty}, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return transient(), nil
	case resp.StatusCode/100 != 2:
		return transient(), nil
	}

	var version modelVersion
	if err := json.NewDecoder(resp.Body).Decode(&version); err != nil {
		return transient(), nil
	}
	return fromWords(version.TrainedWords), nil
}

// Search falls back to free-text model search restricted to adapter models.
func (c *Client) Search(ctx context.Context, term string) (adapter.TriggerWordResult, error) {
	q := url.Values{}
	q.Set("query", term)
	q.Set("types", "LORA")
	q.Set("limit", "5")

	resp, err := c.get(ctx, c.baseURL+"/api/v1/models?"+q.Encode())
	if err != nil {
		return transient(), nil
	}
	defer drain(resp)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return adapter.TriggerWordResult{Outcome: adapter.TriggerWordsDefinitelyEmpty}, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return transient(), nil
	case resp.StatusCode/100 != 2:
		return transient(), nil
	}

	var parsed struct {
		Items []struct {
			ModelVersions []modelVersion `json:"modelVersions"`
		} `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return transient(), nil
	}
	for _, item := range parsed.Items {
		for _, v := range item.ModelVersions {
			if len(v.TrainedWords) > 0 {
				return fromWords(v.TrainedWords), nil
			}
		}
	}
	// A successful search with no hits is definitive.
	return adapter.TriggerWordResult{Outcome: adapter.TriggerWordsDefinitelyEmpty}, nil
}

func fromWords(raw []string) adapter.TriggerWordResult {
	var words []string
	for _, entry := range raw {
		for _, part := range strings.Split(entry, ",") {
			if part = strings.TrimSpace(part); part != "" {
				words = append(words, part)
			}
		}
	}
	if len(words) == 0 {
		return adapter.TriggerWordResult{Outcome: adapter.TriggerWordsDefinitelyEmpty}
	}
	return adapter.TriggerWordResult{Outcome: adapter.TriggerWordsFound, Words: words}
}

func transient() adapter.TriggerWordResult {
	return adapter.TriggerWordResult{Outcome: adapter.TriggerWordsTransientFailure}
}

func (c *Client) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return c.httpClient.Do(req)
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
