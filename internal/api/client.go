package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "https://openrouter.ai/api/v1"

	// DefaultTimeout bounds non-streaming requests.
	DefaultTimeout = 30 * time.Second

	// DefaultStreamTimeout bounds the wait for a stream's response headers.
	DefaultStreamTimeout = 2 * time.Minute
)

// Client talks to the OpenRouter REST API.
type Client interface {
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// ChatStream starts a streamed completion. The caller must Close the
	// returned reader.
	ChatStream(ctx context.Context, req *ChatRequest) (*StreamReader, error)

	ListModels(ctx context.Context, opts *ListModelsOptions) ([]Model, error)

	// Ping performs a cheap authenticated request and reports its latency.
	Ping(ctx context.Context) (time.Duration, error)

	// KeyInfo describes the API key the client was configured with.
	KeyInfo(ctx context.Context) (*KeyInfo, error)
}

// ClientConfig configures NewClient. Only APIKey is required.
type ClientConfig struct {
	APIKey  string
	BaseURL string

	// Timeout bounds non-streaming requests.
	Timeout time.Duration

	// StreamTimeout bounds the wait for the response headers of a streaming
	// request. The body is bounded only by the request context.
	StreamTimeout time.Duration

	// HTTPClient replaces the client used for non-streaming requests.
	HTTPClient *http.Client

	// Referer and Title identify the app to OpenRouter (HTTP-Referer and
	// X-Title headers).
	Referer string
	Title   string

	// Retry enables retries of failed requests. Nil disables them.
	Retry *RetryConfig

	Logger *zap.Logger
}

// NewClient returns a Client with defaults filled in for unset fields.
func NewClient(cfg ClientConfig) Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.StreamTimeout == 0 {
		cfg.StreamTimeout = DefaultStreamTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = cfg.StreamTimeout

	return &client{
		apiKey:       cfg.APIKey,
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:   httpClient,
		streamClient: &http.Client{Transport: transport},
		referer:      cfg.Referer,
		title:        cfg.Title,
		retry:        cfg.Retry,
		logger:       logger,
	}
}

type client struct {
	apiKey       string
	baseURL      string
	httpClient   *http.Client
	streamClient *http.Client
	referer      string
	title        string
	retry        *RetryConfig
	logger       *zap.Logger
}

// request returns a requestFunc that sends method path with body on hc.
// query may be nil.
func (c *client) request(hc *http.Client, method, path string, body []byte, query url.Values) requestFunc {
	return func(ctx context.Context) (*http.Response, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		if len(query) > 0 {
			req.URL.RawQuery = query.Encode()
		}
		c.setHeaders(req)
		return hc.Do(req)
	}
}

func (c *client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	if c.referer != "" {
		req.Header.Set("HTTP-Referer", c.referer)
	}
	if c.title != "" {
		req.Header.Set("X-Title", c.title)
	}
}

// decodeJSON decodes and closes a successful response.
func decodeJSON[T any](resp *http.Response) (T, error) {
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return v, fmt.Errorf("decoding response: %w", err)
	}
	return v, nil
}

// completionBody encodes req with the stream flag forced to stream.
func completionBody(req *ChatRequest, stream bool) ([]byte, error) {
	r := *req
	r.Stream = stream
	body, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}
	return body, nil
}

func (c *client) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	body, err := completionBody(req, false)
	if err != nil {
		return nil, err
	}

	return doWithRetry(ctx, c, c.request(c.httpClient, http.MethodPost, "/chat/completions", body, nil),
		func(resp *http.Response) (*ChatResponse, error) {
			chatResp, err := decodeJSON[ChatResponse](resp)
			if err != nil {
				return nil, err
			}
			if chatResp.Error != nil {
				return nil, inBandError(chatResp.Error)
			}
			return &chatResp, nil
		},
	)
}

func (c *client) ChatStream(ctx context.Context, req *ChatRequest) (*StreamReader, error) {
	body, err := completionBody(req, true)
	if err != nil {
		return nil, err
	}

	return doWithRetry(ctx, c, c.request(c.streamClient, http.MethodPost, "/chat/completions", body, nil),
		func(resp *http.Response) (*StreamReader, error) {
			// The reader owns the body.
			return NewStreamReader(resp.Body), nil
		},
	)
}

func (c *client) ListModels(ctx context.Context, opts *ListModelsOptions) ([]Model, error) {
	query := url.Values{}
	if opts != nil {
		for k, v := range map[string]string{"category": opts.Category, "supported_parameters": opts.SupportedParameters} {
			if v != "" {
				query.Set(k, v)
			}
		}
	}

	return doWithRetry(ctx, c, c.request(c.httpClient, http.MethodGet, "/models", nil, query),
		func(resp *http.Response) ([]Model, error) {
			models, err := decodeJSON[ModelsResponse](resp)
			return models.Data, err
		},
	)
}

func (c *client) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	_, err := doWithRetry(ctx, c, c.request(c.httpClient, http.MethodGet, "/models", nil, nil),
		func(resp *http.Response) (struct{}, error) {
			defer resp.Body.Close()
			_, err := io.Copy(io.Discard, resp.Body)
			return struct{}{}, err
		},
	)
	if err != nil {
		return 0, err
	}
	return time.Since(start), nil
}

func (c *client) KeyInfo(ctx context.Context) (*KeyInfo, error) {
	return doWithRetry(ctx, c, c.request(c.httpClient, http.MethodGet, "/key", nil, nil),
		func(resp *http.Response) (*KeyInfo, error) {
			key, err := decodeJSON[keyResponse](resp)
			if err != nil {
				return nil, err
			}
			return &key.Data, nil
		},
	)
}
