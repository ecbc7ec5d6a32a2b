// Package backend implements the session contract on top of the OpenRouter
// chat completions API and the on-disk session store.
package backend

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vstratful/orchat/internal/api"
	"github.com/vstratful/orchat/internal/config"
	"github.com/vstratful/orchat/internal/sdk"
	"go.uber.org/zap"
)

// ProtocolVersion is the version of the event protocol emitted by Session.
const ProtocolVersion = 1

// Options configures New.
type Options struct {
	// APIKey authenticates every request.
	APIKey string

	// API is the client used for the default provider. When nil one is built
	// with NewAPI.
	API api.Client

	// NewAPI builds a client for a provider base URL. Defaults to an
	// api.NewClient with the default retry policy.
	NewAPI func(cfg api.ClientConfig) api.Client

	// Version is reported by Status.
	Version string

	Logger *zap.Logger
}

// Client is an sdk.Client backed by OpenRouter. It also implements
// sdk.StatusProvider and sdk.AuthStatusProvider.
type Client struct {
	apiKey  string
	api     api.Client
	newAPI  func(cfg api.ClientConfig) api.Client
	version string
	logger  *zap.Logger

	mu    sync.Mutex
	state sdk.ConnectionState
	live  map[string]*record
}

var (
	_ sdk.Client             = (*Client)(nil)
	_ sdk.StatusProvider     = (*Client)(nil)
	_ sdk.AuthStatusProvider = (*Client)(nil)
)

// New creates a Client.
func New(opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	newAPI := opts.NewAPI
	if newAPI == nil {
		newAPI = func(cfg api.ClientConfig) api.Client {
			retry := api.DefaultRetryConfig()
			cfg.Retry = &retry
			cfg.Referer = "https://github.com/vstratful/orchat"
			cfg.Title = "orchat"
			cfg.Logger = logger.Named("api")
			return api.NewClient(cfg)
		}
	}
	client := opts.API
	if client == nil {
		client = newAPI(api.ClientConfig{APIKey: opts.APIKey})
	}
	return &Client{
		apiKey:  opts.APIKey,
		api:     client,
		newAPI:  newAPI,
		version: opts.Version,
		logger:  logger,
		state:   sdk.StateDisconnected,
		live:    make(map[string]*record),
	}
}

// apiFor returns the API client for a session's provider.
func (c *Client) apiFor(cfg sdk.SessionConfig) api.Client {
	if cfg.Provider == nil || cfg.Provider.BaseURL == "" {
		return c.api
	}
	return c.newAPI(api.ClientConfig{APIKey: c.apiKey, BaseURL: cfg.Provider.BaseURL})
}

// track records the outcome of an API call in the connection state.
func (c *Client) track(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case err == nil:
		c.state = sdk.StateConnected
	case errors.Is(err, context.Canceled):
	default:
		c.state = sdk.StateError
	}
}

func (c *Client) CreateSession(ctx context.Context, cfg sdk.SessionConfig) (sdk.Session, error) {
	data := config.NewSession()
	data.Model = cfg.Model
	data.ReasoningEffort = cfg.ReasoningEffort

	rec := &record{data: data}
	c.mu.Lock()
	c.live[data.ID] = rec
	c.mu.Unlock()

	c.logger.Debug("session created", zap.String("session", data.ID), zap.String("model", cfg.Model))
	return newSession(c, rec, cfg), nil
}

// ResumeSession reopens a stored session. A session that is still open in
// this process is shared, so its transcript survives reconfiguration even
// before anything was persisted.
func (c *Client) ResumeSession(ctx context.Context, id string, cfg sdk.SessionConfig) (sdk.Session, error) {
	c.mu.Lock()
	rec, ok := c.live[id]
	c.mu.Unlock()

	if !ok {
		data, err := config.LoadSession(id)
		if err != nil {
			return nil, mapStoreError(err, id)
		}
		rec = &record{data: data}
		c.mu.Lock()
		c.live[id] = rec
		c.mu.Unlock()
	}

	rec.mu.Lock()
	if cfg.Model != "" {
		rec.data.Model = cfg.Model
	}
	rec.data.ReasoningEffort = cfg.ReasoningEffort
	rec.mu.Unlock()

	c.logger.Debug("session resumed", zap.String("session", id), zap.String("model", cfg.Model))
	return newSession(c, rec, cfg), nil
}

func (c *Client) ListSessions(ctx context.Context) ([]sdk.SessionMetadata, error) {
	summaries, err := config.ListSessions()
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	out := make([]sdk.SessionMetadata, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, sdk.SessionMetadata{
			ID:        s.ID,
			Summary:   s.Preview,
			Model:     s.Model,
			UpdatedAt: s.UpdatedAt,
		})
	}
	return out, nil
}

func (c *Client) DeleteSession(ctx context.Context, id string) error {
	if err := config.DeleteSession(id); err != nil {
		return mapStoreError(err, id)
	}
	c.mu.Lock()
	delete(c.live, id)
	c.mu.Unlock()
	return nil
}

func (c *Client) Ping(ctx context.Context, tag string) (*sdk.PingResponse, error) {
	latency, err := c.api.Ping(ctx)
	c.track(err)
	if err != nil {
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &sdk.PingResponse{
		Message:   fmt.Sprintf("pong: %s (%s)", tag, latency.Round(time.Millisecond)),
		Timestamp: time.Now(),
	}, nil
}

// State reports the connection state. The first call probes the API key when
// no request has been made yet.
func (c *Client) State(ctx context.Context) (sdk.ConnectionState, error) {
	c.mu.Lock()
	state := c.state
	if state == sdk.StateDisconnected {
		c.state = sdk.StateConnecting
	}
	c.mu.Unlock()

	if state != sdk.StateDisconnected {
		return state, nil
	}
	_, err := c.api.KeyInfo(ctx)
	c.track(err)
	if err != nil && errors.Is(err, context.Canceled) {
		c.mu.Lock()
		c.state = sdk.StateDisconnected
		c.mu.Unlock()
		return sdk.StateDisconnected, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, nil
}

// ListModels returns the models able to produce text.
func (c *Client) ListModels(ctx context.Context) ([]sdk.ModelInfo, error) {
	models, err := c.api.ListModels(ctx, nil)
	c.track(err)
	if err != nil {
		return nil, fmt.Errorf("listing models: %w", err)
	}
	out := make([]sdk.ModelInfo, 0, len(models))
	for _, m := range models {
		if !m.IsChatModel() {
			continue
		}
		out = append(out, sdk.ModelInfo{
			ID:              m.ID,
			Name:            m.Name,
			ContextLength:   m.ContextWindow(),
			PromptPrice:     m.Pricing.Prompt,
			CompletionPrice: m.Pricing.Completion,
		})
	}
	return out, nil
}

func (c *Client) LastSessionID(ctx context.Context) (string, error) {
	s, err := config.GetLatestSession()
	if err != nil {
		return "", mapStoreError(err, "")
	}
	return s.ID, nil
}

func (c *Client) Status(ctx context.Context) (*sdk.Status, error) {
	if c.version == "" {
		return nil, sdk.ErrUnsupported
	}
	return &sdk.Status{Version: c.version, ProtocolVersion: ProtocolVersion}, nil
}

// AuthStatus reports whether the configured key is accepted. A rejected key
// is a status, not an error.
func (c *Client) AuthStatus(ctx context.Context) (*sdk.AuthStatus, error) {
	if c.apiKey == "" {
		return &sdk.AuthStatus{Detail: "no API key configured"}, nil
	}
	info, err := c.api.KeyInfo(ctx)
	c.track(err)
	if errors.Is(err, api.ErrUnauthorized) {
		return &sdk.AuthStatus{Detail: "API key rejected"}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("checking key: %w", err)
	}

	detail := fmt.Sprintf("$%.2f used", info.Usage)
	if info.Limit != nil {
		detail = fmt.Sprintf("$%.2f of $%.2f used", info.Usage, *info.Limit)
	}
	if info.IsFreeTier {
		detail += ", free tier"
	}
	return &sdk.AuthStatus{Authenticated: true, Login: info.Label, Detail: detail}, nil
}

// release forgets rec if no open session refers to it any more.
func (c *Client) release(id string, rec *record) {
	rec.mu.Lock()
	rec.refs--
	unused := rec.refs <= 0
	rec.mu.Unlock()
	if !unused {
		return
	}
	c.mu.Lock()
	if c.live[id] == rec {
		delete(c.live, id)
	}
	c.mu.Unlock()
}

func mapStoreError(err error, id string) error {
	if errors.Is(err, config.ErrSessionNotFound) {
		if id == "" {
			return sdk.ErrSessionNotFound
		}
		return fmt.Errorf("%w: %s", sdk.ErrSessionNotFound, id)
	}
	return err
}
