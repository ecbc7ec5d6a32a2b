// Package api is a small OpenRouter HTTP client: chat completions, streamed
// or not, plus the model catalog and key lookups.
package api

import (
	"encoding/json"
	"slices"
)

// Roles used on the wire.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ContentPart is one element of a multipart message. Only text parts are
// sent; attached files travel as additional text parts.
type ContentPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// TextPart returns a text content part.
func TextPart(text string) ContentPart {
	return ContentPart{Type: "text", Text: text}
}

// Message is a chat message. The wire form of content is a plain string
// unless ContentParts is set, in which case it is an array.
type Message struct {
	Role         string
	Content      string
	ContentParts []ContentPart
}

type wireMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content,omitempty"`
}

func (m Message) MarshalJSON() ([]byte, error) {
	var (
		content []byte
		err     error
	)
	if len(m.ContentParts) > 0 {
		content, err = json.Marshal(m.ContentParts)
	} else {
		content, err = json.Marshal(m.Content)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireMessage{Role: m.Role, Content: content})
}

// UnmarshalJSON accepts either content form. For multipart content, Content
// is set to the first text part.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*m = Message{Role: w.Role}
	if len(w.Content) == 0 || string(w.Content) == "null" {
		return nil
	}
	if w.Content[0] == '"' {
		return json.Unmarshal(w.Content, &m.Content)
	}
	if err := json.Unmarshal(w.Content, &m.ContentParts); err != nil {
		return err
	}
	if i := slices.IndexFunc(m.ContentParts, func(p ContentPart) bool { return p.Type == "text" }); i >= 0 {
		m.Content = m.ContentParts[i].Text
	}
	return nil
}

// ReasoningOptions asks the model for a reasoning effort level
// ("low", "medium", "high" or "xhigh").
type ReasoningOptions struct {
	Effort string `json:"effort,omitempty"`
}

// UsageOptions asks the API to report token accounting with the response.
type UsageOptions struct {
	Include bool `json:"include"`
}

// ChatRequest is the body of POST /chat/completions.
type ChatRequest struct {
	Model     string            `json:"model"`
	Messages  []Message         `json:"messages"`
	Stream    bool              `json:"stream"`
	Reasoning *ReasoningOptions `json:"reasoning,omitempty"`
	Usage     *UsageOptions     `json:"usage,omitempty"`
}

// Usage is the token accounting reported for a completion.
type Usage struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	Cost             float64 `json:"cost,omitempty"`
}

// Output is the assistant text of a choice: a full message, or a delta when
// streaming.
type Output struct {
	Content   string `json:"content"`
	Reasoning string `json:"reasoning,omitempty"`
}

// Choice is one completion alternative. Only the first is ever used.
type Choice struct {
	Delta        Output  `json:"delta"`
	Message      Output  `json:"message"`
	FinishReason *string `json:"finish_reason"`
}

// ChatResponse is a completion, or one streamed chunk of one. Error is set
// when the provider fails after the response has started.
type ChatResponse struct {
	ID      string     `json:"id"`
	Model   string     `json:"model"`
	Choices []Choice   `json:"choices"`
	Usage   *Usage     `json:"usage,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
}

// KeyInfo describes the API key in use.
type KeyInfo struct {
	Label      string   `json:"label"`
	Usage      float64  `json:"usage"`
	Limit      *float64 `json:"limit"`
	IsFreeTier bool     `json:"is_free_tier"`
}

type keyResponse struct {
	Data KeyInfo `json:"data"`
}

// ModelPricing holds per-token prices as decimal strings in USD.
type ModelPricing struct {
	Prompt     string `json:"prompt"`
	Completion string `json:"completion"`
}

type ModelArchitecture struct {
	InputModalities  []string `json:"input_modalities"`
	OutputModalities []string `json:"output_modalities"`
}

type TopProviderInfo struct {
	ContextLength *int `json:"context_length"`
}

// Model is an entry of the OpenRouter model catalog.
type Model struct {
	ID                  string            `json:"id"`
	Name                string            `json:"name"`
	Description         string            `json:"description"`
	ContextLength       *int              `json:"context_length"`
	Pricing             ModelPricing      `json:"pricing"`
	Architecture        ModelArchitecture `json:"architecture"`
	TopProvider         TopProviderInfo   `json:"top_provider"`
	SupportedParameters []string          `json:"supported_parameters"`
}

// ModelsResponse is the body of GET /models.
type ModelsResponse struct {
	Data []Model `json:"data"`
}

// ListModelsOptions filters the model catalog server-side.
type ListModelsOptions struct {
	Category            string
	SupportedParameters string
}

// IsChatModel reports whether the model produces text. Models without
// declared output modalities are assumed to be text models.
func (m *Model) IsChatModel() bool {
	out := m.Architecture.OutputModalities
	return len(out) == 0 || slices.Contains(out, "text")
}

// SupportsReasoning reports whether the model accepts a reasoning effort.
func (m *Model) SupportsReasoning() bool {
	return slices.Contains(m.SupportedParameters, "reasoning")
}

// ContextWindow returns the model's context length in tokens, falling back
// to the top provider's when the model does not declare one. Zero means
// unknown.
func (m *Model) ContextWindow() int {
	switch {
	case m.ContextLength != nil:
		return *m.ContextLength
	case m.TopProvider.ContextLength != nil:
		return *m.TopProvider.ContextLength
	}
	return 0
}
