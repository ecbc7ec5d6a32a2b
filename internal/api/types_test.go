package api

import (
	"encoding/json"
	"testing"
)

func TestModel_IsChatModel(t *testing.T) {
	tests := []struct {
		name             string
		outputModalities []string
		want             bool
	}{
		{name: "text only", outputModalities: []string{"text"}, want: true},
		{name: "text and image", outputModalities: []string{"text", "image"}, want: true},
		{name: "image only", outputModalities: []string{"image"}, want: false},
		{name: "audio only", outputModalities: []string{"audio"}, want: false},
		{name: "undeclared", outputModalities: nil, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Model{
				Architecture: ModelArchitecture{
					OutputModalities: tt.outputModalities,
				},
			}
			if got := m.IsChatModel(); got != tt.want {
				t.Errorf("IsChatModel() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestModel_SupportsReasoning(t *testing.T) {
	m := &Model{SupportedParameters: []string{"temperature", "reasoning"}}
	if !m.SupportsReasoning() {
		t.Error("SupportsReasoning() = false, want true")
	}
	m.SupportedParameters = []string{"temperature"}
	if m.SupportsReasoning() {
		t.Error("SupportsReasoning() = true, want false")
	}
}

func TestChatRequest_OmitsUnsetOptions(t *testing.T) {
	data, err := json.Marshal(ChatRequest{Model: "m", Messages: []Message{{Role: "user", Content: "hi"}}})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	for _, key := range []string{"reasoning", "usage"} {
		if _, ok := raw[key]; ok {
			t.Errorf("expected %q to be omitted, got %s", key, data)
		}
	}
}

func TestMessage_UnmarshalParts(t *testing.T) {
	var m Message
	err := json.Unmarshal([]byte(`{"role":"user","content":[{"type":"text","text":"hello"},{"type":"text","text":"--- a.go ---"}]}`), &m)
	if err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if m.Content != "hello" {
		t.Errorf("Content = %q, want first text part", m.Content)
	}
	if len(m.ContentParts) != 2 {
		t.Errorf("ContentParts = %d, want 2", len(m.ContentParts))
	}
}

func TestMessage_MarshalContentForms(t *testing.T) {
	plain, err := json.Marshal(Message{Role: RoleUser, Content: "hi"})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(plain) != `{"role":"user","content":"hi"}` {
		t.Errorf("plain = %s", plain)
	}

	multi, err := json.Marshal(Message{Role: RoleUser, Content: "ignored", ContentParts: []ContentPart{TextPart("a"), TextPart("b")}})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(multi) != `{"role":"user","content":[{"type":"text","text":"a"},{"type":"text","text":"b"}]}` {
		t.Errorf("multipart = %s", multi)
	}

	var empty Message
	if err := json.Unmarshal([]byte(`{"role":"assistant","content":null}`), &empty); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if empty.Role != RoleAssistant || empty.Content != "" || empty.ContentParts != nil {
		t.Errorf("null content = %+v", empty)
	}
}

func TestModel_ContextWindow(t *testing.T) {
	own, provider := 200000, 128000
	tests := []struct {
		name  string
		model Model
		want  int
	}{
		{"declared", Model{ContextLength: &own, TopProvider: TopProviderInfo{ContextLength: &provider}}, own},
		{"provider fallback", Model{TopProvider: TopProviderInfo{ContextLength: &provider}}, provider},
		{"unknown", Model{}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.model.ContextWindow(); got != tt.want {
				t.Errorf("ContextWindow() = %d, want %d", got, tt.want)
			}
		})
	}
}
