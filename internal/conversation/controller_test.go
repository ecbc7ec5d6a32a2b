package conversation

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/vstratful/orchat/internal/commands"
	"github.com/vstratful/orchat/internal/config"
	"github.com/vstratful/orchat/internal/sdk"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var ignoreVolatile = cmpopts.IgnoreFields(Message{}, "ID", "CreatedAt")

func delta(s string) sdk.Event {
	return sdk.Event{Type: sdk.EventMessageDelta, Data: sdk.EventData{DeltaContent: s}}
}

func idle() sdk.Event {
	return sdk.Event{Type: sdk.EventSessionIdle}
}

// recorder collects OnChange snapshots.
type recorder struct {
	mu        sync.Mutex
	snapshots [][]Message
}

func (r *recorder) record(msgs []Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, msgs)
}

func (r *recorder) all() [][]Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]Message(nil), r.snapshots...)
}

type fixture struct {
	ctrl    *Controller
	client  *sdk.MockClient
	session *sdk.MockSession
	rec     *recorder
	cfg     *config.AppConfig
}

func newFixture(t *testing.T, mutate ...func(*Options)) *fixture {
	t.Helper()

	session := sdk.NewMockSession("session-1")
	client := sdk.NewMockClient()
	client.CreateSessionFunc = func(context.Context, sdk.SessionConfig) (sdk.Session, error) {
		return session, nil
	}

	cfg := config.NewAppConfig()
	cfg.WorkDir = t.TempDir()
	cfg.IdleTimeout = 5 * time.Second

	sessions := NewSessions(client, sdk.SessionConfig{Model: "base-model"}, nil)
	_, err := sessions.Start(context.Background(), "")
	require.NoError(t, err)

	rec := &recorder{}
	opts := Options{
		Sessions: sessions,
		Config:   cfg,
		OnChange: rec.record,
	}
	for _, m := range mutate {
		m(&opts)
	}

	return &fixture{
		ctrl:    New(opts),
		client:  client,
		session: session,
		rec:     rec,
		cfg:     cfg,
	}
}

// replyWith makes the session answer every prompt with events.
func (f *fixture) replyWith(events ...sdk.Event) {
	f.session.SendFunc = func(context.Context, sdk.MessageOptions) (string, error) {
		go f.session.Emit(events...)
		return "msg-1", nil
	}
}

// holdReply makes Send signal sent and leaves the response to the test.
func (f *fixture) holdReply() <-chan struct{} {
	sent := make(chan struct{}, 1)
	f.session.SendFunc = func(context.Context, sdk.MessageOptions) (string, error) {
		sent <- struct{}{}
		return "msg-1", nil
	}
	return sent
}

func (f *fixture) submitAsync(text string) <-chan Result {
	done := make(chan Result, 1)
	go func() { done <- f.ctrl.Submit(context.Background(), text) }()
	return done
}

func waitResult(t *testing.T, done <-chan Result) Result {
	t.Helper()
	select {
	case res := <-done:
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("Submit did not return")
		return Result{}
	}
}

func TestSubmitStreamsResponse(t *testing.T) {
	f := newFixture(t)
	f.replyWith(delta("Test "), delta("response"), idle())

	res := f.ctrl.Submit(context.Background(), "hello")
	assert.Equal(t, Result{Handled: true, ClearInput: true}, res)

	want := []Message{
		{Role: RoleUser, Content: "hello"},
		{Role: RoleAssistant, Content: "Test response"},
	}
	if diff := cmp.Diff(want, f.ctrl.Messages(), ignoreVolatile); diff != "" {
		t.Errorf("transcript mismatch (-want +got):\n%s", diff)
	}
	assert.False(t, f.ctrl.IsStreaming())

	// The first snapshot holds the user message and the streaming placeholder.
	snaps := f.rec.all()
	require.NotEmpty(t, snaps)
	first := []Message{
		{Role: RoleUser, Content: "hello"},
		{Role: RoleAssistant, IsStreaming: true},
	}
	if diff := cmp.Diff(first, snaps[0], ignoreVolatile); diff != "" {
		t.Errorf("first snapshot mismatch (-want +got):\n%s", diff)
	}

	calls := f.session.SendCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "hello", calls[0].Prompt)
}

func TestSubmitAtMostOneStreamingMessage(t *testing.T) {
	f := newFixture(t)
	f.replyWith(delta("a"), delta("b"), idle())

	f.ctrl.Submit(context.Background(), "one")
	f.ctrl.Submit(context.Background(), "two")

	for _, snap := range f.rec.all() {
		streaming := 0
		for _, m := range snap {
			if m.IsStreaming {
				streaming++
			}
		}
		assert.LessOrEqual(t, streaming, 1)
	}
	assert.Len(t, f.ctrl.Messages(), 4)
}

func TestSubmitContentOnlyGrows(t *testing.T) {
	f := newFixture(t, func(o *Options) {
		// Every call is a full interval later, so every chunk is flushed.
		var mu sync.Mutex
		now := time.Unix(0, 0)
		o.Now = func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			now = now.Add(FlushInterval)
			return now
		}
	})
	f.replyWith(delta("a"), delta("b"), delta("c"), idle())

	f.ctrl.Submit(context.Background(), "go")

	var contents []string
	for _, snap := range f.rec.all() {
		for _, m := range snap {
			if m.Role == RoleAssistant && (len(contents) == 0 || contents[len(contents)-1] != m.Content) {
				contents = append(contents, m.Content)
			}
		}
	}
	assert.Equal(t, []string{"", "a", "ab", "abc"}, contents)
}

func TestSubmitDebouncesFlushes(t *testing.T) {
	frozen := time.Unix(100, 0)
	f := newFixture(t, func(o *Options) {
		o.Now = func() time.Time { return frozen }
	})
	f.replyWith(delta("x"), delta("y"), delta("z"), idle())

	f.ctrl.Submit(context.Background(), "go")

	// With no time passing, only the final flush writes content.
	var updates int
	for _, snap := range f.rec.all() {
		for _, m := range snap {
			if m.Role == RoleAssistant && m.Content == "xyz" && m.IsStreaming {
				updates++
			}
		}
	}
	assert.Equal(t, 1, updates)
	assert.Equal(t, "xyz", f.ctrl.Messages()[1].Content)
}

func TestSubmitCommandNeverReachesSession(t *testing.T) {
	f := newFixture(t)
	f.client.ResumeSessionFunc = func(_ context.Context, id string, cfg sdk.SessionConfig) (sdk.Session, error) {
		assert.Equal(t, "session-1", id)
		assert.Equal(t, "gpt-4", cfg.Model)
		return f.session, nil
	}

	res := f.ctrl.Submit(context.Background(), "/model gpt-4")

	require.NotNil(t, res.Outcome)
	assert.Equal(t, commands.Outcome{Type: commands.OutcomeSetModel, Model: "gpt-4"}, *res.Outcome)
	assert.True(t, res.ClearInput)
	assert.Empty(t, f.session.SendCalls())
	assert.Equal(t, "gpt-4", f.ctrl.Sessions().Config().Model)

	msgs := f.ctrl.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, RoleSystem, msgs[0].Role)
	assert.Equal(t, "Model set to gpt-4", msgs[0].Content)
}

func TestSubmitLiteralSlash(t *testing.T) {
	f := newFixture(t)
	f.replyWith(delta("ok"), idle())

	res := f.ctrl.Submit(context.Background(), "//help")

	assert.Nil(t, res.Outcome)
	calls := f.session.SendCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "/help", calls[0].Prompt)
	assert.Equal(t, "/help", f.ctrl.Messages()[0].Content)
}

func TestSubmitInvalidReasoning(t *testing.T) {
	f := newFixture(t)

	res := f.ctrl.Submit(context.Background(), "/reasoning turbo")

	require.NotNil(t, res.Outcome)
	msgs := f.ctrl.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, KindError, msgs[0].Kind)
	assert.Contains(t, msgs[0].Content, "turbo")
	assert.Contains(t, msgs[0].Content, "low, medium, high, xhigh")
	assert.Empty(t, f.session.SendCalls())
}

func TestSubmitIdleTimeout(t *testing.T) {
	f := newFixture(t)
	f.cfg.IdleTimeout = 50 * time.Millisecond

	start := time.Now()
	done := f.submitAsync("hello")
	waitResult(t, done)

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.False(t, f.ctrl.IsStreaming())

	msgs := f.ctrl.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, KindError, msgs[1].Kind)
	assert.False(t, msgs[1].IsStreaming)
	assert.Contains(t, msgs[1].Content, "timed out")
	assert.Equal(t, 0, f.session.HandlerCount())
}

func TestSubmitSessionError(t *testing.T) {
	f := newFixture(t)
	f.replyWith(delta("partial"), sdk.Event{Type: sdk.EventSessionError, Data: sdk.EventData{Message: "rate limited"}})

	f.ctrl.Submit(context.Background(), "hello")

	got := f.ctrl.Messages()[1]
	assert.Equal(t, "Error: rate limited", got.Content)
	assert.Equal(t, KindError, got.Kind)
	assert.False(t, got.IsStreaming)
}

func TestSubmitSendFailure(t *testing.T) {
	f := newFixture(t)
	f.session.SendFunc = func(context.Context, sdk.MessageOptions) (string, error) {
		return "", errors.New("connection refused")
	}

	f.ctrl.Submit(context.Background(), "hello")

	got := f.ctrl.Messages()[1]
	assert.Equal(t, KindError, got.Kind)
	assert.Contains(t, got.Content, "connection refused")
	assert.False(t, f.ctrl.IsStreaming())

	// The transcript stays usable.
	f.replyWith(delta("fine"), idle())
	f.ctrl.Submit(context.Background(), "again")
	assert.Equal(t, "fine", f.ctrl.Messages()[3].Content)
}

func TestSubmitIgnored(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, Result{}, f.ctrl.Submit(context.Background(), "   \n\t"))
	assert.Empty(t, f.ctrl.Messages())

	sent := f.holdReply()
	done := f.submitAsync("first")
	<-sent

	assert.True(t, f.ctrl.IsStreaming())
	assert.Equal(t, Result{}, f.ctrl.Submit(context.Background(), "second"))
	assert.Equal(t, Result{}, f.ctrl.Submit(context.Background(), "/help"))

	f.session.Emit(idle())
	waitResult(t, done)
	assert.Len(t, f.session.SendCalls(), 1)
}

func TestSubmitNotReady(t *testing.T) {
	client := sdk.NewMockClient()
	client.CreateSessionFunc = func(context.Context, sdk.SessionConfig) (sdk.Session, error) {
		return nil, errors.New("backend down")
	}
	sessions := NewSessions(client, sdk.SessionConfig{}, nil)
	_, err := sessions.Start(context.Background(), "")
	require.Error(t, err)

	ctrl := New(Options{Sessions: sessions})
	res := ctrl.Submit(context.Background(), "hello")

	assert.True(t, res.Handled)
	assert.False(t, res.ClearInput, "input is preserved")
	msgs := ctrl.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, KindError, msgs[0].Kind)
	assert.Contains(t, msgs[0].Content, "backend down")

	// Commands still work without a session.
	res = ctrl.Submit(context.Background(), "/help")
	require.NotNil(t, res.Outcome)
	assert.Len(t, ctrl.Messages(), 2)
}

func TestSubmitMentions(t *testing.T) {
	f := newFixture(t)
	f.cfg.MaxAttachmentBytes = 100
	require.NoError(t, os.WriteFile(filepath.Join(f.cfg.WorkDir, "a.txt"), []byte("hello"), 0644))
	f.replyWith(idle())

	f.ctrl.Submit(context.Background(), "compare @a.txt @missing.txt")

	calls := f.session.SendCalls()
	require.Len(t, calls, 1)
	require.Len(t, calls[0].Attachments, 1)
	assert.Equal(t, "a.txt", calls[0].Attachments[0].DisplayName)
	assert.Equal(t, int64(5), calls[0].Attachments[0].Size)

	msgs := f.ctrl.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, RoleSystem, msgs[0].Role)
	assert.Equal(t, KindError, msgs[0].Kind)
	assert.Contains(t, msgs[0].Content, "@missing.txt was not found")
	assert.Equal(t, RoleUser, msgs[1].Role)
	assert.Equal(t, calls[0].Attachments, msgs[1].Attachments)
}

func TestSubmitNoticesAppearAboveAnswer(t *testing.T) {
	f := newFixture(t)
	f.replyWith(
		delta("Checking"),
		sdk.Event{Type: sdk.EventToolExecutionStart, Data: sdk.EventData{ToolName: "weather"}},
		sdk.Event{Type: sdk.EventToolExecutionProgress},
		sdk.Event{Type: sdk.EventSessionTruncation, Data: sdk.EventData{TokensRemoved: 120}},
		sdk.Event{Type: sdk.EventSubagentFailed, Data: sdk.EventData{AgentName: "scout", Message: "lost"}},
		delta(" done"),
		idle(),
	)

	f.ctrl.Submit(context.Background(), "hi")

	want := []Message{
		{Role: RoleUser, Content: "hi"},
		{Role: RoleSystem, Kind: KindInfo, Content: "Running tool weather"},
		{Role: RoleSystem, Kind: KindInfo, Content: "Conversation truncated (120 tokens removed)"},
		{Role: RoleSystem, Kind: KindError, Content: "Subagent scout failed: lost"},
		{Role: RoleAssistant, Content: "Checking done"},
	}
	if diff := cmp.Diff(want, f.ctrl.Messages(), ignoreVolatile); diff != "" {
		t.Errorf("transcript mismatch (-want +got):\n%s", diff)
	}
}

func TestSubmitSideChannelMetadata(t *testing.T) {
	f := newFixture(t)
	sent := f.holdReply()
	done := f.submitAsync("explain")
	<-sent

	assistant := func() Message { return f.ctrl.Messages()[1] }

	f.session.Emit(sdk.Event{Type: sdk.EventTurnStart, Data: sdk.EventData{TurnID: "t1"}})
	assert.Equal(t, PhaseThinking, assistant().TurnPhase)

	f.session.Emit(
		sdk.Event{Type: sdk.EventReasoningDelta, Data: sdk.EventData{DeltaContent: "hmm "}},
		sdk.Event{Type: sdk.EventReasoningDelta, Data: sdk.EventData{DeltaContent: "ok"}},
		sdk.Event{Type: sdk.EventIntent, Data: sdk.EventData{Intent: "Reading files"}},
	)
	assert.Equal(t, "hmm ok", assistant().Reasoning)
	assert.Equal(t, "Reading files", assistant().Intent)
	assert.Equal(t, RoleUser, f.ctrl.Messages()[0].Role, "other messages are untouched")

	usage := sdk.Usage{Model: "m", InputTokens: 3, OutputTokens: 4}
	f.session.Emit(
		delta("answer"),
		sdk.Event{Type: sdk.EventUsage, Data: sdk.EventData{Usage: &usage}},
		sdk.Event{Type: sdk.EventTurnEnd, Data: sdk.EventData{TurnID: "t1"}},
		idle(),
	)
	waitResult(t, done)

	got := assistant()
	require.NotNil(t, got.Usage)
	assert.Equal(t, 7, got.Usage.TotalTokens())
	assert.Equal(t, PhaseNone, got.TurnPhase)
	assert.Equal(t, "answer", got.Content)
	assert.False(t, got.IsStreaming)
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	sent := f.holdReply()

	assert.NoError(t, f.ctrl.Cancel(context.Background()), "cancel while idle is a no-op")
	assert.Equal(t, 0, f.session.AbortCalls())

	done := f.submitAsync("long task")
	<-sent
	f.session.Emit(delta("partial"))

	require.NoError(t, f.ctrl.Cancel(context.Background()))
	assert.True(t, f.ctrl.Canceled())
	assert.True(t, f.ctrl.IsStreaming(), "the stream ends only through the session")
	require.NoError(t, f.ctrl.Cancel(context.Background()))

	// The session honors the abort with an idle event.
	f.session.Emit(idle())
	waitResult(t, done)

	assert.Equal(t, 1, f.session.AbortCalls())
	assert.False(t, f.ctrl.IsStreaming())
	assert.False(t, f.ctrl.Canceled())

	msgs := f.ctrl.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "partial", msgs[1].Content)
	assert.False(t, msgs[1].IsStreaming)
	assert.Equal(t, CanceledNotice, msgs[2].Content)
}

func TestClearWhileStreamingDetachesMessage(t *testing.T) {
	f := newFixture(t)
	sent := f.holdReply()

	done := f.submitAsync("hello")
	<-sent
	f.session.Emit(delta("first"))

	f.ctrl.ClearMessages()
	assert.Empty(t, f.ctrl.Messages())

	f.session.Emit(
		sdk.Event{Type: sdk.EventToolExecutionStart, Data: sdk.EventData{ToolName: "grep"}},
		delta(" second"),
		idle(),
	)
	waitResult(t, done)

	assert.False(t, f.ctrl.IsStreaming())
	want := []Message{{Role: RoleSystem, Kind: KindInfo, Content: "Running tool grep"}}
	if diff := cmp.Diff(want, f.ctrl.Messages(), ignoreVolatile); diff != "" {
		t.Errorf("transcript mismatch (-want +got):\n%s", diff)
	}
}

func TestSubmitCommandActions(t *testing.T) {
	tests := []struct {
		input  string
		action Action
	}{
		{"/exit", ActionExit},
		{"/quit", ActionExit},
		{"/model", ActionOpenModelPicker},
		{"/help", ActionNone},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			f := newFixture(t)
			res := f.ctrl.Submit(context.Background(), tt.input)
			assert.True(t, res.Handled)
			assert.Equal(t, tt.action, res.Action)
		})
	}
}

func TestSubmitClear(t *testing.T) {
	f := newFixture(t)
	f.ctrl.AddNotice(KindInfo, "old")

	f.ctrl.Submit(context.Background(), "/clear")
	assert.Empty(t, f.ctrl.Messages())
}

func TestSubmitNewSession(t *testing.T) {
	f := newFixture(t)
	next := sdk.NewMockSession("session-2")
	f.client.CreateSessionFunc = func(context.Context, sdk.SessionConfig) (sdk.Session, error) {
		return next, nil
	}
	f.ctrl.AddNotice(KindInfo, "old")

	f.ctrl.Submit(context.Background(), "/session new")

	assert.Equal(t, next, f.ctrl.Sessions().Current())
	assert.True(t, f.session.Destroyed())
	msgs := f.ctrl.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "Started new session session-2", msgs[0].Content)
}

func TestSubmitResumeSession(t *testing.T) {
	f := newFixture(t)
	resumed := sdk.NewMockSession("old-7")
	resumed.History = []sdk.HistoryMessage{
		{Role: "user", Content: "what is go?"},
		{Role: "assistant", Content: "A language."},
		{Role: "tool", Content: "skipped"},
	}
	f.client.ResumeSessionFunc = func(_ context.Context, id string, _ sdk.SessionConfig) (sdk.Session, error) {
		if id != "old-7" {
			return nil, sdk.ErrSessionNotFound
		}
		return resumed, nil
	}

	f.ctrl.Submit(context.Background(), "/session resume old-7")

	want := []Message{
		{Role: RoleUser, Content: "what is go?"},
		{Role: RoleAssistant, Content: "A language."},
		{Role: RoleSystem, Kind: KindInfo, Content: "Resumed session old-7"},
	}
	if diff := cmp.Diff(want, f.ctrl.Messages(), ignoreVolatile); diff != "" {
		t.Errorf("transcript mismatch (-want +got):\n%s", diff)
	}

	f.ctrl.Submit(context.Background(), "/session resume nope")
	msgs := f.ctrl.Messages()
	last := msgs[len(msgs)-1]
	assert.Equal(t, KindError, last.Kind)
	assert.Contains(t, last.Content, "nope")
	assert.Equal(t, resumed, f.ctrl.Sessions().Current(), "failed resume keeps the active session")
}

func TestSubmitCopyUsesLastResponse(t *testing.T) {
	var copied string
	f := newFixture(t, func(o *Options) {
		o.Clipboard = func(s string) error { copied = s; return nil }
	})
	f.replyWith(delta("copy me"), idle())

	f.ctrl.Submit(context.Background(), "hi")
	f.ctrl.Submit(context.Background(), "/copy")

	assert.Equal(t, "copy me", copied)
}

func TestSnapshotsAreImmutable(t *testing.T) {
	f := newFixture(t)
	f.ctrl.AddNotice(KindInfo, "one")
	before := f.ctrl.Messages()

	f.ctrl.AddNotice(KindInfo, "two")
	f.ctrl.ClearMessages()

	require.Len(t, before, 1)
	assert.Equal(t, "one", before[0].Content)
}
