package conversation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vstratful/orchat/internal/sdk"
)

func TestSessionsStart(t *testing.T) {
	ctx := context.Background()

	t.Run("creates when no id given", func(t *testing.T) {
		client := sdk.NewMockClient()
		s := NewSessions(client, sdk.SessionConfig{Model: "m1"}, nil)

		session, err := s.Start(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, session, s.Current())
		assert.True(t, s.Ready())
		require.Len(t, client.CreateCalls, 1)
		assert.Equal(t, "m1", client.CreateCalls[0].Model)
	})

	t.Run("resumes given id", func(t *testing.T) {
		client := sdk.NewMockClient()
		client.ResumeSessionFunc = func(_ context.Context, id string, _ sdk.SessionConfig) (sdk.Session, error) {
			return sdk.NewMockSession(id), nil
		}
		s := NewSessions(client, sdk.SessionConfig{}, nil)

		session, err := s.Start(ctx, "abc")
		require.NoError(t, err)
		assert.Equal(t, "abc", session.ID())
		assert.Empty(t, client.CreateCalls)
	})

	t.Run("failure leaves sessions not ready", func(t *testing.T) {
		client := sdk.NewMockClient()
		s := NewSessions(client, sdk.SessionConfig{}, nil)

		_, err := s.Start(ctx, "missing")
		assert.ErrorIs(t, err, sdk.ErrSessionNotFound)
		assert.False(t, s.Ready())
		assert.ErrorIs(t, s.Err(), sdk.ErrSessionNotFound)
	})

	t.Run("no client", func(t *testing.T) {
		s := NewSessions(nil, sdk.SessionConfig{}, nil)
		_, err := s.Start(ctx, "")
		assert.ErrorIs(t, err, ErrNoClient)
		assert.False(t, s.Ready())
	})
}

func TestSessionsNewKeepsCurrentOnFailure(t *testing.T) {
	ctx := context.Background()
	client := sdk.NewMockClient()
	s := NewSessions(client, sdk.SessionConfig{}, nil)
	first, err := s.New(ctx)
	require.NoError(t, err)

	client.CreateSessionFunc = func(context.Context, sdk.SessionConfig) (sdk.Session, error) {
		return nil, errors.New("quota exceeded")
	}
	_, err = s.New(ctx)
	assert.ErrorContains(t, err, "quota exceeded")
	assert.Equal(t, first, s.Current())
	assert.True(t, s.Ready())
}

func TestSessionsReconfigure(t *testing.T) {
	ctx := context.Background()
	client := sdk.NewMockClient()
	first := sdk.NewMockSession("s1")
	client.CreateSessionFunc = func(context.Context, sdk.SessionConfig) (sdk.Session, error) {
		return first, nil
	}

	var resumed []sdk.SessionConfig
	client.ResumeSessionFunc = func(_ context.Context, id string, cfg sdk.SessionConfig) (sdk.Session, error) {
		resumed = append(resumed, cfg)
		return sdk.NewMockSession(id), nil
	}

	s := NewSessions(client, sdk.SessionConfig{Model: "m1"}, nil)

	// Without a session only the config changes.
	require.NoError(t, s.SetModel(ctx, "m0"))
	assert.Empty(t, resumed)
	assert.Equal(t, "m0", s.Config().Model)

	_, err := s.New(ctx)
	require.NoError(t, err)

	require.NoError(t, s.SetModel(ctx, "m2"))
	require.NoError(t, s.SetReasoningEffort(ctx, "high"))

	require.Len(t, resumed, 2)
	assert.Equal(t, sdk.SessionConfig{Model: "m2"}, resumed[0])
	assert.Equal(t, sdk.SessionConfig{Model: "m2", ReasoningEffort: "high"}, resumed[1])
	assert.Equal(t, "s1", s.Current().ID())
	assert.True(t, first.Destroyed())

	client.ResumeSessionFunc = func(context.Context, string, sdk.SessionConfig) (sdk.Session, error) {
		return nil, errors.New("unknown model")
	}
	assert.Error(t, s.SetModel(ctx, "bogus"))
	assert.Equal(t, "m2", s.Config().Model, "failed switch keeps the old model")
}

func TestSessionsClose(t *testing.T) {
	ctx := context.Background()
	client := sdk.NewMockClient()
	session := sdk.NewMockSession("s1")
	client.CreateSessionFunc = func(context.Context, sdk.SessionConfig) (sdk.Session, error) {
		return session, nil
	}
	s := NewSessions(client, sdk.SessionConfig{}, nil)
	_, err := s.New(ctx)
	require.NoError(t, err)

	require.NoError(t, s.Close(ctx))
	assert.True(t, session.Destroyed())
	assert.Nil(t, s.Current())
	assert.NoError(t, s.Close(ctx))
}
