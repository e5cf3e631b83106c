package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishAssignsSequentialIDs(t *testing.T) {
	t.Parallel()

	pub := New()
	ctx := context.Background()
	for i, want := range []string{"memory-1", "memory-2", "memory-3"} {
		id, err := pub.Publish(ctx, "run.published", i)
		require.NoError(t, err)
		assert.Equal(t, want, id)
	}
	assert.Len(t, pub.Messages(), 3)
}

func TestMessagesIsACopy(t *testing.T) {
	t.Parallel()

	pub := New()
	_, err := pub.Publish(context.Background(), "run.published", "a")
	require.NoError(t, err)

	msgs := pub.Messages()
	msgs[0].Kind = "tampered"
	assert.Equal(t, "run.published", pub.Messages()[0].Kind)
}

func TestLastFindsNewestOfKind(t *testing.T) {
	t.Parallel()

	pub := New()
	ctx := context.Background()
	_, _ = pub.Publish(ctx, "run.published", "first")
	_, _ = pub.Publish(ctx, "run.other", "noise")
	_, _ = pub.Publish(ctx, "run.published", "second")

	msg, ok := pub.Last("run.published")
	require.True(t, ok)
	assert.Equal(t, "second", msg.Payload)

	_, ok = pub.Last("run.missing")
	assert.False(t, ok)
}

func TestFailWith(t *testing.T) {
	t.Parallel()

	pub := New()
	boom := errors.New("topic deleted")
	pub.FailWith(boom)

	_, err := pub.Publish(context.Background(), "run.published", nil)
	require.ErrorIs(t, err, boom)
	assert.Empty(t, pub.Messages())

	pub.FailWith(nil)
	id, err := pub.Publish(context.Background(), "run.published", nil)
	require.NoError(t, err)
	assert.Equal(t, "memory-1", id)
}

func TestPublishHonoursCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().Publish(ctx, "run.published", nil)
	require.ErrorIs(t, err, context.Canceled)
}
