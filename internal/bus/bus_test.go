package bus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_PublishReachesSubscribers(t *testing.T) {
	b := NewMemory()
	require.NoError(t, b.Connect(context.Background()))

	var got []map[string]any
	_, err := b.Subscribe(EventRefresh, func(_ context.Context, data map[string]any) {
		got = append(got, data)
	})
	require.NoError(t, err)

	b.Publish(EventRefresh, map[string]any{"trigger": "schedule"})
	b.Publish(EventStateChanged, map[string]any{"entity_id": "person.john"})

	require.Len(t, got, 1, "only the subscribed event type is delivered")
	assert.Equal(t, "schedule", got[0]["trigger"])
}

func TestMemory_Unsubscribe(t *testing.T) {
	b := NewMemory()

	calls := 0
	unsub, err := b.Subscribe(EventRefresh, func(_ context.Context, _ map[string]any) {
		calls++
	})
	require.NoError(t, err)
	require.Equal(t, 1, b.SubscriberCount(EventRefresh))

	b.Publish(EventRefresh, nil)
	require.NoError(t, unsub())
	b.Publish(EventRefresh, nil)

	assert.Equal(t, 1, calls)
	assert.Zero(t, b.SubscriberCount(EventRefresh))
}

func TestTopicFor(t *testing.T) {
	assert.Equal(t, "splitboard/events/vestaboard_refresh", topicFor("splitboard", EventRefresh))
	assert.Equal(t, "events/state_changed", topicFor("", EventStateChanged))
}
