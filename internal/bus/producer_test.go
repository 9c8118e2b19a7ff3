package bus

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishFanOut(t *testing.T) {
	b := NewMemoryBus()
	ctx := context.Background()

	sub1 := b.Subscribe(TopicSwaps, 8)
	sub2 := b.Subscribe(TopicSwaps, 8)
	other := b.Subscribe(TopicLifecycle, 8)

	require.NoError(t, b.Publish(ctx, Message{Topic: TopicSwaps, Key: "curve-1", Value: []byte(`{}`)}))

	for _, sub := range []<-chan Message{sub1, sub2} {
		select {
		case msg := <-sub:
			assert.Equal(t, "curve-1", msg.Key)
			assert.False(t, msg.Timestamp.IsZero())
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive message")
		}
	}

	select {
	case <-other:
		t.Fatal("lifecycle subscriber received a swaps message")
	default:
	}
}

func TestPublishJSON(t *testing.T) {
	b := NewMemoryBus()
	sub := b.Subscribe(TopicClaims, 1)

	event := RewardClaimed{
		BaseEvent: NewBaseEvent("test", "1.0"),
		User:      "alice",
		Bucket:    "cashback",
		Amount:    42,
	}
	require.NoError(t, b.PublishJSON(context.Background(), TopicClaims, "alice", event))

	msg := <-sub
	var got RewardClaimed
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, "alice", got.User)
	assert.Equal(t, uint64(42), got.Amount)
	assert.NotEmpty(t, got.EventID)
}

func TestSlowSubscriberDrops(t *testing.T) {
	b := NewMemoryBus()
	_ = b.Subscribe(TopicSwaps, 1)

	ctx := context.Background()
	require.NoError(t, b.Publish(ctx, Message{Topic: TopicSwaps}))
	// Buffer full: this one is dropped instead of blocking the publisher.
	require.NoError(t, b.Publish(ctx, Message{Topic: TopicSwaps}))

	published, dropped := b.Stats()
	assert.Equal(t, int64(2), published)
	assert.Equal(t, int64(1), dropped)
}

func TestCloseTerminatesSubscribers(t *testing.T) {
	b := NewMemoryBus()
	sub := b.Subscribe(TopicSwaps, 1)

	b.Close()

	_, open := <-sub
	assert.False(t, open)

	err := b.Publish(context.Background(), Message{Topic: TopicSwaps})
	assert.Error(t, err)

	// Idempotent.
	b.Close()
}
