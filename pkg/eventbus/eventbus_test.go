package eventbus_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-dev/screenlens/pkg/eventbus"
)

func TestPublishDeliversToAllSubscribers(t *testing.T) {
	b := eventbus.New(4)
	subA := b.Subscribe()
	subB := b.Subscribe()
	defer subA.Unsubscribe()
	defer subB.Unsubscribe()

	b.Publish(eventbus.Event{Type: eventbus.EventTypeWindowReady, Payload: eventbus.WindowReadyPayload{Start: 1, End: 2}})

	for _, sub := range []*eventbus.Subscription{subA, subB} {
		select {
		case evt := <-sub.C():
			assert.Equal(t, eventbus.EventTypeWindowReady, evt.Type)
		case <-time.After(time.Second):
			t.Fatal("expected event delivery")
		}
	}
}

func TestPublishDropsOnFullSubscriberWithoutBlocking(t *testing.T) {
	b := eventbus.New(1)
	sub := b.Subscribe()
	defer sub.Unsubscribe()

	b.Publish(eventbus.Event{Type: eventbus.EventTypeAnalysisStarted})
	// Second publish would block a synchronous channel send; Publish must
	// not block the caller even though the subscriber hasn't drained yet.
	done := make(chan struct{})
	go func() {
		b.Publish(eventbus.Event{Type: eventbus.EventTypeAnalysisCompleted})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber channel")
	}

	evt := <-sub.C()
	assert.Equal(t, eventbus.EventTypeAnalysisStarted, evt.Type, "the dropped event must be the second one, not the first")
}

func TestUnsubscribeRemovesSubscriber(t *testing.T) {
	b := eventbus.New(4)
	sub := b.Subscribe()
	require.Equal(t, 1, b.SubscriberCount())

	sub.Unsubscribe()
	assert.Equal(t, 0, b.SubscriberCount())

	// Publishing after everyone has unsubscribed must not panic.
	b.Publish(eventbus.Event{Type: eventbus.EventTypeConfigUpdated})
}
