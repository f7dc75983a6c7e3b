package bus

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribePublish_ExactTopic(t *testing.T) {
	b := New()

	var got []string
	var mu sync.Mutex
	id := b.Subscribe("test_topic", func(payload any, topic, source string) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, payload.(string))
	})
	require.NotEmpty(t, id)

	count := b.Publish("test_topic", "hello", "unit-test")
	assert.Equal(t, 1, count)
	assert.Equal(t, []string{"hello"}, got)
}

func TestPublish_CaseInsensitiveNormalization(t *testing.T) {
	b := New()

	var called bool
	b.Subscribe("Test_Topic", func(payload any, topic, source string) {
		called = true
		assert.Equal(t, "TEST_TOPIC", topic)
	})

	count := b.Publish("test_topic", nil, "")
	assert.Equal(t, 1, count)
	assert.True(t, called)
}

func TestWildcardSubscription(t *testing.T) {
	b := New()

	var delivered []string
	b.Subscribe("TEST_*", func(payload any, topic, source string) {
		delivered = append(delivered, topic)
	})

	b.Publish("test_a", nil, "")
	b.Publish("other_b", nil, "")

	assert.Equal(t, []string{"TEST_A"}, delivered)
}

func TestUnsubscribe(t *testing.T) {
	b := New()

	calls := 0
	id := b.Subscribe("X", func(payload any, topic, source string) { calls++ })

	assert.True(t, b.Unsubscribe(id))
	assert.False(t, b.Unsubscribe(id), "unsubscribing twice should report false")

	b.Publish("X", nil, "")
	assert.Equal(t, 0, calls)
}

func TestSubscriberPanicDoesNotStopOthers(t *testing.T) {
	b := New()

	b.Subscribe("EVENT", func(payload any, topic, source string) {
		panic("boom")
	})

	var secondCalled bool
	b.Subscribe("EVENT", func(payload any, topic, source string) {
		secondCalled = true
	})

	count := b.Publish("EVENT", nil, "")
	assert.Equal(t, 2, count, "failed invocation still counts")
	assert.True(t, secondCalled)
}

func TestPublish_ReentrantFromCallback(t *testing.T) {
	b := New()

	done := make(chan struct{}, 1)
	b.Subscribe("A", func(payload any, topic, source string) {
		b.Publish("B", nil, "")
	})
	b.Subscribe("B", func(payload any, topic, source string) {
		done <- struct{}{}
	})

	b.Publish("A", nil, "")
	select {
	case <-done:
	default:
		t.Fatal("expected re-entrant publish to deliver to B")
	}
}

func TestSubscriberCountAndTopics(t *testing.T) {
	b := New()
	b.Subscribe("A", func(payload any, topic, source string) {})
	b.Subscribe("A", func(payload any, topic, source string) {})
	b.Subscribe("B", func(payload any, topic, source string) {})

	assert.Equal(t, 2, b.SubscriberCount("A"))
	assert.Equal(t, 1, b.SubscriberCount("B"))
	assert.Equal(t, 3, b.SubscriberCount(""))
	assert.ElementsMatch(t, []string{"A", "B"}, b.Topics())

	b.Reset()
	assert.Equal(t, 0, b.SubscriberCount(""))
}
