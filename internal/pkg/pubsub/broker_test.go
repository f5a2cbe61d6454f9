package pubsub_test

import (
	"testing"

	"github.com/journey-tracker/internal/pkg/pubsub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroker_PublishToAllSubscribers(t *testing.T) {
	b := pubsub.NewBroker[int]()

	ch1, cancel1 := b.Subscribe(1)
	defer cancel1()
	ch2, cancel2 := b.Subscribe(1)
	defer cancel2()

	assert.Equal(t, 2, b.Publish(42))
	assert.Equal(t, 42, <-ch1)
	assert.Equal(t, 42, <-ch2)
}

func TestBroker_FullBufferDoesNotBlock(t *testing.T) {
	b := pubsub.NewBroker[string]()

	ch, cancel := b.Subscribe(1)
	defer cancel()

	assert.Equal(t, 1, b.Publish("first"))
	assert.Equal(t, 0, b.Publish("second"))
	assert.Equal(t, uint64(1), b.Dropped())
	assert.Equal(t, "first", <-ch)
}

func TestBroker_UnsubscribeClosesChannel(t *testing.T) {
	b := pubsub.NewBroker[int]()

	ch, cancel := b.Subscribe(1)
	cancel()
	cancel()

	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, b.Publish(1))
}

func TestBroker_Close(t *testing.T) {
	b := pubsub.NewBroker[int]()

	ch, _ := b.Subscribe(1)
	b.Close()

	_, ok := <-ch
	require.False(t, ok)

	late, _ := b.Subscribe(1)
	_, ok = <-late
	assert.False(t, ok)
	assert.Equal(t, 0, b.Publish(1))
}
