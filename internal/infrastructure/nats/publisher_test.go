package nats_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	natsgo "github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/journey-tracker/internal/domain"
	natspub "github.com/journey-tracker/internal/infrastructure/nats"
)

const testNATSURL = "nats://127.0.0.1:4222"

func TestSubject(t *testing.T) {
	id := uuid.MustParse("6f1c0d8e-3b1a-4a4e-9a55-2f7c1c9b0d11")

	tests := []struct {
		name   string
		prefix string
		event  domain.EventType
		want   string
	}{
		{"status", "journeys", domain.EventJourneyStatus, "journeys." + id.String() + ".status"},
		{"position", "journeys", domain.EventJourneyPosition, "journeys." + id.String() + ".position"},
		{"fused", "tracking", domain.EventFusedPosition, "tracking." + id.String() + ".fused"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := natspub.Subject(tt.prefix, &domain.JourneyEvent{Type: tt.event, JourneyID: id})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPublisher_Publish(t *testing.T) {
	sub, err := natsgo.Connect(testNATSURL, natsgo.Timeout(time.Second))
	if err != nil {
		t.Skipf("NATS not available for integration tests: %v", err)
	}
	defer sub.Close()

	var states []bool
	pub, err := natspub.NewPublisher(testNATSURL, "test-journeys", "journey-tracker-test",
		func(connected bool) { states = append(states, connected) }, zap.NewNop())
	require.NoError(t, err)

	msgs := make(chan *natsgo.Msg, 1)
	subscription, err := sub.ChanSubscribe("test-journeys.*.status", msgs)
	require.NoError(t, err)
	defer subscription.Unsubscribe()
	require.NoError(t, sub.Flush())

	event := &domain.JourneyEvent{
		Type:       domain.EventJourneyStatus,
		JourneyID:  uuid.New(),
		Status:     domain.JourneyStatusCompleted,
		OccurredAt: time.Now().UTC(),
	}
	require.NoError(t, pub.Publish(context.Background(), event))

	select {
	case msg := <-msgs:
		var received domain.JourneyEvent
		require.NoError(t, json.Unmarshal(msg.Data, &received))
		assert.Equal(t, event.JourneyID, received.JourneyID)
		assert.Equal(t, domain.JourneyStatusCompleted, received.Status)
	case <-time.After(3 * time.Second):
		t.Fatal("Timeout waiting for nats message")
	}

	require.NotEmpty(t, states)
	assert.True(t, states[0])
	require.NoError(t, pub.Close())
}

func TestPublisher_PublishCancelledContext(t *testing.T) {
	pub, err := natspub.NewPublisher(testNATSURL, "test-journeys", "journey-tracker-test", nil, zap.NewNop())
	if err != nil {
		t.Skipf("NATS not available for integration tests: %v", err)
	}
	defer pub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = pub.Publish(ctx, &domain.JourneyEvent{Type: domain.EventJourneyStatus, JourneyID: uuid.New()})
	assert.ErrorIs(t, err, context.Canceled)
}
