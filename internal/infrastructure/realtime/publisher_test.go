package realtime_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/journey-tracker/internal/config"
	"github.com/journey-tracker/internal/domain"
	"github.com/journey-tracker/internal/infrastructure/realtime"
	"github.com/journey-tracker/internal/metrics"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, event *domain.JourneyEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockPublisher) Close() error {
	args := m.Called()
	return args.Error(0)
}

func TestNew_Drivers(t *testing.T) {
	logger := zap.NewNop()

	pub, err := realtime.New(&config.RealtimeConfig{Driver: "none"}, nil, nil, logger)
	require.NoError(t, err)
	assert.IsType(t, realtime.Nop{}, pub)
	assert.NoError(t, pub.Publish(context.Background(), &domain.JourneyEvent{}))

	_, err = realtime.New(&config.RealtimeConfig{Driver: "redis"}, nil, nil, logger)
	assert.Error(t, err, "redis driver without client")

	_, err = realtime.New(&config.RealtimeConfig{Driver: "kafka"}, nil, nil, logger)
	assert.Error(t, err)
}

func TestInstrument_CountsByDriver(t *testing.T) {
	m := metrics.NewCollector()
	next := &MockPublisher{}
	event := &domain.JourneyEvent{Type: domain.EventJourneyStatus, JourneyID: uuid.New()}

	next.On("Publish", mock.Anything, event).Return(nil).Once()
	next.On("Publish", mock.Anything, event).Return(errors.New("broker down")).Once()
	next.On("Close").Return(nil)

	pub := realtime.Instrument(next, "nats", m)
	require.NoError(t, pub.Publish(context.Background(), event))
	require.Error(t, pub.Publish(context.Background(), event))
	require.NoError(t, pub.Close())

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RealtimePublished.WithLabelValues("nats")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RealtimePublishErrs.WithLabelValues("nats")))
	next.AssertExpectations(t)
}

func TestInstrument_NilCollectorReturnsNext(t *testing.T) {
	next := &MockPublisher{}
	assert.Same(t, next, realtime.Instrument(next, "mqtt", nil))
}
