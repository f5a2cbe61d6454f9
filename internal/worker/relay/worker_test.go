package relay_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/journey-tracker/internal/domain"
	"github.com/journey-tracker/internal/pkg/errors"
	"github.com/journey-tracker/internal/worker/relay"
)

// MockStreamRepository is a mock of StreamRepository
type MockStreamRepository struct {
	mock.Mock
}

func (m *MockStreamRepository) ConsumeStream(ctx context.Context, stream, group, consumer string) (<-chan domain.StreamMessage, error) {
	args := m.Called(ctx, stream, group, consumer)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(<-chan domain.StreamMessage), args.Error(1)
}

func (m *MockStreamRepository) AckMessage(ctx context.Context, stream, group, messageID string) error {
	args := m.Called(ctx, stream, group, messageID)
	return args.Error(0)
}

func (m *MockStreamRepository) CreateConsumerGroup(ctx context.Context, stream, group string) error {
	args := m.Called(ctx, stream, group)
	return args.Error(0)
}

func (m *MockStreamRepository) PublishToStream(ctx context.Context, stream string, data interface{}) error {
	args := m.Called(ctx, stream, data)
	return args.Error(0)
}

// MockPublisher is a mock of EventPublisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, event *domain.JourneyEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockPublisher) Close() error {
	return nil
}

const (
	testStream = domain.StreamJourneyEvents
	testGroup  = "journey-relay"
)

func message(t *testing.T, id string, event *domain.JourneyEvent) domain.StreamMessage {
	t.Helper()
	data, err := json.Marshal(event)
	require.NoError(t, err)
	return domain.StreamMessage{ID: id, Data: string(data)}
}

func statusEvent() *domain.JourneyEvent {
	return &domain.JourneyEvent{
		Type:       domain.EventJourneyStatus,
		JourneyID:  uuid.New(),
		Status:     domain.JourneyStatusActive,
		OccurredAt: time.Now().UTC(),
	}
}

func TestWorker_Name(t *testing.T) {
	w := relay.NewWorker(&MockStreamRepository{}, &MockPublisher{}, "", testGroup, 0, zap.NewNop())
	assert.Equal(t, "realtime-relay", w.Name())
	assert.NotEmpty(t, w.ConsumerName())
}

func TestWorker_RelaysAndAcks(t *testing.T) {
	streams := &MockStreamRepository{}
	target := &MockPublisher{}

	msgs := make(chan domain.StreamMessage, 2)
	event := statusEvent()
	msgs <- message(t, "1-0", event)

	w := relay.NewWorker(streams, target, testStream, testGroup, 3, zap.NewNop())

	streams.On("CreateConsumerGroup", mock.Anything, testStream, testGroup).Return(nil)
	streams.On("ConsumeStream", mock.Anything, testStream, testGroup, w.ConsumerName()).
		Return((<-chan domain.StreamMessage)(msgs), nil)
	acked := make(chan string, 1)
	streams.On("AckMessage", mock.Anything, testStream, testGroup, "1-0").
		Run(func(args mock.Arguments) { acked <- args.String(3) }).Return(nil)
	target.On("Publish", mock.Anything, mock.MatchedBy(func(e *domain.JourneyEvent) bool {
		return e.JourneyID == event.JourneyID && e.Type == domain.EventJourneyStatus
	})).Return(nil)

	done := make(chan error, 1)
	go func() { done <- w.Start(context.Background()) }()

	select {
	case id := <-acked:
		assert.Equal(t, "1-0", id)
	case <-time.After(time.Second):
		t.Fatal("message was not acknowledged")
	}

	require.NoError(t, w.Stop())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
	target.AssertExpectations(t)
}

func TestWorker_FailedPublishIsNotAcked(t *testing.T) {
	streams := &MockStreamRepository{}
	target := &MockPublisher{}

	msgs := make(chan domain.StreamMessage, 2)
	msgs <- message(t, "1-0", statusEvent())
	msgs <- message(t, "2-0", statusEvent())

	w := relay.NewWorker(streams, target, testStream, testGroup, 2, zap.NewNop())

	streams.On("CreateConsumerGroup", mock.Anything, testStream, testGroup).Return(nil)
	streams.On("ConsumeStream", mock.Anything, testStream, testGroup, w.ConsumerName()).
		Return((<-chan domain.StreamMessage)(msgs), nil)
	acked := make(chan string, 2)
	streams.On("AckMessage", mock.Anything, testStream, testGroup, mock.Anything).
		Run(func(args mock.Arguments) { acked <- args.String(3) }).Return(nil)

	// первое сообщение не удаётся переслать ни с одной попытки, второе проходит
	target.On("Publish", mock.Anything, mock.Anything).Return(errors.ErrBackendUnavailable).Times(2)
	target.On("Publish", mock.Anything, mock.Anything).Return(nil)

	go func() { _ = w.Start(context.Background()) }()
	defer w.Stop()

	select {
	case id := <-acked:
		assert.Equal(t, "2-0", id)
	case <-time.After(2 * time.Second):
		t.Fatal("second message was not acknowledged")
	}
	target.AssertNumberOfCalls(t, "Publish", 3)
}

func TestWorker_PoisonMessageIsAcked(t *testing.T) {
	streams := &MockStreamRepository{}
	target := &MockPublisher{}

	msgs := make(chan domain.StreamMessage, 1)
	msgs <- domain.StreamMessage{ID: "1-0", Data: "{not json"}

	w := relay.NewWorker(streams, target, testStream, testGroup, 3, zap.NewNop())

	streams.On("CreateConsumerGroup", mock.Anything, testStream, testGroup).Return(nil)
	streams.On("ConsumeStream", mock.Anything, testStream, testGroup, w.ConsumerName()).
		Return((<-chan domain.StreamMessage)(msgs), nil)
	acked := make(chan string, 1)
	streams.On("AckMessage", mock.Anything, testStream, testGroup, "1-0").
		Run(func(args mock.Arguments) { acked <- args.String(3) }).Return(nil)

	go func() { _ = w.Start(context.Background()) }()
	defer w.Stop()

	select {
	case <-acked:
	case <-time.After(time.Second):
		t.Fatal("poison message was not acknowledged")
	}
	target.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

func TestWorker_ConsumerGroupError(t *testing.T) {
	streams := &MockStreamRepository{}
	streams.On("CreateConsumerGroup", mock.Anything, testStream, testGroup).Return(errors.ErrCacheError)

	w := relay.NewWorker(streams, &MockPublisher{}, testStream, testGroup, 3, zap.NewNop())
	err := w.Start(context.Background())

	assert.Error(t, err)
	streams.AssertNotCalled(t, "ConsumeStream", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestWorker_ClosedChannel(t *testing.T) {
	streams := &MockStreamRepository{}
	msgs := make(chan domain.StreamMessage)
	close(msgs)

	w := relay.NewWorker(streams, &MockPublisher{}, testStream, testGroup, 3, zap.NewNop())
	streams.On("CreateConsumerGroup", mock.Anything, testStream, testGroup).Return(nil)
	streams.On("ConsumeStream", mock.Anything, testStream, testGroup, w.ConsumerName()).
		Return((<-chan domain.StreamMessage)(msgs), nil)

	assert.Error(t, w.Start(context.Background()))
}
