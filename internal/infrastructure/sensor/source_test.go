package sensor_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/journey-tracker/internal/domain"
	"github.com/journey-tracker/internal/infrastructure/sensor"
)

func collect(ch <-chan domain.PositionReport) []domain.PositionReport {
	var out []domain.PositionReport
	for r := range ch {
		out = append(out, r)
	}
	return out
}

func TestStream(t *testing.T) {
	input := strings.Join([]string{
		`{"latitude":-15.41,"longitude":28.28,"accuracy_m":5,"observed_at":"2026-05-04T09:00:00Z"}`,
		``,
		`not json`,
		`{"source_id":"bus-12","source_type":"vehicle","latitude":-15.42,"longitude":28.29,"accuracy_m":12}`,
	}, "\n")

	reports := collect(sensor.Stream(context.Background(), strings.NewReader(input), "device-gps", zap.NewNop()))

	require.Len(t, reports, 2)
	assert.Equal(t, "device-gps", reports[0].SourceID)
	assert.Equal(t, domain.SourceTypePassenger, reports[0].SourceType)
	assert.Equal(t, time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC), reports[0].ObservedAt)
	assert.Equal(t, "bus-12", reports[1].SourceID)
	assert.Equal(t, domain.SourceTypeVehicle, reports[1].SourceType)
	assert.Equal(t, 12.0, reports[1].AccuracyM)
}

func TestStream_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	input := strings.Repeat(`{"latitude":1,"longitude":1,"accuracy_m":5}`+"\n", 10)

	ch := sensor.Stream(ctx, strings.NewReader(input), "device-gps", zap.NewNop())
	<-ch
	cancel()

	select {
	case <-time.After(time.Second):
		t.Fatal("channel was not closed")
	case _, ok := <-drain(ch):
		assert.False(t, ok)
	}
}

func drain(ch <-chan domain.PositionReport) <-chan domain.PositionReport {
	done := make(chan domain.PositionReport)
	go func() {
		for range ch {
		}
		close(done)
	}()
	return done
}

func TestMerge(t *testing.T) {
	a := make(chan domain.PositionReport)
	b := make(chan domain.PositionReport)
	merged := sensor.Merge(context.Background(), a, b)

	go func() {
		a <- domain.PositionReport{SourceID: "device-gps"}
		close(a)
	}()
	go func() {
		b <- domain.PositionReport{SourceID: "rider-3"}
		b <- domain.PositionReport{SourceID: "bus-12"}
		close(b)
	}()

	got := collect(merged)
	ids := make([]string, 0, len(got))
	for _, r := range got {
		ids = append(ids, r.SourceID)
	}
	assert.ElementsMatch(t, []string{"device-gps", "rider-3", "bus-12"}, ids)
}

func TestMerge_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	open := make(chan domain.PositionReport)
	merged := sensor.Merge(ctx, open)

	cancel()
	select {
	case _, ok := <-merged:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("merged channel not closed after cancel")
	}
}
