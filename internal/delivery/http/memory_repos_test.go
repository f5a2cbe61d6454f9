package http_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/journey-tracker/internal/domain"
	"github.com/journey-tracker/internal/pkg/errors"
)

// memStore - хранилище бэкенда в памяти с теми же ограничениями, что и схема PostgreSQL
type memStore struct {
	mu        sync.Mutex
	journeys  map[uuid.UUID]*domain.Journey
	positions map[string]*domain.LocationSample
	trust     map[string]*domain.TrustRecord
	orders    map[uuid.UUID]*domain.Order
}

func newMemStore() *memStore {
	return &memStore{
		journeys:  make(map[uuid.UUID]*domain.Journey),
		positions: make(map[string]*domain.LocationSample),
		trust:     make(map[string]*domain.TrustRecord),
		orders:    make(map[uuid.UUID]*domain.Order),
	}
}

type memJourneys struct{ s *memStore }
type memPositions struct{ s *memStore }
type memTrust struct{ s *memStore }
type memOrders struct{ s *memStore }

func (r memJourneys) Create(_ context.Context, journey *domain.Journey) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.journeys[journey.ID]; ok {
		return false, nil
	}
	for _, j := range r.s.journeys {
		if j.PassengerID == journey.PassengerID && j.IsActive() && journey.IsActive() {
			return false, errors.ErrJourneyConflict
		}
	}
	r.s.journeys[journey.ID] = journey.Clone()
	return true, nil
}

func (r memJourneys) GetByID(_ context.Context, id uuid.UUID) (*domain.Journey, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	j, ok := r.s.journeys[id]
	if !ok {
		return nil, errors.ErrJourneyNotFound
	}
	return j.Clone(), nil
}

func (r memJourneys) GetActiveByPassenger(_ context.Context, passengerID string) (*domain.Journey, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, j := range r.s.journeys {
		if j.PassengerID == passengerID && j.IsActive() {
			return j.Clone(), nil
		}
	}
	return nil, nil
}

func (r memJourneys) UpdateStatus(_ context.Context, id uuid.UUID, status domain.JourneyStatus, endTime time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	j, ok := r.s.journeys[id]
	if !ok || !j.IsActive() {
		return false, nil
	}
	return true, j.Transition(status, endTime)
}

func (r memJourneys) UpdateSyncState(_ context.Context, id uuid.UUID, state domain.SyncState) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	j, ok := r.s.journeys[id]
	if !ok {
		return errors.ErrJourneyNotFound
	}
	j.OfflineQueueCount = state.OfflineQueueCount
	if j.LastSyncTime == nil || state.LastSyncTime.After(*j.LastSyncTime) {
		t := state.LastSyncTime
		j.LastSyncTime = &t
	}
	return nil
}

func (r memJourneys) UpdatePosition(_ context.Context, id uuid.UUID, position domain.Point) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	j, ok := r.s.journeys[id]
	if !ok {
		return errors.ErrJourneyNotFound
	}
	p := position
	j.CurrentPosition = &p
	return nil
}

func (r memPositions) UpsertBatch(_ context.Context, journeyID uuid.UUID, samples []*domain.LocationSample) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var inserted int64
	for _, s := range samples {
		key := journeyID.String() + "|" + s.CreatedAt.UTC().Format(time.RFC3339Nano) + "|" + s.SourceID
		if _, ok := r.s.positions[key]; ok {
			continue
		}
		cp := *s
		r.s.positions[key] = &cp
		inserted++
	}
	return inserted, nil
}

func (r memPositions) ListByJourney(_ context.Context, journeyID uuid.UUID, limit int) ([]*domain.LocationSample, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	out := make([]*domain.LocationSample, 0)
	for _, s := range r.s.positions {
		if s.JourneyID == journeyID {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].SourceID < out[j].SourceID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r memTrust) UpsertBatch(_ context.Context, records []*domain.TrustRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, rec := range records {
		key := rec.JourneyID.String() + "|" + rec.SourceID
		if old, ok := r.s.trust[key]; ok && old.LastValidatedAt.After(rec.LastValidatedAt) {
			continue
		}
		cp := *rec
		r.s.trust[key] = &cp
	}
	return nil
}

func (r memTrust) ListByJourney(_ context.Context, journeyID uuid.UUID) ([]*domain.TrustRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	out := make([]*domain.TrustRecord, 0)
	for _, rec := range r.s.trust {
		if rec.JourneyID == journeyID {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceID < out[j].SourceID })
	return out, nil
}

func (r memOrders) Upsert(_ context.Context, order *domain.Order) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.orders[order.OfflineID]; ok {
		return false, nil
	}
	cp := *order
	r.s.orders[order.OfflineID] = &cp
	return true, nil
}

func (r memOrders) ListByPassenger(_ context.Context, passengerID string, limit int) ([]*domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	out := make([]*domain.Order, 0)
	for _, o := range r.s.orders {
		if o.PassengerID == passengerID {
			cp := *o
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// recordingPublisher запоминает опубликованные события
type recordingPublisher struct {
	mu     sync.Mutex
	events []*domain.JourneyEvent
}

func (p *recordingPublisher) Publish(_ context.Context, event *domain.JourneyEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []domain.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.EventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}
