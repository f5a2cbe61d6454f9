package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/journey-tracker/internal/config"
	"github.com/journey-tracker/internal/domain"
	"github.com/journey-tracker/internal/domain/repository"
	"github.com/journey-tracker/internal/metrics"
	"github.com/journey-tracker/internal/pkg/utils"
	"go.uber.org/zap"
)

// TrustSource - откуда подтягивать доверие, если локально его нет
type TrustSource interface {
	GetTrustScores(ctx context.Context, journeyID uuid.UUID) ([]*domain.TrustRecord, error)
}

// TrustLedger хранит доверие к источникам текущей поездки
type TrustLedger struct {
	mu        sync.Mutex
	cfg       config.FusionConfig
	store     repository.TrustStore
	remote    TrustSource
	metrics   *metrics.Collector
	logger    *zap.Logger
	journeyID uuid.UUID
	records   map[string]*domain.TrustRecord
	now       func() time.Time
}

func NewTrustLedger(
	cfg *config.FusionConfig,
	store repository.TrustStore,
	remote TrustSource,
	m *metrics.Collector,
	logger *zap.Logger,
) *TrustLedger {
	return &TrustLedger{
		cfg:     *cfg,
		store:   store,
		remote:  remote,
		metrics: m,
		logger:  logger,
		records: make(map[string]*domain.TrustRecord),
		now:     time.Now,
	}
}

// Load переключает журнал на поездку и поднимает сохранённое доверие:
// сначала из локального хранилища, затем с бэкенда
func (l *TrustLedger) Load(ctx context.Context, journeyID uuid.UUID) error {
	records, err := l.store.LoadTrust(ctx, journeyID)
	if err != nil {
		return err
	}

	if len(records) == 0 && l.remote != nil {
		remote, err := l.remote.GetTrustScores(ctx, journeyID)
		if err != nil {
			l.logger.Warn("Failed to load trust from backend, starting fresh",
				zap.String("journey_id", journeyID.String()),
				zap.Error(err))
		} else {
			for _, r := range remote {
				r.JourneyID = journeyID
				if err := l.store.SaveTrust(ctx, r); err != nil {
					l.metrics.TrustPersistFailed()
				}
			}
			records = remote
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.journeyID = journeyID
	l.records = make(map[string]*domain.TrustRecord, len(records))
	for _, r := range records {
		r.Score = utils.Clamp(r.Score, l.cfg.TrustMin, l.cfg.TrustMax)
		l.records[r.SourceID] = r
	}

	l.logger.Info("Trust ledger loaded",
		zap.String("journey_id", journeyID.String()),
		zap.Int("sources", len(l.records)))

	return nil
}

// Reset очищает журнал без загрузки
func (l *TrustLedger) Reset(journeyID uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.journeyID = journeyID
	l.records = make(map[string]*domain.TrustRecord)
}

func (l *TrustLedger) JourneyID() uuid.UUID {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.journeyID
}

// Apply обновляет доверие по итогу проверки отчёта.
// Новый источник получает начальное доверие без поправки.
func (l *TrustLedger) Apply(ctx context.Context, report domain.PositionReport, spoofed bool) domain.TrustRecord {
	l.mu.Lock()

	now := l.now().UTC()
	rec, ok := l.records[report.SourceID]
	if !ok {
		rec = &domain.TrustRecord{
			JourneyID:  l.journeyID,
			SourceID:   report.SourceID,
			SourceType: report.SourceType,
			Score:      l.cfg.TrustInitial,
		}
		l.records[report.SourceID] = rec
	}

	switch {
	case spoofed:
		rec.Score = utils.Clamp(rec.Score-l.cfg.TrustSpoofPenalty, l.cfg.TrustMin, l.cfg.TrustMax)
		rec.SpoofingFlags++
	case ok:
		rec.Score = utils.Clamp(rec.Score+l.gain(report.AccuracyM)-l.cfg.TrustDecay, l.cfg.TrustMin, l.cfg.TrustMax)
	}
	rec.SourceType = report.SourceType
	rec.LastValidatedAt = now

	snapshot := *rec
	journeyID := l.journeyID
	l.mu.Unlock()

	if journeyID != uuid.Nil {
		if err := l.store.SaveTrust(ctx, &snapshot); err != nil {
			l.metrics.TrustPersistFailed()
			l.logger.Error("Failed to persist trust record",
				zap.String("source_id", snapshot.SourceID),
				zap.Error(err))
		}
	}

	return snapshot
}

// gain - прибавка за точность: сильнее для точных источников, ноль для грубых
func (l *TrustLedger) gain(accuracyM float64) float64 {
	switch {
	case accuracyM < l.cfg.HighAccuracyMeters:
		return l.cfg.TrustGain
	case accuracyM < l.cfg.MediumAccuracyMeters:
		return l.cfg.TrustGain / 2
	default:
		return 0
	}
}

// Score возвращает текущее доверие к источнику
func (l *TrustLedger) Score(sourceID string) (float64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[sourceID]
	if !ok {
		return 0, false
	}
	return rec.Score, true
}

// Snapshot возвращает копии записей, отсортированные по source_id
func (l *TrustLedger) Snapshot() []domain.TrustRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	result := make([]domain.TrustRecord, 0, len(l.records))
	for _, r := range l.records {
		result = append(result, *r)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].SourceID < result[j].SourceID
	})
	return result
}
