package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/journey-tracker/internal/config"
	"github.com/journey-tracker/internal/domain"
	"github.com/journey-tracker/internal/metrics"
	"github.com/journey-tracker/internal/pkg/errors"
	"github.com/journey-tracker/internal/pkg/pubsub"
	"github.com/journey-tracker/internal/pkg/validator"
	"go.uber.org/zap"
)

// FusionUseCase принимает отчёты от нескольких источников и считает итоговую позицию.
// Производителей может быть много, окно и журнал доверия меняются под одной блокировкой.
type FusionUseCase struct {
	mu        sync.Mutex
	cfg       config.FusionConfig
	detector  *SpoofingDetector
	ledger    *TrustLedger
	window    map[string]domain.PositionReport
	refs      map[string]domain.PositionRef
	current   *domain.FusedPosition
	journeyID uuid.UUID

	broker  *pubsub.Broker[*domain.FusedPosition]
	metrics *metrics.Collector
	logger  *zap.Logger
	now     func() time.Time
}

func NewFusionUseCase(
	cfg *config.FusionConfig,
	detector *SpoofingDetector,
	ledger *TrustLedger,
	m *metrics.Collector,
	logger *zap.Logger,
) *FusionUseCase {
	return &FusionUseCase{
		cfg:      *cfg,
		detector: detector,
		ledger:   ledger,
		window:   make(map[string]domain.PositionReport),
		refs:     make(map[string]domain.PositionRef),
		broker:   pubsub.NewBroker[*domain.FusedPosition](),
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// SetClock подменяет источник времени
func (uc *FusionUseCase) SetClock(now func() time.Time) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	uc.now = now
}

// Reset начинает новую поездку: окно очищается, доверие поднимается из хранилища
func (uc *FusionUseCase) Reset(ctx context.Context, journeyID uuid.UUID) error {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	uc.window = make(map[string]domain.PositionReport)
	uc.refs = make(map[string]domain.PositionRef)
	uc.current = nil
	uc.journeyID = journeyID

	if journeyID == uuid.Nil {
		uc.ledger.Reset(uuid.Nil)
		return nil
	}
	return uc.ledger.Load(ctx, journeyID)
}

// Ingest проверяет отчёт, обновляет доверие и пересчитывает позицию.
// Спуфинг не ошибка: он отражается в результате. Ошибка только для некорректного отчёта.
func (uc *FusionUseCase) Ingest(ctx context.Context, report domain.PositionReport) (*domain.IngestResult, error) {
	if report.ObservedAt.IsZero() {
		uc.mu.Lock()
		report.ObservedAt = uc.now()
		uc.mu.Unlock()
	}
	if err := validator.Validate(report); err != nil {
		return nil, errors.ErrInvalidPositionReport.WithMessage(err.Error())
	}

	uc.mu.Lock()

	var prev *domain.PositionRef
	if ref, ok := uc.refs[report.SourceID]; ok {
		prev = &ref
	}

	check := uc.detector.Check(prev, report)
	// опорная точка обновляется и для подозрительного отчёта,
	// иначе каждый следующий отчёт сравнивался бы с устаревшей позицией
	uc.refs[report.SourceID] = domain.RefFromReport(report)

	trust := uc.ledger.Apply(ctx, report, check.Spoofed)

	if !check.Spoofed {
		if existing, ok := uc.window[report.SourceID]; !ok || !report.ObservedAt.Before(existing.ObservedAt) {
			uc.window[report.SourceID] = report
		}
	}

	fused := uc.recomputeLocked(uc.now())
	uc.mu.Unlock()

	uc.metrics.ReportIngested(string(report.SourceType), check.Spoofed)
	if fused != nil {
		uc.metrics.FusionComputed(fused.Confidence, len(fused.ContributingSources))
		uc.broker.Publish(fused)
	}

	return &domain.IngestResult{
		Report:   report,
		Check:    check,
		Trust:    trust,
		Accepted: !check.Spoofed,
		Fused:    fused,
	}, nil
}

// Recompute выбрасывает устаревшие отчёты и пересчитывает позицию на момент now
func (uc *FusionUseCase) Recompute(now time.Time) *domain.FusedPosition {
	uc.mu.Lock()
	fused := uc.recomputeLocked(now)
	uc.mu.Unlock()

	if fused != nil {
		uc.metrics.FusionComputed(fused.Confidence, len(fused.ContributingSources))
		uc.broker.Publish(fused)
	} else {
		uc.metrics.FusionComputed(0, 0)
	}
	return fused
}

func (uc *FusionUseCase) recomputeLocked(now time.Time) *domain.FusedPosition {
	cutoff := now.Add(-uc.cfg.Window)
	for id, r := range uc.window {
		if r.ObservedAt.Before(cutoff) {
			delete(uc.window, id)
		}
	}

	entries := uc.entriesLocked()
	fused := domain.FusePositions(entries, domain.FusionParams{
		ConfidenceSpanM: uc.cfg.ConfidenceSpanMeters,
		SuspectTrust:    uc.cfg.TrustMin,
	}, now)
	if fused != nil {
		fused.JourneyID = uc.journeyID
	}

	uc.current = fused
	return fused
}

func (uc *FusionUseCase) entriesLocked() []domain.WindowEntry {
	entries := make([]domain.WindowEntry, 0, len(uc.window))
	for id, r := range uc.window {
		score, ok := uc.ledger.Score(id)
		if !ok {
			score = uc.cfg.TrustInitial
		}
		entries = append(entries, domain.WindowEntry{Report: r, Trust: score})
	}
	domain.OrderEntries(entries)
	return entries
}

// Current возвращает последнюю итоговую позицию или nil
func (uc *FusionUseCase) Current() *domain.FusedPosition {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	return uc.current
}

// Window возвращает текущее окно в порядке приоритета источников
func (uc *FusionUseCase) Window() []domain.WindowEntry {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	return uc.entriesLocked()
}

// Trust возвращает доверие ко всем источникам поездки
func (uc *FusionUseCase) Trust() []domain.TrustRecord {
	return uc.ledger.Snapshot()
}

// Subscribe подписывает на неизменяемые снимки итоговой позиции
func (uc *FusionUseCase) Subscribe(buffer int) (<-chan *domain.FusedPosition, func()) {
	return uc.broker.Subscribe(buffer)
}

func (uc *FusionUseCase) Close() {
	uc.broker.Close()
}
