package usecase

import (
	"github.com/journey-tracker/internal/config"
	"github.com/journey-tracker/internal/domain"
	"github.com/journey-tracker/internal/pkg/utils"
	"go.uber.org/zap"
)

// SpoofingDetector отсекает отчёты, подразумевающие физически невозможную скорость
type SpoofingDetector struct {
	ceilingMps float64
	byType     map[domain.SourceType]float64
	logger     *zap.Logger
}

func NewSpoofingDetector(cfg *config.FusionConfig, logger *zap.Logger) *SpoofingDetector {
	byType := make(map[domain.SourceType]float64, len(cfg.SpeedCeilingByType))
	for k, v := range cfg.SpeedCeilingByType {
		byType[domain.SourceType(k)] = v
	}

	return &SpoofingDetector{
		ceilingMps: cfg.SpeedCeilingMps,
		byType:     byType,
		logger:     logger,
	}
}

// Ceiling возвращает порог скорости для типа источника
func (d *SpoofingDetector) Ceiling(t domain.SourceType) float64 {
	if v, ok := d.byType[t]; ok {
		return v
	}
	return d.ceilingMps
}

// Check сравнивает отчёт с последней принятой позицией источника.
// Без опорной позиции или при неположительном интервале отчёт принимается.
func (d *SpoofingDetector) Check(prev *domain.PositionRef, report domain.PositionReport) domain.SpoofCheck {
	check := domain.SpoofCheck{CeilingMps: d.Ceiling(report.SourceType)}
	if prev == nil {
		return check
	}

	check.DistanceM = utils.HaversineMeters(prev.Latitude, prev.Longitude, report.Latitude, report.Longitude)
	check.ElapsedSeconds = report.ObservedAt.Sub(prev.ObservedAt).Seconds()

	if check.ElapsedSeconds <= 0 {
		d.logger.Debug("Non-positive interval between reports, speed check skipped",
			zap.String("source_id", report.SourceID),
			zap.Float64("elapsed_seconds", check.ElapsedSeconds),
			zap.Float64("distance_m", check.DistanceM))
		return check
	}

	check.Checked = true
	check.ImpliedSpeedMps = check.DistanceM / check.ElapsedSeconds
	check.Spoofed = check.ImpliedSpeedMps >= check.CeilingMps

	if check.Spoofed {
		d.logger.Warn("Spoofed position report",
			zap.String("source_id", report.SourceID),
			zap.String("source_type", string(report.SourceType)),
			zap.Float64("implied_speed_mps", check.ImpliedSpeedMps),
			zap.Float64("ceiling_mps", check.CeilingMps),
			zap.Float64("distance_m", check.DistanceM),
			zap.Float64("elapsed_seconds", check.ElapsedSeconds))
	}

	return check
}
