package domain

import (
	"math"
	"sort"
	"time"

	"github.com/journey-tracker/internal/pkg/utils"
)

const trustEpsilon = 1e-9

// WindowEntry - последний отчёт источника в окне вместе с текущим доверием к нему
type WindowEntry struct {
	Report PositionReport
	Trust  float64
}

// FusionParams - параметры расчёта итоговой позиции
type FusionParams struct {
	ConfidenceSpanM float64
	SuspectTrust    float64
}

// OrderEntries сортирует записи: сначала транспорт, затем по убыванию доверия.
// SourceID нужен только для стабильного порядка при равенстве.
func OrderEntries(entries []WindowEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		vi := entries[i].Report.SourceType == SourceTypeVehicle
		vj := entries[j].Report.SourceType == SourceTypeVehicle
		if vi != vj {
			return vi
		}
		if entries[i].Trust != entries[j].Trust {
			return entries[i].Trust > entries[j].Trust
		}
		return entries[i].Report.SourceID < entries[j].Report.SourceID
	})
}

// FusePositions объединяет окно источников в одну позицию.
// Для пустого окна возвращает nil.
func FusePositions(entries []WindowEntry, params FusionParams, now time.Time) *FusedPosition {
	if len(entries) == 0 {
		return nil
	}

	ordered := make([]WindowEntry, len(entries))
	copy(ordered, entries)
	OrderEntries(ordered)

	var (
		totalWeight, lat, lon           float64
		headingWeight, headSin, headCos float64
		speedWeight, speed              float64
	)

	for _, e := range ordered {
		w := e.Trust / math.Max(e.Report.AccuracyM, 1)
		totalWeight += w
		lat += e.Report.Latitude * w
		lon += e.Report.Longitude * w

		if e.Report.Heading != nil {
			rad := *e.Report.Heading * math.Pi / 180
			headSin += math.Sin(rad) * w
			headCos += math.Cos(rad) * w
			headingWeight += w
		}
		if e.Report.Speed != nil {
			speed += *e.Report.Speed * w
			speedWeight += w
		}
	}

	fused := &FusedPosition{
		PrimarySourceID:     ordered[0].Report.SourceID,
		ContributingSources: make([]PositionReport, 0, len(ordered)),
		ComputedAt:          now,
	}

	if totalWeight > 0 {
		fused.Position = Point{Lat: lat / totalWeight, Lon: lon / totalWeight}
	} else {
		fused.Position = ordered[0].Report.Point()
	}

	if headingWeight > 0 {
		deg := math.Atan2(headSin, headCos) * 180 / math.Pi
		if deg < 0 {
			deg += 360
		}
		fused.Heading = &deg
	}
	if speedWeight > 0 {
		v := speed / speedWeight
		fused.Speed = &v
	}

	span := params.ConfidenceSpanM
	if span <= 0 {
		span = 1000
	}

	maxDeviation := 0.0
	for _, e := range ordered {
		fused.ContributingSources = append(fused.ContributingSources, e.Report)

		d := utils.HaversineMeters(e.Report.Latitude, e.Report.Longitude, fused.Position.Lat, fused.Position.Lon)
		if d > maxDeviation {
			maxDeviation = d
		}
		if e.Trust <= params.SuspectTrust+trustEpsilon {
			fused.IsSuspect = true
		}
	}
	fused.Confidence = math.Max(0, 1-maxDeviation/span)

	return fused
}
