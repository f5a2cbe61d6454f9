package sensor

import (
	"bufio"
	"context"
	"encoding/json"
	"io"

	"github.com/journey-tracker/internal/domain"
	"go.uber.org/zap"
)

const maxLineSize = 64 * 1024

// Stream читает отчёты о позиции в формате JSON Lines и отдаёт их в канал.
// Отчёт без source_id считается отчётом собственного датчика (ownSourceID).
// Канал закрывается по концу ввода или отмене ctx.
func Stream(ctx context.Context, r io.Reader, ownSourceID string, logger *zap.Logger) <-chan domain.PositionReport {
	out := make(chan domain.PositionReport)

	go func() {
		defer close(out)

		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 4096), maxLineSize)

		line := 0
		for scanner.Scan() {
			line++
			raw := scanner.Bytes()
			if len(raw) == 0 {
				continue
			}

			var report domain.PositionReport
			if err := json.Unmarshal(raw, &report); err != nil {
				logger.Warn("Skipping malformed position line", zap.Int("line", line), zap.Error(err))
				continue
			}
			if report.SourceID == "" {
				report.SourceID = ownSourceID
			}
			if report.SourceType == "" {
				report.SourceType = domain.SourceTypePassenger
			}

			select {
			case out <- report:
			case <-ctx.Done():
				return
			}
		}

		if err := scanner.Err(); err != nil {
			logger.Error("Position input failed", zap.Error(err))
			return
		}
		logger.Info("Position input finished", zap.Int("lines", line))
	}()

	return out
}
