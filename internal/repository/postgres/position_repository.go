package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/journey-tracker/internal/domain"
	"github.com/journey-tracker/internal/domain/repository"
	"github.com/journey-tracker/internal/pkg/errors"
	"go.uber.org/zap"
)

type positionRow struct {
	ID         int64           `db:"id"`
	JourneyID  uuid.UUID       `db:"journey_id"`
	SourceID   string          `db:"source_id"`
	SourceType string          `db:"source_type"`
	Latitude   float64         `db:"latitude"`
	Longitude  float64         `db:"longitude"`
	AccuracyM  float64         `db:"accuracy_m"`
	Speed      sql.NullFloat64 `db:"speed"`
	Heading    sql.NullFloat64 `db:"heading"`
	ObservedAt time.Time       `db:"observed_at"`
	ReceivedAt time.Time       `db:"received_at"`
}

func (r *positionRow) toDomain() *domain.LocationSample {
	s := &domain.LocationSample{
		ID:         uint64(r.ID),
		JourneyID:  r.JourneyID,
		SourceID:   r.SourceID,
		SourceType: domain.SourceType(r.SourceType),
		Latitude:   r.Latitude,
		Longitude:  r.Longitude,
		AccuracyM:  r.AccuracyM,
		CreatedAt:  r.ObservedAt.UTC(),
		Synced:     true,
	}
	if r.Speed.Valid {
		v := r.Speed.Float64
		s.Speed = &v
	}
	if r.Heading.Valid {
		v := r.Heading.Float64
		s.Heading = &v
	}
	received := r.ReceivedAt.UTC()
	s.SyncedAt = &received
	return s
}

type positionRepository struct {
	db     *DB
	logger *zap.Logger
}

func NewPositionRepository(db *DB) repository.PositionRepository {
	return &positionRepository{
		db:     db,
		logger: db.logger,
	}
}

// UpsertBatch пишет пачку в одной транзакции. Повтор точки с тем же
// (journey_id, observed_at, source_id) игнорируется, возвращается число новых строк.
func (r *positionRepository) UpsertBatch(ctx context.Context, journeyID uuid.UUID, samples []*domain.LocationSample) (int64, error) {
	if len(samples) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO journey_positions (
			journey_id, source_id, source_type, latitude, longitude,
			accuracy_m, speed, heading, observed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (journey_id, observed_at, source_id) DO NOTHING
	`

	var inserted int64
	err := r.db.inTx(ctx, func(tx *sqlx.Tx) error {
		stmt, err := tx.PreparexContext(ctx, query)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, s := range samples {
			res, err := stmt.ExecContext(ctx,
				journeyID, s.SourceID, string(s.SourceType), s.Latitude, s.Longitude,
				s.AccuracyM, s.Speed, s.Heading, s.CreatedAt.UTC(),
			)
			if err != nil {
				return err
			}
			n, _ := res.RowsAffected()
			inserted += n
		}
		return nil
	})
	if err != nil {
		if isForeignKeyViolation(err) {
			return 0, errors.ErrJourneyNotFound.WithDetails(map[string]interface{}{"id": journeyID.String()})
		}
		r.logger.Error("Failed to upsert positions",
			zap.String("journey_id", journeyID.String()),
			zap.Int("count", len(samples)),
			zap.Error(err))
		return 0, errors.ErrDatabaseError
	}

	return inserted, nil
}

func (r *positionRepository) ListByJourney(ctx context.Context, journeyID uuid.UUID, limit int) ([]*domain.LocationSample, error) {
	query := `
		SELECT id, journey_id, source_id, source_type, latitude, longitude,
		       accuracy_m, speed, heading, observed_at, received_at
		FROM journey_positions
		WHERE journey_id = $1
		ORDER BY observed_at, source_id
		LIMIT $2
	`

	var rows []positionRow
	if err := r.db.SelectContext(ctx, &rows, query, journeyID, limit); err != nil {
		r.logger.Error("Failed to list positions", zap.String("journey_id", journeyID.String()), zap.Error(err))
		return nil, errors.ErrDatabaseError
	}

	samples := make([]*domain.LocationSample, 0, len(rows))
	for i := range rows {
		samples = append(samples, rows[i].toDomain())
	}
	return samples, nil
}
