package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/journey-tracker/internal/domain"
	"github.com/journey-tracker/internal/domain/repository"
	"github.com/journey-tracker/internal/pkg/errors"
	"go.uber.org/zap"
)

type trustRepository struct {
	db     *DB
	logger *zap.Logger
}

func NewTrustRepository(db *DB) repository.TrustRepository {
	return &trustRepository{
		db:     db,
		logger: db.logger,
	}
}

// UpsertBatch перезаписывает доверие по (journey_id, source_id).
// Более старая запись не затирает более свежую.
func (r *trustRepository) UpsertBatch(ctx context.Context, records []*domain.TrustRecord) error {
	if len(records) == 0 {
		return nil
	}

	query := `
		INSERT INTO source_trust (
			journey_id, source_id, source_type, trust_score, spoofing_flags, last_validated_at
		) VALUES (:journey_id, :source_id, :source_type, :trust_score, :spoofing_flags, :last_validated_at)
		ON CONFLICT (journey_id, source_id) DO UPDATE SET
			source_type = EXCLUDED.source_type,
			trust_score = EXCLUDED.trust_score,
			spoofing_flags = EXCLUDED.spoofing_flags,
			last_validated_at = EXCLUDED.last_validated_at
		WHERE EXCLUDED.last_validated_at >= source_trust.last_validated_at
	`

	err := r.db.inTx(ctx, func(tx *sqlx.Tx) error {
		for _, rec := range records {
			if _, err := tx.NamedExecContext(ctx, query, rec); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if isForeignKeyViolation(err) {
			return errors.ErrJourneyNotFound
		}
		r.logger.Error("Failed to upsert trust scores", zap.Int("count", len(records)), zap.Error(err))
		return errors.ErrDatabaseError
	}
	return nil
}

func (r *trustRepository) ListByJourney(ctx context.Context, journeyID uuid.UUID) ([]*domain.TrustRecord, error) {
	query := `
		SELECT journey_id, source_id, source_type, trust_score, spoofing_flags, last_validated_at
		FROM source_trust
		WHERE journey_id = $1
		ORDER BY source_id
	`

	records := make([]*domain.TrustRecord, 0)
	if err := r.db.SelectContext(ctx, &records, query, journeyID); err != nil {
		r.logger.Error("Failed to list trust scores", zap.String("journey_id", journeyID.String()), zap.Error(err))
		return nil, errors.ErrDatabaseError
	}
	for _, rec := range records {
		rec.LastValidatedAt = rec.LastValidatedAt.UTC()
	}
	return records, nil
}
