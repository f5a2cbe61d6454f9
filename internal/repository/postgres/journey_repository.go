package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/journey-tracker/internal/domain"
	"github.com/journey-tracker/internal/domain/repository"
	"github.com/journey-tracker/internal/pkg/errors"
	"go.uber.org/zap"
)

const journeyColumns = `
	id, passenger_id, vehicle_id, from_stop, to_stop, status,
	start_time, end_time, current_lat, current_lon,
	offline_queue_count, last_sync_time, device_id, created_at, updated_at`

type journeyRow struct {
	ID                uuid.UUID       `db:"id"`
	PassengerID       string          `db:"passenger_id"`
	VehicleID         sql.NullString  `db:"vehicle_id"`
	FromStop          sql.NullString  `db:"from_stop"`
	ToStop            sql.NullString  `db:"to_stop"`
	Status            string          `db:"status"`
	StartTime         time.Time       `db:"start_time"`
	EndTime           sql.NullTime    `db:"end_time"`
	CurrentLat        sql.NullFloat64 `db:"current_lat"`
	CurrentLon        sql.NullFloat64 `db:"current_lon"`
	OfflineQueueCount int             `db:"offline_queue_count"`
	LastSyncTime      sql.NullTime    `db:"last_sync_time"`
	DeviceID          string          `db:"device_id"`
	CreatedAt         time.Time       `db:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at"`
}

func (r *journeyRow) toDomain() *domain.Journey {
	j := &domain.Journey{
		ID:                r.ID,
		PassengerID:       r.PassengerID,
		VehicleID:         nullString(r.VehicleID),
		FromStop:          nullString(r.FromStop),
		ToStop:            nullString(r.ToStop),
		Status:            domain.JourneyStatus(r.Status),
		StartTime:         r.StartTime.UTC(),
		EndTime:           nullTime(r.EndTime),
		OfflineQueueCount: r.OfflineQueueCount,
		LastSyncTime:      nullTime(r.LastSyncTime),
		DeviceID:          r.DeviceID,
		CreatedAt:         r.CreatedAt.UTC(),
		UpdatedAt:         r.UpdatedAt.UTC(),
	}
	if r.CurrentLat.Valid && r.CurrentLon.Valid {
		j.CurrentPosition = &domain.Point{Lat: r.CurrentLat.Float64, Lon: r.CurrentLon.Float64}
	}
	return j
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time.UTC()
	return &t
}

type journeyRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewJourneyRepository(db *DB) repository.JourneyRepository {
	return &journeyRepository{
		db:     db.DB,
		logger: db.logger,
	}
}

// Create вставляет поездку. Вторая активная поездка пассажира упирается
// в частичный уникальный индекс и превращается в ErrJourneyConflict.
func (r *journeyRepository) Create(ctx context.Context, j *domain.Journey) (bool, error) {
	query := `
		INSERT INTO journeys (
			id, passenger_id, vehicle_id, from_stop, to_stop, status,
			start_time, device_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`

	res, err := r.db.ExecContext(ctx, query,
		j.ID, j.PassengerID, j.VehicleID, j.FromStop, j.ToStop, string(j.Status),
		j.StartTime, j.DeviceID, j.CreatedAt, j.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return false, errors.ErrJourneyConflict.WithDetails(map[string]interface{}{
				"passenger_id": j.PassengerID,
			})
		}
		r.logger.Error("Failed to create journey", zap.String("journey_id", j.ID.String()), zap.Error(err))
		return false, errors.ErrDatabaseError
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, errors.ErrDatabaseError
	}
	return affected == 1, nil
}

func (r *journeyRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Journey, error) {
	query := `SELECT ` + journeyColumns + ` FROM journeys WHERE id = $1`

	var row journeyRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.ErrJourneyNotFound.WithDetails(map[string]interface{}{"id": id.String()})
		}
		r.logger.Error("Failed to get journey", zap.String("journey_id", id.String()), zap.Error(err))
		return nil, errors.ErrDatabaseError
	}
	return row.toDomain(), nil
}

func (r *journeyRepository) GetActiveByPassenger(ctx context.Context, passengerID string) (*domain.Journey, error) {
	query := `SELECT ` + journeyColumns + ` FROM journeys WHERE passenger_id = $1 AND status = 'ACTIVE'`

	var row journeyRow
	if err := r.db.GetContext(ctx, &row, query, passengerID); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to get active journey", zap.String("passenger_id", passengerID), zap.Error(err))
		return nil, errors.ErrDatabaseError
	}
	return row.toDomain(), nil
}

// UpdateStatus меняет статус только у ACTIVE поездки: условие в WHERE
// делает переход атомарным при гонке двух запросов
func (r *journeyRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.JourneyStatus, endTime time.Time) (bool, error) {
	query := `
		UPDATE journeys
		SET status = $2, end_time = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'ACTIVE'
	`

	res, err := r.db.ExecContext(ctx, query, id, string(status), endTime)
	if err != nil {
		r.logger.Error("Failed to update journey status", zap.String("journey_id", id.String()), zap.Error(err))
		return false, errors.ErrDatabaseError
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, errors.ErrDatabaseError
	}
	return affected == 1, nil
}

func (r *journeyRepository) UpdateSyncState(ctx context.Context, id uuid.UUID, state domain.SyncState) error {
	query := `
		UPDATE journeys
		SET offline_queue_count = $2,
		    last_sync_time = GREATEST(COALESCE(last_sync_time, $3), $3),
		    updated_at = NOW()
		WHERE id = $1
	`

	res, err := r.db.ExecContext(ctx, query, id, state.OfflineQueueCount, state.LastSyncTime)
	if err != nil {
		r.logger.Error("Failed to update sync state", zap.String("journey_id", id.String()), zap.Error(err))
		return errors.ErrDatabaseError
	}

	if affected, _ := res.RowsAffected(); affected == 0 {
		return errors.ErrJourneyNotFound.WithDetails(map[string]interface{}{"id": id.String()})
	}
	return nil
}

func (r *journeyRepository) UpdatePosition(ctx context.Context, id uuid.UUID, position domain.Point) error {
	query := `
		UPDATE journeys
		SET current_lat = $2, current_lon = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'ACTIVE'
	`

	if _, err := r.db.ExecContext(ctx, query, id, position.Lat, position.Lon); err != nil {
		r.logger.Error("Failed to update journey position", zap.String("journey_id", id.String()), zap.Error(err))
		return errors.ErrDatabaseError
	}
	return nil
}
