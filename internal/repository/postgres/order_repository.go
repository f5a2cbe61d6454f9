package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/journey-tracker/internal/domain"
	"github.com/journey-tracker/internal/domain/repository"
	"github.com/journey-tracker/internal/pkg/errors"
	"go.uber.org/zap"
)

type orderRow struct {
	OfflineID   uuid.UUID     `db:"offline_id"`
	PassengerID string        `db:"passenger_id"`
	JourneyID   uuid.NullUUID `db:"journey_id"`
	OrderType   string        `db:"order_type"`
	Details     []byte        `db:"details"`
	TotalAmount float64       `db:"total_amount"`
	Currency    string        `db:"currency"`
	CreatedAt   time.Time     `db:"created_at"`
}

func (r *orderRow) toDomain() *domain.Order {
	o := &domain.Order{
		OfflineID:   r.OfflineID,
		PassengerID: r.PassengerID,
		OrderType:   domain.OrderType(r.OrderType),
		TotalAmount: r.TotalAmount,
		Currency:    r.Currency,
		CreatedAt:   r.CreatedAt.UTC(),
	}
	if r.JourneyID.Valid {
		id := r.JourneyID.UUID
		o.JourneyID = &id
	}
	if len(r.Details) > 0 {
		o.Details = json.RawMessage(r.Details)
	}
	return o
}

type orderRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewOrderRepository(db *DB) repository.OrderRepository {
	return &orderRepository{
		db:     db.DB,
		logger: db.logger,
	}
}

func (r *orderRepository) Upsert(ctx context.Context, o *domain.Order) (bool, error) {
	query := `
		INSERT INTO orders (
			offline_id, passenger_id, journey_id, order_type, details,
			total_amount, currency, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (offline_id) DO NOTHING
	`

	var details interface{}
	if len(o.Details) > 0 {
		details = string(o.Details)
	}

	res, err := r.db.ExecContext(ctx, query,
		o.OfflineID, o.PassengerID, o.JourneyID, string(o.OrderType), details,
		o.TotalAmount, o.Currency, o.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to upsert order", zap.String("offline_id", o.OfflineID.String()), zap.Error(err))
		return false, errors.ErrDatabaseError
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, errors.ErrDatabaseError
	}
	return affected == 1, nil
}

func (r *orderRepository) ListByPassenger(ctx context.Context, passengerID string, limit int) ([]*domain.Order, error) {
	query := `
		SELECT offline_id, passenger_id, journey_id, order_type, details,
		       total_amount, currency, created_at
		FROM orders
		WHERE passenger_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	var rows []orderRow
	if err := r.db.SelectContext(ctx, &rows, query, passengerID, limit); err != nil {
		r.logger.Error("Failed to list orders", zap.String("passenger_id", passengerID), zap.Error(err))
		return nil, errors.ErrDatabaseError
	}

	orders := make([]*domain.Order, 0, len(rows))
	for i := range rows {
		orders = append(orders, rows[i].toDomain())
	}
	return orders, nil
}
