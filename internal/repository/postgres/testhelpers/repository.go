package testhelpers

import (
	"github.com/jmoiron/sqlx"
	"github.com/journey-tracker/internal/domain/repository"
	"github.com/journey-tracker/internal/repository/postgres"
	"go.uber.org/zap"
)

// NewDBForTest creates a postgres.DB with test database and logger
func NewDBForTest(db *sqlx.DB, logger *zap.Logger) *postgres.DB {
	return postgres.NewDBForTest(db, logger)
}

// NewJourneyRepositoryForTest creates a journey repository with test database and logger
func NewJourneyRepositoryForTest(db *sqlx.DB, logger *zap.Logger) repository.JourneyRepository {
	return postgres.NewJourneyRepository(NewDBForTest(db, logger))
}

// NewPositionRepositoryForTest creates a position repository with test database and logger
func NewPositionRepositoryForTest(db *sqlx.DB, logger *zap.Logger) repository.PositionRepository {
	return postgres.NewPositionRepository(NewDBForTest(db, logger))
}

// NewTrustRepositoryForTest creates a trust repository with test database and logger
func NewTrustRepositoryForTest(db *sqlx.DB, logger *zap.Logger) repository.TrustRepository {
	return postgres.NewTrustRepository(NewDBForTest(db, logger))
}

// NewOrderRepositoryForTest creates an order repository with test database and logger
func NewOrderRepositoryForTest(db *sqlx.DB, logger *zap.Logger) repository.OrderRepository {
	return postgres.NewOrderRepository(NewDBForTest(db, logger))
}
