package testhelpers

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// tables очищаются одним TRUNCATE, порядок не важен
var tables = []string{"orders", "source_trust", "journey_positions", "journeys"}

// TestDB - подключение к тестовой базе
type TestDB struct {
	DB     *sqlx.DB
	Logger *zap.Logger
}

// SetupTestDB подключается к тестовой базе из TEST_DB_*. Без доступной базы тест пропускается.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		getEnv("TEST_DB_HOST", "localhost"),
		getEnv("TEST_DB_PORT", "5433"),
		getEnv("TEST_DB_USER", "postgres"),
		getEnv("TEST_DB_PASSWORD", "postgres"),
		getEnv("TEST_DB_NAME", "journeys_test"),
		getEnv("TEST_DB_SSLMODE", "disable"),
	)

	var (
		db  *sqlx.DB
		err error
	)
	delay := 200 * time.Millisecond
	for attempt := 1; attempt <= 3; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		db, err = sqlx.ConnectContext(ctx, "postgres", dsn)
		cancel()
		if err == nil {
			break
		}
		t.Logf("Test database not ready (attempt %d/3): %v", attempt, err)
		time.Sleep(delay)
		delay *= 2
	}
	if err != nil {
		t.Skipf("Test database unavailable: %v", err)
	}

	return &TestDB{DB: db, Logger: zap.NewNop()}
}

// Migrate накатывает миграции репозитория, путь относительно пакета теста
func (tdb *TestDB) Migrate(t *testing.T, dir string) {
	t.Helper()
	applied, err := ApplyMigrations(context.Background(), tdb.DB, dir)
	if err != nil {
		t.Fatalf("migrations failed: %v", err)
	}
	if len(applied) > 0 {
		t.Logf("Applied migrations: %s", strings.Join(applied, ", "))
	}
}

func (tdb *TestDB) Close() {
	if tdb.DB != nil {
		_ = tdb.DB.Close()
	}
}

// Cleanup очищает таблицы между тестами
func (tdb *TestDB) Cleanup(ctx context.Context) error {
	_, err := tdb.DB.ExecContext(ctx, "TRUNCATE TABLE "+strings.Join(tables, ", ")+" CASCADE")
	return err
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
