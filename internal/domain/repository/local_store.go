package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/journey-tracker/internal/domain"
)

// QueueStore - офлайн очередь мутаций устройства
type QueueStore interface {
	// Enqueue присваивает следующий номер последовательности и сохраняет элемент.
	// Ошибка записи возвращается вызывающему, элемент не теряется молча.
	Enqueue(ctx context.Context, deviceID string, action domain.QueueAction, payload []byte, journeyID *uuid.UUID) (*domain.QueueItem, error)

	// EnqueueOnce не создаёт новый элемент, если такой же маркер ещё не обработан
	EnqueueOnce(ctx context.Context, deviceID string, action domain.QueueAction, payload []byte, journeyID *uuid.UUID) (*domain.QueueItem, bool, error)

	// GetPending возвращает необработанные элементы в порядке номеров
	GetPending(ctx context.Context, deviceID string) ([]*domain.QueueItem, error)

	GetItem(ctx context.Context, id uuid.UUID) (*domain.QueueItem, error)

	// MarkProcessed помечает элемент обработанным, errMsg сохраняется для разбора
	MarkProcessed(ctx context.Context, id uuid.UUID, errMsg string) error

	// IncrementRetry увеличивает счётчик попыток
	IncrementRetry(ctx context.Context, id uuid.UUID, errMsg string) (*domain.QueueItem, error)

	// ListDeadLetters возвращает элементы с исчерпанными попытками
	ListDeadLetters(ctx context.Context, deviceID string) ([]*domain.QueueItem, error)

	GetQueueStats(ctx context.Context, deviceID string) (*domain.QueueStats, error)

	// CleanOldData удаляет обработанные элементы и выгруженные точки старше before
	CleanOldData(ctx context.Context, before time.Time) (int, error)
}

// LocationStore - локальный трек поездки, выгружается пачками
type LocationStore interface {
	StoreLocation(ctx context.Context, sample *domain.LocationSample) error
	GetUnsyncedLocations(ctx context.Context, journeyID uuid.UUID) ([]*domain.LocationSample, error)
	MarkLocationsSynced(ctx context.Context, ids []uint64) error
}

// TrustStore - локально сохранённое доверие к источникам
type TrustStore interface {
	SaveTrust(ctx context.Context, record *domain.TrustRecord) error
	LoadTrust(ctx context.Context, journeyID uuid.UUID) ([]*domain.TrustRecord, error)
}

// JourneyCache - последняя известная поездка пассажира на устройстве
type JourneyCache interface {
	SaveJourney(ctx context.Context, journey *domain.Journey) error
	LoadJourney(ctx context.Context, passengerID string) (*domain.Journey, error)
}

// LocalStore - встроенное долговечное хранилище устройства
type LocalStore interface {
	QueueStore
	LocationStore
	TrustStore
	JourneyCache

	// DeviceID возвращает идентификатор установки, создаётся один раз
	DeviceID(ctx context.Context) (string, error)

	Close() error
}
