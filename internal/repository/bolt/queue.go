package bolt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/journey-tracker/internal/domain"
	apperrors "github.com/journey-tracker/internal/pkg/errors"
	"go.etcd.io/bbolt"
	"go.uber.org/zap"
)

// queueKey - префикс устройства и номер в big-endian, курсор обходит элементы по порядку
func queueKey(deviceID string, seq uint64) []byte {
	key := make([]byte, 0, len(deviceID)+9)
	key = append(key, deviceID...)
	key = append(key, 0)
	return append(key, itob(seq)...)
}

func devicePrefix(deviceID string) []byte {
	return append([]byte(deviceID), 0)
}

func sequenceKey(deviceID string) []byte {
	return []byte("seq:" + deviceID)
}

func markerKey(deviceID string, action domain.QueueAction, journeyID *uuid.UUID) []byte {
	j := ""
	if journeyID != nil {
		j = journeyID.String()
	}
	return []byte(fmt.Sprintf("marker:%s:%s:%s", deviceID, action, j))
}

func (s *Store) Enqueue(ctx context.Context, deviceID string, action domain.QueueAction, payload []byte, journeyID *uuid.UUID) (*domain.QueueItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var item *domain.QueueItem
	err := s.db.Update(func(tx *bbolt.Tx) error {
		var err error
		item, err = s.appendItem(tx, deviceID, action, payload, journeyID)
		return err
	})
	if err != nil {
		return nil, writeErr("enqueue "+string(action), err)
	}

	s.logger.Debug("Queue item enqueued",
		zap.String("id", item.ID.String()),
		zap.String("action", string(action)),
		zap.Uint64("sequence", item.SequenceNumber))

	return item, nil
}

func (s *Store) EnqueueOnce(ctx context.Context, deviceID string, action domain.QueueAction, payload []byte, journeyID *uuid.UUID) (*domain.QueueItem, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	var (
		item    *domain.QueueItem
		created bool
	)
	err := s.db.Update(func(tx *bbolt.Tx) error {
		meta := tx.Bucket([]byte(metaBucket))
		mk := markerKey(deviceID, action, journeyID)

		if idBytes := meta.Get(mk); idBytes != nil {
			existing, err := getItemTx(tx, idBytes)
			if err != nil {
				return err
			}
			if existing != nil && !existing.Processed && !existing.IsDeadLetter(s.maxAttempts) {
				item = existing
				return nil
			}
		}

		var err error
		item, err = s.appendItem(tx, deviceID, action, payload, journeyID)
		if err != nil {
			return err
		}
		created = true
		idBytes, _ := item.ID.MarshalBinary()
		return meta.Put(mk, idBytes)
	})
	if err != nil {
		return nil, false, writeErr("enqueue once "+string(action), err)
	}

	return item, created, nil
}

// appendItem выдаёт следующий номер и пишет элемент в той же транзакции
func (s *Store) appendItem(tx *bbolt.Tx, deviceID string, action domain.QueueAction, payload []byte, journeyID *uuid.UUID) (*domain.QueueItem, error) {
	meta := tx.Bucket([]byte(metaBucket))

	var seq uint64 = 1
	if v := meta.Get(sequenceKey(deviceID)); v != nil {
		seq = btoi(v) + 1
	}
	if err := meta.Put(sequenceKey(deviceID), itob(seq)); err != nil {
		return nil, err
	}

	item := &domain.QueueItem{
		ID:             uuid.New(),
		DeviceID:       deviceID,
		JourneyID:      journeyID,
		Action:         action,
		Payload:        json.RawMessage(payload),
		SequenceNumber: seq,
		CreatedAt:      time.Now().UTC(),
	}

	key := queueKey(deviceID, seq)
	if err := putItemTx(tx, key, item); err != nil {
		return nil, err
	}

	idBytes, _ := item.ID.MarshalBinary()
	if err := tx.Bucket([]byte(queueIndexBucket)).Put(idBytes, key); err != nil {
		return nil, err
	}

	return item, nil
}

func putItemTx(tx *bbolt.Tx, key []byte, item *domain.QueueItem) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal queue item: %w", err)
	}
	return tx.Bucket([]byte(queueBucket)).Put(key, data)
}

// getItemTx возвращает nil, nil если элемента нет
func getItemTx(tx *bbolt.Tx, idBytes []byte) (*domain.QueueItem, error) {
	key := tx.Bucket([]byte(queueIndexBucket)).Get(idBytes)
	if key == nil {
		return nil, nil
	}
	data := tx.Bucket([]byte(queueBucket)).Get(key)
	if data == nil {
		return nil, nil
	}

	var item domain.QueueItem
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, fmt.Errorf("%w: queue item %x: %w", apperrors.ErrStorageCorrupted, idBytes, err)
	}
	return &item, nil
}

// forEachItem обходит элементы устройства в порядке номеров
func forEachItem(tx *bbolt.Tx, deviceID string, fn func(item *domain.QueueItem) error) error {
	prefix := devicePrefix(deviceID)
	c := tx.Bucket([]byte(queueBucket)).Cursor()

	for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		var item domain.QueueItem
		if err := json.Unmarshal(v, &item); err != nil {
			return fmt.Errorf("%w: queue key %x: %w", apperrors.ErrStorageCorrupted, k, err)
		}
		if err := fn(&item); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) GetPending(ctx context.Context, deviceID string) ([]*domain.QueueItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	items := make([]*domain.QueueItem, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		return forEachItem(tx, deviceID, func(item *domain.QueueItem) error {
			if !item.Processed {
				items = append(items, item)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get pending items: %w", err)
	}

	return items, nil
}

func (s *Store) GetItem(ctx context.Context, id uuid.UUID) (*domain.QueueItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var item *domain.QueueItem
	err := s.db.View(func(tx *bbolt.Tx) error {
		idBytes, _ := id.MarshalBinary()
		var err error
		item, err = getItemTx(tx, idBytes)
		return err
	})
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, apperrors.ErrQueueItemNotFound.WithDetails(map[string]interface{}{"id": id.String()})
	}
	return item, nil
}

// updateItem читает, меняет и записывает элемент в одной транзакции
func (s *Store) updateItem(ctx context.Context, op string, id uuid.UUID, fn func(tx *bbolt.Tx, item *domain.QueueItem) error) (*domain.QueueItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		item     *domain.QueueItem
		notFound bool
	)
	err := s.db.Update(func(tx *bbolt.Tx) error {
		idBytes, _ := id.MarshalBinary()
		key := tx.Bucket([]byte(queueIndexBucket)).Get(idBytes)
		if key == nil {
			notFound = true
			return nil
		}
		key = append([]byte(nil), key...)

		var err error
		item, err = getItemTx(tx, idBytes)
		if err != nil {
			return err
		}
		if item == nil {
			notFound = true
			return nil
		}
		if err := fn(tx, item); err != nil {
			return err
		}
		return putItemTx(tx, key, item)
	})
	if err != nil {
		return nil, writeErr(op, err)
	}
	if notFound {
		return nil, apperrors.ErrQueueItemNotFound.WithDetails(map[string]interface{}{"id": id.String()})
	}
	return item, nil
}

func (s *Store) MarkProcessed(ctx context.Context, id uuid.UUID, errMsg string) error {
	var rearmed *domain.QueueItem
	_, err := s.updateItem(ctx, "mark processed", id, func(tx *bbolt.Tx, item *domain.QueueItem) error {
		if item.Processed {
			return nil
		}
		now := time.Now().UTC()
		item.Processed = true
		item.ProcessedAt = &now
		item.LastError = errMsg

		// маркер отпускается, следующий EnqueueOnce создаст новый элемент
		meta := tx.Bucket([]byte(metaBucket))
		mk := markerKey(item.DeviceID, item.Action, item.JourneyID)
		cur := meta.Get(mk)
		if cur == nil {
			return nil
		}
		idBytes, _ := item.ID.MarshalBinary()
		if !bytes.Equal(cur, idBytes) {
			return nil
		}
		if err := meta.Delete(mk); err != nil {
			return err
		}

		// точки, записанные во время выгрузки, получают новый маркер
		if item.Action != domain.ActionUpdateLocation || item.JourneyID == nil || errMsg != "" {
			return nil
		}
		if !hasUnsyncedTx(tx, *item.JourneyID) {
			return nil
		}
		next, err := s.appendItem(tx, item.DeviceID, item.Action, nil, item.JourneyID)
		if err != nil {
			return err
		}
		rearmed = next
		nextID, _ := next.ID.MarshalBinary()
		return meta.Put(mk, nextID)
	})
	if err != nil {
		return err
	}

	if rearmed != nil {
		s.logger.Debug("Location marker re-armed",
			zap.String("journey_id", rearmed.JourneyID.String()),
			zap.Uint64("sequence", rearmed.SequenceNumber))
	}
	return nil
}

func (s *Store) IncrementRetry(ctx context.Context, id uuid.UUID, errMsg string) (*domain.QueueItem, error) {
	item, err := s.updateItem(ctx, "increment retry", id, func(_ *bbolt.Tx, item *domain.QueueItem) error {
		now := time.Now().UTC()
		item.AttemptCount++
		item.LastAttemptAt = &now
		item.LastError = errMsg
		return nil
	})
	if err != nil {
		return nil, err
	}

	if item.IsDeadLetter(s.maxAttempts) {
		s.logger.Warn("Queue item moved to dead letters",
			zap.String("id", item.ID.String()),
			zap.String("action", string(item.Action)),
			zap.Int("attempts", item.AttemptCount),
			zap.String("last_error", errMsg))
	}

	return item, nil
}

func (s *Store) ListDeadLetters(ctx context.Context, deviceID string) ([]*domain.QueueItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	items := make([]*domain.QueueItem, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		return forEachItem(tx, deviceID, func(item *domain.QueueItem) error {
			if item.IsDeadLetter(s.maxAttempts) {
				items = append(items, item)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}
	return items, nil
}

func (s *Store) GetQueueStats(ctx context.Context, deviceID string) (*domain.QueueStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stats := &domain.QueueStats{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		err := forEachItem(tx, deviceID, func(item *domain.QueueItem) error {
			stats.Total++
			switch {
			case item.Processed:
				stats.Processed++
			case item.IsDeadLetter(s.maxAttempts):
				stats.Pending++
				stats.DeadLetters++
			default:
				stats.Pending++
			}
			return nil
		})
		if err != nil {
			return err
		}

		return tx.Bucket([]byte(locationsBucket)).ForEach(func(_, v []byte) error {
			var sample domain.LocationSample
			if err := json.Unmarshal(v, &sample); err != nil {
				return nil
			}
			if !sample.Synced {
				stats.UnsyncedLocations++
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to compute queue stats: %w", err)
	}
	return stats, nil
}

// CleanOldData удаляет обработанные элементы и выгруженные точки старше before.
// Необработанные элементы, включая dead letters, не трогаются.
func (s *Store) CleanOldData(ctx context.Context, before time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	removed := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		queue := tx.Bucket([]byte(queueBucket))
		index := tx.Bucket([]byte(queueIndexBucket))

		var keys, ids [][]byte
		err := queue.ForEach(func(k, v []byte) error {
			var item domain.QueueItem
			if err := json.Unmarshal(v, &item); err != nil {
				return nil
			}
			if item.Processed && item.ProcessedAt != nil && item.ProcessedAt.Before(before) {
				keys = append(keys, append([]byte(nil), k...))
				idBytes, _ := item.ID.MarshalBinary()
				ids = append(ids, idBytes)
			}
			return nil
		})
		if err != nil {
			return err
		}
		for i := range keys {
			if err := queue.Delete(keys[i]); err != nil {
				return err
			}
			if err := index.Delete(ids[i]); err != nil {
				return err
			}
			removed++
		}

		locations := tx.Bucket([]byte(locationsBucket))
		var sampleKeys [][]byte
		err = locations.ForEach(func(k, v []byte) error {
			var sample domain.LocationSample
			if err := json.Unmarshal(v, &sample); err != nil {
				return nil
			}
			if sample.Synced && sample.SyncedAt != nil && sample.SyncedAt.Before(before) {
				sampleKeys = append(sampleKeys, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range sampleKeys {
			if err := locations.Delete(k); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, writeErr("clean old data", err)
	}

	if removed > 0 {
		s.logger.Info("Local store cleaned",
			zap.Int("removed", removed),
			zap.Time("before", before))
	}
	return removed, nil
}
