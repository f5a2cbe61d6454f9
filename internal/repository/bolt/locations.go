package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/journey-tracker/internal/domain"
	"go.etcd.io/bbolt"
)

// StoreLocation сохраняет точку трека, ID выдаёт последовательность бакета
func (s *Store) StoreLocation(ctx context.Context, sample *domain.LocationSample) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(locationsBucket))

		id, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		sample.ID = id
		sample.Synced = false

		data, err := json.Marshal(sample)
		if err != nil {
			return fmt.Errorf("failed to marshal location sample: %w", err)
		}
		return bucket.Put(itob(id), data)
	})
	if err != nil {
		return writeErr("store location", err)
	}
	return nil
}

func (s *Store) GetUnsyncedLocations(ctx context.Context, journeyID uuid.UUID) ([]*domain.LocationSample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	samples := make([]*domain.LocationSample, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(locationsBucket)).ForEach(func(k, v []byte) error {
			var sample domain.LocationSample
			if err := json.Unmarshal(v, &sample); err != nil {
				s.logger.Warn("Skipping unreadable location sample")
				return nil
			}
			if !sample.Synced && sample.JourneyID == journeyID {
				samples = append(samples, &sample)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get unsynced locations: %w", err)
	}
	return samples, nil
}

// hasUnsyncedTx - есть ли у поездки невыгруженные точки
func hasUnsyncedTx(tx *bbolt.Tx, journeyID uuid.UUID) bool {
	found := false
	c := tx.Bucket([]byte(locationsBucket)).Cursor()
	for k, v := c.First(); k != nil && !found; k, v = c.Next() {
		var sample domain.LocationSample
		if err := json.Unmarshal(v, &sample); err != nil {
			continue
		}
		found = !sample.Synced && sample.JourneyID == journeyID
	}
	return found
}

func (s *Store) MarkLocationsSynced(ctx context.Context, ids []uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	now := time.Now().UTC()
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(locationsBucket))
		for _, id := range ids {
			key := itob(id)
			v := bucket.Get(key)
			if v == nil {
				continue
			}

			var sample domain.LocationSample
			if err := json.Unmarshal(v, &sample); err != nil {
				continue
			}
			if sample.Synced {
				continue
			}
			sample.Synced = true
			sample.SyncedAt = &now

			data, err := json.Marshal(&sample)
			if err != nil {
				return err
			}
			if err := bucket.Put(key, data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return writeErr("mark locations synced", err)
	}
	return nil
}
