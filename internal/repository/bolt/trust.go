package bolt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/journey-tracker/internal/domain"
	"go.etcd.io/bbolt"
)

func trustKey(journeyID uuid.UUID, sourceID string) []byte {
	return []byte(journeyID.String() + "/" + sourceID)
}

func (s *Store) SaveTrust(ctx context.Context, record *domain.TrustRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal trust record: %w", err)
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(trustBucket)).Put(trustKey(record.JourneyID, record.SourceID), data)
	})
	if err != nil {
		return writeErr("save trust", err)
	}
	return nil
}

func (s *Store) LoadTrust(ctx context.Context, journeyID uuid.UUID) ([]*domain.TrustRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	records := make([]*domain.TrustRecord, 0)
	prefix := []byte(journeyID.String() + "/")

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(trustBucket)).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var record domain.TrustRecord
			if err := json.Unmarshal(v, &record); err != nil {
				continue
			}
			records = append(records, &record)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load trust: %w", err)
	}
	return records, nil
}

// SaveJourney кеширует последнюю известную поездку пассажира
func (s *Store) SaveJourney(ctx context.Context, journey *domain.Journey) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(journey)
	if err != nil {
		return fmt.Errorf("failed to marshal journey: %w", err)
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(journeysBucket)).Put([]byte(journey.PassengerID), data)
	})
	if err != nil {
		return writeErr("save journey", err)
	}
	return nil
}

// LoadJourney возвращает nil, nil если поездка не кеширована
func (s *Store) LoadJourney(ctx context.Context, passengerID string) (*domain.Journey, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var journey *domain.Journey
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket([]byte(journeysBucket)).Get([]byte(passengerID))
		if v == nil {
			return nil
		}
		journey = &domain.Journey{}
		return json.Unmarshal(v, journey)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load journey: %w", err)
	}
	return journey, nil
}
