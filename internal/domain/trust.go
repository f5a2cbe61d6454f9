package domain

import (
	"time"

	"github.com/google/uuid"
)

// TrustRecord - доверие к источнику в рамках поездки.
// Score всегда в диапазоне [TrustMin, TrustMax].
type TrustRecord struct {
	JourneyID       uuid.UUID  `json:"journey_id" db:"journey_id"`
	SourceID        string     `json:"source_id" db:"source_id"`
	SourceType      SourceType `json:"source_type" db:"source_type"`
	Score           float64    `json:"trust_score" db:"trust_score"`
	SpoofingFlags   int        `json:"spoofing_flags" db:"spoofing_flags"`
	LastValidatedAt time.Time  `json:"last_validated_at" db:"last_validated_at"`
}
