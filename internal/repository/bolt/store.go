package bolt

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/journey-tracker/internal/config"
	"github.com/journey-tracker/internal/domain/repository"
	apperrors "github.com/journey-tracker/internal/pkg/errors"
	"go.etcd.io/bbolt"
	bolterrors "go.etcd.io/bbolt/errors"
	"go.uber.org/zap"
)

// Bucket names
const (
	queueBucket      = "queue"
	queueIndexBucket = "queue_index"
	locationsBucket  = "locations"
	metaBucket       = "meta"
	trustBucket      = "trust"
	journeysBucket   = "journeys"
)

const deviceIDKey = "device_id"

var _ repository.LocalStore = (*Store)(nil)

// Store - долговечное локальное хранилище устройства поверх bbolt.
// Все записи идут через read-write транзакции, bbolt допускает только одну
// такую транзакцию одновременно, поэтому выдача номера и запись элемента атомарны.
type Store struct {
	db          *bbolt.DB
	path        string
	logger      *zap.Logger
	maxAttempts int
	recovered   bool
}

func New(cfg *config.StoreConfig, queueCfg *config.QueueConfig, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	s := &Store{
		path:        cfg.Path,
		logger:      logger,
		maxAttempts: queueCfg.MaxAttempts,
	}

	db, err := s.open(cfg.OpenTimeout)
	if err != nil {
		if !cfg.ResetOnCorruption || isLockTimeout(err) {
			return nil, err
		}

		// Очередь устройства потеряна, но то, что уже ушло на бэкенд, не пострадало
		logger.Error("Local store is corrupted, reinitializing",
			zap.String("path", cfg.Path),
			zap.Error(err))

		moved := fmt.Sprintf("%s.corrupt-%d", cfg.Path, time.Now().Unix())
		if renameErr := os.Rename(cfg.Path, moved); renameErr != nil && !os.IsNotExist(renameErr) {
			return nil, fmt.Errorf("failed to move corrupted store aside: %w", renameErr)
		}

		db, err = s.open(cfg.OpenTimeout)
		if err != nil {
			return nil, err
		}
		s.recovered = true
	}
	s.db = db

	logger.Info("Local store opened",
		zap.String("path", cfg.Path),
		zap.Bool("recovered", s.recovered))

	return s, nil
}

// open открывает файл, создаёт бакеты и проверяет целостность
func (s *Store) open(timeout time.Duration) (db *bbolt.DB, err error) {
	defer func() {
		// bbolt паникует на части повреждённых страниц
		if r := recover(); r != nil {
			if db != nil {
				_ = db.Close()
			}
			db = nil
			err = fmt.Errorf("%w: %v", apperrors.ErrStorageCorrupted, r)
		}
	}()

	db, err = bbolt.Open(s.path, 0o600, &bbolt.Options{Timeout: timeout})
	if err != nil {
		if isLockTimeout(err) {
			return nil, fmt.Errorf("failed to open local store: %w", err)
		}
		return nil, fmt.Errorf("%w: %w", apperrors.ErrStorageCorrupted, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{queueBucket, queueIndexBucket, locationsBucket, metaBucket, trustBucket, journeysBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: failed to initialize buckets: %w", apperrors.ErrStorageCorrupted, err)
	}

	err = db.View(func(tx *bbolt.Tx) error {
		var first error
		// канал нужно вычитать до конца, проверка идёт в отдельной горутине
		for checkErr := range tx.Check() {
			if first == nil {
				first = checkErr
			}
		}
		return first
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %w", apperrors.ErrStorageCorrupted, err)
	}

	return db, nil
}

func isLockTimeout(err error) bool {
	return err != nil && errors.Is(err, bolterrors.ErrTimeout)
}

// Recovered сообщает, что при открытии хранилище было пересоздано
func (s *Store) Recovered() bool {
	return s.recovered
}

func (s *Store) Close() error {
	s.logger.Info("Closing local store")
	return s.db.Close()
}

// DeviceID возвращает идентификатор установки, при первом вызове создаёт его
func (s *Store) DeviceID(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var id string
	err := s.db.Update(func(tx *bbolt.Tx) error {
		meta := tx.Bucket([]byte(metaBucket))
		if v := meta.Get([]byte(deviceIDKey)); v != nil {
			id = string(v)
			return nil
		}
		id = uuid.New().String()
		return meta.Put([]byte(deviceIDKey), []byte(id))
	})
	if err != nil {
		return "", writeErr("device id", err)
	}
	return id, nil
}

func writeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, apperrors.ErrStorageWriteFailed, err)
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func btoi(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}
