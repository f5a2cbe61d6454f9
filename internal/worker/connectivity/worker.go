package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/journey-tracker/internal/worker"
	"go.uber.org/zap"
)

const (
	defaultInterval = 10 * time.Second
	defaultTimeout  = 5 * time.Second
)

// Prober проверяет доступность бэкенда
type Prober interface {
	Health(ctx context.Context) error
}

// Listener получает переходы online/offline, первый результат проверки тоже считается переходом
type Listener func(online bool)

// Worker периодически проверяет бэкенд и сообщает о потере и восстановлении связи
type Worker struct {
	*worker.BaseWorker
	prober    Prober
	interval  time.Duration
	timeout   time.Duration
	mu        sync.Mutex
	listeners []Listener
	known     bool
	online    bool
}

func NewWorker(prober Prober, interval, timeout time.Duration, logger *zap.Logger) *Worker {
	if interval <= 0 {
		interval = defaultInterval
	}
	if timeout <= 0 || timeout > interval {
		timeout = min(defaultTimeout, interval)
	}
	return &Worker{
		BaseWorker: worker.NewBaseWorker("connectivity", logger),
		prober:     prober,
		interval:   interval,
		timeout:    timeout,
	}
}

// OnChange добавляет слушателя переходов
func (w *Worker) OnChange(l Listener) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners = append(w.listeners, l)
}

// IsOnline - результат последней проверки
func (w *Worker) IsOnline() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.online
}

func (w *Worker) Start(ctx context.Context) error {
	logger := w.Logger()
	logger.Info("Starting connectivity monitor", zap.Duration("interval", w.interval))

	w.probe(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.StopChan():
			logger.Info("Worker stopped")
			return nil

		case <-ctx.Done():
			logger.Info("Context cancelled")
			return ctx.Err()

		case <-ticker.C:
			w.probe(ctx)
		}
	}
}

// Probe выполняет внеочередную проверку
func (w *Worker) Probe(ctx context.Context) bool {
	return w.probe(ctx)
}

func (w *Worker) probe(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, w.timeout)
	err := w.prober.Health(probeCtx)
	cancel()

	if ctx.Err() != nil {
		return w.IsOnline()
	}

	online := err == nil

	w.mu.Lock()
	changed := !w.known || w.online != online
	w.known = true
	w.online = online
	listeners := make([]Listener, len(w.listeners))
	copy(listeners, w.listeners)
	w.mu.Unlock()

	if !changed {
		return online
	}

	if online {
		w.Logger().Info("Backend reachable")
	} else {
		w.Logger().Warn("Backend unreachable", zap.Error(err))
	}
	for _, l := range listeners {
		l(online)
	}
	return online
}
