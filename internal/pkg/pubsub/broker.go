package pubsub

import (
	"sync"
	"sync/atomic"
)

// Broker рассылает значения всем подписчикам. Publish не блокируется:
// если буфер подписчика заполнен, значение для него отбрасывается.
type Broker[T any] struct {
	mu      sync.RWMutex
	subs    map[int]chan T
	nextID  int
	closed  bool
	dropped atomic.Uint64
}

func NewBroker[T any]() *Broker[T] {
	return &Broker[T]{
		subs: make(map[int]chan T),
	}
}

// Subscribe возвращает канал подписки и функцию отписки
func (b *Broker[T]) Subscribe(buffer int) (<-chan T, func()) {
	if buffer < 1 {
		buffer = 1
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan T, buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

// Publish отправляет значение подписчикам и возвращает число доставок
func (b *Broker[T]) Publish(v T) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return 0
	}

	delivered := 0
	for _, ch := range b.subs {
		select {
		case ch <- v:
			delivered++
		default:
			b.dropped.Add(1)
		}
	}
	return delivered
}

// Close закрывает все каналы подписчиков
func (b *Broker[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
}

// Dropped возвращает число значений, не доставленных из-за переполнения
func (b *Broker[T]) Dropped() uint64 {
	return b.dropped.Load()
}
