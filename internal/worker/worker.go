package worker

import "context"

// Worker - фоновый цикл процесса (трекинг, синхронизация, связь с бэкендом, realtime).
// Start блокируется до Stop или отмены ctx и возвращает nil при штатной остановке.
// Stop можно вызывать повторно.
type Worker interface {
	Start(ctx context.Context) error
	Stop() error
	Name() string
}
