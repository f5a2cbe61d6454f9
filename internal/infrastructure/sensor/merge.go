package sensor

import (
	"context"
	"sync"

	"github.com/journey-tracker/internal/domain"
)

// Merge сводит несколько источников отчётов в один канал.
// Выходной канал закрывается, когда закрыты все входы или отменён ctx.
func Merge(ctx context.Context, inputs ...<-chan domain.PositionReport) <-chan domain.PositionReport {
	out := make(chan domain.PositionReport)

	var wg sync.WaitGroup
	for _, in := range inputs {
		wg.Add(1)
		go func(in <-chan domain.PositionReport) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case report, ok := <-in:
					if !ok {
						return
					}
					select {
					case out <- report:
					case <-ctx.Done():
						return
					}
				}
			}
		}(in)
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	return out
}
