package worker

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

var ErrStopped = errors.New("worker queue stopped")

type job struct {
	name string
	fn   func() error
	done chan error
}

// Queue executes submitted jobs one at a time on a single goroutine in the
// order they were accepted. It is the single writer for a store.
type Queue struct {
	logger *zap.Logger
	jobs   chan job
	wg     sync.WaitGroup
	stop   chan struct{}
	once   sync.Once
}

func NewQueue(logger *zap.Logger) *Queue {
	return &Queue{
		logger: logger,
		jobs:   make(chan job), // без буфера: принятая задача гарантированно будет выполнена
		stop:   make(chan struct{}),
	}
}

func (q *Queue) Start(ctx context.Context) {
	q.logger.Debug("Starting writer queue")
	q.wg.Add(1)
	go q.worker(ctx)
}

func (q *Queue) Stop() {
	q.logger.Debug("Stopping writer queue...")
	q.closeStop()
	q.wg.Wait()
}

func (q *Queue) closeStop() {
	q.once.Do(func() { close(q.stop) })
}

// Do blocks until the queue accepts fn, then until fn returns. ctx only
// bounds the wait for acceptance; an accepted job always runs to completion.
func (q *Queue) Do(ctx context.Context, name string, fn func() error) error {
	j := job{name: name, fn: fn, done: make(chan error, 1)}

	select {
	case q.jobs <- j:
	case <-q.stop:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-j.done
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()
	// после отмены ctx новые Do должны получать ErrStopped, а не висеть
	defer q.closeStop()

	for {
		select {
		case <-q.stop:
			return
		case <-ctx.Done():
			return
		case j := <-q.jobs:
			err := j.fn()
			if err != nil {
				q.logger.Debug("job failed", zap.String("job", j.name), zap.Error(err))
			}
			j.done <- err
		}
	}
}
