package service

import (
	"context"
	"sync"
)

// KeyedQueue runs functions sharing a key one after another, in arrival order.
type KeyedQueue[K comparable] struct {
	mu     sync.Mutex
	chains map[K]chan struct{}
}

func NewKeyedQueue[K comparable]() *KeyedQueue[K] {
	return &KeyedQueue[K]{chains: map[K]chan struct{}{}}
}

func (q *KeyedQueue[K]) Run(ctx context.Context, key K, fn func(context.Context) error) error {
	q.mu.Lock()
	previous := q.chains[key]
	next := make(chan struct{})
	q.chains[key] = next
	q.mu.Unlock()

	if previous != nil {
		select {
		case <-previous:
		case <-ctx.Done():
			// Keep the chain intact for later callers.
			go func() {
				<-previous
				q.release(key, next)
			}()
			return ctx.Err()
		}
	}

	defer q.release(key, next)
	return fn(ctx)
}

func (q *KeyedQueue[K]) release(key K, done chan struct{}) {
	close(done)
	q.mu.Lock()
	if q.chains[key] == done {
		delete(q.chains, key)
	}
	q.mu.Unlock()
}

func (q *KeyedQueue[K]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.chains)
}
