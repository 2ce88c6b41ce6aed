package loaders

import (
	"context"
	"sync"
)

type outcome[T any] struct {
	value T
	err   error
}

// Await converts callback style completion into blocking call. start must
// eventually call done, subsequent calls are ignored. Cancelled ctx returns
// immediately leaving the started work to finish on its own.
func Await[T any](ctx context.Context, start func(done func(T, error))) (T, error) {
	ch := make(chan outcome[T], 1)
	var once sync.Once
	start(func(v T, err error) {
		once.Do(func() { ch <- outcome[T]{value: v, err: err} })
	})

	select {
	case o := <-ch:
		return o.value, o.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
