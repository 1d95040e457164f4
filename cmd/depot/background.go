package main

import (
	"context"
	"sync"
)

// startBackground runs fn in its own goroutine. The returned stop func
// cancels fn's context and blocks until fn has returned.
func startBackground(ctx context.Context, fn func(context.Context)) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		fn(ctx)
	}()
	return func() {
		cancel()
		wg.Wait()
	}
}
