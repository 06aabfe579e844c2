// Package runwait implements the "choose between two async workflows"
// composition idiom: run several long-running functions under one
// cancellation scope, return as soon as any one of them returns, and cancel
// the rest. Used to compose a batched consumer and a lag monitor in
// cmd/consume.
package runwait

import "context"

// First starts every fn in its own goroutine, each observing ctx for
// cancellation. It returns the result of whichever fn returns first,
// cancelling the shared context so the rest unwind, then waits for them to
// finish before returning.
func First(ctx context.Context, fns ...func(context.Context) error) error {
	if len(fns) == 0 {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan error, len(fns))
	for _, fn := range fns {
		fn := fn
		go func() {
			results <- fn(runCtx)
		}()
	}

	first := <-results
	cancel()
	for i := 1; i < len(fns); i++ {
		<-results
	}
	return first
}
