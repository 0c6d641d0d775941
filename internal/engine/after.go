package engine

import (
	"context"
	"sync"

	"github.com/openbaas/corestore/internal/logging"
)

// afterRunner executes after-hooks detached from the request that caused
// them. A panicking hook must not take the process down with it.
type afterRunner struct {
	wg  sync.WaitGroup
	log logging.Logger
}

func newAfterRunner(log logging.Logger) *afterRunner {
	return &afterRunner{log: log}
}

func (a *afterRunner) run(fn func(ctx context.Context)) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ctx := context.Background()
		defer func() {
			if r := recover(); r != nil {
				a.log.Error(ctx, "after hook panicked", "panic", r)
			}
		}()
		fn(ctx)
	}()
}

func (a *afterRunner) wait() {
	a.wg.Wait()
}
