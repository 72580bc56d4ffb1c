package lifecycle

import (
	"context"

	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/selfhostd/appctl/interfaces"
)

// Result is the outcome of one app's command in a fan-out.
type Result struct {
	App interfaces.AppID
	Err error
}

// ForEachInstalled runs fn concurrently for every registered app and
// joins on all of them. Each app's sequence is independent: a failure
// is recorded in its Result and never cancels siblings. The aggregate
// is best-effort; callers decide what to make of the per-app results.
func (c *Controller) ForEachInstalled(ctx context.Context, fn func(ctx context.Context, id interfaces.AppID) error) ([]Result, error) {
	ids, err := c.reg.List()
	if err != nil {
		return nil, err
	}

	results := make([]Result, len(ids))
	failed := atomic.NewInt64(0)

	var g errgroup.Group
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			runErr := fn(ctx, id)
			results[i] = Result{App: id, Err: runErr}
			if runErr != nil {
				failed.Inc()
				c.log.Error("command failed for app", "app", id, "err", runErr)
			}
			return nil
		})
	}
	g.Wait()

	if n := failed.Load(); n > 0 {
		c.log.Warn("fan-out finished with failures", "failed", n, "total", len(ids))
	}
	return results, nil
}
