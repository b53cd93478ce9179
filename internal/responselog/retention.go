package responselog

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// PruneInterval is the delay between retention sweeps of one measurement.
const PruneInterval = time.Hour

// pruneTimeout bounds a single sweep.
const pruneTimeout = 5 * time.Minute

// pruneFunc deletes the records stamped before cutoff and reports how many went.
type pruneFunc func(ctx context.Context, cutoff time.Time) (int64, error)

// retention deletes expired records of one measurement in the background.
// A nil *retention is valid and does nothing.
type retention struct {
	measurement string
	keep        time.Duration
	prune       pruneFunc

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// startRetention sweeps immediately and then every PruneInterval until stop.
// It returns nil when days is not positive.
func startRetention(measurement string, days int, prune pruneFunc) *retention {
	if days <= 0 {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &retention{
		measurement: measurement,
		keep:        time.Duration(days) * 24 * time.Hour,
		prune:       prune,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	go r.loop(ctx, PruneInterval)
	return r
}

func (r *retention) loop(ctx context.Context, every time.Duration) {
	defer close(r.done)

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		r.sweep(ctx)
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

// sweep runs one prune pass and logs its outcome.
func (r *retention) sweep(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, pruneTimeout)
	defer cancel()

	deleted, err := r.prune(ctx, r.cutoff(time.Now()))
	if err != nil {
		if ctx.Err() == nil {
			slog.Error("response log retention sweep failed", "measurement", r.measurement, "error", err)
		}
		return
	}
	if deleted > 0 {
		slog.Info("pruned expired response logs", "measurement", r.measurement, "deleted", deleted)
	}
}

func (r *retention) cutoff(now time.Time) time.Time {
	return now.UTC().Add(-r.keep)
}

// stop ends the loop and waits for an in-flight sweep. Safe to call twice.
func (r *retention) stop() {
	if r == nil {
		return
	}
	r.once.Do(func() {
		r.cancel()
		<-r.done
	})
}
