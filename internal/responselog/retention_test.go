package responselog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartRetention_DisabledWithoutDays(t *testing.T) {
	for _, days := range []int{0, -1} {
		r := startRetention("api_calls", days, func(context.Context, time.Time) (int64, error) {
			t.Fatal("prune must not run when retention is disabled")
			return 0, nil
		})
		assert.Nil(t, r)
		r.stop()
	}
}

func TestStartRetention_SweepsImmediately(t *testing.T) {
	cutoffs := make(chan time.Time, 1)
	start := time.Now()

	r := startRetention("api_calls", 7, func(_ context.Context, cutoff time.Time) (int64, error) {
		select {
		case cutoffs <- cutoff:
		default:
		}
		return 3, nil
	})
	require.NotNil(t, r)
	defer r.stop()

	select {
	case cutoff := <-cutoffs:
		want := start.UTC().AddDate(0, 0, -7)
		assert.WithinDuration(t, want, cutoff, time.Minute)
		assert.Equal(t, time.UTC, cutoff.Location())
	case <-time.After(5 * time.Second):
		t.Fatal("first sweep did not run")
	}
}

func TestRetention_StopWaitsForSweep(t *testing.T) {
	entered := make(chan struct{})
	var finished bool

	r := startRetention("api_calls", 1, func(ctx context.Context, _ time.Time) (int64, error) {
		close(entered)
		<-ctx.Done()
		finished = true
		return 0, ctx.Err()
	})
	<-entered

	r.stop()
	assert.True(t, finished)

	// second stop is a no-op
	r.stop()
}

func TestRetention_SweepSurvivesPruneErrors(t *testing.T) {
	calls := 0
	r := &retention{
		measurement: "api_calls",
		keep:        24 * time.Hour,
		prune: func(context.Context, time.Time) (int64, error) {
			calls++
			return 0, errors.New("table is locked")
		},
	}

	r.sweep(context.Background())
	r.sweep(context.Background())
	assert.Equal(t, 2, calls)
}

func TestRetention_Cutoff(t *testing.T) {
	r := &retention{keep: 30 * 24 * time.Hour}
	now := time.Date(2024, 3, 31, 12, 0, 0, 0, time.FixedZone("CET", 3600))

	assert.Equal(t, time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC), r.cutoff(now))
}
