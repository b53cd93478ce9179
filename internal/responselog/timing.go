package responselog

import (
	"context"
	"time"
)

// Begin returns the current UTC instant. It marks the logical start of a request.
func Begin() time.Time {
	return time.Now().UTC()
}

// WithStartTime stores the request start time in ctx.
func WithStartTime(ctx context.Context, start time.Time) context.Context {
	return context.WithValue(ctx, startTimeKey, start)
}

// StartTime returns the start time stored by WithStartTime.
func StartTime(ctx context.Context) (time.Time, bool) {
	start, ok := ctx.Value(startTimeKey).(time.Time)
	return start, ok
}
