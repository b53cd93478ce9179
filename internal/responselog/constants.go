package responselog

// Defaults for the response log measurement.
const (
	// DefaultMeasurement is used when no measurement name is configured.
	DefaultMeasurement = "response_log"

	// MaxDecompressedSize caps how much of a compressed response body is inflated
	// before normalization (compression bomb protection).
	MaxDecompressedSize = 8 * 1024 * 1024

	// mimeApplicationJSON is the media type that triggers JSON canonicalization.
	mimeApplicationJSON = "application/json"
)

// Context keys for request-scoped pipeline state.
type contextKey string

const (
	// startTimeKey is the context key for the request start time.
	startTimeKey contextKey = "responselog_start_time"
)
