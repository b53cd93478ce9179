package responselog

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/atomic"
)

// ErrorHandler receives the error of a failed commit.
type ErrorHandler func(err error)

// Middleware runs the response logging pipeline around HTTP handlers.
// One Middleware holds the configuration of one application; its error
// handler is not shared with other instances.
type Middleware struct {
	sink     Sink
	schema   *Schema
	config   Config
	filter   StatusFilter
	recorder atomic.Pointer[EventRecorder]
	onError  atomic.Pointer[ErrorHandler]
}

// NewMiddleware creates a Middleware committing records to sink.
// The measurement schema and the status filter are built once here.
func NewMiddleware(sink Sink, cfg Config) *Middleware {
	m := &Middleware{
		sink:   sink,
		schema: NewSchema(cfg.Measurement),
		config: cfg,
		filter: NewStatusFilter(cfg.StatusCodes),
	}
	m.SetEventRecorder(nil)
	return m
}

// SetErrorHandler registers the callback invoked when a commit fails.
// The last registration wins; nil removes the handler. Without a handler,
// commit errors are discarded.
func (m *Middleware) SetErrorHandler(fn ErrorHandler) {
	if fn == nil {
		m.onError.Store(nil)
		return
	}
	m.onError.Store(&fn)
}

// SetEventRecorder registers a recorder for pipeline outcomes. It may be
// called while requests are served; nil restores the no-op recorder.
func (m *Middleware) SetEventRecorder(r EventRecorder) {
	if r == nil {
		r = &NopEventRecorder{}
	}
	m.recorder.Store(&r)
}

func (m *Middleware) eventRecorder() EventRecorder {
	return *m.recorder.Load()
}

// Schema returns the measurement schema shared by all requests.
func (m *Middleware) Schema() *Schema {
	return m.schema
}

// Config returns the middleware configuration
func (m *Middleware) Config() Config {
	return m.config
}

// Log runs the pipeline for one completed request: build, filter, commit.
// It never returns an error; commit failures go to the error handler.
func (m *Middleware) Log(ctx context.Context, req RequestView, resp ResponseView, start time.Time) {
	record := Build(req, resp, start, m.config.Namespace)

	event := Event{
		Measurement: m.schema.Measurement,
		Method:      record.Method,
		StatusCode:  record.StatusCode,
	}

	if !m.filter.ShouldLog(record.StatusCode) {
		event.Outcome = OutcomeDropped
		m.eventRecorder().Record(ctx, event)
		return
	}

	commitStart := time.Now()
	err := m.commit(ctx, record)
	event.CommitDuration = time.Since(commitStart)

	if err != nil {
		event.Outcome = OutcomeFailed
		m.eventRecorder().Record(ctx, event)
		m.notify(err)
		return
	}

	event.Outcome = OutcomeCommitted
	m.eventRecorder().Record(ctx, event)
}

// commit writes the record once. The request's cancellation does not apply:
// the response is already formed when the pipeline runs.
func (m *Middleware) commit(ctx context.Context, record *Record) error {
	ctx = context.WithoutCancel(ctx)
	if m.config.CommitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.config.CommitTimeout)
		defer cancel()
	}
	return m.sink.Commit(ctx, m.schema, record)
}

func (m *Middleware) notify(err error) {
	if fn := m.onError.Load(); fn != nil {
		(*fn)(err)
	}
}

// Echo returns the pipeline as an Echo middleware.
// The handler's error is passed to Echo's error handler before logging, so the
// record carries the status the client receives; the error is still returned.
func (m *Middleware) Echo() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := Begin()

			req := c.Request()
			body := captureRequestBody(req)
			req = req.WithContext(WithStartTime(req.Context(), start))
			c.SetRequest(req)

			capture := newResponseCapture(c.Response().Writer)
			c.Response().Writer = capture

			err := next(c)
			if err != nil && !c.Response().Committed {
				c.Error(err)
			}

			m.Log(req.Context(), newRequestView(req, body), capture, start)

			return err
		}
	}
}

// Handler wraps next with the pipeline for plain net/http servers.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := Begin()

		body := captureRequestBody(r)
		r = r.WithContext(WithStartTime(r.Context(), start))

		capture := newResponseCapture(w)
		next.ServeHTTP(capture, r)

		m.Log(r.Context(), newRequestView(r, body), capture, start)
	})
}

// NoopSink discards every record (used when response logging is disabled)
type NoopSink struct{}

// Commit does nothing
func (NoopSink) Commit(_ context.Context, _ *Schema, _ *Record) error { return nil }

// Close does nothing
func (NoopSink) Close() error { return nil }
