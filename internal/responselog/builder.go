package responselog

import (
	"strings"
	"time"
)

// RequestView exposes the parts of an inbound request that are logged.
type RequestView interface {
	Method() string
	// Path excludes the query string.
	Path() string
	// FullPath is the path followed by "?" and the raw query.
	FullPath() string
	RawQuery() []byte
	// Headers returns header occurrences in arrival order.
	Headers() []HeaderField
	RemoteAddr() string
	Body() []byte
	ContentType() string
}

// ResponseView exposes the parts of a finalized response that are logged.
type ResponseView interface {
	StatusCode() int
	ContentType() string
	// Body returns the response body. ok is false when the body could not be
	// captured as bytes, for example after the connection was hijacked.
	Body() (body []byte, ok bool)
}

// Build assembles the record for one request. It never fails: any part that
// cannot be normalized is stored as "".
func Build(req RequestView, resp ResponseView, start time.Time, namespace string) *Record {
	body, ok := resp.Body()
	responseContentType := resp.ContentType()

	return &Record{
		Timestamp:           start.UTC(),
		Namespace:           namespace,
		Path:                req.Path(),
		Method:              strings.ToUpper(req.Method()),
		RemoteAddr:          req.RemoteAddr(),
		Headers:             NormalizeHeaders(req.Headers()),
		FullPath:            req.FullPath(),
		QueryString:         NormalizeQueryString(req.RawQuery()),
		Payload:             NormalizeRequestBody(req.Body(), req.ContentType()),
		StatusCode:          resp.StatusCode(),
		Response:            NormalizeResponseBody(body, ok, responseContentType),
		ResponseContentType: responseContentType,
		ResponseTime:        time.Since(start),
	}
}
