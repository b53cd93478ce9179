package responselog

import (
	"bufio"
	"bytes"
	"io"
	"net"
	"net/http"
	"sort"
)

// requestView adapts *http.Request to RequestView.
type requestView struct {
	req  *http.Request
	body []byte
}

func newRequestView(req *http.Request, body []byte) *requestView {
	return &requestView{req: req, body: body}
}

func (v *requestView) Method() string { return v.req.Method }

func (v *requestView) Path() string { return v.req.URL.Path }

// FullPath always carries the "?" separator, even for an empty query, so that
// records match those written by other deployments sharing the measurement.
func (v *requestView) FullPath() string { return v.req.URL.Path + "?" + v.req.URL.RawQuery }

func (v *requestView) RawQuery() []byte { return []byte(v.req.URL.RawQuery) }

func (v *requestView) Body() []byte { return v.body }

func (v *requestView) ContentType() string { return v.req.Header.Get("Content-Type") }

// RemoteAddr returns the peer IP without the port.
func (v *requestView) RemoteAddr() string {
	host, _, err := net.SplitHostPort(v.req.RemoteAddr)
	if err != nil {
		return v.req.RemoteAddr
	}
	return host
}

// Headers lists Host first (net/http moves it out of the header map), then
// every header value in name order.
func (v *requestView) Headers() []HeaderField {
	fields := make([]HeaderField, 0, len(v.req.Header)+1)
	if v.req.Host != "" {
		fields = append(fields, HeaderField{Name: "Host", Value: v.req.Host})
	}

	names := make([]string, 0, len(v.req.Header))
	for name := range v.req.Header {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		for _, value := range v.req.Header[name] {
			fields = append(fields, HeaderField{Name: name, Value: value})
		}
	}
	return fields
}

// captureRequestBody reads the whole request body and puts an equivalent
// reader back so the handler sees the same bytes. On a read error the handler
// gets the same error after the bytes that were read, and nil is returned.
func captureRequestBody(req *http.Request) []byte {
	if req.Body == nil || req.Body == http.NoBody {
		return nil
	}

	data, err := io.ReadAll(req.Body)
	if err != nil {
		req.Body = io.NopCloser(io.MultiReader(bytes.NewReader(data), errReader{err: err}))
		return nil
	}
	req.Body = io.NopCloser(bytes.NewReader(data))
	return data
}

type errReader struct {
	err error
}

func (r errReader) Read(_ []byte) (int, error) {
	return 0, r.err
}

// responseCapture wraps http.ResponseWriter to capture the status and body.
// It implements http.Flusher and http.Hijacker by delegating to the underlying
// ResponseWriter if it supports those interfaces.
type responseCapture struct {
	http.ResponseWriter
	body        bytes.Buffer
	status      int
	wroteHeader bool
	hijacked    bool
}

func newResponseCapture(w http.ResponseWriter) *responseCapture {
	return &responseCapture{ResponseWriter: w, status: http.StatusOK}
}

func (r *responseCapture) WriteHeader(code int) {
	// 1xx informational headers (except 101) precede the final status
	informational := code >= 100 && code < 200 && code != http.StatusSwitchingProtocols
	if !r.wroteHeader && !informational {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseCapture) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.wroteHeader = true
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

// Flush implements http.Flusher. It delegates to the underlying ResponseWriter
// if it implements http.Flusher, otherwise it's a no-op.
func (r *responseCapture) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Hijack implements http.Hijacker. After a successful hijack the response body
// is no longer observable and is reported as unavailable.
func (r *responseCapture) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	conn, rw, err := hijacker.Hijack()
	if err == nil {
		r.hijacked = true
	}
	return conn, rw, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *responseCapture) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// StatusCode implements ResponseView.
func (r *responseCapture) StatusCode() int {
	return r.status
}

// ContentType implements ResponseView. When the handler did not declare a
// content type, the one net/http would sniff from the body is reported.
func (r *responseCapture) ContentType() string {
	if ct := r.Header().Get("Content-Type"); ct != "" {
		return ct
	}
	if r.body.Len() > 0 {
		return http.DetectContentType(r.body.Bytes())
	}
	return ""
}

// Body implements ResponseView. Encoded bodies (gzip, deflate, br) are decoded.
func (r *responseCapture) Body() ([]byte, bool) {
	if r.hijacked {
		return nil, false
	}
	body := r.body.Bytes()
	if encoding := r.Header().Get("Content-Encoding"); encoding != "" {
		if decoded, ok := decompressBody(body, encoding); ok {
			body = decoded
		}
	}
	return body, true
}
