package responselog

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"encoding/json"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/andybalholm/brotli"
	"golang.org/x/net/http/httpguts"
)

// HeaderField is a single request header occurrence, in arrival order.
type HeaderField struct {
	Name  string
	Value string
}

// NormalizeRequestBody returns the request payload as stored in the log.
// JSON bodies are compacted; a JSON body that fails to parse yields "".
// Other bodies are returned as text, or "" when they are not valid UTF-8.
func NormalizeRequestBody(raw []byte, contentType string) string {
	if isJSONContentType(contentType) {
		compacted, ok := compactJSON(raw)
		if !ok {
			return ""
		}
		return compacted
	}
	return decodeText(raw)
}

// NormalizeResponseBody returns the response body as stored in the log.
// available is false when the body could not be captured; the result is then "".
// JSON bodies are compacted; a JSON body that fails to parse is kept as raw text.
// Other bodies are returned as text, or "" when they are not valid UTF-8.
func NormalizeResponseBody(raw []byte, available bool, contentType string) string {
	if !available {
		return ""
	}
	if isJSONContentType(contentType) {
		if compacted, ok := compactJSON(raw); ok {
			return compacted
		}
	}
	return decodeText(raw)
}

// NormalizeHeaders serializes header pairs as a compact JSON object.
// Pairs with an invalid name or value are dropped; a repeated name keeps its
// last value.
func NormalizeHeaders(pairs []HeaderField) string {
	headers := make(map[string]string, len(pairs))
	for _, p := range pairs {
		if !httpguts.ValidHeaderFieldName(p.Name) || !httpguts.ValidHeaderFieldValue(p.Value) {
			continue
		}
		headers[p.Name] = p.Value
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(headers); err != nil {
		return ""
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

// NormalizeQueryString returns the raw query component, or "" when it is not valid UTF-8.
func NormalizeQueryString(raw []byte) string {
	return decodeText(raw)
}

// isJSONContentType matches the declared type exactly. Parameters or a
// different case select the text branch.
func isJSONContentType(contentType string) bool {
	return contentType == mimeApplicationJSON
}

// compactJSON removes insignificant whitespace, keeping key order and number
// formatting as sent.
func compactJSON(raw []byte) (string, bool) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return "", false
	}
	if !utf8.Valid(buf.Bytes()) {
		return "", false
	}
	return buf.String(), true
}

func decodeText(raw []byte) string {
	if !utf8.Valid(raw) {
		return ""
	}
	return string(raw)
}

// decompressBody attempts to decompress the response body based on Content-Encoding.
// Returns original body unchanged if no decompression needed or if decompression fails.
// Supports gzip, deflate, and brotli (br) encodings.
func decompressBody(body []byte, contentEncoding string) ([]byte, bool) {
	if len(body) == 0 || contentEncoding == "" {
		return body, false
	}

	// "gzip, br" lists encodings in the order they were applied; only single
	// encodings are undone.
	if strings.Contains(contentEncoding, ",") {
		return body, false
	}
	encoding := strings.ToLower(strings.TrimSpace(contentEncoding))

	var reader io.ReadCloser
	var err error

	switch encoding {
	case "gzip", "x-gzip":
		reader, err = gzip.NewReader(bytes.NewReader(body))
	case "deflate":
		reader = flate.NewReader(bytes.NewReader(body))
	case "br":
		reader = io.NopCloser(brotli.NewReader(bytes.NewReader(body)))
	default:
		return body, false
	}

	if err != nil {
		return body, false
	}
	defer reader.Close()

	decompressed, err := io.ReadAll(io.LimitReader(reader, MaxDecompressedSize))
	if err != nil {
		return body, false
	}

	return decompressed, true
}
