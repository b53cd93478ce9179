package responselog

// StatusFilter decides which completed requests are logged.
// The zero value logs everything.
type StatusFilter struct {
	allow map[int]struct{}
}

// NewStatusFilter builds a filter from an allowlist of status codes.
// An empty allowlist logs every status code.
func NewStatusFilter(codes []int) StatusFilter {
	if len(codes) == 0 {
		return StatusFilter{}
	}
	allow := make(map[int]struct{}, len(codes))
	for _, code := range codes {
		allow[code] = struct{}{}
	}
	return StatusFilter{allow: allow}
}

// ShouldLog reports whether a response with statusCode should be logged.
func (f StatusFilter) ShouldLog(statusCode int) bool {
	if len(f.allow) == 0 {
		return true
	}
	_, ok := f.allow[statusCode]
	return ok
}
