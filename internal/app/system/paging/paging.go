// internal/app/system/paging/paging.go
package paging

import (
	"net/http"
	"strconv"
)

// DefaultLimit is the page size used when a list request does not ask
// for one.
const DefaultLimit = 100

// MaxLimit caps the page size a caller may request.
const MaxLimit = 1000

// Page holds skip/limit pagination parsed from a list request.
type Page struct {
	Skip  int
	Limit int
}

// Parse extracts the "skip" and "limit" query parameters. Missing or
// malformed values fall back to defaults; limit is clamped to MaxLimit
// and skip is never negative.
func Parse(r *http.Request) Page {
	p := Page{Skip: 0, Limit: DefaultLimit}

	if s := r.URL.Query().Get("skip"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n >= 0 {
			p.Skip = n
		}
	}
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			p.Limit = n
		}
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	return p
}
