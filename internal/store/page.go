package store

import (
	"net/url"
	"strconv"

	"github.com/xelth-com/riveredgego/internal/apperr"
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// Page is an offset window over a listing.
type Page struct {
	Skip  int `json:"skip"`
	Limit int `json:"limit"`
}

// Normalize clamps the window into the accepted range.
func (p Page) Normalize() Page {
	if p.Skip < 0 {
		p.Skip = 0
	}
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	return p
}

// ParsePage reads skip and limit from query parameters. Values outside
// skip >= 0 and 1 <= limit <= 1000 are rejected.
func ParsePage(q url.Values) (Page, error) {
	p := Page{Limit: DefaultLimit}

	if raw := q.Get("skip"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return Page{}, apperr.Validation("skip must be a non-negative integer")
		}
		p.Skip = v
	}
	if raw := q.Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > MaxLimit {
			return Page{}, apperr.Validation("limit must be between 1 and %d", MaxLimit)
		}
		p.Limit = v
	}
	return p, nil
}
