package pagination

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	// DefaultLimit applies when a list endpoint does not pick its own default.
	DefaultLimit = 30
	// MaxLimit caps the page size for every list endpoint.
	MaxLimit = 100

	defaultSortField = "created_at"
)

// ErrInvalidSort is returned when sort names a field outside the allow-list.
var ErrInvalidSort = errors.New("pagination: invalid sort")

// Order is a single order-by clause.
type Order struct {
	Field string
	Desc  bool
}

// Params is an offset page request.
type Params struct {
	Page  int
	Limit int
	Sort  Order
}

// Offset is the number of documents skipped before the page starts.
func (p Params) Offset() int {
	if p.Page <= 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit
}

// Options describe what a list endpoint accepts.
type Options struct {
	DefaultLimit int
	// SortFields maps the public sort names to document fields.
	SortFields  map[string]string
	DefaultSort Order
}

// Parse reads page, limit and sort. Out of range page and limit values are clamped rather than
// rejected; sort accepts "field" or "-field" where field is in opts.SortFields.
func Parse(values url.Values, opts Options) (Params, error) {
	if values == nil {
		values = url.Values{}
	}
	defaultLimit := opts.DefaultLimit
	if defaultLimit <= 0 || defaultLimit > MaxLimit {
		defaultLimit = DefaultLimit
	}

	params := Params{
		Page:  clamp(atoiOr(values.Get("page"), 1), 1, 0),
		Limit: clamp(atoiOr(values.Get("limit"), defaultLimit), 1, MaxLimit),
		Sort:  opts.DefaultSort,
	}
	if params.Sort.Field == "" {
		params.Sort = Order{Field: defaultSortField, Desc: true}
	}

	raw := strings.TrimSpace(values.Get("sort"))
	if raw == "" {
		return params, nil
	}
	desc := strings.HasPrefix(raw, "-")
	name := strings.TrimPrefix(raw, "-")
	field, ok := opts.SortFields[name]
	if !ok {
		return Params{}, fmt.Errorf("%w: %q", ErrInvalidSort, name)
	}
	params.Sort = Order{Field: field, Desc: desc}
	return params, nil
}

func atoiOr(value string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if hi > 0 && n > hi {
		return hi
	}
	return n
}
