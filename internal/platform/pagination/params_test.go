package pagination

import (
	"errors"
	"net/url"
	"testing"
)

var productOpts = Options{
	DefaultLimit: 50,
	SortFields:   map[string]string{"created_at": "created_at", "name": "name", "price": "base_price"},
}

func TestParseDefaults(t *testing.T) {
	params, err := Parse(nil, productOpts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if params.Page != 1 || params.Limit != 50 {
		t.Fatalf("unexpected defaults %+v", params)
	}
	if params.Sort != (Order{Field: "created_at", Desc: true}) {
		t.Fatalf("unexpected default sort %+v", params.Sort)
	}
	if params.Offset() != 0 {
		t.Fatalf("expected zero offset, got %d", params.Offset())
	}
}

func TestParseClampsPageAndLimit(t *testing.T) {
	cases := []struct {
		query     string
		wantPage  int
		wantLimit int
	}{
		{"page=0&limit=0", 1, 1},
		{"page=-3&limit=500", 1, MaxLimit},
		{"page=abc&limit=xyz", 1, 50},
		{"page=3&limit=20", 3, 20},
	}
	for _, tc := range cases {
		values, _ := url.ParseQuery(tc.query)
		params, err := Parse(values, productOpts)
		if err != nil {
			t.Fatalf("%s: unexpected error %v", tc.query, err)
		}
		if params.Page != tc.wantPage || params.Limit != tc.wantLimit {
			t.Errorf("%s: got page=%d limit=%d", tc.query, params.Page, params.Limit)
		}
	}
}

func TestParseSort(t *testing.T) {
	params, err := Parse(url.Values{"sort": {"price"}, "page": {"2"}, "limit": {"10"}}, productOpts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if params.Sort != (Order{Field: "base_price"}) {
		t.Fatalf("unexpected sort %+v", params.Sort)
	}
	if params.Offset() != 10 {
		t.Fatalf("expected offset 10, got %d", params.Offset())
	}

	params, err = Parse(url.Values{"sort": {"-name"}}, productOpts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if params.Sort != (Order{Field: "name", Desc: true}) {
		t.Fatalf("unexpected sort %+v", params.Sort)
	}
}

func TestParseRejectsUnknownSort(t *testing.T) {
	_, err := Parse(url.Values{"sort": {"-password"}}, productOpts)
	if !errors.Is(err, ErrInvalidSort) {
		t.Fatalf("expected ErrInvalidSort, got %v", err)
	}
}
