package pagination

import (
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params is a limit/offset window over an ordered result set.
type Params struct {
	Limit  int
	Offset int
}

// FromContext reads ?limit= and ?offset=. Missing, malformed or
// non-positive limits fall back to DefaultLimit; limits above MaxLimit are
// clamped. Negative offsets become 0.
func FromContext(c echo.Context) Params {
	limit, err := strconv.Atoi(c.QueryParam("limit"))
	if err != nil || limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	offset, err := strconv.Atoi(c.QueryParam("offset"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return Params{Limit: limit, Offset: offset}
}

func (p Params) HasNext(total int) bool { return p.Offset+p.Limit < total }

func (p Params) HasPrevious() bool { return p.Offset > 0 }

// Response is the list envelope. Next and Previous repeat the request's
// query string with a shifted offset and are empty at the ends.
type Response[T any] struct {
	Count    int    `json:"count"`
	Next     string `json:"next,omitempty"`
	Previous string `json:"previous,omitempty"`
	Limit    int    `json:"limit"`
	Offset   int    `json:"offset"`
	Results  []T    `json:"results"`
}

func NewResponse[T any](c echo.Context, results []T, total int, p Params) *Response[T] {
	if results == nil {
		results = []T{}
	}
	resp := &Response[T]{Count: total, Limit: p.Limit, Offset: p.Offset, Results: results}
	if p.HasNext(total) {
		resp.Next = pageURL(c, p.Limit, p.Offset+p.Limit)
	}
	if p.HasPrevious() {
		prev := p.Offset - p.Limit
		if prev < 0 {
			prev = 0
		}
		resp.Previous = pageURL(c, p.Limit, prev)
	}
	return resp
}

func pageURL(c echo.Context, limit, offset int) string {
	u := *c.Request().URL
	q := u.Query()
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	u.RawQuery = q.Encode()
	return (&url.URL{Path: u.Path, RawQuery: u.RawQuery}).String()
}
