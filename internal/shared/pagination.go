package shared

import (
	"net/url"
	"strconv"

	"github.com/mannybatth/carrier-nest-web-sub010/internal/platform/httpx"
)

// DefaultPageLimit applies when the caller supplies no limit.
const DefaultPageLimit = 10

// PageQuery is a limit/offset window.
type PageQuery struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// PageMetadata describes a listing window and its neighbours.
type PageMetadata struct {
	Total         int        `json:"total"`
	CurrentOffset int        `json:"currentOffset"`
	CurrentLimit  int        `json:"currentLimit"`
	Prev          *PageQuery `json:"prev,omitempty"`
	Next          *PageQuery `json:"next,omitempty"`
}

// ParsePageQuery reads limit and offset, which must be supplied together.
func ParsePageQuery(values url.Values) (PageQuery, error) {
	rawLimit, rawOffset := values.Get("limit"), values.Get("offset")
	if rawLimit == "" && rawOffset == "" {
		return PageQuery{Limit: DefaultPageLimit}, nil
	}
	if rawLimit == "" || rawOffset == "" {
		return PageQuery{}, httpx.Validation("Limit and Offset must be set together")
	}
	limit, err := strconv.Atoi(rawLimit)
	if err != nil || limit < 0 {
		return PageQuery{}, httpx.Validation("Invalid limit or offset")
	}
	offset, err := strconv.Atoi(rawOffset)
	if err != nil || offset < 0 {
		return PageQuery{}, httpx.Validation("Invalid limit or offset")
	}
	if limit == 0 {
		limit = DefaultPageLimit
	}
	return PageQuery{Limit: limit, Offset: offset}, nil
}

// NewPageMetadata computes neighbouring windows for total rows.
func NewPageMetadata(total int, page PageQuery) PageMetadata {
	meta := PageMetadata{Total: total, CurrentOffset: page.Offset, CurrentLimit: page.Limit}
	if page.Offset > 0 {
		prev := page.Offset - page.Limit
		if prev < 0 {
			prev = 0
		}
		meta.Prev = &PageQuery{Limit: page.Limit, Offset: prev}
	}
	if page.Offset+page.Limit < total {
		meta.Next = &PageQuery{Limit: page.Limit, Offset: page.Offset + page.Limit}
	}
	return meta
}
