package query

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/atlekbai/crud_registry/internal/schema"
)

const (
	DefaultPageNo   = 1
	DefaultPageSize = 20
	MaxPageSize     = 200
	DefaultSortBy   = schema.IDField
)

// PageParams selects one page of a list query. PageNo is 1-based.
type PageParams struct {
	PageNo   int
	PageSize int
	SortBy   string
	Desc     bool
}

func DefaultPage() PageParams {
	return PageParams{PageNo: DefaultPageNo, PageSize: DefaultPageSize, SortBy: DefaultSortBy}
}

// Offset is the number of rows skipped before the page.
func (p PageParams) Offset() int {
	return (p.PageNo - 1) * p.PageSize
}

// NewPageParams validates raw paging input against obj. Zero values and an
// empty sortBy take the defaults; any sortDir other than ASC sorts descending.
func NewPageParams(pageNo, pageSize int, sortBy, sortDir string, obj *schema.ObjectDef) (PageParams, error) {
	p := DefaultPage()

	switch {
	case pageNo < 0:
		return p, fmt.Errorf("invalid pageNo %d", pageNo)
	case pageNo > 0:
		p.PageNo = pageNo
	}

	switch {
	case pageSize < 0:
		return p, fmt.Errorf("invalid pageSize %d", pageSize)
	case pageSize > MaxPageSize:
		p.PageSize = MaxPageSize
	case pageSize > 0:
		p.PageSize = pageSize
	}

	if sortBy != "" {
		if obj.Field(sortBy) == nil {
			return p, fmt.Errorf("unknown field %q in sortBy", sortBy)
		}
		p.SortBy = sortBy
	}

	if sortDir != "" && !strings.EqualFold(sortDir, "ASC") {
		p.Desc = true
	}
	return p, nil
}

// ParsePageParams reads ?pageNo=&pageSize=&sortBy=&sortDir= from a request query.
func ParsePageParams(q url.Values, obj *schema.ObjectDef) (PageParams, error) {
	pageNo, err := atoiParam(q, "pageNo")
	if err != nil {
		return DefaultPage(), err
	}
	pageSize, err := atoiParam(q, "pageSize")
	if err != nil {
		return DefaultPage(), err
	}
	return NewPageParams(pageNo, pageSize, q.Get("sortBy"), q.Get("sortDir"), obj)
}

func atoiParam(q url.Values, key string) (int, error) {
	raw := q.Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid %s %q", key, raw)
	}
	return n, nil
}

// TotalPages is the number of pages of size needed to hold total items.
func TotalPages(total int64, size int) int64 {
	if size <= 0 || total <= 0 {
		return 0
	}
	return (total + int64(size) - 1) / int64(size)
}
