package pagination

import (
	"fmt"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/ehr/opdflow/pkg/flowmodel"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params holds pagination parameters extracted from a request.
type Params struct {
	Limit  int
	Offset int
}

// FromContext extracts limit/offset from the echo context, clamping the
// limit to MaxLimit.
func FromContext(c echo.Context) Params {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	if offset < 0 {
		offset = 0
	}

	return Params{Limit: limit, Offset: offset}
}

// Response is the list envelope: {"items":[...],"pagination":{...}}.
type Response struct {
	Items      interface{}          `json:"items"`
	Pagination flowmodel.Pagination `json:"pagination"`
}

func NewResponse(items interface{}, total int, p Params) *Response {
	return &Response{
		Items: items,
		Pagination: flowmodel.Pagination{
			Total:   total,
			Limit:   p.Limit,
			Offset:  p.Offset,
			HasMore: p.HasNext(total),
		},
	}
}

// SQL returns the LIMIT and OFFSET clause for SQL queries.
func (p Params) SQL() string {
	return fmt.Sprintf("LIMIT %d OFFSET %d", p.Limit, p.Offset)
}

// HasNext returns true if there are more results after the current page.
func (p Params) HasNext(total int) bool {
	return p.Offset+p.Limit < total
}

// NextOffset returns the offset for the next page.
func (p Params) NextOffset() int {
	return p.Offset + p.Limit
}
