package pagination

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 100
	MinLimit     = 1
)

// Params holds validated pagination parameters. A zero Limit means the
// caller asked for no paging.
type Params struct {
	Page           int
	Limit          int
	Offset         int
	IncludeDeleted bool
}

// Parse extracts and validates page/limit from query parameters. Paging is
// optional: without page and limit the whole list is returned.
func Parse(c *gin.Context) Params {
	includeDeleted, _ := strconv.ParseBool(c.DefaultQuery("include_deleted", "false"))
	_, hasPage := c.GetQuery("page")
	_, hasLimit := c.GetQuery("limit")
	if !hasPage && !hasLimit {
		return Params{IncludeDeleted: includeDeleted}
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", strconv.Itoa(DefaultPage)))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(DefaultLimit)))

	if page < 1 {
		page = DefaultPage
	}
	if limit < MinLimit {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	return Params{
		Page:           page,
		Limit:          limit,
		Offset:         (page - 1) * limit,
		IncludeDeleted: includeDeleted,
	}
}
