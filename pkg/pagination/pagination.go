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

type Params struct {
	Page  int
	Limit int
}

// Parse reads page and limit from the query string, clamping limit to MaxLimit.
func Parse(c *gin.Context) Params {
	page, _ := strconv.Atoi(c.DefaultQuery("page", strconv.Itoa(DefaultPage)))
	limit := Limit(c, "limit", DefaultLimit, MaxLimit)
	if page < 1 {
		page = DefaultPage
	}
	return Params{Page: page, Limit: limit}
}

// Limit reads a positive integer query parameter, falling back to def when it
// is missing or invalid and capping it at max.
func Limit(c *gin.Context, key string, def, max int) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil || n < MinLimit {
		return def
	}
	if n > max {
		return max
	}
	return n
}

// Bool reads an optional boolean query parameter. A missing or unparseable
// value yields nil.
func Bool(c *gin.Context, key string) *bool {
	raw, ok := c.GetQuery(key)
	if !ok {
		return nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return nil
	}
	return &b
}
