package common

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

// Page is a 1-based page request.
type Page struct {
	Number  int
	PerPage int
}

func (p Page) Offset() int {
	return (p.Number - 1) * p.PerPage
}

// MaxPage returns how many pages count items fill.
func (p Page) MaxPage(count int64) int64 {
	pageMax := count / int64(p.PerPage)
	if count%int64(p.PerPage) != 0 {
		pageMax++
	}
	return pageMax
}

// ParsePage reads ?page= and falls back to page 1 on anything invalid.
func ParsePage(c *gin.Context, perPage int) Page {
	n, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || n < 1 {
		n = 1
	}
	return Page{Number: n, PerPage: perPage}
}
