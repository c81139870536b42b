package httpapi

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

type pageParams struct {
	Page     int
	PageSize int
}

func (p pageParams) limit() int  { return p.PageSize }
func (p pageParams) offset() int { return (p.Page - 1) * p.PageSize }

// parsePage reads 1-based ?page and ?pageSize. Invalid values fall back to defaults.
func parsePage(c *gin.Context) pageParams {
	p := pageParams{Page: 1, PageSize: defaultPageSize}
	if v, err := strconv.Atoi(c.Query("page")); err == nil && v > 0 {
		p.Page = v
	}
	if v, err := strconv.Atoi(c.Query("pageSize")); err == nil && v > 0 {
		p.PageSize = min(v, maxPageSize)
	}
	return p
}

// pagination renders the response block; totalKey names the list-specific total.
func pagination(p pageParams, total int, totalKey string) gin.H {
	totalPages := 0
	if total > 0 {
		totalPages = (total + p.PageSize - 1) / p.PageSize
	}
	return gin.H{
		"page":       p.Page,
		"pageSize":   p.PageSize,
		"totalPages": totalPages,
		totalKey:     total,
	}
}
