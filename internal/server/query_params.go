package server

import (
	"github.com/gin-gonic/gin"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

func parseListQuery(c *gin.Context) (limit, offset int, err error) {
	var query struct {
		Limit  int `form:"limit"`
		Offset int `form:"offset"`
	}
	if bindErr := c.ShouldBindQuery(&query); bindErr != nil {
		return 0, 0, invalidRequestError()
	}

	limit = query.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset = query.Offset
	if offset < 0 {
		offset = 0
	}
	return limit, offset, nil
}
