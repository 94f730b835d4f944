package utils

import (
	"math"
	"strconv"

	"github.com/gofiber/fiber/v2"
)

// ParsePage reads ?page= and ?pageSize= with the defaults used by every list
// endpoint (page 1, 10 per page, at most 50).
func ParsePage(c *fiber.Ctx) (page, size int) {
	page, _ = strconv.Atoi(c.Query("page", "1"))
	size, _ = strconv.Atoi(c.Query("pageSize", "10"))
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 50 {
		size = 10
	}
	return
}

// Offset converts a 1-based page to a row offset.
func Offset(page, size int) int { return (page - 1) * size }

// Pages returns the page count for total rows.
func Pages(total int64, size int) int {
	if size <= 0 {
		return 0
	}
	return int(math.Ceil(float64(total) / float64(size)))
}
