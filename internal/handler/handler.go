package handler

import (
	"strconv"

	"support-api/internal/otp"
	"support-api/internal/search"
	"support-api/pkg/config"
	"support-api/pkg/mailer"

	"github.com/labstack/echo/v4"
)

var (
	cfg        *config.Config
	otpService *otp.Service
	resolver   *search.Resolver
	mail       *mailer.Mailer
)

// Initialize wires the handler package with its collaborators
func Initialize(c *config.Config, svc *otp.Service, r *search.Resolver, m *mailer.Mailer) {
	cfg = c
	otpService = svc
	resolver = r
	mail = m
}

// parsePagination reads page/limit query parameters with the usual bounds
func parsePagination(c echo.Context) (page, limit, offset int) {
	limit, _ = strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	page, _ = strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}
	return page, limit, (page - 1) * limit
}

func totalPages(total int64, limit int) int64 {
	pages := total / int64(limit)
	if total%int64(limit) != 0 {
		pages++
	}
	return pages
}

func paginationMap(page, limit int, total int64) echo.Map {
	return echo.Map{
		"page":  page,
		"limit": limit,
		"total": total,
		"pages": totalPages(total, limit),
	}
}

func strOrNil(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}
