package handler

import (
	"net/http"
	"time"

	"support-api/internal/model"
	"support-api/pkg/database"
	"support-api/prometheus"

	"github.com/labstack/echo/v4"
)

// ListUsers returns every account in the directory, paginated (root only)
func ListUsers(c echo.Context) error {
	page, limit, offset := parsePagination(c)

	query := database.GetDB().Model(&model.User{})
	if role := c.QueryParam("role"); role != "" {
		query = query.Where("role = ?", role)
	}
	if term := c.QueryParam("search"); term != "" {
		like := "%" + term + "%"
		query = query.Where("user_id LIKE ? OR name LIKE ? OR email LIKE ?", like, like, like)
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list users"})
	}

	var users []model.User
	if err := query.Preload("Branch").Order("created_at DESC").Offset(offset).Limit(limit).Find(&users).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list users"})
	}

	payload := make([]echo.Map, 0, len(users))
	for i := range users {
		u := &users[i]
		payload = append(payload, echo.Map{
			"id":           u.ID,
			"userId":       u.UserID,
			"username":     strOrNil(u.Username),
			"email":        strOrNil(u.Email),
			"name":         u.Name,
			"phone":        strOrNil(u.Phone),
			"role":         u.Role,
			"isActive":     u.IsActive,
			"branchId":     u.BranchID,
			"branchName":   u.BranchName,
			"branchWaLink": u.BranchWaLink,
			"lastLoginAt":  u.LastLoginAt,
			"createdAt":    u.CreatedAt,
		})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"items":      payload,
		"pagination": paginationMap(page, limit, total),
	})
}
