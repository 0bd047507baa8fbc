package handler

import (
	"net/http"
	"time"

	"support-api/internal/model"
	"support-api/pkg/database"
	"support-api/prometheus"

	"github.com/labstack/echo/v4"
)

// GetVisitLogs returns directory hit logs, paginated and optionally filtered
// by userId and a time window. Root sees everything; a sub-admin only sees
// hits against their own clients.
func GetVisitLogs(c echo.Context) error {
	page, limit, offset := parsePagination(c)
	role := c.Get("user_role").(string)

	query := database.GetDB().Model(&model.UserHitLog{})
	if role == model.RoleSub {
		subID := c.Get("user_id").(uint)
		query = query.Where("user_id IN (?)", database.GetDB().Model(&model.User{}).
			Select("user_id").
			Where("parent_sub_admin = ?", subID))
	}
	if userID := c.QueryParam("userId"); userID != "" {
		query = query.Where("user_id = ?", userID)
	}
	if from := c.QueryParam("from"); from != "" {
		if t, err := time.Parse(time.RFC3339, from); err == nil {
			query = query.Where("created_at >= ?", t)
		}
	}
	if to := c.QueryParam("to"); to != "" {
		if t, err := time.Parse(time.RFC3339, to); err == nil {
			query = query.Where("created_at <= ?", t)
		}
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load visit logs"})
	}

	var logs []model.UserHitLog
	if err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&logs).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load visit logs"})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"items":      logs,
		"pagination": paginationMap(page, limit, total),
	})
}

// GetRealtimeStats summarizes directory activity over recent windows
func GetRealtimeStats(c echo.Context) error {
	now := time.Now()

	defer prometheus.TrackDBOperation("query")(time.Now())
	var lastHour, last24h, total int64
	db := database.GetDB()
	if err := db.Model(&model.UserHitLog{}).
		Where("created_at >= ?", now.Add(-time.Hour)).
		Count(&lastHour).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load stats"})
	}
	if err := db.Model(&model.UserHitLog{}).
		Where("created_at >= ?", now.Add(-24*time.Hour)).
		Count(&last24h).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load stats"})
	}
	if err := db.Model(&model.UserHitLog{}).Count(&total).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load stats"})
	}

	var activeUsers, activeClients int64
	if err := db.Model(&model.User{}).Where("is_active = ?", true).Count(&activeUsers).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load stats"})
	}
	if err := db.Model(&model.User{}).
		Where("is_active = ? AND role = ?", true, model.RoleClient).
		Count(&activeClients).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load stats"})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"visitsLastHour": lastHour,
		"visitsLast24h":  last24h,
		"visitsTotal":    total,
		"activeAccounts": activeUsers,
		"activeClients":  activeClients,
		"generatedAt":    now,
	})
}
