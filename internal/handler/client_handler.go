package handler

import (
	"net/http"
	"time"

	"support-api/internal/model"
	"support-api/pkg/database"
	"support-api/pkg/logger"
	"support-api/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// CreateClient registers a new client under the current sub-admin. The client
// inherits the sub-admin's branch snapshot at creation time.
func CreateClient(c echo.Context) error {
	log := logger.FromContext(c)
	subID := c.Get("user_id").(uint)

	var req struct {
		UserID string `json:"userId"`
		Name   string `json:"name"`
		Phone  string `json:"phone"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.UserID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "userId is required"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var parent model.User
	if result := database.GetDB().First(&parent, subID); result.Error != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "client creation failed"})
	}

	var existing model.User
	if result := database.GetDB().Where("user_id = ?", req.UserID).First(&existing); result.Error == nil {
		return c.JSON(http.StatusConflict, echo.Map{"error": "userId already in use"})
	}

	client, err := model.NewClient(req.UserID, req.Name, req.Phone, &parent)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	if result := database.GetDB().Create(client); result.Error != nil {
		log.Error("Failed to create client", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "client creation failed"})
	}

	log.Info("Client created",
		zap.Uint("id", client.ID),
		zap.String("user_id", client.UserID),
		zap.Uint("parent", subID))

	return c.JSON(http.StatusCreated, clientPayload(client))
}

// ListClients returns clients scoped by role: sub-admins see their own,
// root sees everything. Supports a free-text search over userId and name.
func ListClients(c echo.Context) error {
	userID := c.Get("user_id").(uint)
	role := c.Get("user_role").(string)
	page, limit, offset := parsePagination(c)

	query := database.GetDB().Model(&model.User{}).Where("role = ?", model.RoleClient)
	if role != model.RoleRoot {
		query = query.Where("parent_sub_admin = ?", userID)
	} else if subAdminID := c.QueryParam("subAdminId"); subAdminID != "" {
		query = query.Where("parent_sub_admin = ?", subAdminID)
	}
	if term := c.QueryParam("search"); term != "" {
		like := "%" + term + "%"
		query = query.Where("user_id LIKE ? OR name LIKE ?", like, like)
	}
	if active := c.QueryParam("isActive"); active == "true" {
		query = query.Where("is_active = ?", true)
	} else if active == "false" {
		query = query.Where("is_active = ?", false)
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list clients"})
	}

	var items []model.User
	if err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&items).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list clients"})
	}

	payload := make([]echo.Map, 0, len(items))
	for i := range items {
		payload = append(payload, clientPayload(&items[i]))
	}

	return c.JSON(http.StatusOK, echo.Map{
		"items":      payload,
		"pagination": paginationMap(page, limit, total),
	})
}

// GetClient returns a single owned client. Ownership is checked by the
// VerifyClientOwnership middleware, which also loads the record.
func GetClient(c echo.Context) error {
	client := c.Get("client").(*model.User)
	return c.JSON(http.StatusOK, clientPayload(client))
}

// UpdateClient modifies an owned client's profile fields
func UpdateClient(c echo.Context) error {
	client := c.Get("client").(*model.User)

	var req struct {
		Name     *string `json:"name"`
		Phone    *string `json:"phone"`
		IsActive *bool   `json:"isActive"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	if req.Name != nil {
		client.Name = *req.Name
	}
	if req.Phone != nil {
		if *req.Phone == "" {
			client.Phone = nil
		} else {
			normalized := model.NormalizePhone(*req.Phone)
			client.Phone = &normalized
		}
	}
	if req.IsActive != nil {
		client.IsActive = *req.IsActive
	}

	defer prometheus.TrackDBOperation("update")(time.Now())
	if err := database.GetDB().Save(client).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "client update failed"})
	}

	return c.JSON(http.StatusOK, clientPayload(client))
}

// DeleteClient deactivates an owned client rather than removing the row, so
// its hit history and directory entry stay auditable.
func DeleteClient(c echo.Context) error {
	client := c.Get("client").(*model.User)

	defer prometheus.TrackDBOperation("update")(time.Now())
	updates := map[string]interface{}{
		"is_active":     false,
		"token_version": gorm.Expr("token_version + 1"),
	}
	if err := database.GetDB().Model(client).Updates(updates).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "client deactivation failed"})
	}

	return c.JSON(http.StatusOK, echo.Map{"message": "client deactivated"})
}

// ResetClientPassword sets a new password on an owned client and invalidates
// any outstanding sessions.
func ResetClientPassword(c echo.Context) error {
	log := logger.FromContext(c)
	client := c.Get("client").(*model.User)

	var req struct {
		NewPassword string `json:"newPassword"`
	}
	if err := c.Bind(&req); err != nil || req.NewPassword == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "newPassword is required"})
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcryptCost)
	if err != nil {
		log.Error("Failed to hash password", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "password reset failed"})
	}

	defer prometheus.TrackDBOperation("update")(time.Now())
	updates := map[string]interface{}{
		"password_hash": string(hash),
		"token_version": gorm.Expr("token_version + 1"),
	}
	if err := database.GetDB().Model(client).Updates(updates).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "password reset failed"})
	}

	prometheus.RecordAuthOperation("client_password_reset")
	return c.JSON(http.StatusOK, echo.Map{"message": "password reset"})
}

// GetClientStats summarizes the current sub-admin's client roster
func GetClientStats(c echo.Context) error {
	subID := c.Get("user_id").(uint)

	defer prometheus.TrackDBOperation("query")(time.Now())
	var total, active int64
	if err := database.GetDB().Model(&model.User{}).
		Where("role = ? AND parent_sub_admin = ?", model.RoleClient, subID).
		Count(&total).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load stats"})
	}
	if err := database.GetDB().Model(&model.User{}).
		Where("role = ? AND parent_sub_admin = ? AND is_active = ?", model.RoleClient, subID, true).
		Count(&active).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load stats"})
	}

	since := time.Now().AddDate(0, 0, -30)
	var recentHits int64
	if err := database.GetDB().Model(&model.UserHitLog{}).
		Joins("JOIN users ON users.user_id = user_hit_logs.user_id").
		Where("users.parent_sub_admin = ? AND user_hit_logs.created_at >= ?", subID, since).
		Count(&recentHits).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load stats"})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"totalClients":    total,
		"activeClients":   active,
		"inactiveClients": total - active,
		"hitsLast30Days":  recentHits,
	})
}

func clientPayload(u *model.User) echo.Map {
	return echo.Map{
		"id":           u.ID,
		"userId":       u.UserID,
		"name":         u.Name,
		"phone":        strOrNil(u.Phone),
		"role":         u.Role,
		"isActive":     u.IsActive,
		"branchId":     u.BranchID,
		"branchName":   u.BranchName,
		"branchWaLink": u.BranchWaLink,
		"createdAt":    u.CreatedAt,
		"updatedAt":    u.UpdatedAt,
	}
}
