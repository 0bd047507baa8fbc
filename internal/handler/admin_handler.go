package handler

import (
	"net/http"
	"strconv"
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

// findBranchByAnyID accepts either the numeric primary key or the business
// branch code (e.g. "ROOT-BR")
func findBranchByAnyID(idOrCode string) *model.Branch {
	if idOrCode == "" {
		return nil
	}
	var branch model.Branch
	if id, err := strconv.ParseUint(idOrCode, 10, 64); err == nil {
		if result := database.GetDB().First(&branch, uint(id)); result.Error == nil {
			return &branch
		}
	}
	if result := database.GetDB().Where("branch_id = ?", idOrCode).First(&branch); result.Error == nil {
		return &branch
	}
	return nil
}

// CreateSubAdmin creates a branch-scoped sub-admin (root only)
func CreateSubAdmin(c echo.Context) error {
	log := logger.FromContext(c)
	rootID := c.Get("user_id").(uint)

	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		UserID   string `json:"userId"`
		Username string `json:"username"`
		BranchID string `json:"branchId"`
		WaLink   string `json:"waLink"`
		IsActive *bool  `json:"isActive"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.Password == "" || req.UserID == "" || req.Username == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "password, userId and username are required"})
	}

	normalizedUsername := model.NormalizeIdentifier(req.Username)

	defer prometheus.TrackDBOperation("query")(time.Now())
	var existing model.User
	if req.Email != "" {
		normalizedEmail := model.NormalizeIdentifier(req.Email)
		if result := database.GetDB().Where("email = ?", normalizedEmail).First(&existing); result.Error == nil {
			return c.JSON(http.StatusConflict, echo.Map{"error": "email already in use"})
		}
	}
	if result := database.GetDB().Where("username = ?", normalizedUsername).First(&existing); result.Error == nil {
		return c.JSON(http.StatusConflict, echo.Map{"error": "username already in use"})
	}
	if result := database.GetDB().Where("user_id = ?", req.UserID).First(&existing); result.Error == nil {
		return c.JSON(http.StatusConflict, echo.Map{"error": "userId already in use"})
	}

	var branch *model.Branch
	if req.WaLink == "" && req.BranchID != "" {
		branch = findBranchByAnyID(req.BranchID)
		if branch == nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid branchId"})
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcryptCost)
	if err != nil {
		log.Error("Failed to hash password", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "sub-admin creation failed"})
	}

	sub, err := model.NewSubAdmin(req.UserID, req.Username, string(hash), branch, req.WaLink, rootID)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	if req.Email != "" {
		normalizedEmail := model.NormalizeIdentifier(req.Email)
		sub.Email = &normalizedEmail
	}
	if req.IsActive != nil {
		sub.IsActive = *req.IsActive
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	if result := database.GetDB().Create(sub); result.Error != nil {
		log.Error("Failed to create sub-admin", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "sub-admin creation failed"})
	}

	log.Info("Sub-admin created",
		zap.Uint("id", sub.ID),
		zap.String("user_id", sub.UserID))

	return c.JSON(http.StatusCreated, echo.Map{
		"id":           sub.ID,
		"userId":       sub.UserID,
		"email":        strOrNil(sub.Email),
		"username":     strOrNil(sub.Username),
		"role":         sub.Role,
		"isActive":     sub.IsActive,
		"branchId":     sub.BranchID,
		"branchName":   sub.BranchName,
		"branchWaLink": sub.BranchWaLink,
		"createdAt":    sub.CreatedAt,
	})
}

// ListSubAdmins returns the root's own sub-admins, paginated
func ListSubAdmins(c echo.Context) error {
	rootID := c.Get("user_id").(uint)
	page, limit, offset := parsePagination(c)

	defer prometheus.TrackDBOperation("query")(time.Now())
	var items []model.User
	var total int64

	query := database.GetDB().Model(&model.User{}).
		Where("role = ? AND created_by = ?", model.RoleSub, rootID)
	if err := query.Count(&total).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list sub-admins"})
	}
	if err := query.Preload("Branch").Order("created_at DESC").Offset(offset).Limit(limit).Find(&items).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list sub-admins"})
	}

	payload := make([]echo.Map, 0, len(items))
	for i := range items {
		u := &items[i]
		var branchInfo interface{}
		if u.Branch != nil {
			branchInfo = echo.Map{
				"id":         u.Branch.ID,
				"branchId":   u.Branch.BranchID,
				"branchName": u.Branch.BranchName,
			}
		}
		payload = append(payload, echo.Map{
			"id":       u.ID,
			"userId":   u.UserID,
			"email":    strOrNil(u.Email),
			"username": strOrNil(u.Username),
			"role":     u.Role,
			"isActive": u.IsActive,
			"branch":   branchInfo,
			"branchSnapshot": echo.Map{
				"name":   u.BranchName,
				"waLink": u.BranchWaLink,
			},
			"createdAt": u.CreatedAt,
			"updatedAt": u.UpdatedAt,
		})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"items":      payload,
		"pagination": paginationMap(page, limit, total),
	})
}

// UpdateSubAdmin updates a sub-admin owned by the current root
func UpdateSubAdmin(c echo.Context) error {
	rootID := c.Get("user_id").(uint)
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}

	var req struct {
		IsActive *bool  `json:"isActive"`
		BranchID string `json:"branchId"`
		WaLink   string `json:"waLink"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	var sub model.User
	result := database.GetDB().
		Where("id = ? AND role = ? AND created_by = ?", uint(id), model.RoleSub, rootID).
		First(&sub)
	if result.Error != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "sub-admin not found"})
	}

	if req.IsActive != nil {
		sub.IsActive = *req.IsActive
	}
	if req.BranchID != "" {
		branch := findBranchByAnyID(req.BranchID)
		if branch == nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid branchId"})
		}
		sub.BranchID = &branch.ID
		sub.BranchName = branch.BranchName
		sub.BranchWaLink = branch.WaLink
	}
	if req.WaLink != "" {
		// Direct link override without re-attaching a branch
		sub.BranchWaLink = req.WaLink
	}

	defer prometheus.TrackDBOperation("update")(time.Now())
	if err := database.GetDB().Save(&sub).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "sub-admin update failed"})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"id":           sub.ID,
		"userId":       sub.UserID,
		"email":        strOrNil(sub.Email),
		"role":         sub.Role,
		"isActive":     sub.IsActive,
		"branchId":     sub.BranchID,
		"branchName":   sub.BranchName,
		"branchWaLink": sub.BranchWaLink,
	})
}

// ResetSubAdminPassword sets a new password for an owned sub-admin and logs
// them out everywhere.
func ResetSubAdminPassword(c echo.Context) error {
	log := logger.FromContext(c)
	rootID := c.Get("user_id").(uint)
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}

	var req struct {
		NewPassword string `json:"newPassword"`
	}
	if err := c.Bind(&req); err != nil || req.NewPassword == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "newPassword is required"})
	}

	var sub model.User
	result := database.GetDB().
		Where("id = ? AND role = ? AND created_by = ?", uint(id), model.RoleSub, rootID).
		First(&sub)
	if result.Error != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "sub-admin not found"})
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
	if err := database.GetDB().Model(&sub).Updates(updates).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "password reset failed"})
	}

	prometheus.RecordAuthOperation("subadmin_password_reset")
	return c.JSON(http.StatusOK, echo.Map{"message": "password reset, user must login again"})
}

// DeactivateSubAdmin disables an owned sub-admin and invalidates its sessions
func DeactivateSubAdmin(c echo.Context) error {
	rootID := c.Get("user_id").(uint)
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}

	var sub model.User
	result := database.GetDB().
		Where("id = ? AND role = ? AND created_by = ?", uint(id), model.RoleSub, rootID).
		First(&sub)
	if result.Error != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "sub-admin not found"})
	}

	defer prometheus.TrackDBOperation("update")(time.Now())
	updates := map[string]interface{}{
		"is_active":     false,
		"token_version": gorm.Expr("token_version + 1"),
	}
	if err := database.GetDB().Model(&sub).Updates(updates).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "deactivation failed"})
	}

	return c.JSON(http.StatusOK, echo.Map{"message": "sub-admin deactivated"})
}
