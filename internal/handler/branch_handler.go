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
)

// CreateBranch registers a new branch (root only)
func CreateBranch(c echo.Context) error {
	log := logger.FromContext(c)

	var req struct {
		BranchID   string `json:"branchId"`
		BranchName string `json:"branchName"`
		WaLink     string `json:"waLink"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.BranchID == "" || req.BranchName == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "branchId and branchName are required"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var existing model.Branch
	if result := database.GetDB().
		Where("branch_id = ? OR branch_name = ?", req.BranchID, req.BranchName).
		First(&existing); result.Error == nil {
		return c.JSON(http.StatusConflict, echo.Map{"error": "branch already exists"})
	}

	branch := model.Branch{
		BranchID:   req.BranchID,
		BranchName: req.BranchName,
		WaLink:     req.WaLink,
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	if result := database.GetDB().Create(&branch); result.Error != nil {
		log.Error("Failed to create branch", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "branch creation failed"})
	}

	log.Info("Branch created",
		zap.Uint("id", branch.ID),
		zap.String("branch_id", branch.BranchID))

	return c.JSON(http.StatusCreated, branch)
}

// ListBranches returns all branches, paginated
func ListBranches(c echo.Context) error {
	page, limit, offset := parsePagination(c)

	defer prometheus.TrackDBOperation("query")(time.Now())
	var total int64
	if err := database.GetDB().Model(&model.Branch{}).Count(&total).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list branches"})
	}

	var branches []model.Branch
	if err := database.GetDB().Order("created_at DESC").Offset(offset).Limit(limit).Find(&branches).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list branches"})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"items":      branches,
		"pagination": paginationMap(page, limit, total),
	})
}

// GetBranch returns a single branch by numeric id
func GetBranch(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}

	var branch model.Branch
	if result := database.GetDB().First(&branch, uint(id)); result.Error != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "branch not found"})
	}
	return c.JSON(http.StatusOK, branch)
}

// UpdateBranch edits a branch's name or link. Existing account snapshots keep
// the values captured at account creation time.
func UpdateBranch(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}

	var req struct {
		BranchName *string `json:"branchName"`
		WaLink     *string `json:"waLink"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	var branch model.Branch
	if result := database.GetDB().First(&branch, uint(id)); result.Error != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "branch not found"})
	}

	if req.BranchName != nil && *req.BranchName != branch.BranchName {
		var dup model.Branch
		if result := database.GetDB().Where("branch_name = ?", *req.BranchName).First(&dup); result.Error == nil {
			return c.JSON(http.StatusConflict, echo.Map{"error": "branch name already in use"})
		}
		branch.BranchName = *req.BranchName
	}
	if req.WaLink != nil {
		branch.WaLink = *req.WaLink
	}

	defer prometheus.TrackDBOperation("update")(time.Now())
	if err := database.GetDB().Save(&branch).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "branch update failed"})
	}
	return c.JSON(http.StatusOK, branch)
}

// DeleteBranch removes a branch. Accounts that still reference it keep their
// denormalized snapshot, so existing links are unaffected.
func DeleteBranch(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}

	var branch model.Branch
	if result := database.GetDB().First(&branch, uint(id)); result.Error != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "branch not found"})
	}

	defer prometheus.TrackDBOperation("delete")(time.Now())
	if err := database.GetDB().Delete(&branch).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "branch deletion failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "branch deleted"})
}
