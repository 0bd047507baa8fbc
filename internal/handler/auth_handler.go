package handler

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"support-api/internal/model"
	"support-api/pkg/database"
	"support-api/pkg/jwtutil"
	"support-api/pkg/logger"
	"support-api/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const bcryptCost = 12

// Login authenticates an admin by username or email and issues an access token.
// Sub-admins must use their username; only root may login with email.
func Login(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.LoginCounter.Inc()

	var req struct {
		Identifier string `json:"identifier"`
		Email      string `json:"email"`
		Password   string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	rawIdentifier := req.Identifier
	if rawIdentifier == "" {
		rawIdentifier = req.Email
	}
	if rawIdentifier == "" || req.Password == "" {
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "username/email and password are required"})
	}

	normalized := model.NormalizeIdentifier(rawIdentifier)

	// Username first, email as fallback for root and legacy accounts
	var user model.User
	result := database.GetDB().Where("username = ?", normalized).First(&user)
	if result.Error != nil && strings.Contains(rawIdentifier, "@") {
		result = database.GetDB().Where("email = ?", normalized).First(&user)
	}
	if result.Error != nil {
		prometheus.RecordAuthError("user_not_found")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}

	if !user.IsActive {
		prometheus.RecordAuthError("account_disabled")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "account disabled"})
	}

	if user.Role == model.RoleSub && strings.Contains(rawIdentifier, "@") {
		prometheus.RecordAuthError("sub_email_login")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "sub-admins must login with username"})
	}

	if user.PasswordHash == "" || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		prometheus.RecordAuthError("invalid_password")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}

	now := time.Now()
	if err := database.GetDB().Model(&user).Update("last_login_at", now).Error; err != nil {
		log.Warn("Failed to record login time", zap.Error(err))
	}

	token, err := jwtutil.GenerateAccessToken(user.ID, user.Role, user.TokenVersion)
	if err != nil {
		log.Error("Failed to generate token", zap.Error(err))
		prometheus.RecordAuthError("token_generation_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "token error"})
	}

	prometheus.IncreaseActiveTokens()
	log.Info("User logged in",
		zap.Uint("user_id", user.ID),
		zap.String("role", user.Role))

	return c.JSON(http.StatusOK, echo.Map{
		"accessToken": token,
		"user":        profilePayload(&user),
	})
}

// Me returns the authenticated account's profile
func Me(c echo.Context) error {
	userID := c.Get("user_id").(uint)

	var user model.User
	if result := database.GetDB().First(&user, userID); result.Error != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
	}

	return c.JSON(http.StatusOK, profilePayload(&user))
}

// Logout invalidates every outstanding access token for the account by
// bumping its token version.
func Logout(c echo.Context) error {
	log := logger.FromContext(c)
	userID := c.Get("user_id").(uint)
	prometheus.RecordAuthOperation("logout")

	result := database.GetDB().Model(&model.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"token_version":  gorm.Expr("token_version + 1"),
			"last_logout_at": time.Now(),
		})
	if result.Error != nil {
		log.Error("Failed to invalidate session", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "logout failed"})
	}

	prometheus.DecreaseActiveTokens()
	return c.JSON(http.StatusOK, echo.Map{"message": "logged out"})
}

// ChangePassword updates the root administrator's password and logs out all
// sessions. The hash swap and the token-version bump are one atomic update.
func ChangePassword(c echo.Context) error {
	log := logger.FromContext(c)
	userID := c.Get("user_id").(uint)

	var req struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if err := c.Bind(&req); err != nil || req.CurrentPassword == "" || req.NewPassword == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "current and new password are required"})
	}

	var user model.User
	if result := database.GetDB().First(&user, userID); result.Error != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
	}

	if user.PasswordHash == "" || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)) != nil {
		prometheus.RecordAuthError("invalid_password")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid current password"})
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcryptCost)
	if err != nil {
		log.Error("Failed to hash password", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "password update failed"})
	}

	result := database.GetDB().Model(&user).Updates(map[string]interface{}{
		"password_hash": string(hash),
		"token_version": gorm.Expr("token_version + 1"),
	})
	if result.Error != nil {
		log.Error("Failed to update password", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "password update failed"})
	}

	prometheus.RecordAuthOperation("password_change")
	return c.JSON(http.StatusOK, echo.Map{"message": "password updated, please login again"})
}

// FirstTimeChangePassword lets an account flagged with mustChangePassword set
// a new password before using the rest of the API.
func FirstTimeChangePassword(c echo.Context) error {
	log := logger.FromContext(c)
	userID := c.Get("user_id").(uint)

	var req struct {
		CurrentPassword    string `json:"currentPassword"`
		NewPassword        string `json:"newPassword"`
		ConfirmNewPassword string `json:"confirmNewPassword"`
	}
	if err := c.Bind(&req); err != nil || req.CurrentPassword == "" || req.NewPassword == "" || req.ConfirmNewPassword == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "current password, new password and confirm new password are required"})
	}
	if req.NewPassword != req.ConfirmNewPassword {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "new password and confirm password do not match"})
	}

	var user model.User
	if result := database.GetDB().First(&user, userID); result.Error != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
	}

	if !user.MustChangePassword {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "password change is not required"})
	}

	if user.PasswordHash == "" || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)) != nil {
		prometheus.RecordAuthError("invalid_password")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid current password"})
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcryptCost)
	if err != nil {
		log.Error("Failed to hash password", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "password update failed"})
	}

	result := database.GetDB().Model(&user).Updates(map[string]interface{}{
		"password_hash":        string(hash),
		"must_change_password": false,
		"token_version":        gorm.Expr("token_version + 1"),
	})
	if result.Error != nil {
		log.Error("Failed to update password", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "password update failed"})
	}

	prometheus.RecordAuthOperation("first_password_change")
	return c.JSON(http.StatusOK, echo.Map{"message": "password updated, please login again"})
}

// ChangeEmail updates the root administrator's email after a password check
func ChangeEmail(c echo.Context) error {
	userID := c.Get("user_id").(uint)

	var req struct {
		NewEmail string `json:"newEmail"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil || req.NewEmail == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "new email and password are required"})
	}

	var user model.User
	if result := database.GetDB().First(&user, userID); result.Error != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
	}

	if user.PasswordHash == "" || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		prometheus.RecordAuthError("invalid_password")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid password"})
	}

	normalized := model.NormalizeIdentifier(req.NewEmail)
	var existing model.User
	if result := database.GetDB().Where("email = ? AND id <> ?", normalized, user.ID).First(&existing); result.Error == nil {
		return c.JSON(http.StatusConflict, echo.Map{"error": "email already in use"})
	}

	if result := database.GetDB().Model(&user).Update("email", normalized); result.Error != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "email update failed"})
	}

	prometheus.RecordAuthOperation("email_change")
	return c.JSON(http.StatusOK, echo.Map{"message": "email updated", "email": normalized})
}

// ForgotPassword starts a password reset for a root account. The response is
// the same whether or not the email exists.
func ForgotPassword(c echo.Context) error {
	log := logger.FromContext(c)

	var req struct {
		Email string `json:"email"`
	}
	if err := c.Bind(&req); err != nil || req.Email == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email is required"})
	}

	const genericMessage = "If this email is registered, you will receive a password reset link"

	normalized := model.NormalizeIdentifier(req.Email)
	var user model.User
	result := database.GetDB().Where("email = ? AND role = ?", normalized, model.RoleRoot).First(&user)
	if result.Error != nil {
		// Do not confirm whether the email exists
		return c.JSON(http.StatusOK, echo.Map{"message": genericMessage})
	}

	if !user.IsActive {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "account disabled"})
	}

	rawToken, hashedToken, err := newResetToken()
	if err != nil {
		log.Error("Failed to generate reset token", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "something went wrong"})
	}

	expires := time.Now().Add(1 * time.Hour)
	updates := map[string]interface{}{
		"reset_password_token":   hashedToken,
		"reset_password_expires": expires,
	}
	if err := database.GetDB().Model(&user).Updates(updates).Error; err != nil {
		log.Error("Failed to store reset token", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "something went wrong"})
	}

	if err := mail.SendPasswordResetEmail(*user.Email, rawToken, "Admin"); err != nil {
		if cfg.Server.Env == "production" {
			// Clear the token so a half-delivered reset cannot linger
			database.GetDB().Model(&user).Updates(map[string]interface{}{
				"reset_password_token":   "",
				"reset_password_expires": nil,
			})
			log.Error("Failed to send reset email", zap.Error(err))
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to send reset email"})
		}
		// Development keeps the token so the flow can be tested without SMTP
		log.Warn("Reset email not sent, token kept for testing", zap.Error(err))
	}

	prometheus.RecordAuthOperation("forgot_password")
	return c.JSON(http.StatusOK, echo.Map{"message": genericMessage})
}

// ResetPassword completes a reset with a single-use token. Setting the new
// hash, clearing the token and bumping the token version are one atomic update.
func ResetPassword(c echo.Context) error {
	log := logger.FromContext(c)

	var req struct {
		Token       string `json:"token"`
		NewPassword string `json:"newPassword"`
	}
	if err := c.Bind(&req); err != nil || req.Token == "" || req.NewPassword == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "token and new password are required"})
	}
	if len(req.NewPassword) < 8 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "password must be at least 8 characters"})
	}

	hashed := hashResetToken(req.Token)

	var user model.User
	result := database.GetDB().
		Where("reset_password_token = ? AND reset_password_expires > ? AND role = ?", hashed, time.Now(), model.RoleRoot).
		First(&user)
	if result.Error != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid or expired reset token"})
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcryptCost)
	if err != nil {
		log.Error("Failed to hash password", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "something went wrong"})
	}

	updates := map[string]interface{}{
		"password_hash":          string(hash),
		"reset_password_token":   "",
		"reset_password_expires": nil,
		"token_version":          gorm.Expr("token_version + 1"),
	}
	if err := database.GetDB().Model(&user).Updates(updates).Error; err != nil {
		log.Error("Failed to reset password", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "something went wrong"})
	}

	prometheus.RecordAuthOperation("password_reset")
	return c.JSON(http.StatusOK, echo.Map{"message": "password reset successful, please login"})
}

func newResetToken() (raw string, hashed string, err error) {
	buf := make([]byte, 32)
	if _, err = rand.Read(buf); err != nil {
		return "", "", err
	}
	raw = hex.EncodeToString(buf)
	return raw, hashResetToken(raw), nil
}

func hashResetToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func profilePayload(user *model.User) echo.Map {
	payload := echo.Map{
		"id":                 user.ID,
		"userId":             user.UserID,
		"email":              strOrNil(user.Email),
		"username":           strOrNil(user.Username),
		"role":               user.Role,
		"isActive":           user.IsActive,
		"mustChangePassword": user.MustChangePassword,
	}
	if user.Role == model.RoleSub {
		payload["branchId"] = user.BranchID
		payload["branchName"] = user.BranchName
		payload["branchWaLink"] = user.BranchWaLink
	}
	return payload
}
