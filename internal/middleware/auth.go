package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"support-api/internal/model"
	"support-api/pkg/database"
	"support-api/pkg/jwtutil"
	"support-api/pkg/logger"
	"support-api/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// RequireAuth validates the bearer token, loads the account behind it and
// rejects tokens whose embedded version no longer matches the account. The
// resolved identity is stored in the echo context for downstream checks.
func RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		log := logger.FromContext(c)

		// Get the Authorization header
		authHeader := c.Request().Header.Get("Authorization")
		if authHeader == "" {
			prometheus.RecordAuthError("missing_token")
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing authorization token"})
		}

		// Check if it's a Bearer token
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			prometheus.RecordAuthError("invalid_auth_format")
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid authorization format, expected Bearer token"})
		}

		claims, err := jwtutil.ValidateAccessToken(parts[1])
		if err != nil {
			log.Debug("Invalid access token", zap.Error(err))
			prometheus.RecordAuthError("invalid_token")
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired token"})
		}

		userID, err := strconv.ParseUint(claims.Subject, 10, 64)
		if err != nil {
			prometheus.RecordAuthError("invalid_token")
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired token"})
		}

		// The token-version check needs the account's current state
		var user model.User
		if result := database.GetDB().First(&user, uint(userID)); result.Error != nil {
			log.Error("Token user not found", zap.Uint64("user_id", userID))
			prometheus.RecordAuthError("user_not_found")
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token user"})
		}

		if !user.IsActive {
			prometheus.RecordAuthError("account_disabled")
			return c.JSON(http.StatusForbidden, echo.Map{"error": "account disabled"})
		}

		// A stale version means the account logged out everywhere or changed
		// its credentials after this token was issued
		if claims.TokenVersion != user.TokenVersion {
			prometheus.RecordAuthError("token_invalidated")
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "token invalidated"})
		}

		c.Set("user_id", user.ID)
		c.Set("user_role", user.Role)
		if user.Email != nil {
			c.Set("email", *user.Email)
		}

		return next(c)
	}
}

// RequireRoot allows only the root administrator
func RequireRoot(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if role, ok := c.Get("user_role").(string); !ok || role != model.RoleRoot {
			return c.JSON(http.StatusForbidden, echo.Map{"error": "root access required"})
		}
		return next(c)
	}
}

// RequireSubAdmin allows only sub-admins
func RequireSubAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if role, ok := c.Get("user_role").(string); !ok || role != model.RoleSub {
			return c.JSON(http.StatusForbidden, echo.Map{"error": "sub-admin access required"})
		}
		return next(c)
	}
}

// RequireSubAdminOrRoot allows sub-admins and the root administrator
func RequireSubAdminOrRoot(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		role, ok := c.Get("user_role").(string)
		if !ok || (role != model.RoleSub && role != model.RoleRoot) {
			return c.JSON(http.StatusForbidden, echo.Map{"error": "sub-admin or root access required"})
		}
		return next(c)
	}
}

// VerifyClientOwnership loads the client named by :clientId and verifies the
// current sub-admin created it. A client owned by someone else gets the same
// 404 as a missing one, so sub-admins cannot probe each other's client ids.
func VerifyClientOwnership(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		clientID, err := strconv.ParseUint(c.Param("clientId"), 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "client ID is required"})
		}

		userID, ok := c.Get("user_id").(uint)
		if !ok {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
		}

		var client model.User
		result := database.GetDB().
			Where("id = ? AND role = ? AND parent_sub_admin = ?", uint(clientID), model.RoleClient, userID).
			First(&client)
		if result.Error != nil {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "client not found or access denied"})
		}

		c.Set("client", &client)
		return next(c)
	}
}
