package handler

import (
	"errors"
	"net/http"
	"time"

	"support-api/internal/model"
	"support-api/internal/otp"
	"support-api/internal/search"
	"support-api/pkg/database"
	"support-api/pkg/jwtutil"
	"support-api/pkg/logger"
	"support-api/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// StartOTPVerification begins a phone challenge for a registered, active
// account. The phone must belong to a known account before anything is sent.
func StartOTPVerification(c echo.Context) error {
	log := logger.FromContext(c)

	var req struct {
		Phone   string `json:"phone"`
		Channel string `json:"channel"`
	}
	if err := c.Bind(&req); err != nil || req.Phone == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "phone is required"})
	}

	phone := model.NormalizePhone(req.Phone)

	defer prometheus.TrackDBOperation("query")(time.Now())
	var user model.User
	if result := database.GetDB().Where("phone = ?", phone).First(&user); result.Error != nil {
		prometheus.RecordOTPSend("rejected")
		return c.JSON(http.StatusNotFound, echo.Map{"error": "phone number not registered"})
	}
	if !user.IsActive {
		prometheus.RecordOTPSend("rejected")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "account disabled"})
	}

	if err := otpService.Start(phone, req.Channel); err != nil {
		switch {
		case errors.Is(err, otp.ErrNotConfigured):
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "otp delivery not configured"})
		case errors.Is(err, otp.ErrRateLimited):
			return c.JSON(http.StatusTooManyRequests, echo.Map{"error": "too many requests, try again later"})
		default:
			log.Error("Failed to start otp challenge", zap.Error(err))
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to send verification code"})
		}
	}

	// Record the channel actually used so arbitrary client input never
	// becomes a label value
	prometheus.RecordOTPSend(otpService.ResolveChannel(req.Channel))
	log.Info("OTP challenge started", zap.String("phone", phone))
	return c.JSON(http.StatusOK, echo.Map{"message": "verification code sent"})
}

// VerifyOTPCode checks a submitted code and, on success, issues a short-lived
// verified-phone token for use with the directory search.
func VerifyOTPCode(c echo.Context) error {
	log := logger.FromContext(c)

	var req struct {
		Phone string `json:"phone"`
		Code  string `json:"code"`
	}
	if err := c.Bind(&req); err != nil || req.Phone == "" || req.Code == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "phone and code are required"})
	}

	phone := model.NormalizePhone(req.Phone)

	if err := otpService.Check(phone, req.Code); err != nil {
		if errors.Is(err, otp.ErrNotConfigured) {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "otp delivery not configured"})
		}
		prometheus.RecordOTPVerify("failed")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired verification code"})
	}

	token, err := jwtutil.GenerateOTPToken(phone)
	if err != nil {
		log.Error("Failed to generate otp token", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "verification failed"})
	}

	prometheus.RecordOTPVerify("approved")
	return c.JSON(http.StatusOK, echo.Map{
		"message":  "phone verified",
		"otpToken": token,
	})
}

// verifiedPhoneFromRequest extracts and validates the verified-phone token
// from the X-OTP-Token header or the otpToken query parameter.
func verifiedPhoneFromRequest(c echo.Context) (string, error) {
	token := c.Request().Header.Get("X-OTP-Token")
	if token == "" {
		token = c.QueryParam("otpToken")
	}
	if token == "" {
		return "", errors.New("missing otp token")
	}
	return jwtutil.ValidateOTPToken(token)
}

// SearchByUserID resolves a public identifier to its branch messaging link.
// The caller must present a verified-phone token matching the account's phone.
func SearchByUserID(c echo.Context) error {
	userID := c.QueryParam("userId")
	if userID == "" {
		userID = c.Param("userId")
	}
	if userID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "userId is required"})
	}

	phone, err := verifiedPhoneFromRequest(c)
	if err != nil {
		prometheus.RecordSearch("unauthorized")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "phone verification required"})
	}

	result, err := resolver.Resolve(userID, phone)
	if err != nil {
		if errors.Is(err, search.ErrNotFound) {
			prometheus.RecordSearch("not_found")
			return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
		}
		logger.FromContext(c).Error("Search failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "search failed"})
	}

	prometheus.RecordSearch("found")
	return c.JSON(http.StatusOK, result)
}

// RedirectByUserID resolves an identifier like SearchByUserID but answers with
// a redirect straight to the messaging link.
func RedirectByUserID(c echo.Context) error {
	userID := c.Param("userId")
	if userID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "userId is required"})
	}

	phone, err := verifiedPhoneFromRequest(c)
	if err != nil {
		prometheus.RecordSearch("unauthorized")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "phone verification required"})
	}

	result, err := resolver.Resolve(userID, phone)
	if err != nil {
		if errors.Is(err, search.ErrNotFound) {
			prometheus.RecordSearch("not_found")
			return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
		}
		logger.FromContext(c).Error("Redirect lookup failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "search failed"})
	}
	if result.WaLink == "" {
		prometheus.RecordSearch("no_link")
		return c.JSON(http.StatusNotFound, echo.Map{"error": "no messaging link available"})
	}

	prometheus.RecordRedirect()
	return c.Redirect(http.StatusFound, result.WaLink)
}
