package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"support-api/internal/model"
	prom "support-api/prometheus"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// verifyPhone runs the OTP start/verify round trip and returns the
// verified-phone token.
func verifyPhone(t *testing.T, e *echo.Echo, sender *fakeSender, phone string) string {
	t.Helper()

	code, _ := doJSON(t, e, http.MethodPost, "/search/otp/start", "", map[string]string{
		"phone": phone,
	})
	require.Equal(t, http.StatusOK, code)

	code, body := doJSON(t, e, http.MethodPost, "/search/otp/verify", "", map[string]string{
		"phone": phone,
		"code":  sender.lastCode(t),
	})
	require.Equal(t, http.StatusOK, code)
	token, _ := body["otpToken"].(string)
	require.NotEmpty(t, token)
	return token
}

// seedDirectory builds the root -> branch -> sub-admin -> client hierarchy
// through the API and returns the sub-admin's access token.
func seedDirectory(t *testing.T, e *echo.Echo, clientPhone string) string {
	t.Helper()

	rootToken := loginAs(t, e, "root@example.com", "rootpass123")

	code, _ := doJSON(t, e, http.MethodPost, "/api/branches", rootToken, map[string]string{
		"branchId":   "ROOT-BR",
		"branchName": "Head Office",
		"waLink":     "https://wa.link/headoffice",
	})
	require.Equal(t, http.StatusCreated, code)

	code, _ = doJSON(t, e, http.MethodPost, "/api/admins", rootToken, map[string]interface{}{
		"userId":   "SUB-1",
		"username": "headsub",
		"password": "subpass123",
		"branchId": "ROOT-BR",
	})
	require.Equal(t, http.StatusCreated, code)

	subToken := loginAs(t, e, "headsub", "subpass123")

	code, _ = doJSON(t, e, http.MethodPost, "/api/clients", subToken, map[string]string{
		"userId": "CL1",
		"name":   "First Client",
		"phone":  clientPhone,
	})
	require.Equal(t, http.StatusCreated, code)

	return subToken
}

func TestEndToEndDirectoryFlow(t *testing.T) {
	db, sender := setupTest(t)
	seedRoot(t, db, "root@example.com", "rootpass123")
	e := newTestServer()

	seedDirectory(t, e, "+911234567890")
	otpToken := verifyPhone(t, e, sender, "+911234567890")

	req := httptest.NewRequest(http.MethodGet, "/search/CL1", nil)
	req.Header.Set("X-OTP-Token", otpToken)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var result map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "CL1", result["userId"])
	assert.Equal(t, "Head Office", result["branchName"])
	assert.Equal(t, "https://wa.link/headoffice", result["waLink"])

	var logs []model.UserHitLog
	require.NoError(t, db.Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Equal(t, "CL1", logs[0].UserID)
}

func TestSearchRequiresVerifiedPhone(t *testing.T) {
	db, _ := setupTest(t)
	seedRoot(t, db, "root@example.com", "rootpass123")
	e := newTestServer()
	seedDirectory(t, e, "+911234567890")

	code, body := doJSON(t, e, http.MethodGet, "/search/CL1", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "phone verification required", body["error"])
}

func TestSearchPhoneMismatchLooksLikeNotFound(t *testing.T) {
	db, sender := setupTest(t)
	seedRoot(t, db, "root@example.com", "rootpass123")
	e := newTestServer()
	subToken := seedDirectory(t, e, "+911111111111")

	// Second client verified with its own phone
	code, _ := doJSON(t, e, http.MethodPost, "/api/clients", subToken, map[string]string{
		"userId": "CL2",
		"name":   "Second Client",
		"phone":  "+922222222222",
	})
	require.Equal(t, http.StatusCreated, code)

	otpToken := verifyPhone(t, e, sender, "+922222222222")

	lookup := func(userID string) (int, map[string]interface{}) {
		req := httptest.NewRequest(http.MethodGet, "/search/"+userID, nil)
		req.Header.Set("X-OTP-Token", otpToken)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		var body map[string]interface{}
		_ = json.Unmarshal(rec.Body.Bytes(), &body)
		return rec.Code, body
	}

	// A verified phone that does not match the target account gets the same
	// answer as an unknown identifier
	code1, body1 := lookup("CL1")
	code2, body2 := lookup("NOPE")
	assert.Equal(t, http.StatusNotFound, code1)
	assert.Equal(t, http.StatusNotFound, code2)
	assert.Equal(t, body1["error"], body2["error"])
}

func TestSearchOTPCodeSingleUse(t *testing.T) {
	db, sender := setupTest(t)
	seedRoot(t, db, "root@example.com", "rootpass123")
	e := newTestServer()
	seedDirectory(t, e, "+911234567890")

	code, _ := doJSON(t, e, http.MethodPost, "/search/otp/start", "", map[string]string{
		"phone": "+911234567890",
	})
	require.Equal(t, http.StatusOK, code)
	otpCode := sender.lastCode(t)

	code, _ = doJSON(t, e, http.MethodPost, "/search/otp/verify", "", map[string]string{
		"phone": "+911234567890",
		"code":  otpCode,
	})
	require.Equal(t, http.StatusOK, code)

	code, _ = doJSON(t, e, http.MethodPost, "/search/otp/verify", "", map[string]string{
		"phone": "+911234567890",
		"code":  otpCode,
	})
	assert.Equal(t, http.StatusUnauthorized, code, "a consumed code must not verify twice")
}

func TestOTPStartUnknownOrDisabledPhone(t *testing.T) {
	db, _ := setupTest(t)
	seedRoot(t, db, "root@example.com", "rootpass123")
	e := newTestServer()
	seedDirectory(t, e, "+911234567890")

	code, _ := doJSON(t, e, http.MethodPost, "/search/otp/start", "", map[string]string{
		"phone": "+990000000000",
	})
	assert.Equal(t, http.StatusNotFound, code)

	require.NoError(t, db.Model(&model.User{}).
		Where("user_id = ?", "CL1").
		Update("is_active", false).Error)

	code, _ = doJSON(t, e, http.MethodPost, "/search/otp/start", "", map[string]string{
		"phone": "+911234567890",
	})
	assert.Equal(t, http.StatusForbidden, code)
}

func TestOTPStartRecordsResolvedChannel(t *testing.T) {
	db, _ := setupTest(t)
	seedRoot(t, db, "root@example.com", "rootpass123")
	e := newTestServer()
	seedDirectory(t, e, "+911234567890")

	smsBefore := testutil.ToFloat64(prom.OTPSendCounter.WithLabelValues("sms"))

	// An unknown channel falls back to sms and must be recorded as sms, never
	// as a caller-controlled label value
	code, _ := doJSON(t, e, http.MethodPost, "/search/otp/start", "", map[string]string{
		"phone":   "+911234567890",
		"channel": "carrier-pigeon",
	})
	require.Equal(t, http.StatusOK, code)

	assert.Equal(t, smsBefore+1, testutil.ToFloat64(prom.OTPSendCounter.WithLabelValues("sms")))
	assert.Equal(t, float64(0), testutil.ToFloat64(prom.OTPSendCounter.WithLabelValues("carrier-pigeon")))
}

func TestSearchForceOverrideWins(t *testing.T) {
	db, sender := setupTest(t)
	seedRoot(t, db, "root@example.com", "rootpass123")
	e := newTestServer()
	subToken := seedDirectory(t, e, "+911234567890")

	code, _ := doJSON(t, e, http.MethodPost, "/api/clients", subToken, map[string]string{
		"userId": "VIP1",
		"name":   "Special Client",
		"phone":  "+933333333333",
	})
	require.Equal(t, http.StatusCreated, code)

	otpToken := verifyPhone(t, e, sender, "+933333333333")

	req := httptest.NewRequest(http.MethodGet, "/search/VIP1", nil)
	req.Header.Set("X-OTP-Token", otpToken)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var result map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "https://wa.link/special", result["waLink"])
}

func TestRedirectByUserID(t *testing.T) {
	db, sender := setupTest(t)
	seedRoot(t, db, "root@example.com", "rootpass123")
	e := newTestServer()
	seedDirectory(t, e, "+911234567890")

	otpToken := verifyPhone(t, e, sender, "+911234567890")

	req := httptest.NewRequest(http.MethodGet, "/search/CL1/redirect?otpToken="+otpToken, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://wa.link/headoffice", rec.Header().Get(echo.HeaderLocation))

	var count int64
	require.NoError(t, db.Model(&model.UserHitLog{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestClientInheritsBranchSnapshot(t *testing.T) {
	db, _ := setupTest(t)
	seedRoot(t, db, "root@example.com", "rootpass123")
	e := newTestServer()
	seedDirectory(t, e, "+911234567890")

	var client model.User
	require.NoError(t, db.Where("user_id = ?", "CL1").First(&client).Error)
	assert.Equal(t, "Head Office", client.BranchName)
	assert.Equal(t, "https://wa.link/headoffice", client.BranchWaLink)
	require.NotNil(t, client.ParentSubAdmin)

	var sub model.User
	require.NoError(t, db.Where("user_id = ?", "SUB-1").First(&sub).Error)
	assert.Equal(t, sub.ID, *client.ParentSubAdmin)
}

func TestBranchEditDoesNotRewriteSnapshots(t *testing.T) {
	db, sender := setupTest(t)
	seedRoot(t, db, "root@example.com", "rootpass123")
	e := newTestServer()
	seedDirectory(t, e, "+911234567890")
	rootToken := loginAs(t, e, "root@example.com", "rootpass123")

	var branch model.Branch
	require.NoError(t, db.Where("branch_id = ?", "ROOT-BR").First(&branch).Error)

	code, _ := doJSON(t, e, http.MethodPatch, "/api/branches/"+itoa(branch.ID), rootToken, map[string]string{
		"waLink": "https://wa.link/relocated",
	})
	require.Equal(t, http.StatusOK, code)

	// The client's snapshot still points at the old link
	otpToken := verifyPhone(t, e, sender, "+911234567890")
	req := httptest.NewRequest(http.MethodGet, "/search/CL1", nil)
	req.Header.Set("X-OTP-Token", otpToken)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var result map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "https://wa.link/headoffice", result["waLink"])
}

func itoa(v uint) string {
	return strconv.FormatUint(uint64(v), 10)
}
