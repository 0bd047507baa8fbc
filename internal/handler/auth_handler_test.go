package handler

import (
	"net/http"
	"testing"
	"time"

	"support-api/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginWithEmail(t *testing.T) {
	db, _ := setupTest(t)
	seedRoot(t, db, "root@example.com", "rootpass123")
	e := newTestServer()

	code, body := doJSON(t, e, http.MethodPost, "/auth/login", "", map[string]string{
		"identifier": "Root@Example.com",
		"password":   "rootpass123",
	})
	require.Equal(t, http.StatusOK, code)
	assert.NotEmpty(t, body["accessToken"])

	user, ok := body["user"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "root", user["role"])
}

func TestLoginWrongPasswordAndUnknownUserLookAlike(t *testing.T) {
	db, _ := setupTest(t)
	seedRoot(t, db, "root@example.com", "rootpass123")
	e := newTestServer()

	code1, body1 := doJSON(t, e, http.MethodPost, "/auth/login", "", map[string]string{
		"identifier": "root@example.com",
		"password":   "wrong",
	})
	code2, body2 := doJSON(t, e, http.MethodPost, "/auth/login", "", map[string]string{
		"identifier": "nobody@example.com",
		"password":   "wrong",
	})

	// Wrong password and unknown account must be indistinguishable
	assert.Equal(t, http.StatusUnauthorized, code1)
	assert.Equal(t, http.StatusUnauthorized, code2)
	assert.Equal(t, body1["error"], body2["error"])
}

func TestLoginDisabledAccount(t *testing.T) {
	db, _ := setupTest(t)
	root := seedRoot(t, db, "root@example.com", "rootpass123")
	require.NoError(t, db.Model(root).Update("is_active", false).Error)
	e := newTestServer()

	code, _ := doJSON(t, e, http.MethodPost, "/auth/login", "", map[string]string{
		"identifier": "root@example.com",
		"password":   "rootpass123",
	})
	assert.Equal(t, http.StatusForbidden, code)
}

func TestSubAdminCannotLoginWithEmail(t *testing.T) {
	db, _ := setupTest(t)
	seedRoot(t, db, "root@example.com", "rootpass123")
	e := newTestServer()
	rootToken := loginAs(t, e, "root@example.com", "rootpass123")

	code, _ := doJSON(t, e, http.MethodPost, "/api/admins", rootToken, map[string]interface{}{
		"userId":   "SUB-1",
		"username": "northsub",
		"email":    "sub@example.com",
		"password": "subpass123",
		"waLink":   "https://wa.link/north",
	})
	require.Equal(t, http.StatusCreated, code)

	code, body := doJSON(t, e, http.MethodPost, "/auth/login", "", map[string]string{
		"identifier": "sub@example.com",
		"password":   "subpass123",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, body["error"], "username")

	code, _ = doJSON(t, e, http.MethodPost, "/auth/login", "", map[string]string{
		"identifier": "northsub",
		"password":   "subpass123",
	})
	assert.Equal(t, http.StatusOK, code)
}

func TestLogoutInvalidatesAllTokens(t *testing.T) {
	db, _ := setupTest(t)
	root := seedRoot(t, db, "root@example.com", "rootpass123")
	e := newTestServer()
	token := loginAs(t, e, "root@example.com", "rootpass123")

	code, _ := doJSON(t, e, http.MethodGet, "/auth/me", token, nil)
	require.Equal(t, http.StatusOK, code)

	code, _ = doJSON(t, e, http.MethodPost, "/auth/logout", token, nil)
	require.Equal(t, http.StatusOK, code)

	// The token carried the old version and must now be rejected
	code, body := doJSON(t, e, http.MethodGet, "/auth/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "token invalidated", body["error"])

	var fresh model.User
	require.NoError(t, db.First(&fresh, root.ID).Error)
	assert.Equal(t, root.TokenVersion+1, fresh.TokenVersion)
}

func TestChangePasswordBumpsTokenVersion(t *testing.T) {
	db, _ := setupTest(t)
	seedRoot(t, db, "root@example.com", "rootpass123")
	e := newTestServer()
	token := loginAs(t, e, "root@example.com", "rootpass123")

	code, _ := doJSON(t, e, http.MethodPost, "/auth/change-password", token, map[string]string{
		"currentPassword": "wrong",
		"newPassword":     "newpass456",
	})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = doJSON(t, e, http.MethodPost, "/auth/change-password", token, map[string]string{
		"currentPassword": "rootpass123",
		"newPassword":     "newpass456",
	})
	require.Equal(t, http.StatusOK, code)

	code, _ = doJSON(t, e, http.MethodGet, "/auth/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	loginAs(t, e, "root@example.com", "newpass456")
}

func TestFirstTimeChangePassword(t *testing.T) {
	db, _ := setupTest(t)
	seedRoot(t, db, "root@example.com", "rootpass123")
	e := newTestServer()
	rootToken := loginAs(t, e, "root@example.com", "rootpass123")

	code, _ := doJSON(t, e, http.MethodPost, "/api/admins", rootToken, map[string]interface{}{
		"userId":   "SUB-1",
		"username": "northsub",
		"password": "initialpass",
		"waLink":   "https://wa.link/north",
	})
	require.Equal(t, http.StatusCreated, code)

	subToken := loginAs(t, e, "northsub", "initialpass")

	code, body := doJSON(t, e, http.MethodPost, "/auth/first-time-change-password", subToken, map[string]string{
		"currentPassword":    "initialpass",
		"newPassword":        "chosenpass1",
		"confirmNewPassword": "different",
	})
	assert.Equal(t, http.StatusBadRequest, code, "%v", body)

	code, _ = doJSON(t, e, http.MethodPost, "/auth/first-time-change-password", subToken, map[string]string{
		"currentPassword":    "initialpass",
		"newPassword":        "chosenpass1",
		"confirmNewPassword": "chosenpass1",
	})
	require.Equal(t, http.StatusOK, code)

	subToken = loginAs(t, e, "northsub", "chosenpass1")

	// The flag is cleared, so a second forced change is refused
	code, _ = doJSON(t, e, http.MethodPost, "/auth/first-time-change-password", subToken, map[string]string{
		"currentPassword":    "chosenpass1",
		"newPassword":        "another1234",
		"confirmNewPassword": "another1234",
	})
	assert.Equal(t, http.StatusBadRequest, code)

	var sub model.User
	require.NoError(t, db.Where("username = ?", "northsub").First(&sub).Error)
	assert.False(t, sub.MustChangePassword)
}

func TestChangeEmail(t *testing.T) {
	db, _ := setupTest(t)
	seedRoot(t, db, "root@example.com", "rootpass123")
	e := newTestServer()
	token := loginAs(t, e, "root@example.com", "rootpass123")

	code, _ := doJSON(t, e, http.MethodPost, "/auth/change-email", token, map[string]string{
		"newEmail": "new@example.com",
		"password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, body := doJSON(t, e, http.MethodPost, "/auth/change-email", token, map[string]string{
		"newEmail": "New@Example.com",
		"password": "rootpass123",
	})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "new@example.com", body["email"])

	var fresh model.User
	require.NoError(t, db.Where("email = ?", "new@example.com").First(&fresh).Error)
}

func TestForgotPasswordDoesNotRevealAccounts(t *testing.T) {
	db, _ := setupTest(t)
	seedRoot(t, db, "root@example.com", "rootpass123")
	e := newTestServer()

	code1, body1 := doJSON(t, e, http.MethodPost, "/auth/forgot-password", "", map[string]string{
		"email": "root@example.com",
	})
	code2, body2 := doJSON(t, e, http.MethodPost, "/auth/forgot-password", "", map[string]string{
		"email": "nobody@example.com",
	})

	assert.Equal(t, http.StatusOK, code1)
	assert.Equal(t, http.StatusOK, code2)
	assert.Equal(t, body1["message"], body2["message"])
}

func TestResetPasswordSingleUse(t *testing.T) {
	db, _ := setupTest(t)
	root := seedRoot(t, db, "root@example.com", "rootpass123")
	e := newTestServer()

	raw, hashed, err := newResetToken()
	require.NoError(t, err)
	expires := time.Now().Add(time.Hour)
	require.NoError(t, db.Model(root).Updates(map[string]interface{}{
		"reset_password_token":   hashed,
		"reset_password_expires": expires,
	}).Error)

	code, _ := doJSON(t, e, http.MethodPost, "/auth/reset-password", "", map[string]string{
		"token":       raw,
		"newPassword": "short",
	})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = doJSON(t, e, http.MethodPost, "/auth/reset-password", "", map[string]string{
		"token":       raw,
		"newPassword": "brandnewpass",
	})
	require.Equal(t, http.StatusOK, code)

	var fresh model.User
	require.NoError(t, db.First(&fresh, root.ID).Error)
	assert.Equal(t, root.TokenVersion+1, fresh.TokenVersion, "reset must bump the token version exactly once")
	assert.Empty(t, fresh.ResetPasswordToken)

	// A consumed token is rejected
	code, body := doJSON(t, e, http.MethodPost, "/auth/reset-password", "", map[string]string{
		"token":       raw,
		"newPassword": "anothernewpass",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid or expired reset token", body["error"])

	loginAs(t, e, "root@example.com", "brandnewpass")
}

func TestResetPasswordExpiredToken(t *testing.T) {
	db, _ := setupTest(t)
	root := seedRoot(t, db, "root@example.com", "rootpass123")
	e := newTestServer()

	raw, hashed, err := newResetToken()
	require.NoError(t, err)
	expires := time.Now().Add(-time.Minute)
	require.NoError(t, db.Model(root).Updates(map[string]interface{}{
		"reset_password_token":   hashed,
		"reset_password_expires": expires,
	}).Error)

	code, _ := doJSON(t, e, http.MethodPost, "/auth/reset-password", "", map[string]string{
		"token":       raw,
		"newPassword": "brandnewpass",
	})
	assert.Equal(t, http.StatusBadRequest, code)
}
