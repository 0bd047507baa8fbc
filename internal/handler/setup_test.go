package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"support-api/internal/middleware"
	"support-api/internal/model"
	"support-api/internal/otp"
	"support-api/internal/search"
	"support-api/pkg/config"
	"support-api/pkg/database"
	"support-api/pkg/jwtutil"
	"support-api/pkg/mailer"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// fakeSender captures outgoing OTP messages instead of hitting Twilio
type fakeSender struct {
	lastTo   string
	lastBody string
}

func (f *fakeSender) Enabled() bool { return true }

func (f *fakeSender) SendMessage(to, body string) error {
	f.lastTo = to
	f.lastBody = body
	return nil
}

// lastCode extracts the 6-digit code from the captured message
func (f *fakeSender) lastCode(t *testing.T) string {
	t.Helper()
	for i := 0; i+6 <= len(f.lastBody); i++ {
		candidate := f.lastBody[i : i+6]
		digits := true
		for _, r := range candidate {
			if r < '0' || r > '9' {
				digits = false
				break
			}
		}
		if digits {
			return candidate
		}
	}
	t.Fatalf("no code found in message: %q", f.lastBody)
	return ""
}

// setupTest wires the handler package against an in-memory database and a
// captured OTP sender.
func setupTest(t *testing.T) (*gorm.DB, *fakeSender) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.User{}, &model.Branch{}, &model.UserHitLog{}))
	database.SetDB(db)

	testCfg := &config.Config{
		Server: config.ServerConfig{Port: "0", Env: "test"},
		JWT: config.JWTConfig{
			AccessSecret:  "handler-test-secret",
			AccessExpires: 15 * time.Minute,
			OTPSecret:     "handler-test-secret",
			OTPExpires:    10 * time.Minute,
		},
		OTP: config.OTPConfig{DefaultChannel: "sms", Expiry: 5 * time.Minute},
		Search: config.SearchConfig{
			DefaultWaLink:      "https://wa.link/default",
			ForceWaLinkURL:     "https://wa.link/special",
			ForceWaLinkUserIDs: []string{"VIP1"},
		},
	}
	jwtutil.Initialize(&testCfg.JWT)

	sender := &fakeSender{}
	svc := otp.NewService(&testCfg.OTP, nil, sender, otp.NewMemoryStore())
	resolver := search.NewResolver(&testCfg.Search)
	Initialize(testCfg, svc, resolver, mailer.NewMailer(&testCfg.Email))

	return db, sender
}

// newTestServer mounts the routes the way the server binary does
func newTestServer() *echo.Echo {
	e := echo.New()

	auth := e.Group("/auth")
	auth.POST("/login", Login)
	auth.POST("/forgot-password", ForgotPassword)
	auth.POST("/reset-password", ResetPassword)
	auth.GET("/me", Me, middleware.RequireAuth)
	auth.POST("/logout", Logout, middleware.RequireAuth)
	auth.POST("/change-email", ChangeEmail, middleware.RequireAuth, middleware.RequireRoot)
	auth.POST("/change-password", ChangePassword, middleware.RequireAuth, middleware.RequireRoot)
	auth.POST("/first-time-change-password", FirstTimeChangePassword, middleware.RequireAuth)

	searchGroup := e.Group("/search")
	searchGroup.POST("/otp/start", StartOTPVerification)
	searchGroup.POST("/otp/verify", VerifyOTPCode)
	searchGroup.GET("", SearchByUserID)
	searchGroup.GET("/:userId", SearchByUserID)
	searchGroup.GET("/:userId/redirect", RedirectByUserID)

	api := e.Group("/api", middleware.RequireAuth)

	admins := api.Group("/admins", middleware.RequireRoot)
	admins.POST("", CreateSubAdmin)
	admins.GET("", ListSubAdmins)
	admins.PATCH("/:id", UpdateSubAdmin)
	admins.POST("/:id/reset-password", ResetSubAdminPassword)
	admins.DELETE("/:id", DeactivateSubAdmin)

	branches := api.Group("/branches", middleware.RequireRoot)
	branches.POST("", CreateBranch)
	branches.GET("", ListBranches)
	branches.GET("/:id", GetBranch)
	branches.PATCH("/:id", UpdateBranch)
	branches.DELETE("/:id", DeleteBranch)

	clients := api.Group("/clients")
	clients.POST("", CreateClient, middleware.RequireSubAdmin)
	clients.GET("", ListClients, middleware.RequireSubAdminOrRoot)
	clients.GET("/stats", GetClientStats, middleware.RequireSubAdmin)
	clients.GET("/:clientId", GetClient, middleware.RequireSubAdmin, middleware.VerifyClientOwnership)
	clients.PATCH("/:clientId", UpdateClient, middleware.RequireSubAdmin, middleware.VerifyClientOwnership)
	clients.DELETE("/:clientId", DeleteClient, middleware.RequireSubAdmin, middleware.VerifyClientOwnership)
	clients.POST("/:clientId/reset-password", ResetClientPassword, middleware.RequireSubAdmin, middleware.VerifyClientOwnership)

	api.GET("/users", ListUsers, middleware.RequireRoot)
	analytics := api.Group("/analytics", middleware.RequireSubAdminOrRoot)
	analytics.GET("/visit-logs", GetVisitLogs)
	analytics.GET("/realtime-stats", GetRealtimeStats)

	return e
}

// doJSON performs a request against the test server and decodes the JSON body
func doJSON(t *testing.T, e *echo.Echo, method, path, token string, body interface{}) (int, map[string]interface{}) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = strings.NewReader(string(raw))
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var decoded map[string]interface{}
	if rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &decoded)
	}
	return rec.Code, decoded
}

// seedRoot creates an active root administrator with the given credentials
func seedRoot(t *testing.T, db *gorm.DB, email, password string) *model.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	normalized := model.NormalizeIdentifier(email)
	root := &model.User{
		UserID:       "ROOT-ADMIN",
		Email:        &normalized,
		PasswordHash: string(hash),
		Role:         model.RoleRoot,
		IsActive:     true,
	}
	require.NoError(t, db.Create(root).Error)
	return root
}

// loginAs logs in through the API and returns the access token
func loginAs(t *testing.T, e *echo.Echo, identifier, password string) string {
	t.Helper()
	code, body := doJSON(t, e, http.MethodPost, "/auth/login", "", map[string]string{
		"identifier": identifier,
		"password":   password,
	})
	require.Equal(t, http.StatusOK, code, "login failed: %v", body)
	token, _ := body["accessToken"].(string)
	require.NotEmpty(t, token)
	return token
}
