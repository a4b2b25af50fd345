package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qhuy1504/smart-tro-server/internal/pkg/jwt"
	"github.com/qhuy1504/smart-tro-server/internal/pkg/response"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testJWTSecret = "test-secret-key-for-middleware"

func parseResponse(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	var resp response.Response
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	return resp
}

func authRouter() *gin.Engine {
	router := gin.New()
	router.Use(Auth(testJWTSecret))
	router.GET("/test", func(c *gin.Context) {
		userID, _ := GetUserID(c)
		c.JSON(http.StatusOK, gin.H{"user_id": userID})
	})
	return router
}

func TestAuth_Success(t *testing.T) {
	token, err := jwt.GenerateToken(123, "tenant", testJWTSecret, 24*time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "bearer "+token)
	w := httptest.NewRecorder()
	authRouter().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user_id":123}`, w.Body.String())
}

func TestAuth_Rejected(t *testing.T) {
	other, err := jwt.GenerateToken(123, "tenant", "another-secret", 24*time.Hour)
	require.NoError(t, err)
	expired, err := jwt.GenerateToken(123, "tenant", testJWTSecret, -time.Hour)
	require.NoError(t, err)

	cases := map[string]struct {
		header  string
		message string
	}{
		"missing":      {"", "请提供认证信息"},
		"no bearer":    {"Token abc", "请提供认证信息"},
		"empty bearer": {"Bearer ", "请提供认证信息"},
		"garbage":      {"Bearer not-a-jwt", "认证失败"},
		"wrong secret": {"Bearer " + other, "认证失败"},
		"expired":      {"Bearer " + expired, "登录已过期"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/test", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			authRouter().ServeHTTP(w, req)

			resp := parseResponse(t, w)
			assert.Equal(t, response.CodeAuthFailed, resp.Code)
			assert.Equal(t, tc.message, resp.Message)
		})
	}
}

func TestGetUserID_Missing(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	_, ok := GetUserID(c)
	assert.False(t, ok)

	c.Set(UserIDKey, "42")
	_, ok = GetUserID(c)
	assert.False(t, ok)
}
