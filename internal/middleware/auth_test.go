package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"backoffice/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("test-secret")

func sign(t *testing.T, key []byte, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	require.NoError(t, err)
	return tok
}

func TestParseTokenRoles(t *testing.T) {
	id := uuid.New()

	actor, err := ParseToken(secret, sign(t, secret, jwt.MapClaims{"sub": id.String(), "role": "staff"}))
	require.NoError(t, err)
	assert.Equal(t, id, actor.ID)
	assert.True(t, actor.Has(model.RoleStaff))

	actor, err = ParseToken(secret, sign(t, secret, jwt.MapClaims{"sub": id.String(), "roles": []string{"admin", "system"}}))
	require.NoError(t, err)
	assert.True(t, actor.Has(model.RoleAdmin))
	assert.False(t, actor.Has(model.RoleSystem))

	_, err = ParseToken(secret, sign(t, secret, jwt.MapClaims{"sub": id.String(), "role": "system"}))
	assert.Error(t, err)

	_, err = ParseToken(secret, sign(t, []byte("other"), jwt.MapClaims{"sub": id.String(), "role": "staff"}))
	assert.Error(t, err)

	_, err = ParseToken(secret, sign(t, secret, jwt.MapClaims{"sub": "not-a-uuid", "role": "staff"}))
	assert.Error(t, err)

	_, err = ParseToken(secret, sign(t, secret, jwt.MapClaims{
		"sub":  id.String(),
		"role": "staff",
		"exp":  time.Now().Add(-time.Hour).Unix(),
	}))
	assert.Error(t, err)
}

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/staff", Authenticate(secret), RequireRole(model.RoleAdmin, model.RoleStaff), func(c *gin.Context) {
		actor, _ := ActorFrom(c)
		c.String(http.StatusOK, actor.ID.String())
	})
	return r
}

func TestAuthenticateAndRequireRole(t *testing.T) {
	r := newRouter()
	id := uuid.New()

	tests := []struct {
		name   string
		setup  func(req *http.Request)
		status int
	}{
		{"missing token", func(req *http.Request) {}, http.StatusUnauthorized},
		{"bad header", func(req *http.Request) { req.Header.Set("Authorization", "Token abc") }, http.StatusUnauthorized},
		{"client forbidden", func(req *http.Request) {
			req.Header.Set("Authorization", "Bearer "+sign(t, secret, jwt.MapClaims{"sub": id.String(), "role": "client"}))
		}, http.StatusForbidden},
		{"staff bearer", func(req *http.Request) {
			req.Header.Set("Authorization", "Bearer "+sign(t, secret, jwt.MapClaims{"sub": id.String(), "role": "staff"}))
		}, http.StatusOK},
		{"admin cookie", func(req *http.Request) {
			req.AddCookie(&http.Cookie{Name: "access_token", Value: sign(t, secret, jwt.MapClaims{"sub": id.String(), "role": "admin"})})
		}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/staff", nil)
			tt.setup(req)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, id.String(), w.Body.String())
			}
		})
	}
}
