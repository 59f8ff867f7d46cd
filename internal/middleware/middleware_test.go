package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/issuetrack/backend/internal/model"
	"github.com/issuetrack/backend/internal/service"
)

type tokenTable map[string]*model.User

func (t tokenTable) Authenticate(_ context.Context, token string) (*model.User, error) {
	if u, ok := t[token]; ok {
		return u, nil
	}
	return nil, &service.CodedError{Code: 40103, Msg: "invalid or expired token", Kind: service.ErrUnauthorized}
}

func newEngine(auth Authenticator, extra ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers := append([]gin.HandlerFunc{AuthMiddleware(auth)}, extra...)
	handlers = append(handlers, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": GetCurrentUserID(c)})
	})
	r.GET("/whoami", handlers...)
	return r
}

func call(r *gin.Engine, header string) (int, map[string]interface{}) {
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var body map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w.Code, body
}

func TestAuthMiddleware(t *testing.T) {
	tokens := tokenTable{"good": {ID: 7, Role: model.GlobalDeveloper}}
	r := newEngine(tokens)

	tests := []struct {
		name   string
		header string
		status int
		code   float64
	}{
		{"missing header", "", http.StatusUnauthorized, 40100},
		{"no bearer prefix", "good", http.StatusUnauthorized, 40100},
		{"empty token", "Bearer ", http.StatusUnauthorized, 40100},
		{"unknown token", "Bearer nope", http.StatusUnauthorized, 40103},
		{"valid token", "Bearer good", http.StatusOK, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := call(r, tt.header)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, body["code"])
		})
	}

	_, body := call(r, "Bearer good")
	assert.Equal(t, float64(7), body["data"])
}

func TestRequireSuperadmin(t *testing.T) {
	tokens := tokenTable{
		"root":  {ID: 1, Role: model.GlobalSuperadmin},
		"owner": {ID: 2, Role: model.GlobalOwner},
	}
	r := newEngine(tokens, RequireSuperadmin())

	status, _ := call(r, "Bearer root")
	assert.Equal(t, http.StatusOK, status)

	status, body := call(r, "Bearer owner")
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, float64(40301), body["code"])
}

func TestRequireGlobalRoleAdmitsListedRoles(t *testing.T) {
	tokens := tokenTable{
		"owner": {ID: 2, Role: model.GlobalOwner},
		"dev":   {ID: 3, Role: model.GlobalDeveloper},
	}
	r := newEngine(tokens, RequireGlobalRole(model.GlobalOwner))

	status, _ := call(r, "Bearer owner")
	assert.Equal(t, http.StatusOK, status)
	status, _ = call(r, "Bearer dev")
	assert.Equal(t, http.StatusForbidden, status)
}

func TestGetCurrentUserWithoutAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	require.Nil(t, GetCurrentUser(c))
	assert.Equal(t, uint(0), GetCurrentUserID(c))
}
