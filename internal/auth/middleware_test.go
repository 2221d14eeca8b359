package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func protectedRouter(t *testing.T, level int) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/protected", Require(level, testKey, "schooltrack"), func(c *gin.Context) {
		claims, ok := FromContext(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, gin.H{"user_id": claims.OperatorID})
	})
	return r
}

func issueFor(t *testing.T, role string) string {
	t.Helper()
	token, _, err := Issue(7, "someone", role, "schooltrack", testKey, time.Hour)
	require.NoError(t, err)
	return token
}

func TestRequireWithoutCredentials(t *testing.T) {
	r := protectedRouter(t, LevelTeacher)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/protected", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequireWithInvalidToken(t *testing.T) {
	r := protectedRouter(t, LevelTeacher)
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequireWithInsufficientLevel(t *testing.T) {
	r := protectedRouter(t, LevelAdmin)
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+issueFor(t, RoleITStaff))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequireAllowsSufficientLevel(t *testing.T) {
	r := protectedRouter(t, LevelITStaff)
	for _, role := range []string{RoleITStaff, RoleAdmin} {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+issueFor(t, role))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, "role %s", role)
	}
}

func TestRequireAcceptsQueryToken(t *testing.T) {
	// Browser websocket clients cannot set headers.
	r := protectedRouter(t, LevelTeacher)
	req := httptest.NewRequest(http.MethodGet, "/protected?token="+issueFor(t, RoleTeacher), nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
