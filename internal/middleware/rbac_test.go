package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/reuseworks/volsched-api/internal/models"
)

func rbacRequest(t *testing.T, mw gin.HandlerFunc, claims *models.JWTClaims, paramID string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/profiles/"+paramID, nil)
	c.Params = gin.Params{{Key: "id", Value: paramID}}
	if claims != nil {
		c.Set(ContextUserKey, claims)
	}

	mw(c)
	if !c.IsAborted() {
		c.Status(http.StatusOK)
	}
	return w
}

func TestRBACAllowsRole(t *testing.T) {
	claims := &models.JWTClaims{Role: models.RoleCoordinator}
	w := rbacRequest(t, RBAC("ADMIN", "COORDINATOR"), claims, "p-1")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRBACRejectsRole(t *testing.T) {
	claims := &models.JWTClaims{Role: models.RoleVolunteer}
	w := rbacRequest(t, RBAC("ADMIN", "COORDINATOR"), claims, "p-1")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRBACSelfMatchesOwnProfile(t *testing.T) {
	claims := &models.JWTClaims{Role: models.RoleVolunteer, ProfileID: "p-1"}
	w := rbacRequest(t, RBAC("ADMIN", "SELF"), claims, "p-1")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRBACSelfRejectsOtherProfile(t *testing.T) {
	claims := &models.JWTClaims{Role: models.RoleVolunteer, ProfileID: "p-1"}
	w := rbacRequest(t, RBAC("ADMIN", "SELF"), claims, "p-2")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRBACMissingClaims(t *testing.T) {
	w := rbacRequest(t, RBAC("ADMIN"), nil, "p-1")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireRolesMapsToRBAC(t *testing.T) {
	claims := &models.JWTClaims{Role: models.RoleAdmin}
	w := rbacRequest(t, RequireRoles(models.RoleAdmin), claims, "p-1")
	assert.Equal(t, http.StatusOK, w.Code)
}
