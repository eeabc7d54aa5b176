package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testKey    = "signing-key"
	testIssuer = "backoffice"
)

func TestIssueAndParse(t *testing.T) {
	tok, err := Issue("admin-1", RoleAdmin, "Siti", testIssuer, testKey, time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), tok.AccessExp, 5*time.Second)

	claims, err := Parse(tok.AccessToken, testKey, testIssuer)
	require.NoError(t, err)
	assert.Equal(t, "admin-1", claims.Subject)
	assert.Equal(t, RoleAdmin, claims.Role)
	assert.Equal(t, "Siti", claims.Actor())
}

func TestActorFallsBackToSubject(t *testing.T) {
	assert.Equal(t, "admin-1", Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "admin-1"}}.Actor())
}

func TestParseRejects(t *testing.T) {
	valid, err := Issue("admin-1", RoleAdmin, "", testIssuer, testKey, time.Hour)
	require.NoError(t, err)
	expired, err := Issue("admin-1", RoleAdmin, "", testIssuer, testKey, -time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name   string
		token  string
		key    string
		issuer string
	}{
		{name: "wrong key", token: valid.AccessToken, key: "other", issuer: testIssuer},
		{name: "wrong issuer", token: valid.AccessToken, key: testKey, issuer: "elsewhere"},
		{name: "expired", token: expired.AccessToken, key: testKey, issuer: testIssuer},
		{name: "garbage", token: "abc.def.ghi", key: testKey, issuer: testIssuer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.token, tt.key, tt.issuer)
			assert.Error(t, err)
		})
	}

	_, err = Issue("", RoleAdmin, "", testIssuer, testKey, time.Hour)
	assert.Error(t, err)
}

func TestAdminAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	admin, err := Issue("admin-1", RoleAdmin, "Siti", testIssuer, testKey, time.Hour)
	require.NoError(t, err)
	viewer, err := Issue("viewer-1", "viewer", "", testIssuer, testKey, time.Hour)
	require.NoError(t, err)

	r := gin.New()
	r.GET("/v1/me", AdminAuth(testKey, testIssuer, RoleAdmin, RoleStaff), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"actor": ActorFrom(c)})
	})

	tests := []struct {
		name     string
		header   string
		wantCode int
		wantErr  string
	}{
		{name: "no header", wantCode: http.StatusUnauthorized, wantErr: "UNAUTHORIZED"},
		{name: "not bearer", header: "Basic abc", wantCode: http.StatusUnauthorized, wantErr: "UNAUTHORIZED"},
		{name: "bad token", header: "Bearer nope", wantCode: http.StatusUnauthorized, wantErr: "UNAUTHORIZED"},
		{name: "wrong role", header: "Bearer " + viewer.AccessToken, wantCode: http.StatusForbidden, wantErr: "FORBIDDEN"},
		{name: "admin", header: "bearer " + admin.AccessToken, wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			require.Equal(t, tt.wantCode, w.Code)

			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			if tt.wantErr != "" {
				assert.Equal(t, tt.wantErr, body["error"].(map[string]any)["code"])
				return
			}
			assert.Equal(t, "Siti", body["actor"])
		})
	}
}

func TestActorFromWithoutClaims(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Equal(t, "", ActorFrom(c))
}
