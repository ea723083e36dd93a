package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/labelpizza/backend/internal/models"
	"github.com/labelpizza/backend/internal/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
	utils.SetJWTSecret("test-secret-for-middleware-testing")
}

func protectedRouter() *gin.Engine {
	router := gin.New()
	router.Use(AuthRequired())
	router.GET("/api/me", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"user_id":  GetUserID(c),
			"username": GetUsername(c),
			"role":     GetRole(c),
		})
	})
	return router
}

func TestAuthRequired_Rejections(t *testing.T) {
	router := protectedRouter()

	tests := []struct {
		name   string
		header string
	}{
		{"no header", ""},
		{"no scheme", "InvalidToken"},
		{"basic scheme", "Basic dXNlcjpwYXNz"},
		{"empty bearer", "Bearer "},
		{"bearer only", "Bearer"},
		{"garbage token", "Bearer invalid.jwt.token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest("GET", "/api/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			router.ServeHTTP(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Errorf("expected status %d, got %d", http.StatusUnauthorized, w.Code)
			}
			var body map[string]interface{}
			json.Unmarshal(w.Body.Bytes(), &body)
			if body["code"] != float64(401) {
				t.Errorf("body = %v, expected code 401", body)
			}
		})
	}
}

func TestAuthRequired_ValidToken(t *testing.T) {
	token, err := utils.GenerateToken(7, "annotator", models.UserTypeHuman, 1)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	protectedRouter().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	var body struct {
		UserID   uint   `json:"user_id"`
		Username string `json:"username"`
		Role     string `json:"role"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.UserID != 7 || body.Username != "annotator" || body.Role != models.UserTypeHuman {
		t.Errorf("claims on context = %+v", body)
	}
}

func TestAdminRequired(t *testing.T) {
	tests := []struct {
		name     string
		role     string
		expected int
	}{
		{"no role", "", http.StatusForbidden},
		{"human", models.UserTypeHuman, http.StatusForbidden},
		{"model", models.UserTypeModel, http.StatusForbidden},
		{"admin", models.UserTypeAdmin, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.Use(func(c *gin.Context) {
				if tt.role != "" {
					c.Set(ContextRole, tt.role)
				}
				c.Next()
			})
			router.Use(AdminRequired())
			router.GET("/api/admin/users", func(c *gin.Context) {
				c.JSON(200, gin.H{"status": "ok"})
			})

			w := httptest.NewRecorder()
			req, _ := http.NewRequest("GET", "/api/admin/users", nil)
			router.ServeHTTP(w, req)

			if w.Code != tt.expected {
				t.Errorf("expected status %d, got %d", tt.expected, w.Code)
			}
		})
	}
}

func TestContextGetters(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	if id := GetUserID(c); id != 0 {
		t.Errorf("expected 0 for missing user_id, got %d", id)
	}
	if name := GetUsername(c); name != "" {
		t.Errorf("expected empty username, got %q", name)
	}

	c.Set(ContextUserID, 42)
	if id := GetUserID(c); id != 0 {
		t.Errorf("expected 0 for a non-uint user_id, got %d", id)
	}
	c.Set(ContextUserID, uint(42))
	c.Set(ContextUsername, "reviewer")
	c.Set(ContextRole, models.UserTypeAdmin)
	if GetUserID(c) != 42 || GetUsername(c) != "reviewer" || GetRole(c) != models.UserTypeAdmin {
		t.Errorf("getters = %d %q %q", GetUserID(c), GetUsername(c), GetRole(c))
	}
}
