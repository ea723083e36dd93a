package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/labelpizza/backend/internal/services"
)

const maxAuditBody = 2000

var sensitiveKeys = map[string]bool{
	"password":     true,
	"old_password": true,
	"new_password": true,
	"secret":       true,
	"token":        true,
}

// AuditLog records write requests (POST, PUT, PATCH, DELETE) to system_logs
// once the handler has run. It is mounted on the admin routes.
func AuditLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		method := c.Request.Method
		if method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions {
			c.Next()
			return
		}

		var body string
		if c.Request.Body != nil {
			raw, _ := io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewReader(raw))
			body = maskBody(raw)
		}

		c.Next()

		userID := GetUserID(c)
		status := c.Writer.Status()
		module, action := parseRouteInfo(c.FullPath(), method)

		var uid *uint
		if userID > 0 {
			uid = &userID
		}
		extra := map[string]interface{}{
			"method": method,
			"path":   c.Request.URL.Path,
			"status": status,
			"body":   body,
		}
		message := formatAuditMessage(GetUsername(c), method, c.Request.URL.Path, status)
		if status >= http.StatusBadRequest {
			services.LogWarning(module, action, message, uid, c.ClientIP(), c.Request.UserAgent(), extra)
			return
		}
		services.LogInfo(module, action, message, uid, c.ClientIP(), c.Request.UserAgent(), extra)
	}
}

// parseRouteInfo maps a route pattern to a module and action, e.g.
// "/api/admin/questions/:id" + PUT gives ("questions", "update").
func parseRouteInfo(fullPath, method string) (module, action string) {
	path := strings.TrimPrefix(fullPath, "/api/")
	path = strings.TrimPrefix(path, "admin/")

	module, _, _ = strings.Cut(path, "/")
	if module == "" {
		module = "unknown"
	}

	switch method {
	case http.MethodPost:
		action = "create"
	case http.MethodPut, http.MethodPatch:
		action = "update"
	case http.MethodDelete:
		action = "delete"
	default:
		action = strings.ToLower(method)
	}
	if strings.HasSuffix(fullPath, "/archive") {
		action = "archive"
	}
	return module, action
}

func formatAuditMessage(username, method, path string, status int) string {
	outcome := "ok"
	if status >= http.StatusBadRequest {
		outcome = fmt.Sprintf("failed (%d)", status)
	}
	if username == "" {
		username = "anonymous"
	}
	return fmt.Sprintf("%s %s %s: %s", username, method, path, outcome)
}

// maskBody hides credential fields of a JSON body and truncates the result.
// Bodies that are not JSON objects are kept as text.
func maskBody(raw []byte) string {
	var doc map[string]interface{}
	text := string(raw)
	if err := json.Unmarshal(raw, &doc); err == nil {
		maskValue(doc)
		if b, err := json.Marshal(doc); err == nil {
			text = string(b)
		}
	}
	if len(text) > maxAuditBody {
		text = text[:maxAuditBody] + "...[truncated]"
	}
	return text
}

func maskValue(v interface{}) {
	switch val := v.(type) {
	case map[string]interface{}:
		for k, inner := range val {
			if sensitiveKeys[strings.ToLower(k)] {
				val[k] = "***"
				continue
			}
			maskValue(inner)
		}
	case []interface{}:
		for _, inner := range val {
			maskValue(inner)
		}
	}
}
