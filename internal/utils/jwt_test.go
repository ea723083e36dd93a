package utils

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func init() {
	SetJWTSecret("labelpizza-utils-test-secret")
}

func TestToken_RoundTripPerUserType(t *testing.T) {
	tests := []struct {
		name     string
		userID   uint
		username string
		role     string
	}{
		{"human annotator", 3, "annotator", "human"},
		{"model account", 9, "yolo-v8", "model"},
		{"global admin", 1, "admin", "admin"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := GenerateToken(tt.userID, tt.username, tt.role, 1)
			if err != nil {
				t.Fatalf("GenerateToken() error = %v", err)
			}
			claims, err := ParseToken(token)
			if err != nil {
				t.Fatalf("ParseToken() error = %v", err)
			}
			if claims.UserID != tt.userID || claims.Username != tt.username || claims.Role != tt.role {
				t.Errorf("claims = %d %q %q", claims.UserID, claims.Username, claims.Role)
			}
			if claims.Issuer != "labelpizza" {
				t.Errorf("issuer = %q", claims.Issuer)
			}
			if left := time.Until(claims.ExpiresAt.Time); left <= 59*time.Minute || left > time.Hour {
				t.Errorf("expires in %v, expected about an hour", left)
			}
		})
	}
}

func TestParseToken_Rejects(t *testing.T) {
	good, _ := GenerateToken(5, "reviewer", "human", 1)
	expired, _ := GenerateToken(5, "reviewer", "human", -1)

	parts := strings.Split(good, ".")
	tampered := parts[0] + "." + parts[1] + "x." + parts[2]

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: 1, Role: "admin"})
	unsigned, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)

	SetJWTSecret("another-secret")
	foreign, _ := GenerateToken(5, "reviewer", "human", 1)
	SetJWTSecret("labelpizza-utils-test-secret")

	tests := map[string]string{
		"empty":          "",
		"garbage":        "not.a.token",
		"expired":        expired,
		"tampered":       tampered,
		"alg none":       unsigned,
		"foreign secret": foreign,
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseToken(token); err == nil {
				t.Errorf("ParseToken(%s) accepted an invalid token", name)
			}
		})
	}
}

func TestGenerateToken_DistinctPerUser(t *testing.T) {
	a, _ := GenerateToken(1, "annotator", "human", 24)
	b, _ := GenerateToken(2, "annotator2", "human", 24)
	if a == b {
		t.Error("tokens for different users should differ")
	}
}
