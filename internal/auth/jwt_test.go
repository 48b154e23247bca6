package auth

import (
	"testing"
	"time"

	"doc_gateway/internal/config"
)

func getTestConfig() *config.Config {
	return &config.Config{
		JWTSecret: []byte("test-secret-key-for-testing"),
	}
}

func TestGenerateAndValidateAdminJWT(t *testing.T) {
	cfg := getTestConfig()

	token, exp, err := GenerateAdminJWT("admin-1", "admin@example.com", cfg)
	if err != nil {
		t.Fatalf("GenerateAdminJWT() error = %v", err)
	}
	if token == "" {
		t.Fatal("GenerateAdminJWT() returned empty token")
	}
	if exp <= time.Now().Unix() {
		t.Errorf("token expiry %d is not in the future", exp)
	}

	claims, err := ValidateAdminJWT(token, cfg)
	if err != nil {
		t.Fatalf("ValidateAdminJWT() error = %v", err)
	}
	if claims.AdminID != "admin-1" {
		t.Errorf("AdminID = %q, want admin-1", claims.AdminID)
	}
	if claims.Email != "admin@example.com" {
		t.Errorf("Email = %q, want admin@example.com", claims.Email)
	}
}

func TestValidateAdminJWT_WrongSecret(t *testing.T) {
	cfg := getTestConfig()

	token, _, err := GenerateAdminJWT("admin-1", "admin@example.com", cfg)
	if err != nil {
		t.Fatalf("GenerateAdminJWT() error = %v", err)
	}

	other := &config.Config{JWTSecret: []byte("a-different-secret")}
	if _, err := ValidateAdminJWT(token, other); err == nil {
		t.Error("ValidateAdminJWT() accepted token signed with another secret")
	}
}

func TestValidateAdminJWT_Garbage(t *testing.T) {
	if _, err := ValidateAdminJWT("not-a-jwt", getTestConfig()); err == nil {
		t.Error("ValidateAdminJWT() accepted garbage input")
	}
}
