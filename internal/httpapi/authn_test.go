package httpapi

import (
	"testing"
)

func TestExtractBearerToken(t *testing.T) {
	token, err := extractBearerToken("Bearer abc123")
	if err != nil || token != "abc123" {
		t.Fatalf("got %q, %v", token, err)
	}

	token, err = extractBearerToken("bearer abc123")
	if err != nil || token != "abc123" {
		t.Fatalf("scheme should be case-insensitive: %q, %v", token, err)
	}

	if _, err := extractBearerToken(""); err == nil {
		t.Fatal("expected error for empty header")
	}
	if _, err := extractBearerToken("Basic dXNlcjpwYXNz"); err == nil {
		t.Fatal("expected error for wrong scheme")
	}
	if _, err := extractBearerToken("Bearer "); err == nil {
		t.Fatal("expected error for missing token")
	}
}

func TestIsPublicPath(t *testing.T) {
	public := []string{"/healthz", "/readyz", "/metrics", "/openapi.yaml", "/v1/auth/token", "/v1/users", "/v1/taxonomy", "/"}
	for _, p := range public {
		if !isPublicPath(p) {
			t.Fatalf("%s should be public", p)
		}
	}
	private := []string{"/v1/issues", "/v1/users/abc", "/v1/leaderboard", "/v1/stream"}
	for _, p := range private {
		if isPublicPath(p) {
			t.Fatalf("%s should require auth", p)
		}
	}
}
