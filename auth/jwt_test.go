package auth

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("test-secret-key-at-least-32-bytes!")

func signToken(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}
	return s
}

func bearerRequest(token string) *AuthRequest {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	return &AuthRequest{Headers: h}
}

func TestJWTAuthenticator_Supports(t *testing.T) {
	a := NewJWTAuthenticator(JWTConfig{Secret: testSecret})

	tests := []struct {
		header string
		want   bool
	}{
		{"", false},
		{"Basic dXNlcjpwYXNz", false},
		{"Bearer ", false},
		{"Bearer abc", true},
		{"bearer abc", true},
	}
	for _, tt := range tests {
		h := http.Header{}
		if tt.header != "" {
			h.Set("Authorization", tt.header)
		}
		if got := a.Supports(context.Background(), &AuthRequest{Headers: h}); got != tt.want {
			t.Errorf("Supports(%q) = %v, want %v", tt.header, got, tt.want)
		}
	}
}

func TestJWTAuthenticator_ValidToken(t *testing.T) {
	a := NewJWTAuthenticator(JWTConfig{Secret: testSecret, Issuer: "tariff", Audience: "chat"})
	exp := time.Now().Add(time.Hour).Truncate(time.Second)

	token := signToken(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{
		"sub":   "user-1",
		"iss":   "tariff",
		"aud":   "chat",
		"exp":   exp.Unix(),
		"roles": []string{"analyst", "admin"},
	})

	result, err := a.Authenticate(context.Background(), bearerRequest(token))
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if !result.Authenticated {
		t.Fatalf("Authenticated = false, error = %v", result.Error)
	}
	id := result.Identity
	if id.Principal != "user-1" {
		t.Errorf("Principal = %q", id.Principal)
	}
	if !id.HasRole("analyst") || !id.HasRole("admin") {
		t.Errorf("Roles = %v", id.Roles)
	}
	if !id.ExpiresAt.Equal(exp) {
		t.Errorf("ExpiresAt = %v, want %v", id.ExpiresAt, exp)
	}
	if result.Method != AuthMethodJWT {
		t.Errorf("Method = %v", result.Method)
	}
}

func TestJWTAuthenticator_Rejections(t *testing.T) {
	a := NewJWTAuthenticator(JWTConfig{Secret: testSecret, Issuer: "tariff"})
	future := time.Now().Add(time.Hour).Unix()

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{
			name:    "expired",
			token:   signToken(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{"sub": "u", "iss": "tariff", "exp": time.Now().Add(-time.Hour).Unix()}),
			wantErr: ErrTokenExpired,
		},
		{
			name:    "wrong secret",
			token:   signToken(t, jwt.SigningMethodHS256, []byte("another-secret-another-secret-xx"), jwt.MapClaims{"sub": "u", "iss": "tariff", "exp": future}),
			wantErr: ErrInvalidCredentials,
		},
		{
			name:    "wrong issuer",
			token:   signToken(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{"sub": "u", "iss": "other", "exp": future}),
			wantErr: ErrInvalidCredentials,
		},
		{
			name:    "missing subject",
			token:   signToken(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{"iss": "tariff", "exp": future}),
			wantErr: ErrInvalidCredentials,
		},
		{
			name:    "none algorithm",
			token:   signToken(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, jwt.MapClaims{"sub": "u", "iss": "tariff"}),
			wantErr: ErrInvalidCredentials,
		},
		{
			name:    "garbage",
			token:   "not.a.jwt",
			wantErr: ErrTokenMalformed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := a.Authenticate(context.Background(), bearerRequest(tt.token))
			if err != nil {
				t.Fatalf("Authenticate() error = %v", err)
			}
			if result.Authenticated {
				t.Fatal("Authenticated = true, want false")
			}
			if !errors.Is(result.Error, tt.wantErr) {
				t.Errorf("Error = %v, want %v", result.Error, tt.wantErr)
			}
		})
	}
}
