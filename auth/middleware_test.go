package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func echoPrincipal() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(PrincipalFromContext(r.Context())))
	})
}

func TestMiddleware_NilAuthenticatorIsAnonymous(t *testing.T) {
	rec := httptest.NewRecorder()
	Middleware(nil, nil)(echoPrincipal()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK || rec.Body.String() != "anonymous" {
		t.Errorf("got %d %q", rec.Code, rec.Body.String())
	}
}

func TestMiddleware(t *testing.T) {
	store := NewMemoryAPIKeyStore()
	store.AddKey("k1", "svc", "good")
	h := Middleware(NewAPIKeyAuthenticator("", store), nil)(echoPrincipal())

	tests := []struct {
		name     string
		key      string
		wantCode int
		wantBody string
		wantErr  string
	}{
		{name: "accepted", key: "good", wantCode: http.StatusOK, wantBody: "svc"},
		{name: "rejected", key: "bad", wantCode: http.StatusUnauthorized, wantErr: ErrInvalidCredentials.Error()},
		{name: "missing", wantCode: http.StatusUnauthorized, wantErr: ErrMissingCredentials.Error()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/chat/context", nil)
			if tt.key != "" {
				req.Header.Set(DefaultAPIKeyHeader, tt.key)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if tt.wantCode == http.StatusOK {
				if rec.Body.String() != tt.wantBody {
					t.Errorf("body = %q, want %q", rec.Body.String(), tt.wantBody)
				}
				return
			}
			if rec.Header().Get("WWW-Authenticate") == "" {
				t.Error("missing WWW-Authenticate header")
			}
			var body map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body["error"] != tt.wantErr {
				t.Errorf("error = %q, want %q", body["error"], tt.wantErr)
			}
		})
	}
}
