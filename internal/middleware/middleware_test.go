package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/vaxsync/vaxsync-backend/internal/config"
	"github.com/vaxsync/vaxsync-backend/internal/model"
	"github.com/vaxsync/vaxsync-backend/internal/response"
	"github.com/vaxsync/vaxsync-backend/internal/service"
)

const testSecret = "middleware-test-secret"

func newAuth() *service.AuthService {
	return service.NewAuthService(&config.Config{JWTSecret: testSecret, JWTExpiry: time.Hour})
}

func mustToken(t *testing.T, auth *service.AuthService, role model.Role) string {
	t.Helper()
	var school *model.School
	if role == model.RoleSchoolNurse {
		school = &model.School{ID: uuid.New(), Code: "NORTH"}
	}
	tok, err := auth.GenerateStaffToken("staff-7", role, school, time.Hour)
	if err != nil {
		t.Fatalf("GenerateStaffToken: %v", err)
	}
	return tok
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) response.ErrCode {
	t.Helper()
	var body response.Response
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", w.Body.String(), err)
	}
	if body.Error == nil {
		return ""
	}
	return body.Error.Code
}

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x", handlers...)
	return r
}

func ok(c *gin.Context) {
	c.String(http.StatusOK, Actor(c))
}

func TestRequireStaffJWT(t *testing.T) {
	auth := newAuth()
	r := newRouter(RequireStaffJWT(auth), ok)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, service.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "staff-7",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
		Role: model.RoleAdmin,
	})
	expiredStr, err := expired.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		header   string
		wantCode int
		wantErr  response.ErrCode
	}{
		{"missing", "", http.StatusUnauthorized, response.ErrTokenRequired},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized, response.ErrTokenRequired},
		{"garbage", "Bearer nope", http.StatusUnauthorized, response.ErrTokenInvalid},
		{"expired", "Bearer " + expiredStr, http.StatusUnauthorized, response.ErrTokenExpired},
		{"valid", "Bearer " + mustToken(t, auth, model.RoleViewer), http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantCode)
			}
			if tt.wantErr != "" {
				if got := errorCode(t, w); got != tt.wantErr {
					t.Errorf("code = %s, want %s", got, tt.wantErr)
				}
			} else if w.Body.String() != "staff-7" {
				t.Errorf("actor = %q", w.Body.String())
			}
		})
	}
}

func TestRequireWSAuth(t *testing.T) {
	auth := newAuth()
	r := newRouter(RequireWSAuth(auth), ok)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x?token="+mustToken(t, auth, model.RoleAdmin), nil))
	if w.Code != http.StatusOK {
		t.Errorf("query token: status = %d", w.Code)
	}
}

func TestRequirePermission(t *testing.T) {
	auth := newAuth()
	r := newRouter(RequireStaffJWT(auth), RequirePermission(model.PermissionCatalogWrite), ok)

	for role, want := range map[model.Role]int{
		model.RoleAdmin:       http.StatusOK,
		model.RoleSchoolNurse: http.StatusForbidden,
		model.RoleViewer:      http.StatusForbidden,
	} {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set("Authorization", "Bearer "+mustToken(t, auth, role))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != want {
			t.Errorf("%s: status = %d, want %d", role, w.Code, want)
		}
	}
}

func TestRequirePermission_NoClaims(t *testing.T) {
	r := newRouter(RequireAnyPermission(model.PermissionStudentsRead), ok)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d", w.Code)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	for i, want := range []bool{true, true, false} {
		if got := rl.allow("a"); got != want {
			t.Errorf("request %d: allow = %v, want %v", i, got, want)
		}
	}
	if !rl.allow("b") {
		t.Error("separate key should have its own bucket")
	}

	now = now.Add(time.Minute)
	if !rl.allow("a") {
		t.Error("bucket should refill after the interval")
	}
}

func TestRateLimiter_Middleware(t *testing.T) {
	rl := NewRateLimiter(1, time.Hour)
	r := newRouter(rl.Middleware(), ok)

	codes := make([]int, 2)
	for i := range codes {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
		codes[i] = w.Code
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Errorf("codes = %v", codes)
	}
}

func TestBrotli(t *testing.T) {
	large := strings.Repeat("compliance ", 500)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Brotli())
	r.GET("/large", func(c *gin.Context) { c.String(http.StatusOK, large) })
	r.GET("/small", func(c *gin.Context) { c.String(http.StatusOK, "tiny") })

	t.Run("compresses large bodies", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/large", nil)
		req.Header.Set("Accept-Encoding", "gzip, br;q=0.9")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if w.Header().Get("Content-Encoding") != "br" {
			t.Fatalf("Content-Encoding = %q", w.Header().Get("Content-Encoding"))
		}
		plain, err := io.ReadAll(brotli.NewReader(bytes.NewReader(w.Body.Bytes())))
		if err != nil {
			t.Fatalf("decompress: %v", err)
		}
		if string(plain) != large {
			t.Errorf("round trip mismatch: %d bytes", len(plain))
		}
	})

	t.Run("leaves small bodies alone", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/small", nil)
		req.Header.Set("Accept-Encoding", "br")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Header().Get("Content-Encoding") != "" || w.Body.String() != "tiny" {
			t.Errorf("encoding %q body %q", w.Header().Get("Content-Encoding"), w.Body.String())
		}
	})

	t.Run("respects Accept-Encoding", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/large", nil))
		if w.Header().Get("Content-Encoding") != "" || w.Body.String() != large {
			t.Error("response should be uncompressed")
		}
	})
}

func TestCacheControl(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CacheControl(60))
	r.GET("/x", ok)
	r.POST("/x", ok)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	if got := w.Header().Get("Cache-Control"); got != "private, max-age=60" {
		t.Errorf("GET Cache-Control = %q", got)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/x", nil))
	if got := w.Header().Get("Cache-Control"); got != "" {
		t.Errorf("POST Cache-Control = %q", got)
	}
}
