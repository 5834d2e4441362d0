package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestNewPagination(t *testing.T) {
	tests := []struct {
		page, perPage, total, wantPages int
	}{
		{1, 20, 0, 0},
		{1, 20, 20, 1},
		{2, 20, 21, 2},
		{1, 0, 5, 0},
	}
	for _, tt := range tests {
		p := NewPagination(tt.page, tt.perPage, tt.total)
		if p.TotalPages != tt.wantPages {
			t.Errorf("NewPagination(%d, %d, %d).TotalPages = %d, want %d", tt.page, tt.perPage, tt.total, p.TotalPages, tt.wantPages)
		}
	}
}

func TestFail_UsesRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/x", func(c *gin.Context) {
		Fail(c, http.StatusConflict, ErrConflict)
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Request-ID", "req-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d", w.Code)
	}
	var body Response
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error == nil || body.Error.Code != ErrConflict {
		t.Errorf("error = %+v", body.Error)
	}
	if body.Metadata.RequestID != "req-123" {
		t.Errorf("request id = %q", body.Metadata.RequestID)
	}
}

func TestValidRequestID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"", false},
		{"abc-123", true},
		{"has space", false},
		{"tab\tinside", false},
		{strings.Repeat("a", 64), true},
		{strings.Repeat("a", 65), false},
	}
	for _, tt := range tests {
		if got := validRequestID(tt.id); got != tt.want {
			t.Errorf("validRequestID(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}
