package service

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/vaxsync/vaxsync-backend/internal/config"
	"github.com/vaxsync/vaxsync-backend/internal/model"
)

func testAuth() *AuthService {
	return NewAuthService(&config.Config{JWTSecret: "test-secret", JWTExpiry: time.Hour})
}

func TestGenerateStaffToken_RoundTrip(t *testing.T) {
	auth := testAuth()
	school := &model.School{ID: uuid.New(), Code: "NORTH"}

	tok, err := auth.GenerateStaffToken("nurse.joy", model.RoleSchoolNurse, school, 0)
	if err != nil {
		t.Fatalf("GenerateStaffToken: %v", err)
	}

	claims, err := auth.ValidateToken(tok)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.Subject != "nurse.joy" || claims.Role != model.RoleSchoolNurse {
		t.Errorf("claims = %+v", claims)
	}
	if got := claims.ScopedSchool(); got == nil || *got != school.ID {
		t.Errorf("ScopedSchool = %v, want %s", got, school.ID)
	}
	if !claims.HasPermission(model.PermissionDosesWrite) {
		t.Error("nurse should record doses")
	}
	if claims.HasPermission(model.PermissionComplianceDerive) {
		t.Error("nurse must not trigger derivations")
	}
}

func TestGenerateStaffToken_AdminIsUnscoped(t *testing.T) {
	auth := testAuth()
	tok, err := auth.GenerateStaffToken("root", model.RoleAdmin, nil, time.Minute)
	if err != nil {
		t.Fatalf("GenerateStaffToken: %v", err)
	}
	claims, err := auth.ValidateToken(tok)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.ScopedSchool() != nil {
		t.Error("admin should not be school scoped")
	}
	for _, p := range model.AllPermissions {
		if !claims.HasPermission(p) {
			t.Errorf("admin lacks %s", p)
		}
	}
}

func TestGenerateStaffToken_RejectsBadArguments(t *testing.T) {
	auth := testAuth()
	tests := []struct {
		name    string
		subject string
		role    model.Role
		school  *model.School
	}{
		{"empty subject", "", model.RoleAdmin, nil},
		{"unknown role", "x", model.Role("Janitor"), nil},
		{"nurse without school", "x", model.RoleSchoolNurse, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := auth.GenerateStaffToken(tt.subject, tt.role, tt.school, 0); !errors.Is(err, ErrInvalidArgument) {
				t.Errorf("err = %v, want ErrInvalidArgument", err)
			}
		})
	}
}

func TestValidateToken_Rejects(t *testing.T) {
	auth := testAuth()

	expired := testAuth()
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, err := expired.GenerateStaffToken("v", model.RoleViewer, nil, time.Hour)
	if err != nil {
		t.Fatalf("GenerateStaffToken: %v", err)
	}

	other := NewAuthService(&config.Config{JWTSecret: "other-secret", JWTExpiry: time.Hour})
	foreign, _ := other.GenerateStaffToken("v", model.RoleViewer, nil, 0)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{Role: model.RoleAdmin})
	unsigned, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)

	for name, tok := range map[string]string{
		"expired":   old,
		"foreign":   foreign,
		"unsigned":  unsigned,
		"malformed": "not-a-token",
	} {
		if _, err := auth.ValidateToken(tok); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("%s: err = %v, want ErrInvalidToken", name, err)
		}
	}
}
