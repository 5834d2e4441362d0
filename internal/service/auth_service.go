package service

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/vaxsync/vaxsync-backend/internal/config"
	"github.com/vaxsync/vaxsync-backend/internal/model"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims extends JWT standard claims with the staff role and its scope.
type Claims struct {
	jwt.RegisteredClaims
	Role        model.Role `json:"role"`
	Permissions []string   `json:"permissions"`
	// SchoolID and SchoolCode are set for school-scoped roles only.
	SchoolID   string `json:"school_id,omitempty"`
	SchoolCode string `json:"school_code,omitempty"`
}

// HasPermission reports whether the token grants p.
func (c *Claims) HasPermission(p model.Permission) bool {
	return slices.Contains(c.Permissions, string(p))
}

// ScopedSchool returns the school a SchoolNurse token is limited to, or nil
// for unscoped roles.
func (c *Claims) ScopedSchool() *uuid.UUID {
	if c.Role != model.RoleSchoolNurse || c.SchoolID == "" {
		return nil
	}
	id, err := uuid.Parse(c.SchoolID)
	if err != nil {
		return nil
	}
	return &id
}

// AuthService issues and validates staff access tokens.
type AuthService struct {
	cfg *config.Config
	now func() time.Time
}

// NewAuthService creates a new AuthService.
func NewAuthService(cfg *config.Config) *AuthService {
	return &AuthService{cfg: cfg, now: time.Now}
}

// GenerateStaffToken mints a token for subject with the permissions of role.
// SchoolNurse tokens must name the school they are scoped to.
func (s *AuthService) GenerateStaffToken(subject string, role model.Role, school *model.School, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", fmt.Errorf("%w: subject is required", ErrInvalidArgument)
	}
	if !role.Valid() {
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidArgument, role)
	}
	if role == model.RoleSchoolNurse && school == nil {
		return "", fmt.Errorf("%w: %s tokens require a school", ErrInvalidArgument, role)
	}
	if ttl <= 0 {
		ttl = s.cfg.JWTExpiry
	}

	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role:        role,
		Permissions: role.PermissionCodes(),
	}
	if school != nil {
		claims.SchoolID = school.ID.String()
		claims.SchoolCode = school.Code
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and validates a JWT, returning the claims.
func (s *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if !claims.Role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, claims.Role)
	}
	return claims, nil
}
