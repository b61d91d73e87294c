package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrMissingToken = errors.New("missing authorization token")
	ErrForbidden    = errors.New("admin role required")
)

// RoleAdmin is the role allowed to run analyses and training.
const RoleAdmin = "admin"

// Claims holds the JWT payload. Tokens are issued by the game's auth
// service; this service only verifies them.
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// IsAdmin reports whether the token grants the admin role.
func (c *Claims) IsAdmin() bool { return c.Role == RoleAdmin }

// JWTManager validates tokens signed with the shared secret.
type JWTManager struct {
	secret       []byte
	accessExpiry time.Duration
}

// NewJWTManager creates a JWTManager with the given secret.
func NewJWTManager(secret string) *JWTManager {
	return &JWTManager{
		secret:       []byte(secret),
		accessExpiry: 15 * time.Minute,
	}
}

// GenerateAccessToken creates a short-lived access token. Used by tests
// and local tooling; production tokens come from the auth service.
func (m *JWTManager) GenerateAccessToken(userID, role string) (string, error) {
	claims := &Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(m.accessExpiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Subject:   userID,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// ValidateToken parses and validates a JWT string, returning the claims.
func (m *JWTManager) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
