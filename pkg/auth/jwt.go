package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/complia/complia/pkg/model"
)

// Claims are the JWT claims carried by access and refresh tokens.
type Claims struct {
	jwt.RegisteredClaims
	OrgID string     `json:"org_id"`
	Email string     `json:"email"`
	Role  model.Role `json:"role"`
	Kind  string     `json:"kind"` // "access" or "refresh"
}

// TokenIssuer is the token side of the authentication collaborator.
type TokenIssuer interface {
	IssueAccess(u *model.User, ttl time.Duration) (string, error)
	IssueRefresh(u *model.User, ttl time.Duration) (string, error)
	Validate(tokenStr string) (*Claims, error)
}

// HMACIssuer is the reference TokenIssuer: HS256 with a shared secret.
type HMACIssuer struct {
	secret []byte
	issuer string
}

// NewHMACIssuer creates an issuer signing with the given secret.
func NewHMACIssuer(secret []byte, issuer string) *HMACIssuer {
	return &HMACIssuer{secret: secret, issuer: issuer}
}

func (h *HMACIssuer) issue(u *model.User, kind string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    h.issuer,
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.New().String(),
		},
		OrgID: u.OrgID,
		Email: u.Email,
		Role:  u.Role,
		Kind:  kind,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(h.secret)
	if err != nil {
		return "", fmt.Errorf("token signing failed: %w", err)
	}
	return signed, nil
}

func (h *HMACIssuer) IssueAccess(u *model.User, ttl time.Duration) (string, error) {
	return h.issue(u, "access", ttl)
}

func (h *HMACIssuer) IssueRefresh(u *model.User, ttl time.Duration) (string, error) {
	return h.issue(u, "refresh", ttl)
}

// Validate parses and validates a token string, returning its claims.
func (h *HMACIssuer) Validate(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return h.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.Subject == "" || claims.OrgID == "" {
		return nil, fmt.Errorf("token missing subject or org binding")
	}
	return claims, nil
}
