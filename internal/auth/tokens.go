// Package auth verifies bearer tokens issued by the identity collaborator and
// turns them into a shared.Principal.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/odyssey-erp/odyssey-pharmacy/internal/shared"
)

const issuer = "odyssey-pharmacy"

// ErrInvalidToken indicates a malformed, expired or forged token.
var ErrInvalidToken = errors.New("auth: invalid or expired token")

type pharmacyClaims struct {
	jwtlib.RegisteredClaims
	PharmacyID string `json:"pharmacy_id"`
	Role       string `json:"role"`
}

// Manager signs and verifies HS256 bearer tokens.
type Manager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewManager builds a Manager. The secret must not be empty.
func NewManager(secret string, ttl time.Duration) (*Manager, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: token secret required")
	}
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	return &Manager{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue signs a token for the principal.
func (m *Manager) Issue(p shared.Principal) (string, time.Time, error) {
	if p.ActorID == "" || p.PharmacyID == "" {
		return "", time.Time{}, fmt.Errorf("auth: actor and pharmacy required: %w", shared.ErrValidation)
	}
	if !validRole(p.Role) {
		return "", time.Time{}, fmt.Errorf("auth: unknown role %q: %w", p.Role, shared.ErrValidation)
	}
	now := m.now().UTC()
	expiresAt := now.Add(m.ttl)
	claims := pharmacyClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   p.ActorID,
			Issuer:    issuer,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
		},
		PharmacyID: p.PharmacyID,
		Role:       string(p.Role),
	}
	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// Verify parses a token and returns its principal.
func (m *Manager) Verify(raw string) (shared.Principal, error) {
	claims := &pharmacyClaims{}
	token, err := jwtlib.ParseWithClaims(raw, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	},
		jwtlib.WithValidMethods([]string{"HS256"}),
		jwtlib.WithIssuer(issuer),
		jwtlib.WithExpirationRequired(),
		jwtlib.WithTimeFunc(m.now),
	)
	if err != nil || !token.Valid {
		return shared.Principal{}, ErrInvalidToken
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" || claims.PharmacyID == "" || !validRole(shared.Role(claims.Role)) {
		return shared.Principal{}, ErrInvalidToken
	}
	return shared.Principal{ActorID: sub, PharmacyID: claims.PharmacyID, Role: shared.Role(claims.Role)}, nil
}

func validRole(r shared.Role) bool {
	switch r {
	case shared.RoleOwner, shared.RolePharmacist, shared.RoleCashier, shared.RoleAuditor:
		return true
	default:
		return false
	}
}
