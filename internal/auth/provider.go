package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"syncboard/pkg/interfaces"
	"syncboard/pkg/types"
)

// Claims carries the identity fields embedded in collaboration tokens
type Claims struct {
	Name string `json:"name"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// JWTProvider authenticates users from signed HMAC tokens
// ARCHITECTURAL DISCOVERY: Token-based identity keeps the websocket
// handshake stateless; the roster layer decides per-diagram roles later
type JWTProvider struct {
	secret []byte
}

// NewJWTProvider creates a provider that verifies HS256 tokens
func NewJWTProvider(secret string) *JWTProvider {
	return &JWTProvider{secret: []byte(secret)}
}

// Authenticate validates a token and extracts the caller's identity
func (p *JWTProvider) Authenticate(ctx context.Context, credentials string) (interfaces.Identity, error) {
	if credentials == "" {
		return interfaces.Identity{}, interfaces.ErrAuthFailed
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(credentials, claims, func(token *jwt.Token) (interface{}, error) {
		// TECHNICAL DISCOVERY: Algorithm pinning prevents downgrade to
		// 'none' or asymmetric confusion attacks
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return p.secret, nil
	})
	if err != nil || !token.Valid {
		return interfaces.Identity{}, interfaces.ErrAuthFailed
	}

	if claims.Subject == "" || !types.IsValidID(claims.Subject) {
		return interfaces.Identity{}, interfaces.ErrAuthFailed
	}

	role := claims.Role
	if !types.IsValidRole(role) {
		// Tokens without a role claim default to the weakest role
		role = types.RoleViewer
	}

	name := claims.Name
	if name == "" {
		name = claims.Subject
	}

	return interfaces.Identity{
		UserID: claims.Subject,
		Name:   name,
		Role:   role,
	}, nil
}

// IssueToken mints a signed token for a user, used by tooling and tests
func (p *JWTProvider) IssueToken(userID, name, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Name: name,
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(p.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// StaticProvider authenticates from a fixed credential table
// FUNCTIONAL DISCOVERY: Deterministic identity lookup keeps transport and
// room tests independent of token plumbing
type StaticProvider struct {
	identities map[string]interfaces.Identity
}

// NewStaticProvider creates a provider backed by a credential map
func NewStaticProvider(identities map[string]interfaces.Identity) *StaticProvider {
	if identities == nil {
		identities = make(map[string]interfaces.Identity)
	}
	return &StaticProvider{identities: identities}
}

// Authenticate looks up the credential in the static table
func (p *StaticProvider) Authenticate(ctx context.Context, credentials string) (interfaces.Identity, error) {
	identity, ok := p.identities[credentials]
	if !ok {
		return interfaces.Identity{}, interfaces.ErrAuthFailed
	}
	return identity, nil
}
