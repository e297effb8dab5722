package session

import (
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v3"
	"github.com/go-jose/go-jose/v3/jwt"

	"github.com/kuitang/uiverify/internal/identity"
)

// DefaultTokenLifetime is how long an injected bearer token stays valid.
const DefaultTokenLifetime = 24 * time.Hour

// TokenClaims are the claims of the companion bearer token the application's
// API calls read from storage.
type TokenClaims struct {
	jwt.Claims
	Role  string `json:"role"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// SignToken issues an HS256 JWT for the preset.
func SignToken(secret []byte, p identity.Preset, now time.Time) (string, error) {
	claims := TokenClaims{
		Claims: jwt.Claims{
			Subject:   p.ID(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Expiry:    jwt.NewNumericDate(now.Add(DefaultTokenLifetime)),
		},
		Role:  string(p.Role()),
		Name:  p.DisplayName(),
		Email: p.Email(),
	}

	signerOpts := jose.SignerOptions{}
	signerOpts.WithType("JWT")

	signer, err := jose.NewSigner(jose.SigningKey{
		Algorithm: jose.HS256,
		Key:       secret,
	}, &signerOpts)
	if err != nil {
		return "", fmt.Errorf("session: failed to create signer: %w", err)
	}

	token, err := jwt.Signed(signer).Claims(claims).CompactSerialize()
	if err != nil {
		return "", fmt.Errorf("session: failed to sign token: %w", err)
	}
	return token, nil
}

// ParseToken verifies an HS256 token and returns its claims.
func ParseToken(secret []byte, token string) (TokenClaims, error) {
	parsed, err := jwt.ParseSigned(token)
	if err != nil {
		return TokenClaims{}, fmt.Errorf("session: malformed token: %w", err)
	}
	var claims TokenClaims
	if err := parsed.Claims(secret, &claims); err != nil {
		return TokenClaims{}, fmt.Errorf("session: invalid signature: %w", err)
	}
	return claims, nil
}
