package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// defaultTokenTTL applies when a non-positive TTL is requested.
const defaultTokenTTL = 60 * time.Minute

// Claims are the entitlement claims issued by the billing service.
// Only Entitled is consulted by the core; Plan is carried for logging.
type Claims struct {
	jwt.RegisteredClaims
	Entitled bool   `json:"entitled"`
	Plan     string `json:"plan,omitempty"`
}

// GenerateToken signs an HS256 entitlement token for subject.
// The core does not issue tokens in production; this exists for the
// development tooling and tests.
func GenerateToken(subject, plan string, entitled bool, secret, issuer string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		Entitled: entitled,
		Plan:     plan,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing entitlement token: %w", err)
	}
	return signed, nil
}

// ParseToken validates signature, expiry and issuer (when non-empty) and
// returns the claims. It does not check Entitled; see RequireEntitled.
func ParseToken(tokenString, secret, issuer string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	return claims, nil
}

// RequireEntitled parses tokenString and returns ErrNotEntitled when the
// subscription claim is false.
func RequireEntitled(tokenString, secret, issuer string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrTokenMissing
	}
	claims, err := ParseToken(tokenString, secret, issuer)
	if err != nil {
		return nil, err
	}
	if !claims.Entitled {
		return claims, ErrNotEntitled
	}
	return claims, nil
}
