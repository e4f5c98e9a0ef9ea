package auth

import (
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/agentbridge/bridge/config"
	"github.com/golang-jwt/jwt/v5"
)

// BridgeClaims is the claim set for tokens the bridge mints for its own UI
// surface, distinct from externally-issued OIDC tokens validated by ValidateJWT.
type BridgeClaims struct {
	jwt.RegisteredClaims
	Username string `json:"username,omitempty"`
}

// IssueToken mints a symmetric (HS256) bearer token for the UI surface.
func IssueToken(username string) (string, error) {
	cfg := config.Get()
	if cfg.JWTSecret == "" {
		return "", fmt.Errorf("JWT_SECRET not configured")
	}

	now := time.Now()
	claims := BridgeClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(cfg.JWTExpiryHours) * time.Hour)),
			Subject:   username,
		},
		Username: username,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.JWTSecret))
}

// VerifyBridgeToken validates a bridge-issued bearer token and returns its claims.
func VerifyBridgeToken(tokenString string) (*BridgeClaims, error) {
	cfg := config.Get()
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET not configured")
	}

	claims := &BridgeClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	return claims, nil
}

// VerifyBridgeSecret checks a shared secret presented by a hook client
// (X-API-Key / X-Bridge-Secret header) against the configured BRIDGE_SECRET.
func VerifyBridgeSecret(presented string) bool {
	cfg := config.Get()
	if cfg.BridgeSecret == "" || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(cfg.BridgeSecret)) == 1
}
