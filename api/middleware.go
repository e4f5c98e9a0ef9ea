package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/agentbridge/bridge/auth"
	"github.com/agentbridge/bridge/log"
	"github.com/gin-gonic/gin"
)

// HookAuthMiddleware protects the /hooks/* surface. Hook clients (the
// in-process Agent hooks) authenticate with the shared bridge secret only —
// they never hold an operator password or OIDC token.
func HookAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		secret := c.GetHeader("X-Bridge-Secret")
		if secret == "" {
			secret = c.GetHeader("X-API-Key")
		}

		if !auth.VerifyBridgeSecret(secret) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Unauthorized",
				"code":  "INVALID_BRIDGE_SECRET",
			})
			return
		}

		c.Next()
	}
}

// AuthMiddleware returns a Gin middleware that enforces authentication on the
// UI-facing surface. It accepts, in order: a bridge-issued bearer token, an
// externally-issued OIDC token, a password-auth session cookie, or (as a
// fallback for endpoints that cannot set a header, e.g. the socket upgrade)
// a `?token=` query parameter carrying a bridge-issued bearer token.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !auth.IsAuthRequired() {
			c.Next()
			return
		}

		if validateBridgeToken(c) {
			c.Next()
			return
		}

		if auth.IsOAuthEnabled() && validateOAuthToken(c) {
			c.Next()
			return
		}

		if auth.IsPasswordAuthEnabled() && ValidatePasswordSession(c) != nil {
			c.Next()
			return
		}

		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "Unauthorized",
			"code":  "INVALID_SESSION",
		})
	}
}

// validateBridgeToken validates a bridge-issued HS256 bearer token, taken
// from the Authorization header or a `?token=` query parameter.
func validateBridgeToken(c *gin.Context) bool {
	token := bearerToken(c)
	if token == "" {
		token = c.Query("token")
	}
	if token == "" {
		return false
	}

	claims, err := auth.VerifyBridgeToken(token)
	if err != nil {
		return false
	}

	c.Set("username", claims.Username)
	c.Set("sub", claims.Subject)
	return true
}

func bearerToken(c *gin.Context) string {
	h := c.Request.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

// validateOAuthToken validates the OAuth access token from cookie or header
func validateOAuthToken(c *gin.Context) bool {
	accessToken := bearerToken(c)
	if accessToken == "" {
		var err error
		accessToken, err = c.Cookie("access_token")
		if err != nil || accessToken == "" {
			return false
		}
	}

	provider, err := auth.GetOIDCProvider()
	if err != nil {
		log.Error().Err(err).Msg("failed to get OIDC provider for token validation")
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	idToken, err := provider.VerifyIDToken(ctx, accessToken)
	if err != nil {
		log.Debug().Err(err).Msg("OAuth token validation failed")
		return false
	}

	var claims struct {
		Sub               string `json:"sub"`
		Email             string `json:"email"`
		PreferredUsername string `json:"preferred_username"`
	}
	if err := idToken.Claims(&claims); err != nil {
		log.Error().Err(err).Msg("failed to parse token claims")
		return false
	}

	username := claims.PreferredUsername
	if username == "" && claims.Email != "" {
		parts := strings.Split(claims.Email, "@")
		username = parts[0]
	}
	if username == "" {
		username = claims.Sub
	}

	if !auth.VerifyExpectedUsername(username) {
		log.Warn().Str("username", username).Msg("OAuth token has unauthorized username")
		return false
	}

	c.Set("username", username)
	c.Set("sub", claims.Sub)

	return true
}
