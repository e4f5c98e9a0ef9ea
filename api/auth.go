package api

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/agentbridge/bridge/auth"
	"github.com/agentbridge/bridge/config"
	"github.com/agentbridge/bridge/db"
	"github.com/agentbridge/bridge/log"
	"github.com/gin-gonic/gin"
)

const (
	// sessionCookieName is the cookie name for password auth sessions
	sessionCookieName = "bridge_session"
	// sessionCookieMaxAge is 30 days in seconds
	sessionCookieMaxAge = 30 * 24 * 60 * 60
)

// Login handles POST /auth/login
func (h *Handlers) Login(c *gin.Context) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	cfg := config.Get()
	if cfg.AuthUsername == "" || cfg.AuthPassword == "" {
		log.Error().Msg("password auth requested but AUTH_USERNAME/AUTH_PASSWORD not configured")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Password auth not configured"})
		return
	}

	usernameOK := subtle.ConstantTimeCompare([]byte(body.Username), []byte(cfg.AuthUsername)) == 1
	passwordOK := subtle.ConstantTimeCompare([]byte(hashPassword(body.Password)), []byte(hashPassword(cfg.AuthPassword))) == 1
	if !usernameOK || !passwordOK {
		log.Warn().Str("username", body.Username).Msg("login attempt with invalid credentials")
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error":   "Invalid username or password",
		})
		return
	}

	sessionToken := generateSessionToken()
	session, err := db.CreateAuthSession(sessionToken)
	if err != nil {
		log.Error().Err(err).Msg("failed to create session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session"})
		return
	}

	secure := !cfg.IsDevelopment()
	c.SetCookie(sessionCookieName, sessionToken, sessionCookieMaxAge, "/", "", secure, true)

	// Also mint a bridge bearer token so the web UI's socket upgrade and
	// cross-origin fetches can authenticate without relying on the cookie.
	bearer, err := auth.IssueToken(cfg.AuthUsername)
	if err != nil {
		log.Warn().Err(err).Msg("failed to issue bridge bearer token (JWT_SECRET unset?)")
	}

	log.Info().Str("sessionId", session.ID[:8]+"...").Msg("login successful")

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"sessionId": session.ID,
		"token":     bearer,
	})
}

// VerifyAuth handles GET /auth/verify: confirms whatever credential
// AuthMiddleware already accepted for this request is still good, echoing
// back the identity it resolved.
func (h *Handlers) VerifyAuth(c *gin.Context) {
	username, _ := c.Get("username")
	c.JSON(http.StatusOK, gin.H{"valid": true, "username": username})
}

// RefreshAuth handles POST /auth/refresh: mints a fresh bridge bearer token
// for the identity the current credential resolved to.
func (h *Handlers) RefreshAuth(c *gin.Context) {
	username, _ := c.Get("username")
	name, _ := username.(string)
	if name == "" {
		name = config.Get().AuthUsername
	}

	token, err := auth.IssueToken(name)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to issue token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

// Logout clears the password-session cookie and its stored session.
// SetupRoutes does not mount it on any route.
func (h *Handlers) Logout(c *gin.Context) {
	sessionToken, err := c.Cookie(sessionCookieName)
	if err == nil && sessionToken != "" {
		if err := db.DeleteAuthSession(sessionToken); err != nil {
			log.Error().Err(err).Msg("failed to delete session")
		}
	}

	c.SetCookie(sessionCookieName, "", -1, "/", "", false, true)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
	})
}

// ValidatePasswordSession checks if the session cookie contains a valid session
// Returns the session if valid, nil otherwise
func ValidatePasswordSession(c *gin.Context) *db.AuthSession {
	sessionToken, err := c.Cookie(sessionCookieName)
	if err != nil || sessionToken == "" {
		return nil
	}

	session, err := db.GetAuthSession(sessionToken)
	if err != nil {
		log.Error().Err(err).Msg("failed to get session")
		return nil
	}

	if session == nil {
		return nil
	}

	if err := db.TouchAuthSession(sessionToken); err != nil {
		log.Error().Err(err).Msg("failed to touch session")
	}

	return session
}

// Helper functions

func hashPassword(password string) string {
	hash := sha256.Sum256([]byte(password))
	return hex.EncodeToString(hash[:])
}

func generateSessionToken() string {
	bytes := make([]byte, 32)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)
}
