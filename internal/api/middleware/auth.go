package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/timmy/vismatch/internal/logger"
)

const (
	contextUserID = "user_id"
	tokenCookie   = "token"
)

var (
	errMissingToken = errors.New("missing token")
	errInvalidToken = errors.New("invalid token")
	errNoSubject    = errors.New("token has no user id")
)

// UserID returns the caller identity set by the auth middleware, empty for anonymous requests.
func UserID(c *gin.Context) string {
	return c.GetString(contextUserID)
}

// OptionalAuth identifies the caller when a valid token is present and never rejects.
// An empty secret disables verification entirely.
func OptionalAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}
		userID, err := authenticate(c, []byte(secret))
		if err == nil {
			setUser(c, userID)
		} else if !errors.Is(err, errMissingToken) {
			logger.CtxDebug(c.Request.Context(), "Ignoring invalid token: %v", err)
		}
		c.Next()
	}
}

// RequireAuth rejects requests without a valid token with 401.
func RequireAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if UserID(c) != "" {
			c.Next()
			return
		}
		if secret == "" {
			abortUnauthorized(c, "Authentication is not configured")
			return
		}
		userID, err := authenticate(c, []byte(secret))
		if err != nil {
			logger.CtxWarn(c.Request.Context(), "Unauthorized request: %v", err)
			abortUnauthorized(c, "Authentication required")
			return
		}
		setUser(c, userID)
		c.Next()
	}
}

func setUser(c *gin.Context, userID string) {
	c.Set(contextUserID, userID)
	c.Request = c.Request.WithContext(logger.SetUserID(c.Request.Context(), userID))
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"error":   msg,
	})
}

// authenticate reads the token from the Authorization header or the token cookie.
func authenticate(c *gin.Context, secret []byte) (string, error) {
	raw := ""
	if header := c.GetHeader("Authorization"); header != "" {
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			return "", errInvalidToken
		}
		raw = strings.TrimSpace(token)
	} else if cookie, err := c.Cookie(tokenCookie); err == nil {
		raw = cookie
	}
	if raw == "" {
		return "", errMissingToken
	}
	return ParseToken(raw, secret)
}

// ParseToken verifies an HS256 token and returns its user id.
// The id comes from the userId claim, falling back to sub.
func ParseToken(raw string, secret []byte) (string, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", errors.Join(errInvalidToken, err)
	}

	if id, ok := claims["userId"].(string); ok && id != "" {
		return id, nil
	}
	if sub, err := claims.GetSubject(); err == nil && sub != "" {
		return sub, nil
	}
	return "", errNoSubject
}
