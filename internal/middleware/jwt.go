package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// UserIDContextKey is the gin context key JWTAuthMiddleware and
// OptionalJWTAuthMiddleware set the verified subject under.
const UserIDContextKey = "userID"

// userClaims is the JWT payload §6's auth contract issues: subject is the
// user id, nothing else is trusted from the token besides expiry.
type userClaims struct {
	jwt.RegisteredClaims
}

func parseBearer(c *gin.Context, secret string) (int64, bool) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return 0, false
	}
	raw := strings.TrimPrefix(header, "Bearer ")

	var claims userClaims
	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return 0, false
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return 0, false
	}
	return userID, true
}

// JWTAuthMiddleware requires a valid Bearer token on protected /v1/v2 routes,
// per §6: "JWT bearer on protected routes." Rejects with 401 when absent or
// invalid.
func JWTAuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := parseBearer(c, secret)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Set(UserIDContextKey, userID)
		c.Next()
	}
}

// OptionalJWTAuthMiddleware resolves a Bearer token when present but never
// rejects the request — /v2/chat_v2 serves anonymous callers (§4.H: "userID
// is nil for anonymous callers") while still personalizing for signed-in
// ones.
func OptionalJWTAuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID, ok := parseBearer(c, secret); ok {
			c.Set(UserIDContextKey, userID)
		}
		c.Next()
	}
}

// UserIDFromContext reads the verified subject JWTAuthMiddleware or
// OptionalJWTAuthMiddleware set, if any.
func UserIDFromContext(c *gin.Context) *int64 {
	v, ok := c.Get(UserIDContextKey)
	if !ok {
		return nil
	}
	id, ok := v.(int64)
	if !ok {
		return nil
	}
	return &id
}
