package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/opstracker/opstracker-backend-go/pkg/response"
)

// ContextSubjectKey holds the subject of a verified token in the gin context
const ContextSubjectKey = "auth.subject"

// JWTAuth requires an HS256 bearer token signed with secret
func JWTAuth(secret []byte) gin.HandlerFunc {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			response.Unauthorized(c, "Authorization header missing or invalid")
			c.Abort()
			return
		}

		var claims jwt.RegisteredClaims
		token, err := parser.ParseWithClaims(strings.TrimPrefix(authHeader, "Bearer "), &claims, func(t *jwt.Token) (interface{}, error) {
			return secret, nil
		})
		if err != nil || !token.Valid {
			response.Unauthorized(c, "invalid token")
			c.Abort()
			return
		}

		c.Set(ContextSubjectKey, claims.Subject)
		c.Next()
	}
}
