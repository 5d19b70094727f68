package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"livechat-service/pkg/response"
)

// WSAuth authenticates the admin websocket upgrade. Browsers cannot set
// headers on a websocket handshake, so the token rides in the query string.
func WSAuth(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := c.Query("token")
		if tokenString == "" {
			response.Error(c, response.CodeUnauthorized, "token is required")
			c.Abort()
			return
		}

		tokenString = strings.Replace(tokenString, "Bearer ", "", 1)
		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			return []byte(jwtSecret), nil
		})
		if err != nil || !token.Valid {
			response.Error(c, response.CodeUnauthorized, "invalid token")
			c.Abort()
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			response.Error(c, response.CodeUnauthorized, "invalid token claims")
			c.Abort()
			return
		}

		if name, ok := claims["name"].(string); ok {
			c.Set("admin_name", name)
		}
		c.Next()
	}
}
