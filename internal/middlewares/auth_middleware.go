package middlewares

import (
	"net/http"
	"strings"

	"sayu-ops/internal/responses"
	"sayu-ops/internal/utils"

	"github.com/gin-gonic/gin"
)

const SubjectKey = "subject"

// Authenticate accepts requests carrying a bearer token signed with secret.
func Authenticate(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			responses.Abort(c, http.StatusUnauthorized, nil, "Missing Authorization header")
			return
		}

		// Expected format: "Bearer <token>"
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			responses.Abort(c, http.StatusUnauthorized, nil, "Invalid Authorization format")
			return
		}

		claims, err := utils.VerifyJWT(parts[1], secret)
		if err != nil {
			responses.Abort(c, http.StatusUnauthorized, nil, "Invalid or expired token")
			return
		}

		c.Set(SubjectKey, claims.Subject)
		c.Next()
	}
}
