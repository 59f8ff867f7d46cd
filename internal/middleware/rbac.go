package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/issuetrack/backend/internal/model"
)

// RequireGlobalRole admits users whose account-wide role is one of roles.
// A superadmin is always admitted.
func RequireGlobalRole(roles ...model.GlobalRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := GetCurrentUser(c)
		if user.IsSuperadmin() {
			c.Next()
			return
		}
		if user != nil {
			for _, r := range roles {
				if user.Role == r {
					c.Next()
					return
				}
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"code":    40301,
			"message": "insufficient permission",
			"data":    nil,
		})
	}
}

func RequireSuperadmin() gin.HandlerFunc {
	return RequireGlobalRole()
}
