package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/issuetrack/backend/internal/model"
	"github.com/issuetrack/backend/internal/service"
)

const ctxUser = "user"

// Authenticator resolves a bearer token to a user.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*model.User, error)
}

func AuthMiddleware(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": 40100, "message": "missing token", "data": nil})
			return
		}
		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenStr == authHeader || tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": 40100, "message": "malformed Authorization header", "data": nil})
			return
		}

		user, err := auth.Authenticate(c.Request.Context(), tokenStr)
		if err != nil {
			var coded *service.CodedError
			if errors.As(err, &coded) {
				c.AbortWithStatusJSON(coded.HTTPStatus(), gin.H{"code": coded.Code, "message": coded.Msg, "data": nil})
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"code": 50001, "message": err.Error(), "data": nil})
			return
		}

		c.Set(ctxUser, user)
		c.Next()
	}
}

func GetCurrentUser(c *gin.Context) *model.User {
	u, exists := c.Get(ctxUser)
	if !exists {
		return nil
	}
	return u.(*model.User)
}

func GetCurrentUserID(c *gin.Context) uint {
	if u := GetCurrentUser(c); u != nil {
		return u.ID
	}
	return 0
}
