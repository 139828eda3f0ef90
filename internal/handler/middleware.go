package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/amazona/backend/internal/model"
	"github.com/amazona/backend/internal/service"
)

const authUserKey = "auth_user"

const (
	msgNoToken           = "No Token"
	msgInvalidToken      = "Invalid Token"
	msgInvalidAdminToken = "Invalid Admin Token"
)

// authenticator resolves a session credential to its account.
type authenticator interface {
	Authenticate(ctx context.Context, token string) (*model.User, error)
}

// AuthMiddleware requires "Authorization: Bearer <token>" (scheme matched
// case-insensitively) and attaches the resolved user to the context.
func AuthMiddleware(auth authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, model.MessageResponse{Message: msgNoToken})
			return
		}

		user, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, model.MessageResponse{Message: msgInvalidToken})
			return
		}

		c.Set(authUserKey, user)
		c.Next()
	}
}

// AdminMiddleware must run after AuthMiddleware. Non-admins get 401, the
// status the existing front-end expects.
func AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := service.RequireAdmin(GetAuthUser(c)); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, model.MessageResponse{Message: msgInvalidAdminToken})
			return
		}
		c.Next()
	}
}

func GetAuthUser(c *gin.Context) *model.User {
	if value, ok := c.Get(authUserKey); ok {
		if user, ok := value.(*model.User); ok {
			return user
		}
	}
	return nil
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}

func CORSMiddleware(allowedOrigins []string, allowCredentials bool) gin.HandlerFunc {
	originMap := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		originMap[trimmed] = struct{}{}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" {
			if _, ok := originMap[origin]; ok {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
				if allowCredentials {
					c.Header("Access-Control-Allow-Credentials", "true")
				}
				c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type")
				c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			}
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
