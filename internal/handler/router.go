package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/amazona/backend/internal/config"
	"github.com/amazona/backend/internal/logger"
	"github.com/amazona/backend/internal/service"
)

// NewRouter wires the user routes. Admin routes run AuthMiddleware then
// AdminMiddleware, in that order.
func NewRouter(svc *service.UserService, log *logger.Logger, cfg config.HTTPConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.Use(CORSMiddleware(cfg.AllowedOrigins, cfg.AllowCredentials))

	router.GET("/", Root)
	router.GET("/ping", Ping)
	router.GET("/openapi.json", OpenAPIDoc)

	users := NewUserHandler(svc, log)
	auth := AuthMiddleware(svc)
	admin := AdminMiddleware()

	api := router.Group("/api/users")
	{
		api.POST("/signup", users.Signup)
		api.POST("/signin", users.Signin)
		api.POST("/forget-password", users.ForgotPassword)
		api.POST("/reset-password", users.ResetPassword)

		api.PUT("/profile", auth, users.UpdateProfile)

		api.GET("", auth, admin, users.ListUsers)
		api.GET("/", auth, admin, users.ListUsers)
		api.GET("/:id", auth, admin, users.GetUser)
		api.PUT("/:id", auth, admin, users.UpdateUser)
		api.DELETE("/:id", auth, admin, users.DeleteUser)
	}

	return router
}
