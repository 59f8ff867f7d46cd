package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/issuetrack/backend/internal/handler"
	"github.com/issuetrack/backend/internal/middleware"
)

type Deps struct {
	Auth           middleware.Authenticator
	AllowedOrigins []string
	// MaxUploadBytes caps multipart bodies held in memory.
	MaxUploadBytes int64

	AuthHandler    *handler.AuthHandler
	ProjectHandler *handler.ProjectHandler
	IssueHandler   *handler.IssueHandler
	UploadHandler  *handler.UploadHandler
	HealthHandler  *handler.HealthHandler

	// ActivityHandler is optional; without it there is no live feed.
	ActivityHandler *handler.ActivityHandler
}

var defaultOrigins = []string{"http://localhost:3000", "http://localhost:5173"}

func Setup(r *gin.Engine, deps Deps) {
	origins := deps.AllowedOrigins
	if len(origins) == 0 {
		origins = defaultOrigins
	}
	r.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	if deps.MaxUploadBytes > 0 {
		r.MaxMultipartMemory = deps.MaxUploadBytes
	}

	api := r.Group("/api")
	api.GET("/health", deps.HealthHandler.Health)

	// Public routes (no auth)
	auth := api.Group("/auth")
	{
		auth.POST("/register", deps.AuthHandler.Register)
		auth.POST("/login", deps.AuthHandler.Login)
		auth.POST("/refresh", deps.AuthHandler.Refresh)
		auth.POST("/forgot", deps.AuthHandler.Forgot)
		auth.POST("/reset", deps.AuthHandler.Reset)
		auth.POST("/validate-email", deps.AuthHandler.ValidateEmail)
		auth.POST("/validate-username", deps.AuthHandler.ValidateUsername)
	}

	// Authenticated routes
	authed := api.Group("")
	authed.Use(middleware.AuthMiddleware(deps.Auth))
	{
		authed.GET("/auth/me", deps.AuthHandler.GetMe)

		admin := authed.Group("/admin")
		admin.Use(middleware.RequireSuperadmin())
		{
			admin.PUT("/users/:id/role", deps.AuthHandler.UpdateUserRole)
			admin.POST("/deadline-scan", deps.HealthHandler.RunDeadlineScan)
		}

		projects := authed.Group("/projects")
		{
			projects.POST("", deps.ProjectHandler.Create)
			projects.GET("", deps.ProjectHandler.List)
			projects.GET("/:id", deps.ProjectHandler.Get)
			projects.PUT("/:id", deps.ProjectHandler.Update)
			projects.DELETE("/:id", deps.ProjectHandler.Delete)
			projects.POST("/:id/members", deps.ProjectHandler.AddMember)
			projects.DELETE("/:id/members/:user_id", deps.ProjectHandler.RemoveMember)
			projects.POST("/:id/columns", deps.ProjectHandler.AddColumn)
			projects.PUT("/:id/columns/:column_id", deps.ProjectHandler.UpdateColumn)
			projects.DELETE("/:id/columns/:column_id", deps.ProjectHandler.DeleteColumn)
			projects.GET("/:id/issues", deps.ProjectHandler.ListIssues)
			if deps.ActivityHandler != nil {
				projects.GET("/:id/activity", deps.ActivityHandler.Stream)
			}
		}

		issues := authed.Group("/issues")
		{
			issues.POST("", deps.IssueHandler.Create)
			issues.GET("/:id", deps.IssueHandler.Get)
			issues.PUT("/:id", deps.IssueHandler.Update)
		}

		if deps.UploadHandler != nil {
			uploads := authed.Group("/uploads")
			{
				uploads.POST("", deps.UploadHandler.Upload)
				uploads.GET("/presign", deps.UploadHandler.Presign)
			}
		}
	}
}
