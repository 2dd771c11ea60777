package server

import (
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/tagmate/tagmate-backend/internal/handlers"
	"github.com/tagmate/tagmate-backend/internal/middleware"
	"github.com/tagmate/tagmate-backend/internal/pkg/envutil"
)

type RouterConfig struct {
	AuthHandler     *handlers.AuthHandler
	AuthMiddleware  *middleware.AuthMiddleware
	UserHandler     *handlers.UserHandler
	ActivityHandler *handlers.ActivityHandler
	JobsHandler     *handlers.JobsHandler
	EventsHandler   *handlers.EventsHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	origins := strings.Split(envutil.String("CORS_ALLOW_ORIGINS", "http://localhost:3000,http://localhost:5173"), ",")
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	// ===============
	// || Public    ||
	// ===============
	router.GET("/healthcheck", handlers.HealthCheck)
	router.POST("/register", cfg.AuthHandler.Register)
	router.POST("/login", cfg.AuthHandler.Login)

	// ===============
	// || Protected ||
	// ===============
	protected := router.Group("/")
	protected.Use(cfg.AuthMiddleware.RequireAuth())
	// User
	protected.GET("/user", cfg.UserHandler.GetMe)
	// Events
	protected.GET("/events/stream", cfg.EventsHandler.Stream)
	// Activities
	protected.POST("/activities", cfg.ActivityHandler.Create)
	protected.GET("/activities", cfg.ActivityHandler.List)
	protected.GET("/activities/:id", cfg.ActivityHandler.Get)
	protected.GET("/activities/:id/data", cfg.ActivityHandler.GetData)
	protected.POST("/activities/:id/labels", cfg.ActivityHandler.SaveLabels)
	protected.POST("/activities/:id/share", cfg.ActivityHandler.Share)
	// Jobs
	protected.POST("/activities/:id/jobs", cfg.JobsHandler.Enqueue)
	protected.GET("/activities/:id/jobs/latest", cfg.JobsHandler.Latest)
	protected.GET("/jobs/:id", cfg.JobsHandler.Status)
	protected.POST("/jobs/:id/abort", cfg.JobsHandler.Abort)
	protected.POST("/jobs/:id/resume", cfg.JobsHandler.Resume)

	return router
}
