package app

import (
	"github.com/gin-gonic/gin"

	"github.com/tagmate/tagmate-backend/internal/server"
)

func wireRouter(h Handlers, m Middleware) *gin.Engine {
	return server.NewRouter(server.RouterConfig{
		AuthHandler:     h.Auth,
		AuthMiddleware:  m.Auth,
		UserHandler:     h.User,
		ActivityHandler: h.Activity,
		JobsHandler:     h.Jobs,
		EventsHandler:   h.Events,
	})
}
