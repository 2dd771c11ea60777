package app

import (
	"github.com/tagmate/tagmate-backend/internal/handlers"
	"github.com/tagmate/tagmate-backend/internal/pkg/logger"
)

type Handlers struct {
	Auth     *handlers.AuthHandler
	User     *handlers.UserHandler
	Activity *handlers.ActivityHandler
	Jobs     *handlers.JobsHandler
	Events   *handlers.EventsHandler
}

func wireHandlers(log *logger.Logger, s Services) Handlers {
	return Handlers{
		Auth:     handlers.NewAuthHandler(s.Auth),
		User:     handlers.NewUserHandler(s.User),
		Activity: handlers.NewActivityHandler(s.Activity),
		Jobs:     handlers.NewJobsHandler(s.Job),
		Events:   handlers.NewEventsHandler(log),
	}
}
