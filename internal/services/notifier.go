package services

import (
	"github.com/google/uuid"

	types "github.com/tagmate/tagmate-backend/internal/domain"
)

// JobNotifier pushes job lifecycle events toward interested clients. The
// production implementation publishes to redis pub/sub; tests use the no-op.
type JobNotifier interface {
	JobCreated(userID uuid.UUID, job *types.JobRun)
	JobProgress(userID uuid.UUID, job *types.JobRun, stage string, progress int, message string)
	JobFailed(userID uuid.UUID, job *types.JobRun, stage string, errorMessage string)
	JobDone(userID uuid.UUID, job *types.JobRun)
}

type noopNotifier struct{}

func NewNoopJobNotifier() JobNotifier { return noopNotifier{} }

func (noopNotifier) JobCreated(uuid.UUID, *types.JobRun)                       {}
func (noopNotifier) JobProgress(uuid.UUID, *types.JobRun, string, int, string) {}
func (noopNotifier) JobFailed(uuid.UUID, *types.JobRun, string, string)        {}
func (noopNotifier) JobDone(uuid.UUID, *types.JobRun)                          {}
