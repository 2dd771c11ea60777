package app

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	temporalsdkclient "go.temporal.io/sdk/client"
	"gorm.io/gorm"

	redisbus "github.com/tagmate/tagmate-backend/internal/clients/redis"
	types "github.com/tagmate/tagmate-backend/internal/domain"
	"github.com/tagmate/tagmate-backend/internal/jobs/pipeline/classifier"
	"github.com/tagmate/tagmate-backend/internal/jobs/pipeline/clustering"
	jobrt "github.com/tagmate/tagmate-backend/internal/jobs/runtime"
	"github.com/tagmate/tagmate-backend/internal/pkg/logger"
	"github.com/tagmate/tagmate-backend/internal/platform/embeddings"
	"github.com/tagmate/tagmate-backend/internal/platform/gcp"
	"github.com/tagmate/tagmate-backend/internal/services"
	"github.com/tagmate/tagmate-backend/internal/temporalx"
	"github.com/tagmate/tagmate-backend/internal/temporalx/jobrun"
	"github.com/tagmate/tagmate-backend/internal/temporalx/temporalworker"
)

type Services struct {
	Auth     services.AuthService
	User     services.UserService
	Activity services.ActivityService
	Job      services.JobService

	Bucket   gcp.BucketService
	Embedder embeddings.Client
	JobBus   redisbus.JobBus
	Notifier services.JobNotifier

	Temporal  temporalsdkclient.Client
	JobWorker *temporalworker.Runner
	Registry  *jobrt.Registry
}

// disabledStarter stands in when Temporal is not configured; every enqueue
// fails fast instead of leaving a queued row nothing will ever pick up.
type disabledStarter struct{}

func (disabledStarter) StartJobRun(context.Context, *types.JobRun) error {
	return fmt.Errorf("temporal not configured")
}
func (disabledStarter) SignalResume(context.Context, uuid.UUID) error {
	return fmt.Errorf("temporal not configured")
}
func (disabledStarter) CancelJobRun(context.Context, uuid.UUID) error {
	return fmt.Errorf("temporal not configured")
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, r Repos) (Services, error) {
	bucket, err := gcp.NewBucketService(log)
	if err != nil {
		return Services{}, fmt.Errorf("init bucket service: %w", err)
	}
	embedder, err := embeddings.NewClient(log)
	if err != nil {
		return Services{}, fmt.Errorf("init embeddings client: %w", err)
	}

	var notifier services.JobNotifier
	bus, err := redisbus.NewJobBus(log)
	if err != nil {
		log.Warn("redis job bus unavailable; job events stay local", "error", err)
		notifier = services.NewNoopJobNotifier()
		bus = nil
	} else {
		notifier = bus
	}

	tc, err := temporalx.NewClient(log)
	if err != nil {
		return Services{}, fmt.Errorf("init temporal client: %w", err)
	}

	var starter services.JobStarter = disabledStarter{}
	if tc != nil {
		starter, err = jobrun.NewStarter(log, tc)
		if err != nil {
			return Services{}, err
		}
	}

	registry := jobrt.NewRegistry()
	classifierDeps := classifier.Deps{
		Log:        log,
		Documents:  r.Document,
		Activities: r.Activity,
		Embedder:   embedder,
		Bucket:     bucket,
	}
	for _, h := range []jobrt.Handler{
		clustering.New(log, r.Document, r.Cluster, r.Activity, embedder),
		classifier.NewMultiLabel(classifierDeps),
		classifier.NewEntity(classifierDeps),
	} {
		if err := registry.Register(h); err != nil {
			return Services{}, fmt.Errorf("register job handler: %w", err)
		}
	}

	var runner *temporalworker.Runner
	if tc != nil && cfg.StartWorker {
		runner, err = temporalworker.NewRunner(log, tc, db, r.JobRun, registry, notifier)
		if err != nil {
			return Services{}, fmt.Errorf("init temporal worker: %w", err)
		}
	}

	return Services{
		Auth:      services.NewAuthService(db, log, r.User, cfg.JWTSecretKey, cfg.AccessTokenTTL),
		User:      services.NewUserService(db, log, r.User),
		Activity:  services.NewActivityService(db, log, r.Activity, r.ActivityUserMap, r.Document, r.Cluster, r.User, bucket),
		Job:       services.NewJobService(db, log, r.JobRun, r.Activity, starter, notifier),
		Bucket:    bucket,
		Embedder:  embedder,
		JobBus:    bus,
		Notifier:  notifier,
		Temporal:  tc,
		JobWorker: runner,
		Registry:  registry,
	}, nil
}
