// Package redis carries job lifecycle events over redis pub/sub so API
// instances can stream them to clients regardless of which worker ran the
// job.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	types "github.com/tagmate/tagmate-backend/internal/domain"
	"github.com/tagmate/tagmate-backend/internal/pkg/logger"
	"github.com/tagmate/tagmate-backend/internal/services"
)

const (
	EventJobCreated  = "job_created"
	EventJobProgress = "job_progress"
	EventJobFailed   = "job_failed"
	EventJobDone     = "job_done"
)

// JobEvent is the wire shape published on the job channel. Channel fan-out
// is per owning user.
type JobEvent struct {
	Channel string         `json:"channel"`
	Event   string         `json:"event"`
	Data    map[string]any `json:"data"`
}

type JobBus interface {
	services.JobNotifier
	StartForwarder(ctx context.Context, onMsg func(ev JobEvent)) error
	Close() error
}

type jobBus struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
}

func NewJobBus(log *logger.Logger) (JobBus, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	ch := strings.TrimSpace(os.Getenv("REDIS_JOB_CHANNEL"))
	if ch == "" {
		ch = "jobs"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &jobBus{
		log:     log.With("service", "RedisJobBus"),
		rdb:     rdb,
		channel: ch,
	}, nil
}

func (b *jobBus) publish(ev JobEvent) {
	if b == nil || b.rdb == nil {
		return
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := b.rdb.Publish(ctx, b.channel, raw).Err(); err != nil {
		b.log.Warn("job event publish failed", "event", ev.Event, "error", err)
	}
}

func (b *jobBus) JobCreated(userID uuid.UUID, job *types.JobRun) {
	b.publish(JobEvent{
		Channel: userID.String(),
		Event:   EventJobCreated,
		Data:    map[string]any{"job": job},
	})
}

func (b *jobBus) JobProgress(userID uuid.UUID, job *types.JobRun, stage string, progress int, message string) {
	b.publish(JobEvent{
		Channel: userID.String(),
		Event:   EventJobProgress,
		Data: map[string]any{
			"job_id":   job.ID,
			"job_type": job.JobType,
			"stage":    stage,
			"progress": progress,
			"message":  message,
			"job":      job,
		},
	})
}

func (b *jobBus) JobFailed(userID uuid.UUID, job *types.JobRun, stage string, errorMessage string) {
	b.publish(JobEvent{
		Channel: userID.String(),
		Event:   EventJobFailed,
		Data: map[string]any{
			"job_id":   job.ID,
			"job_type": job.JobType,
			"stage":    stage,
			"error":    errorMessage,
			"job":      job,
		},
	})
}

func (b *jobBus) JobDone(userID uuid.UUID, job *types.JobRun) {
	b.publish(JobEvent{
		Channel: userID.String(),
		Event:   EventJobDone,
		Data: map[string]any{
			"job_id":   job.ID,
			"job_type": job.JobType,
			"job":      job,
		},
	})
}

func (b *jobBus) StartForwarder(ctx context.Context, onMsg func(ev JobEvent)) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis job bus not initialized")
	}
	if onMsg == nil {
		return fmt.Errorf("onMsg callback required")
	}

	sub := b.rdb.Subscribe(ctx, b.channel)

	// ensures subscription actually started
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					_ = sub.Close()
					return
				}
				var ev JobEvent
				if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
					b.log.Warn("bad job event payload", "error", err)
					continue
				}
				onMsg(ev)
			}
		}
	}()

	return nil
}

func (b *jobBus) Close() error {
	if b == nil || b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}
