package jobrun

import (
	"fmt"
	"strings"
	"time"

	"go.temporal.io/sdk/workflow"

	jobstate "github.com/tagmate/tagmate-backend/internal/jobs"
)

// Workflow drives one job run to a terminal state. The workflow id is the
// job id, so duplicate dispatches of the same job are rejected by Temporal.
// Deferred jobs report a wait_until; the workflow sleeps until it passes or
// a resume signal arrives, then ticks again.
func Workflow(ctx workflow.Context) error {
	jobID := strings.TrimSpace(workflow.GetInfo(ctx).WorkflowExecution.ID)
	if jobID == "" {
		return fmt.Errorf("jobrun: missing job_id")
	}

	const (
		defaultPollInterval  = 2 * time.Second
		continueTickLimit    = 2000
		continueHistoryLimit = 15000
	)

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: RunTimeout,
		HeartbeatTimeout:    30 * time.Second,
		RetryPolicy:         nil, // job retries are handled at the workflow level
	})

	resumeCh := workflow.GetSignalChannel(ctx, SignalResume)
	tickCount := 0

	for {
		tickCount++
		var out TickResult
		if err := workflow.ExecuteActivity(ctx, ActivityTick, jobID).Get(ctx, &out); err != nil {
			return err
		}

		switch jobstate.Status(strings.ToLower(strings.TrimSpace(out.Status))) {
		case jobstate.StatusSuccess, jobstate.StatusNotFound:
			return nil
		case jobstate.StatusFailed:
			return fmt.Errorf("job failed (stage=%s)", strings.TrimSpace(out.Stage))
		case jobstate.StatusDeferred:
			waitForResumeOrDeadline(ctx, resumeCh, deferWait(ctx, out.WaitUntil))
			if shouldContinueAsNew(ctx, tickCount, continueTickLimit, continueHistoryLimit) {
				return workflow.NewContinueAsNewError(ctx, Workflow)
			}
			continue
		default:
			if d := nextWait(ctx, out.WaitUntil, defaultPollInterval); d > 0 {
				if err := workflow.Sleep(ctx, d); err != nil {
					return err
				}
			}
			if shouldContinueAsNew(ctx, tickCount, continueTickLimit, continueHistoryLimit) {
				return workflow.NewContinueAsNewError(ctx, Workflow)
			}
			continue
		}
	}
}

func waitForResumeOrDeadline(ctx workflow.Context, ch workflow.ReceiveChannel, maxWait time.Duration) {
	timer := workflow.NewTimer(ctx, maxWait)
	sel := workflow.NewSelector(ctx)
	sel.AddReceive(ch, func(c workflow.ReceiveChannel, more bool) {
		var v any
		c.Receive(ctx, &v)
	})
	sel.AddFuture(timer, func(f workflow.Future) {})
	sel.Select(ctx)
}

// deferWait caps a deferred job's sleep so a lost resume signal cannot park
// the workflow forever.
func deferWait(ctx workflow.Context, waitUntil *time.Time) time.Duration {
	const maxChunk = 15 * time.Minute
	if waitUntil == nil || waitUntil.IsZero() {
		return 2 * time.Minute
	}
	now := workflow.Now(ctx)
	d := waitUntil.Sub(now)
	if d <= 0 {
		return time.Second
	}
	if d > maxChunk {
		return maxChunk
	}
	return d
}

func nextWait(ctx workflow.Context, waitUntil *time.Time, def time.Duration) time.Duration {
	if waitUntil == nil || waitUntil.IsZero() {
		return def
	}
	now := workflow.Now(ctx)
	if waitUntil.Before(now) {
		return def
	}
	d := waitUntil.Sub(now)
	if d <= 0 {
		return def
	}
	if d > 15*time.Minute {
		return 15 * time.Minute
	}
	return d
}

func shouldContinueAsNew(ctx workflow.Context, ticks int, maxTicks int, maxHistory int) bool {
	if ticks >= maxTicks && maxTicks > 0 {
		return true
	}
	info := workflow.GetInfo(ctx)
	if info == nil {
		return false
	}
	if maxHistory <= 0 {
		return false
	}
	if info.GetCurrentHistoryLength() >= maxHistory {
		return true
	}
	return false
}
