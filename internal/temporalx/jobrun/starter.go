package jobrun

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	enumspb "go.temporal.io/api/enums/v1"
	temporalsdkclient "go.temporal.io/sdk/client"

	types "github.com/tagmate/tagmate-backend/internal/domain"
	"github.com/tagmate/tagmate-backend/internal/pkg/logger"
	"github.com/tagmate/tagmate-backend/internal/services"
	"github.com/tagmate/tagmate-backend/internal/temporalx"
)

// starter implements services.JobStarter on top of a Temporal client. One
// workflow per job, workflow id = job id, so a duplicate start for the same
// job is rejected by Temporal itself.
type starter struct {
	log *logger.Logger
	tc  temporalsdkclient.Client
	cfg temporalx.Config
}

func NewStarter(log *logger.Logger, tc temporalsdkclient.Client) (services.JobStarter, error) {
	if tc == nil {
		return nil, fmt.Errorf("temporal client required")
	}
	return &starter{
		log: log.With("service", "JobStarter"),
		tc:  tc,
		cfg: temporalx.LoadConfig(),
	}, nil
}

func (s *starter) StartJobRun(ctx context.Context, job *types.JobRun) error {
	if job == nil || job.ID == uuid.Nil {
		return fmt.Errorf("job with id required")
	}
	opts := temporalsdkclient.StartWorkflowOptions{
		ID:                    job.ID.String(),
		TaskQueue:             s.cfg.TaskQueue,
		WorkflowIDReusePolicy: enumspb.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE,
	}
	if _, err := s.tc.ExecuteWorkflow(ctx, opts, WorkflowName, job.ID.String()); err != nil {
		return fmt.Errorf("start workflow: %w", err)
	}
	return nil
}

func (s *starter) SignalResume(ctx context.Context, jobID uuid.UUID) error {
	if jobID == uuid.Nil {
		return fmt.Errorf("job id required")
	}
	if err := s.tc.SignalWorkflow(ctx, jobID.String(), "", SignalResume, nil); err != nil {
		return fmt.Errorf("signal workflow: %w", err)
	}
	return nil
}

func (s *starter) CancelJobRun(ctx context.Context, jobID uuid.UUID) error {
	if jobID == uuid.Nil {
		return fmt.Errorf("job id required")
	}
	if err := s.tc.CancelWorkflow(ctx, jobID.String(), ""); err != nil {
		return fmt.Errorf("cancel workflow: %w", err)
	}
	return nil
}
