package schedule

import (
	"context"
	"log/slog"
	"time"

	polos "github.com/polos-dev/polos-sub001"
	"github.com/polos-dev/polos-sub001/execution"
	"github.com/polos-dev/polos-sub001/id"
	"github.com/polos-dev/polos-sub001/tenant"
	"github.com/polos-dev/polos-sub001/workflow"
)

// ExecutionCreator creates the execution a fired schedule produces.
// Satisfied by *execution.Machine.
type ExecutionCreator interface {
	Create(ctx context.Context, in execution.CreateInput) (*execution.Execution, error)
}

// Emitter receives schedule firing signals.
type Emitter interface {
	ScheduleFired(ctx context.Context, s *Schedule, e *execution.Execution)
}

type nopEmitter struct{}

func (nopEmitter) ScheduleFired(context.Context, *Schedule, *execution.Execution) {}

// Engine manages schedule upserts and the due-schedule sweep.
type Engine struct {
	store     Store
	workflows workflow.Store
	evaluator Evaluator
	creator   ExecutionCreator
	emitter   Emitter
	logger    *slog.Logger
	now       func() time.Time
}

// NewEngine creates a schedule engine.
func NewEngine(store Store, workflows workflow.Store, evaluator Evaluator, creator ExecutionCreator, logger *slog.Logger) *Engine {
	return &Engine{
		store:     store,
		workflows: workflows,
		evaluator: evaluator,
		creator:   creator,
		emitter:   nopEmitter{},
		logger:    logger.With("component", "schedule"),
		now:       time.Now,
	}
}

// SetEmitter installs the firing emitter. Must be called before use.
func (e *Engine) SetEmitter(em Emitter) {
	if em != nil {
		e.emitter = em
	}
}

// CreateInput carries the caller-supplied fields for a schedule upsert.
type CreateInput struct {
	ProjectID    tenant.ProjectID
	WorkflowID   string
	DeploymentID string
	Cron         string
	Timezone     string
	Key          string
}

// CreateOrUpdate upserts the schedule identified by (workflow_id, key).
// The workflow must be registered under the deployment and marked
// scheduled; otherwise the call fails with InvalidArgument.
func (e *Engine) CreateOrUpdate(ctx context.Context, in CreateInput) (*Schedule, error) {
	if in.ProjectID.IsZero() {
		return nil, polos.ErrMissingProject
	}
	if in.WorkflowID == "" || in.Key == "" {
		return nil, polos.NewError(polos.KindInvalidArgument, "workflow id and key are required")
	}

	reg, err := e.workflows.GetRegistration(ctx, in.ProjectID, in.WorkflowID, in.DeploymentID)
	if err != nil {
		if polos.IsNotFound(err) {
			return nil, polos.Errorf(polos.KindInvalidArgument, "workflow %s is not registered under deployment %s", in.WorkflowID, in.DeploymentID)
		}
		return nil, err
	}
	if !reg.Scheduled {
		return nil, polos.ErrNotScheduled
	}

	next, err := e.evaluator.NextFire(in.Cron, in.Timezone, e.now())
	if err != nil {
		return nil, err
	}

	s := &Schedule{
		Entity:       polos.NewEntity(),
		ID:           id.NewScheduleID(),
		ProjectID:    in.ProjectID,
		WorkflowID:   in.WorkflowID,
		DeploymentID: in.DeploymentID,
		Cron:         in.Cron,
		Timezone:     in.Timezone,
		Key:          in.Key,
		Status:       StatusActive,
		NextRunAt:    next,
	}
	stored, err := e.store.UpsertSchedule(ctx, s)
	if err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "schedule upserted",
		"schedule_id", stored.ID, "workflow_id", stored.WorkflowID,
		"key", stored.Key, "next_run_at", stored.NextRunAt)
	return stored, nil
}

// Get retrieves a schedule by workflow id and idempotency key.
func (e *Engine) Get(ctx context.Context, project tenant.ProjectID, workflowID, key string) (*Schedule, error) {
	if project.IsZero() {
		return nil, polos.ErrMissingProject
	}
	return e.store.GetSchedule(ctx, project, workflowID, key)
}

// SetStatus pauses or resumes a schedule.
func (e *Engine) SetStatus(ctx context.Context, project tenant.ProjectID, workflowID, key string, status Status) error {
	if project.IsZero() {
		return polos.ErrMissingProject
	}
	if status != StatusActive && status != StatusPaused {
		return polos.Errorf(polos.KindInvalidArgument, "unknown schedule status %q", status)
	}
	return e.store.SetScheduleStatus(ctx, project, workflowID, key, status)
}

// FireDue fires every active schedule whose next_run_at has passed. The
// claim is a conditional update on next_run_at, so N concurrent sweepers
// fire a given instant at most once. Runs under an admin context; returns
// the number fired.
func (e *Engine) FireDue(ctx context.Context, limit int) (int, error) {
	now := e.now()
	due, err := e.store.ListDueSchedules(ctx, now, limit)
	if err != nil {
		return 0, err
	}

	fired := 0
	for _, s := range due {
		next, err := e.evaluator.NextFire(s.Cron, s.Timezone, now)
		if err != nil {
			e.logger.ErrorContext(ctx, "cron evaluation failed",
				"schedule_id", s.ID, "cron", s.Cron, "error", err)
			continue
		}

		claimed, err := e.store.ClaimSchedule(ctx, s, now, next)
		if err != nil {
			e.logger.ErrorContext(ctx, "schedule claim failed",
				"schedule_id", s.ID, "error", err)
			continue
		}
		if !claimed {
			continue
		}

		exec, err := e.creator.Create(ctx, execution.CreateInput{
			ProjectID:    s.ProjectID,
			WorkflowID:   s.WorkflowID,
			DeploymentID: s.DeploymentID,
		})
		if err != nil {
			// The instant is already consumed; log and move on rather
			// than un-claiming, the next tick fires the next instant.
			e.logger.ErrorContext(ctx, "scheduled execution create failed",
				"schedule_id", s.ID, "workflow_id", s.WorkflowID, "error", err)
			continue
		}

		fired++
		e.emitter.ScheduleFired(ctx, s, exec)
		e.logger.InfoContext(ctx, "schedule fired",
			"schedule_id", s.ID, "execution_id", exec.ID, "next_run_at", next)
	}
	return fired, nil
}
