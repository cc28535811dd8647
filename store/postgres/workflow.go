package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	polos "github.com/polos-dev/polos-sub001"
	"github.com/polos-dev/polos-sub001/tenant"
	"github.com/polos-dev/polos-sub001/workflow"
)

// PutDeployment upserts a deployment record.
func (s *Store) PutDeployment(ctx context.Context, d *workflow.Deployment) error {
	return s.withTenant(ctx, d.ProjectID, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO polos_deployments (id, project_id, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (project_id, id) DO UPDATE
			SET status = EXCLUDED.status, updated_at = NOW()`,
			d.ID, d.ProjectID.String(), string(d.Status), d.CreatedAt, d.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("polos/postgres: put deployment: %w", err)
		}
		return nil
	})
}

// GetDeployment retrieves a deployment by id within the project.
func (s *Store) GetDeployment(ctx context.Context, project tenant.ProjectID, deploymentID string) (*workflow.Deployment, error) {
	var d workflow.Deployment
	err := s.withTenant(ctx, project, func(tx pgx.Tx) error {
		var projectID, status string
		err := tx.QueryRow(ctx, `
			SELECT id, project_id, status, created_at, updated_at
			FROM polos_deployments
			WHERE project_id = $1 AND id = $2`,
			project.String(), deploymentID,
		).Scan(&d.ID, &projectID, &status, &d.CreatedAt, &d.UpdatedAt)
		if err != nil {
			if isNoRows(err) {
				return polos.ErrDeploymentNotFound
			}
			return fmt.Errorf("polos/postgres: get deployment: %w", err)
		}
		d.ProjectID = tenant.ProjectID(projectID)
		d.Status = workflow.DeploymentStatus(status)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// PutRegistration upserts a workflow registration.
func (s *Store) PutRegistration(ctx context.Context, r *workflow.Registration) error {
	return s.withTenant(ctx, r.ProjectID, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO polos_registrations (
				project_id, workflow_id, deployment_id, workflow_type,
				trigger_on_event, scheduled, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (project_id, workflow_id, deployment_id) DO UPDATE
			SET workflow_type = EXCLUDED.workflow_type,
			    trigger_on_event = EXCLUDED.trigger_on_event,
			    scheduled = EXCLUDED.scheduled,
			    updated_at = NOW()`,
			r.ProjectID.String(), r.WorkflowID, r.DeploymentID, string(r.Type),
			r.TriggerOnEvent, r.Scheduled, r.CreatedAt, r.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("polos/postgres: put registration: %w", err)
		}
		return nil
	})
}

// GetRegistration retrieves the registration for a workflow under a
// deployment.
func (s *Store) GetRegistration(ctx context.Context, project tenant.ProjectID, workflowID, deploymentID string) (*workflow.Registration, error) {
	var r workflow.Registration
	err := s.withTenant(ctx, project, func(tx pgx.Tx) error {
		var projectID, wtype string
		err := tx.QueryRow(ctx, `
			SELECT project_id, workflow_id, deployment_id, workflow_type,
			       trigger_on_event, scheduled, created_at, updated_at
			FROM polos_registrations
			WHERE project_id = $1 AND workflow_id = $2 AND deployment_id = $3`,
			project.String(), workflowID, deploymentID,
		).Scan(&projectID, &r.WorkflowID, &r.DeploymentID, &wtype,
			&r.TriggerOnEvent, &r.Scheduled, &r.CreatedAt, &r.UpdatedAt)
		if err != nil {
			if isNoRows(err) {
				return fmt.Errorf("%w: %s under %s", polos.ErrRegistrationNotFound, workflowID, deploymentID)
			}
			return fmt.Errorf("polos/postgres: get registration: %w", err)
		}
		r.ProjectID = tenant.ProjectID(projectID)
		r.Type = workflow.Type(wtype)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &r, nil
}
