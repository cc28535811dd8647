package workflow

import (
	"context"

	"github.com/polos-dev/polos-sub001/tenant"
)

// Store defines the persistence contract for deployments and workflow
// registrations.
type Store interface {
	// PutDeployment upserts a deployment record.
	PutDeployment(ctx context.Context, d *Deployment) error

	// GetDeployment retrieves a deployment by id within the project.
	GetDeployment(ctx context.Context, project tenant.ProjectID, deploymentID string) (*Deployment, error)

	// PutRegistration upserts a workflow registration.
	PutRegistration(ctx context.Context, r *Registration) error

	// GetRegistration retrieves the registration for a workflow under a
	// deployment. Returns polos.ErrRegistrationNotFound if the workflow is
	// not registered there, or if the pair is outside the project.
	GetRegistration(ctx context.Context, project tenant.ProjectID, workflowID, deploymentID string) (*Registration, error)
}
