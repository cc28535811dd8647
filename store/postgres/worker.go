package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	polos "github.com/polos-dev/polos-sub001"
	"github.com/polos-dev/polos-sub001/id"
	"github.com/polos-dev/polos-sub001/tenant"
	"github.com/polos-dev/polos-sub001/worker"
)

const workerColumns = `
	id, project_id, capabilities, mode, push_endpoint_url, max_concurrent,
	current_deployment_id, status, last_heartbeat, created_at, updated_at`

func scanWorker(row rowScanner) (*worker.Worker, error) {
	var (
		w         worker.Worker
		projectID string
		mode      string
		status    string
	)
	err := row.Scan(
		&w.ID, &projectID, &w.Capabilities, &mode, &w.PushEndpointURL,
		&w.MaxConcurrent, &w.CurrentDeploymentID, &status, &w.LastHeartbeat,
		&w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	w.ProjectID = tenant.ProjectID(projectID)
	w.Mode = worker.Mode(mode)
	w.Status = worker.Status(status)
	return &w, nil
}

// UpsertWorker registers or re-registers a worker. Re-registration keeps
// liveness state.
func (s *Store) UpsertWorker(ctx context.Context, w *worker.Worker) error {
	return s.withTenant(ctx, w.ProjectID, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO polos_workers (
				id, project_id, capabilities, mode, push_endpoint_url,
				max_concurrent, current_deployment_id, status, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (id) DO UPDATE
			SET capabilities = EXCLUDED.capabilities,
			    mode = EXCLUDED.mode,
			    push_endpoint_url = EXCLUDED.push_endpoint_url,
			    max_concurrent = EXCLUDED.max_concurrent,
			    current_deployment_id = EXCLUDED.current_deployment_id,
			    updated_at = NOW()
			WHERE polos_workers.project_id = EXCLUDED.project_id`,
			w.ID.String(), w.ProjectID.String(), w.Capabilities, string(w.Mode),
			w.PushEndpointURL, w.MaxConcurrent, w.CurrentDeploymentID,
			string(w.Status), w.CreatedAt, w.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("polos/postgres: upsert worker: %w", err)
		}
		return nil
	})
}

// GetWorker retrieves a worker by id within the project.
func (s *Store) GetWorker(ctx context.Context, project tenant.ProjectID, workerID id.WorkerID) (*worker.Worker, error) {
	var w *worker.Worker
	err := s.withTenant(ctx, project, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			SELECT `+workerColumns+`
			FROM polos_workers
			WHERE id = $1 AND project_id = $2`,
			workerID.String(), project.String(),
		)
		var scanErr error
		w, scanErr = scanWorker(row)
		if scanErr != nil {
			if isNoRows(scanErr) {
				return polos.ErrWorkerNotFound
			}
			return fmt.Errorf("polos/postgres: get worker: %w", scanErr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return w, nil
}

// HeartbeatWorker records a heartbeat and moves an offline worker online,
// returning the status the worker had before this heartbeat. Reading the
// prior status inside the update keeps the offline → online determination
// atomic under racing heartbeats.
func (s *Store) HeartbeatWorker(ctx context.Context, project tenant.ProjectID, workerID id.WorkerID, at time.Time) (worker.Status, error) {
	var prior string
	err := s.withTenant(ctx, project, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			UPDATE polos_workers w
			SET last_heartbeat = $1, status = 'online', updated_at = NOW()
			FROM (
				SELECT id, status FROM polos_workers
				WHERE id = $2 AND project_id = $3
				FOR UPDATE
			) old
			WHERE w.id = old.id
			RETURNING old.status`,
			at, workerID.String(), project.String(),
		).Scan(&prior)
		if err != nil {
			if isNoRows(err) {
				return polos.ErrWorkerNotFound
			}
			return fmt.Errorf("polos/postgres: heartbeat worker: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return worker.Status(prior), nil
}

// MarkStaleWorkersOffline moves silent online workers offline across all
// projects. Elevated context only.
func (s *Store) MarkStaleWorkersOffline(ctx context.Context, cutoff time.Time) ([]*worker.Worker, error) {
	var out []*worker.Worker
	err := s.withAdmin(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			UPDATE polos_workers
			SET status = 'offline', updated_at = NOW()
			WHERE status = 'online' AND last_heartbeat < $1
			RETURNING `+workerColumns,
			cutoff,
		)
		if err != nil {
			return fmt.Errorf("polos/postgres: mark stale workers: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			w, scanErr := scanWorker(rows)
			if scanErr != nil {
				return fmt.Errorf("polos/postgres: scan worker: %w", scanErr)
			}
			out = append(out, w)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListDispatchCandidates returns online push workers for the deployment,
// earliest heartbeat first.
func (s *Store) ListDispatchCandidates(ctx context.Context, project tenant.ProjectID, deploymentID string) ([]*worker.Worker, error) {
	var out []*worker.Worker
	err := s.withTenant(ctx, project, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT `+workerColumns+`
			FROM polos_workers
			WHERE project_id = $1 AND current_deployment_id = $2
			  AND status = 'online' AND mode = 'push'
			ORDER BY last_heartbeat ASC`,
			project.String(), deploymentID,
		)
		if err != nil {
			return fmt.Errorf("polos/postgres: list dispatch candidates: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			w, scanErr := scanWorker(rows)
			if scanErr != nil {
				return fmt.Errorf("polos/postgres: scan worker: %w", scanErr)
			}
			out = append(out, w)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
