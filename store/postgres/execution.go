package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	polos "github.com/polos-dev/polos-sub001"
	"github.com/polos-dev/polos-sub001/execution"
	"github.com/polos-dev/polos-sub001/id"
	"github.com/polos-dev/polos-sub001/tenant"
)

const executionColumns = `
	id, project_id, workflow_id, deployment_id, status, payload, result,
	error, parent_execution_id, worker_id, seq, started_at, finished_at,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExecution(row rowScanner) (*execution.Execution, error) {
	var (
		e         execution.Execution
		status    string
		projectID string
		parentID  *string
	)
	err := row.Scan(
		&e.ID, &projectID, &e.WorkflowID, &e.DeploymentID, &status,
		&e.Payload, &e.Result, &e.Error, &parentID, &e.WorkerID, &e.Seq,
		&e.StartedAt, &e.FinishedAt, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.ProjectID = tenant.ProjectID(projectID)
	e.Status = execution.Status(status)
	if parentID != nil {
		pid, perr := id.ParseExecutionID(*parentID)
		if perr != nil {
			return nil, fmt.Errorf("polos/postgres: corrupt parent execution id: %w", perr)
		}
		e.ParentID = &pid
	}
	return &e, nil
}

// CreateExecution persists a new execution; the database assigns the
// creation sequence.
func (s *Store) CreateExecution(ctx context.Context, e *execution.Execution) error {
	return s.withTenant(ctx, e.ProjectID, func(tx pgx.Tx) error {
		var parentID *string
		if e.ParentID != nil {
			p := e.ParentID.String()
			parentID = &p
		}
		err := tx.QueryRow(ctx, `
			INSERT INTO polos_executions (
				id, project_id, workflow_id, deployment_id, status, payload,
				error, parent_execution_id, worker_id, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			RETURNING seq`,
			e.ID.String(), e.ProjectID.String(), e.WorkflowID, e.DeploymentID,
			string(e.Status), e.Payload, e.Error, parentID, e.WorkerID.String(),
			e.CreatedAt, e.UpdatedAt,
		).Scan(&e.Seq)
		if err != nil {
			if isDuplicateKey(err) {
				return polos.Errorf(polos.KindConflict, "execution %s already exists", e.ID)
			}
			return fmt.Errorf("polos/postgres: create execution: %w", err)
		}
		return nil
	})
}

// GetExecution retrieves an execution by id within the project.
func (s *Store) GetExecution(ctx context.Context, project tenant.ProjectID, execID id.ExecutionID) (*execution.Execution, error) {
	var e *execution.Execution
	err := s.withTenant(ctx, project, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			SELECT `+executionColumns+`
			FROM polos_executions
			WHERE id = $1 AND project_id = $2`,
			execID.String(), project.String(),
		)
		var scanErr error
		e, scanErr = scanExecution(row)
		if scanErr != nil {
			if isNoRows(scanErr) {
				return polos.ErrExecutionNotFound
			}
			return fmt.Errorf("polos/postgres: get execution: %w", scanErr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

// TransitionExecution atomically moves the execution from one status to
// another. Zero rows affected means the race was lost, not an error.
func (s *Store) TransitionExecution(ctx context.Context, project tenant.ProjectID, execID id.ExecutionID, from, to execution.Status) (bool, error) {
	var moved bool
	err := s.withTenant(ctx, project, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE polos_executions
			SET status = $1,
			    started_at = CASE WHEN $1 = 'running' AND started_at IS NULL THEN NOW() ELSE started_at END,
			    finished_at = CASE WHEN $1 IN ('completed', 'failed', 'cancelled') THEN NOW() ELSE finished_at END,
			    updated_at = NOW()
			WHERE id = $2 AND project_id = $3 AND status = $4`,
			string(to), execID.String(), project.String(), string(from),
		)
		if err != nil {
			return fmt.Errorf("polos/postgres: transition execution: %w", err)
		}
		moved = tag.RowsAffected() > 0
		return nil
	})
	return moved, err
}

// ClaimExecution atomically moves queued → running and records the
// worker, but only while the worker's in-flight count is below
// maxConcurrent. An advisory lock serializes claims per worker, so the
// count and the conditional update see the same committed state and
// concurrent claimers cannot overshoot the limit.
func (s *Store) ClaimExecution(ctx context.Context, project tenant.ProjectID, execID id.ExecutionID, workerID id.WorkerID, maxConcurrent int) (bool, error) {
	var claimed bool
	err := s.withTenant(ctx, project, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`,
			project.String()+"/"+workerID.String(),
		)
		if err != nil {
			return fmt.Errorf("polos/postgres: lock worker claims: %w", err)
		}

		var inFlight int
		err = tx.QueryRow(ctx, `
			SELECT COUNT(*) FROM polos_executions
			WHERE project_id = $1 AND worker_id = $2 AND status = 'running'`,
			project.String(), workerID.String(),
		).Scan(&inFlight)
		if err != nil {
			return fmt.Errorf("polos/postgres: count in-flight before claim: %w", err)
		}
		if inFlight >= maxConcurrent {
			return nil
		}

		tag, err := tx.Exec(ctx, `
			UPDATE polos_executions
			SET status = 'running', worker_id = $1,
			    started_at = COALESCE(started_at, NOW()), updated_at = NOW()
			WHERE id = $2 AND project_id = $3 AND status = 'queued'`,
			workerID.String(), execID.String(), project.String(),
		)
		if err != nil {
			return fmt.Errorf("polos/postgres: claim execution: %w", err)
		}
		claimed = tag.RowsAffected() > 0
		return nil
	})
	return claimed, err
}

// ReleaseExecution atomically moves running → queued and clears the worker.
func (s *Store) ReleaseExecution(ctx context.Context, project tenant.ProjectID, execID id.ExecutionID) (bool, error) {
	var released bool
	err := s.withTenant(ctx, project, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE polos_executions
			SET status = 'queued', worker_id = '', updated_at = NOW()
			WHERE id = $1 AND project_id = $2 AND status = 'running'`,
			execID.String(), project.String(),
		)
		if err != nil {
			return fmt.Errorf("polos/postgres: release execution: %w", err)
		}
		released = tag.RowsAffected() > 0
		return nil
	})
	return released, err
}

// CompleteExecution atomically moves running → completed with the result.
func (s *Store) CompleteExecution(ctx context.Context, project tenant.ProjectID, execID id.ExecutionID, result []byte) (bool, error) {
	var done bool
	err := s.withTenant(ctx, project, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE polos_executions
			SET status = 'completed', result = $1, finished_at = NOW(), updated_at = NOW()
			WHERE id = $2 AND project_id = $3 AND status = 'running'`,
			result, execID.String(), project.String(),
		)
		if err != nil {
			return fmt.Errorf("polos/postgres: complete execution: %w", err)
		}
		done = tag.RowsAffected() > 0
		return nil
	})
	return done, err
}

// FailExecution atomically moves the execution to failed from any
// non-terminal state.
func (s *Store) FailExecution(ctx context.Context, project tenant.ProjectID, execID id.ExecutionID, msg string) (bool, error) {
	var failed bool
	err := s.withTenant(ctx, project, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE polos_executions
			SET status = 'failed', error = $1, finished_at = NOW(), updated_at = NOW()
			WHERE id = $2 AND project_id = $3
			  AND status NOT IN ('completed', 'failed', 'cancelled')`,
			msg, execID.String(), project.String(),
		)
		if err != nil {
			return fmt.Errorf("polos/postgres: fail execution: %w", err)
		}
		failed = tag.RowsAffected() > 0
		return nil
	})
	return failed, err
}

// ListQueuedExecutions returns queued executions across all projects in
// creation order. Elevated context only.
func (s *Store) ListQueuedExecutions(ctx context.Context, limit int) ([]*execution.Execution, error) {
	var out []*execution.Execution
	err := s.withAdmin(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT `+executionColumns+`
			FROM polos_executions
			WHERE status = 'queued'
			ORDER BY seq ASC
			LIMIT $1`,
			limit,
		)
		if err != nil {
			return fmt.Errorf("polos/postgres: list queued executions: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			e, scanErr := scanExecution(rows)
			if scanErr != nil {
				return fmt.Errorf("polos/postgres: scan queued execution: %w", scanErr)
			}
			out = append(out, e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CountRunningByWorker returns the worker's in-flight execution count.
func (s *Store) CountRunningByWorker(ctx context.Context, project tenant.ProjectID, workerID id.WorkerID) (int, error) {
	var n int
	err := s.withTenant(ctx, project, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, `
			SELECT COUNT(*) FROM polos_executions
			WHERE project_id = $1 AND worker_id = $2 AND status = 'running'`,
			project.String(), workerID.String(),
		).Scan(&n)
	})
	if err != nil {
		return 0, fmt.Errorf("polos/postgres: count running by worker: %w", err)
	}
	return n, nil
}
