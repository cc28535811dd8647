package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	polos "github.com/polos-dev/polos-sub001"
	"github.com/polos-dev/polos-sub001/id"
	"github.com/polos-dev/polos-sub001/step"
	"github.com/polos-dev/polos-sub001/tenant"
	"github.com/polos-dev/polos-sub001/wait"
)

const waitColumns = `
	id, project_id, execution_id, step_key, kind, wait_until, topic,
	correlation_key, event_cursor, created_at, updated_at`

func scanWaitStep(row rowScanner) (*wait.Step, error) {
	var (
		s         wait.Step
		projectID string
		kind      string
	)
	err := row.Scan(
		&s.ID, &projectID, &s.ExecutionID, &s.StepKey, &kind, &s.WaitUntil,
		&s.Topic, &s.CorrelationKey, &s.EventCursor, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.ProjectID = tenant.ProjectID(projectID)
	s.Kind = wait.Kind(kind)
	return &s, nil
}

// SuspendExecution atomically inserts the wait step and moves the
// execution running → waiting in one transaction.
func (s *Store) SuspendExecution(ctx context.Context, ws *wait.Step) (bool, error) {
	var suspended bool
	err := s.withTenant(ctx, ws.ProjectID, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE polos_executions
			SET status = 'waiting', updated_at = NOW()
			WHERE id = $1 AND project_id = $2 AND status = 'running'`,
			ws.ExecutionID.String(), ws.ProjectID.String(),
		)
		if err != nil {
			return fmt.Errorf("polos/postgres: suspend execution: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO polos_wait_steps (
				id, project_id, execution_id, step_key, kind, wait_until,
				topic, correlation_key, event_cursor, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			ws.ID.String(), ws.ProjectID.String(), ws.ExecutionID.String(),
			ws.StepKey, string(ws.Kind), ws.WaitUntil, ws.Topic,
			ws.CorrelationKey, ws.EventCursor, ws.CreatedAt, ws.UpdatedAt,
		)
		if err != nil {
			if isDuplicateKey(err) {
				return polos.Errorf(polos.KindConflict, "execution %s already has a pending wait", ws.ExecutionID)
			}
			return fmt.Errorf("polos/postgres: insert wait step: %w", err)
		}
		suspended = true
		return nil
	})
	return suspended, err
}

// ResumeWaitStep atomically memoizes the trigger as the step's output,
// deletes the wait step, and moves the execution waiting → queued. The
// row lock on the wait step serializes racing resumers; the loser sees
// no row and no-ops.
func (s *Store) ResumeWaitStep(ctx context.Context, project tenant.ProjectID, waitID id.WaitID, trigger wait.Trigger) (bool, error) {
	var resumed bool
	err := s.withTenant(ctx, project, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			SELECT `+waitColumns+`
			FROM polos_wait_steps
			WHERE id = $1 AND project_id = $2
			FOR UPDATE`,
			waitID.String(), project.String(),
		)
		ws, scanErr := scanWaitStep(row)
		if scanErr != nil {
			if isNoRows(scanErr) {
				return nil
			}
			return fmt.Errorf("polos/postgres: lock wait step: %w", scanErr)
		}

		tag, err := tx.Exec(ctx, `
			UPDATE polos_executions
			SET status = 'queued', worker_id = '', updated_at = NOW()
			WHERE id = $1 AND project_id = $2 AND status = 'waiting'`,
			ws.ExecutionID.String(), project.String(),
		)
		if err != nil {
			return fmt.Errorf("polos/postgres: resume execution: %w", err)
		}
		if tag.RowsAffected() == 0 {
			// Cancelled or failed out from under the wait; drop the step.
			_, err = tx.Exec(ctx,
				`DELETE FROM polos_wait_steps WHERE id = $1`, waitID.String())
			if err != nil {
				return fmt.Errorf("polos/postgres: drop orphan wait step: %w", err)
			}
			return nil
		}

		now := time.Now().UTC()
		out := &step.Output{
			ID:          id.NewStepID(),
			ProjectID:   project,
			ExecutionID: ws.ExecutionID,
			StepKey:     ws.StepKey,
			Success:     true,
			Value:       trigger.Encode(),
		}
		out.CreatedAt, out.UpdatedAt = now, now
		if err := saveStepOutputTx(ctx, tx, out); err != nil {
			return err
		}

		_, err = tx.Exec(ctx,
			`DELETE FROM polos_wait_steps WHERE id = $1`, waitID.String())
		if err != nil {
			return fmt.Errorf("polos/postgres: delete wait step: %w", err)
		}
		resumed = true
		return nil
	})
	return resumed, err
}

// GetWaitStep retrieves a wait step by id.
func (s *Store) GetWaitStep(ctx context.Context, project tenant.ProjectID, waitID id.WaitID) (*wait.Step, error) {
	var ws *wait.Step
	err := s.withTenant(ctx, project, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			SELECT `+waitColumns+`
			FROM polos_wait_steps
			WHERE id = $1 AND project_id = $2`,
			waitID.String(), project.String(),
		)
		var scanErr error
		ws, scanErr = scanWaitStep(row)
		if scanErr != nil {
			if isNoRows(scanErr) {
				return polos.Errorf(polos.KindNotFound, "wait step %s not found", waitID)
			}
			return fmt.Errorf("polos/postgres: get wait step: %w", scanErr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ws, nil
}

// GetPendingWait returns the pending wait step for an execution, if any.
func (s *Store) GetPendingWait(ctx context.Context, project tenant.ProjectID, execID id.ExecutionID) (*wait.Step, error) {
	var ws *wait.Step
	err := s.withTenant(ctx, project, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			SELECT `+waitColumns+`
			FROM polos_wait_steps
			WHERE execution_id = $1 AND project_id = $2`,
			execID.String(), project.String(),
		)
		var scanErr error
		ws, scanErr = scanWaitStep(row)
		if scanErr != nil {
			if isNoRows(scanErr) {
				return polos.Errorf(polos.KindNotFound, "no pending wait for execution %s", execID)
			}
			return fmt.Errorf("polos/postgres: get pending wait: %w", scanErr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ws, nil
}

// ListDueTimeWaits returns due time waits across all projects. Elevated
// context only.
func (s *Store) ListDueTimeWaits(ctx context.Context, now time.Time, limit int) ([]*wait.Step, error) {
	var out []*wait.Step
	err := s.withAdmin(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT `+waitColumns+`
			FROM polos_wait_steps
			WHERE kind = 'time' AND wait_until <= $1
			ORDER BY wait_until ASC
			LIMIT $2`,
			now, limit,
		)
		if err != nil {
			return fmt.Errorf("polos/postgres: list due time waits: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			ws, scanErr := scanWaitStep(rows)
			if scanErr != nil {
				return fmt.Errorf("polos/postgres: scan wait step: %w", scanErr)
			}
			out = append(out, ws)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListEventWaits returns the event waits on a topic within a project.
func (s *Store) ListEventWaits(ctx context.Context, project tenant.ProjectID, topic string) ([]*wait.Step, error) {
	var out []*wait.Step
	err := s.withTenant(ctx, project, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT `+waitColumns+`
			FROM polos_wait_steps
			WHERE kind = 'event' AND project_id = $1 AND topic = $2
			ORDER BY created_at ASC`,
			project.String(), topic,
		)
		if err != nil {
			return fmt.Errorf("polos/postgres: list event waits: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			ws, scanErr := scanWaitStep(rows)
			if scanErr != nil {
				return fmt.Errorf("polos/postgres: scan wait step: %w", scanErr)
			}
			out = append(out, ws)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListPendingEventWaits returns pending event waits across all projects,
// oldest first. Elevated context only.
func (s *Store) ListPendingEventWaits(ctx context.Context, limit int) ([]*wait.Step, error) {
	var out []*wait.Step
	err := s.withAdmin(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT `+waitColumns+`
			FROM polos_wait_steps
			WHERE kind = 'event'
			ORDER BY created_at ASC
			LIMIT $1`,
			limit,
		)
		if err != nil {
			return fmt.Errorf("polos/postgres: list pending event waits: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			ws, scanErr := scanWaitStep(rows)
			if scanErr != nil {
				return fmt.Errorf("polos/postgres: scan wait step: %w", scanErr)
			}
			out = append(out, ws)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AdvanceWaitCursor moves an event wait's topic cursor forward. Moving
// backward is a no-op.
func (s *Store) AdvanceWaitCursor(ctx context.Context, project tenant.ProjectID, waitID id.WaitID, seq int64) error {
	return s.withTenant(ctx, project, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE polos_wait_steps
			SET event_cursor = GREATEST(event_cursor, $1), updated_at = NOW()
			WHERE id = $2 AND project_id = $3`,
			seq, waitID.String(), project.String(),
		)
		if err != nil {
			return fmt.Errorf("polos/postgres: advance wait cursor: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return polos.Errorf(polos.KindNotFound, "wait step %s not found", waitID)
		}
		return nil
	})
}

// DeleteWaitStep removes a wait step without resuming.
func (s *Store) DeleteWaitStep(ctx context.Context, project tenant.ProjectID, waitID id.WaitID) error {
	return s.withTenant(ctx, project, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			DELETE FROM polos_wait_steps
			WHERE id = $1 AND project_id = $2`,
			waitID.String(), project.String(),
		)
		if err != nil {
			return fmt.Errorf("polos/postgres: delete wait step: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return polos.Errorf(polos.KindNotFound, "wait step %s not found", waitID)
		}
		return nil
	})
}
