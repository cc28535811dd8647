package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	polos "github.com/polos-dev/polos-sub001"
	"github.com/polos-dev/polos-sub001/schedule"
	"github.com/polos-dev/polos-sub001/tenant"
)

const scheduleColumns = `
	id, project_id, workflow_id, deployment_id, cron, timezone, key,
	status, last_run_at, next_run_at, created_at, updated_at`

func scanSchedule(row rowScanner) (*schedule.Schedule, error) {
	var (
		s         schedule.Schedule
		projectID string
		status    string
	)
	err := row.Scan(
		&s.ID, &projectID, &s.WorkflowID, &s.DeploymentID, &s.Cron,
		&s.Timezone, &s.Key, &status, &s.LastRunAt, &s.NextRunAt,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.ProjectID = tenant.ProjectID(projectID)
	s.Status = schedule.Status(status)
	return &s, nil
}

// UpsertSchedule creates or updates the schedule keyed by
// (workflow_id, key). An update keeps the existing id and status.
func (s *Store) UpsertSchedule(ctx context.Context, sc *schedule.Schedule) (*schedule.Schedule, error) {
	var stored *schedule.Schedule
	err := s.withTenant(ctx, sc.ProjectID, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO polos_schedules (
				id, project_id, workflow_id, deployment_id, cron, timezone,
				key, status, next_run_at, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (project_id, workflow_id, key) DO UPDATE
			SET cron = EXCLUDED.cron,
			    timezone = EXCLUDED.timezone,
			    deployment_id = EXCLUDED.deployment_id,
			    next_run_at = EXCLUDED.next_run_at,
			    updated_at = NOW()
			RETURNING `+scheduleColumns,
			sc.ID.String(), sc.ProjectID.String(), sc.WorkflowID,
			sc.DeploymentID, sc.Cron, sc.Timezone, sc.Key, string(sc.Status),
			sc.NextRunAt, sc.CreatedAt, sc.UpdatedAt,
		)
		var scanErr error
		stored, scanErr = scanSchedule(row)
		if scanErr != nil {
			return fmt.Errorf("polos/postgres: upsert schedule: %w", scanErr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// GetSchedule retrieves a schedule by workflow id and key.
func (s *Store) GetSchedule(ctx context.Context, project tenant.ProjectID, workflowID, key string) (*schedule.Schedule, error) {
	var sc *schedule.Schedule
	err := s.withTenant(ctx, project, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			SELECT `+scheduleColumns+`
			FROM polos_schedules
			WHERE project_id = $1 AND workflow_id = $2 AND key = $3`,
			project.String(), workflowID, key,
		)
		var scanErr error
		sc, scanErr = scanSchedule(row)
		if scanErr != nil {
			if isNoRows(scanErr) {
				return polos.ErrScheduleNotFound
			}
			return fmt.Errorf("polos/postgres: get schedule: %w", scanErr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sc, nil
}

// SetScheduleStatus pauses or resumes a schedule.
func (s *Store) SetScheduleStatus(ctx context.Context, project tenant.ProjectID, workflowID, key string, status schedule.Status) error {
	return s.withTenant(ctx, project, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE polos_schedules
			SET status = $1, updated_at = NOW()
			WHERE project_id = $2 AND workflow_id = $3 AND key = $4`,
			string(status), project.String(), workflowID, key,
		)
		if err != nil {
			return fmt.Errorf("polos/postgres: set schedule status: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return polos.ErrScheduleNotFound
		}
		return nil
	})
}

// ListDueSchedules returns active due schedules across all projects.
// Elevated context only.
func (s *Store) ListDueSchedules(ctx context.Context, now time.Time, limit int) ([]*schedule.Schedule, error) {
	var out []*schedule.Schedule
	err := s.withAdmin(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT `+scheduleColumns+`
			FROM polos_schedules
			WHERE status = 'active' AND next_run_at <= $1
			ORDER BY next_run_at ASC
			LIMIT $2`,
			now, limit,
		)
		if err != nil {
			return fmt.Errorf("polos/postgres: list due schedules: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			sc, scanErr := scanSchedule(rows)
			if scanErr != nil {
				return fmt.Errorf("polos/postgres: scan schedule: %w", scanErr)
			}
			out = append(out, sc)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ClaimSchedule advances next_run_at only if it still matches the
// observed value. The conditional update is the at-most-once fire guard
// under concurrent sweepers.
func (s *Store) ClaimSchedule(ctx context.Context, sc *schedule.Schedule, lastRun, nextRun time.Time) (bool, error) {
	var claimed bool
	err := s.withTenant(ctx, sc.ProjectID, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE polos_schedules
			SET last_run_at = $1, next_run_at = $2, updated_at = NOW()
			WHERE id = $3 AND project_id = $4 AND next_run_at = $5`,
			lastRun, nextRun, sc.ID.String(), sc.ProjectID.String(), sc.NextRunAt,
		)
		if err != nil {
			return fmt.Errorf("polos/postgres: claim schedule: %w", err)
		}
		claimed = tag.RowsAffected() > 0
		return nil
	})
	return claimed, err
}
