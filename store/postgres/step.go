package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	polos "github.com/polos-dev/polos-sub001"
	"github.com/polos-dev/polos-sub001/id"
	"github.com/polos-dev/polos-sub001/step"
	"github.com/polos-dev/polos-sub001/tenant"
)

const stepColumns = `
	id, project_id, execution_id, step_key, success, value, error,
	source_execution_id, output_schema_name, created_at, updated_at`

func scanStepOutput(row rowScanner) (*step.Output, error) {
	var (
		o         step.Output
		projectID string
		sourceID  *string
	)
	err := row.Scan(
		&o.ID, &projectID, &o.ExecutionID, &o.StepKey, &o.Success, &o.Value,
		&o.Error, &sourceID, &o.OutputSchemaName, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.ProjectID = tenant.ProjectID(projectID)
	if sourceID != nil {
		sid, perr := id.ParseExecutionID(*sourceID)
		if perr != nil {
			return nil, fmt.Errorf("polos/postgres: corrupt source execution id: %w", perr)
		}
		o.SourceExecutionID = &sid
	}
	return &o, nil
}

// SaveStepOutput upserts a step output. A row already recorded with
// success stays as-is; the first successful result wins.
func (s *Store) SaveStepOutput(ctx context.Context, o *step.Output) error {
	return s.withTenant(ctx, o.ProjectID, func(tx pgx.Tx) error {
		return saveStepOutputTx(ctx, tx, o)
	})
}

func saveStepOutputTx(ctx context.Context, tx pgx.Tx, o *step.Output) error {
	var sourceID *string
	if o.SourceExecutionID != nil {
		sid := o.SourceExecutionID.String()
		sourceID = &sid
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO polos_step_outputs (
			id, project_id, execution_id, step_key, success, value, error,
			source_execution_id, output_schema_name, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (execution_id, step_key) DO UPDATE
		SET success = EXCLUDED.success, value = EXCLUDED.value,
		    error = EXCLUDED.error,
		    source_execution_id = EXCLUDED.source_execution_id,
		    output_schema_name = EXCLUDED.output_schema_name,
		    updated_at = NOW()
		WHERE polos_step_outputs.success = FALSE`,
		o.ID.String(), o.ProjectID.String(), o.ExecutionID.String(), o.StepKey,
		o.Success, o.Value, o.Error, sourceID, o.OutputSchemaName,
		o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("polos/postgres: save step output: %w", err)
	}
	return nil
}

// GetStepOutput retrieves the output for a step key within an execution.
func (s *Store) GetStepOutput(ctx context.Context, project tenant.ProjectID, execID id.ExecutionID, key string) (*step.Output, error) {
	var o *step.Output
	err := s.withTenant(ctx, project, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			SELECT `+stepColumns+`
			FROM polos_step_outputs
			WHERE execution_id = $1 AND step_key = $2 AND project_id = $3`,
			execID.String(), key, project.String(),
		)
		var scanErr error
		o, scanErr = scanStepOutput(row)
		if scanErr != nil {
			if isNoRows(scanErr) {
				return polos.ErrStepOutputNotFound
			}
			return fmt.Errorf("polos/postgres: get step output: %w", scanErr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

// ListStepOutputs returns all outputs for an execution in creation order.
func (s *Store) ListStepOutputs(ctx context.Context, project tenant.ProjectID, execID id.ExecutionID) ([]*step.Output, error) {
	var out []*step.Output
	err := s.withTenant(ctx, project, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT `+stepColumns+`
			FROM polos_step_outputs
			WHERE execution_id = $1 AND project_id = $2
			ORDER BY created_at ASC`,
			execID.String(), project.String(),
		)
		if err != nil {
			return fmt.Errorf("polos/postgres: list step outputs: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			o, scanErr := scanStepOutput(rows)
			if scanErr != nil {
				return fmt.Errorf("polos/postgres: scan step output: %w", scanErr)
			}
			out = append(out, o)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
