package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/enactgo/enact/activity"
	"github.com/enactgo/enact/backend"
	"github.com/enactgo/enact/backend/metrics"
	"github.com/enactgo/enact/internal/metrickeys"
	"github.com/enactgo/enact/workflow"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

// NewInMemoryBackend creates a backend backed by an in-memory sqlite database.
// Mostly useful for tests and samples.
func NewInMemoryBackend(opts ...backend.BackendOption) *sqliteBackend {
	b := newSqliteBackend("file::memory:?_pragma=foreign_keys(1)", opts...)

	// Every connection would get its own empty database
	b.db.SetMaxOpenConns(1)

	return b
}

func NewSqliteBackend(path string, opts ...backend.BackendOption) *sqliteBackend {
	return newSqliteBackend(fmt.Sprintf("file:%v?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path), opts...)
}

func newSqliteBackend(dsn string, opts ...backend.BackendOption) *sqliteBackend {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		panic(err)
	}

	if _, err := db.Exec(schema); err != nil {
		panic(fmt.Errorf("initializing database: %w", err))
	}

	return &sqliteBackend{
		db:      db,
		options: backend.ApplyOptions(opts...),
	}
}

var _ backend.Backend = (*sqliteBackend)(nil)

type sqliteBackend struct {
	db      *sql.DB
	options *backend.Options
}

func (sb *sqliteBackend) Tracer() trace.Tracer {
	return sb.options.TracerProvider.Tracer(backend.TracerName)
}

func (sb *sqliteBackend) Metrics() metrics.Client {
	return sb.options.Metrics.WithTags(metrics.Tags{metrickeys.Backend: "sqlite"})
}

func (sb *sqliteBackend) Options() *backend.Options {
	return sb.options
}

func (sb *sqliteBackend) Close() error {
	return sb.db.Close()
}

func (sb *sqliteBackend) CreateWorkflow(ctx context.Context, wf *workflow.Workflow) error {
	_, err := sb.db.ExecContext(
		ctx,
		"INSERT INTO `workflows` (id, name, description, status, created_by, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		wf.ID, wf.Name, wf.Description, int(wf.Status), wf.CreatedBy, wf.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting workflow: %w", err)
	}

	return nil
}

func (sb *sqliteBackend) GetWorkflow(ctx context.Context, workflowID string) (*workflow.Workflow, error) {
	row := sb.db.QueryRowContext(
		ctx,
		"SELECT id, name, description, status, created_by, created_at FROM `workflows` WHERE id = ?",
		workflowID,
	)

	var wf workflow.Workflow
	var status int
	if err := row.Scan(&wf.ID, &wf.Name, &wf.Description, &status, &wf.CreatedBy, &wf.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, backend.ErrWorkflowNotFound
		}

		return nil, fmt.Errorf("querying workflow: %w", err)
	}

	wf.Status = workflow.Status(status)

	return &wf, nil
}

func (sb *sqliteBackend) SaveWorkflow(ctx context.Context, wf *workflow.Workflow) error {
	res, err := sb.db.ExecContext(
		ctx,
		"UPDATE `workflows` SET status = ? WHERE id = ?",
		int(wf.Status), wf.ID,
	)
	if err != nil {
		return fmt.Errorf("updating workflow: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if rows != 1 {
		return backend.ErrWorkflowNotFound
	}

	return nil
}

func (sb *sqliteBackend) CreateState(ctx context.Context, s *workflow.State) error {
	users, err := marshalStrings(s.Users)
	if err != nil {
		return err
	}

	groups, err := marshalStrings(s.Groups)
	if err != nil {
		return err
	}

	_, err = sb.db.ExecContext(
		ctx,
		"INSERT INTO `states` (id, workflow_id, name, description, is_start_state, is_end_state, estimation_value, estimation_unit, users, `groups`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		s.ID, s.WorkflowID, s.Name, s.Description, s.IsStartState, s.IsEndState, s.EstimationValue, int64(s.EstimationUnit), users, groups,
	)
	if err != nil {
		return fmt.Errorf("inserting state: %w", err)
	}

	return nil
}

func (sb *sqliteBackend) GetStates(ctx context.Context, workflowID string) ([]*workflow.State, error) {
	rows, err := sb.db.QueryContext(
		ctx,
		"SELECT id, workflow_id, name, description, is_start_state, is_end_state, estimation_value, estimation_unit, users, `groups` FROM `states` WHERE workflow_id = ?",
		workflowID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying states: %w", err)
	}
	defer rows.Close()

	var states []*workflow.State
	for rows.Next() {
		s, err := scanState(rows)
		if err != nil {
			return nil, err
		}

		states = append(states, s)
	}

	return states, rows.Err()
}

func (sb *sqliteBackend) CreateTransition(ctx context.Context, t *workflow.Transition) error {
	users, err := marshalStrings(t.Users)
	if err != nil {
		return err
	}

	groups, err := marshalStrings(t.Groups)
	if err != nil {
		return err
	}

	_, err = sb.db.ExecContext(
		ctx,
		"INSERT INTO `transitions` (id, workflow_id, name, description, from_state_id, to_state_id, users, `groups`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		t.ID, t.WorkflowID, t.Name, t.Description, t.FromStateID, t.ToStateID, users, groups,
	)
	if err != nil {
		return fmt.Errorf("inserting transition: %w", err)
	}

	return nil
}

func (sb *sqliteBackend) GetTransitions(ctx context.Context, workflowID string) ([]*workflow.Transition, error) {
	rows, err := sb.db.QueryContext(
		ctx,
		"SELECT id, workflow_id, name, description, from_state_id, to_state_id, users, `groups` FROM `transitions` WHERE workflow_id = ?",
		workflowID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying transitions: %w", err)
	}
	defer rows.Close()

	var transitions []*workflow.Transition
	for rows.Next() {
		t, err := scanTransition(rows)
		if err != nil {
			return nil, err
		}

		transitions = append(transitions, t)
	}

	return transitions, rows.Err()
}

func (sb *sqliteBackend) GetTransition(ctx context.Context, transitionID string) (*workflow.Transition, error) {
	row := sb.db.QueryRowContext(
		ctx,
		"SELECT id, workflow_id, name, description, from_state_id, to_state_id, users, `groups` FROM `transitions` WHERE id = ?",
		transitionID,
	)

	t, err := scanTransition(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, backend.ErrTransitionNotFound
		}

		return nil, err
	}

	return t, nil
}

func (sb *sqliteBackend) CreateActivity(ctx context.Context, a *activity.Activity) error {
	_, err := sb.db.ExecContext(
		ctx,
		"INSERT INTO `activities` (id, workflow_id, subject, created_by, created_at, completed_at) VALUES (?, ?, ?, ?, ?, ?)",
		a.ID, a.WorkflowID, a.Subject, a.CreatedBy, a.CreatedAt, a.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting activity: %w", err)
	}

	return nil
}

func (sb *sqliteBackend) GetActivity(ctx context.Context, activityID string) (*activity.Activity, error) {
	row := sb.db.QueryRowContext(
		ctx,
		"SELECT id, workflow_id, subject, created_by, created_at, completed_at FROM `activities` WHERE id = ?",
		activityID,
	)

	var a activity.Activity
	var completedAt sql.NullTime
	if err := row.Scan(&a.ID, &a.WorkflowID, &a.Subject, &a.CreatedBy, &a.CreatedAt, &completedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, backend.ErrActivityNotFound
		}

		return nil, fmt.Errorf("querying activity: %w", err)
	}

	if completedAt.Valid {
		t := completedAt.Time
		a.CompletedAt = &t
	}

	return &a, nil
}

func (sb *sqliteBackend) GetHistory(ctx context.Context, activityID string) ([]*activity.Entry, error) {
	rows, err := sb.db.QueryContext(
		ctx,
		"SELECT id, activity_id, log_type, state_id, transition_id, note, created_by, created_at, deadline FROM `history` WHERE activity_id = ? ORDER BY seq DESC",
		activityID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var entries []*activity.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}

		entries = append(entries, e)
	}

	return entries, rows.Err()
}

func (sb *sqliteBackend) GetLatestEntry(ctx context.Context, activityID string) (*activity.Entry, error) {
	row := sb.db.QueryRowContext(
		ctx,
		"SELECT id, activity_id, log_type, state_id, transition_id, note, created_by, created_at, deadline FROM `history` WHERE activity_id = ? ORDER BY seq DESC LIMIT 1",
		activityID,
	)

	e, err := scanEntry(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}

		return nil, err
	}

	return e, nil
}

func (sb *sqliteBackend) AppendHistory(ctx context.Context, activityID, expectedHeadID string, entry *activity.Entry, completedAt *time.Time) error {
	tx, err := sb.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, "SELECT 1 FROM `activities` WHERE id = ?", activityID).Scan(&exists); err != nil {
		if err == sql.ErrNoRows {
			return backend.ErrActivityNotFound
		}

		return fmt.Errorf("querying activity: %w", err)
	}

	var headID string
	err = tx.QueryRowContext(
		ctx,
		"SELECT id FROM `history` WHERE activity_id = ? ORDER BY seq DESC LIMIT 1",
		activityID,
	).Scan(&headID)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("querying history head: %w", err)
	}

	if headID != expectedHeadID {
		return backend.ErrConflict
	}

	if _, err := tx.ExecContext(
		ctx,
		"INSERT INTO `history` (id, activity_id, log_type, state_id, transition_id, note, created_by, created_at, deadline) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		entry.ID, entry.ActivityID, int(entry.Type), entry.StateID, entry.TransitionID, entry.Note, entry.CreatedBy, entry.CreatedAt, entry.Deadline,
	); err != nil {
		return fmt.Errorf("inserting history entry: %w", err)
	}

	if completedAt != nil {
		if _, err := tx.ExecContext(
			ctx,
			"UPDATE `activities` SET completed_at = ? WHERE id = ? AND completed_at IS NULL",
			*completedAt, activityID,
		); err != nil {
			return fmt.Errorf("completing activity: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("appending history entry: %w", err)
	}

	return nil
}

func (sb *sqliteBackend) CompleteActivity(ctx context.Context, activityID string, completedAt time.Time) error {
	res, err := sb.db.ExecContext(
		ctx,
		"UPDATE `activities` SET completed_at = ? WHERE id = ? AND completed_at IS NULL",
		completedAt, activityID,
	)
	if err != nil {
		return fmt.Errorf("completing activity: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if rows == 0 {
		// Either already completed or missing
		var exists int
		if err := sb.db.QueryRowContext(ctx, "SELECT 1 FROM `activities` WHERE id = ?", activityID).Scan(&exists); err != nil {
			if err == sql.ErrNoRows {
				return backend.ErrActivityNotFound
			}

			return fmt.Errorf("querying activity: %w", err)
		}
	}

	return nil
}

func (sb *sqliteBackend) AssignObjectWorkflow(ctx context.Context, objectType, objectID, workflowID string) error {
	res, err := sb.db.ExecContext(
		ctx,
		"INSERT OR IGNORE INTO `object_workflows` (object_type, object_id, workflow_id) VALUES (?, ?, ?)",
		objectType, objectID, workflowID,
	)
	if err != nil {
		return fmt.Errorf("inserting object workflow: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if rows != 1 {
		return backend.ErrRelationExists
	}

	return nil
}

func (sb *sqliteBackend) ObjectWorkflow(ctx context.Context, objectType, objectID string) (string, error) {
	var workflowID string
	err := sb.db.QueryRowContext(
		ctx,
		"SELECT workflow_id FROM `object_workflows` WHERE object_type = ? AND object_id = ?",
		objectType, objectID,
	).Scan(&workflowID)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", backend.ErrRelationNotFound
		}

		return "", fmt.Errorf("querying object workflow: %w", err)
	}

	return workflowID, nil
}

func (sb *sqliteBackend) AssignModelWorkflow(ctx context.Context, objectType, workflowID string) error {
	_, err := sb.db.ExecContext(
		ctx,
		"INSERT INTO `model_workflows` (object_type, workflow_id) VALUES (?, ?) ON CONFLICT (object_type) DO UPDATE SET workflow_id = excluded.workflow_id",
		objectType, workflowID,
	)
	if err != nil {
		return fmt.Errorf("inserting model workflow: %w", err)
	}

	return nil
}

func (sb *sqliteBackend) ModelWorkflow(ctx context.Context, objectType string) (string, error) {
	var workflowID string
	err := sb.db.QueryRowContext(
		ctx,
		"SELECT workflow_id FROM `model_workflows` WHERE object_type = ?",
		objectType,
	).Scan(&workflowID)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", backend.ErrRelationNotFound
		}

		return "", fmt.Errorf("querying model workflow: %w", err)
	}

	return workflowID, nil
}
