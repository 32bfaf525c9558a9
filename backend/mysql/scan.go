package mysql

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/enactgo/enact/activity"
	"github.com/enactgo/enact/workflow"
)

type scanner interface {
	Scan(dest ...any) error
}

func scanState(row scanner) (*workflow.State, error) {
	var s workflow.State
	var unit int64
	var users, groups string

	if err := row.Scan(
		&s.ID, &s.WorkflowID, &s.Name, &s.Description, &s.IsStartState, &s.IsEndState,
		&s.EstimationValue, &unit, &users, &groups,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}

		return nil, fmt.Errorf("scanning state: %w", err)
	}

	s.EstimationUnit = time.Duration(unit)

	var err error
	if s.Users, err = unmarshalStrings(users); err != nil {
		return nil, err
	}
	if s.Groups, err = unmarshalStrings(groups); err != nil {
		return nil, err
	}

	return &s, nil
}

func scanTransition(row scanner) (*workflow.Transition, error) {
	var t workflow.Transition
	var users, groups string

	if err := row.Scan(
		&t.ID, &t.WorkflowID, &t.Name, &t.Description, &t.FromStateID, &t.ToStateID, &users, &groups,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}

		return nil, fmt.Errorf("scanning transition: %w", err)
	}

	var err error
	if t.Users, err = unmarshalStrings(users); err != nil {
		return nil, err
	}
	if t.Groups, err = unmarshalStrings(groups); err != nil {
		return nil, err
	}

	return &t, nil
}

func scanEntry(row scanner) (*activity.Entry, error) {
	var e activity.Entry
	var logType int
	var stateID, transitionID sql.NullString
	var deadline sql.NullTime

	if err := row.Scan(
		&e.ID, &e.ActivityID, &logType, &stateID, &transitionID, &e.Note, &e.CreatedBy, &e.CreatedAt, &deadline,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}

		return nil, fmt.Errorf("scanning history entry: %w", err)
	}

	e.Type = activity.EntryType(logType)

	if stateID.Valid {
		s := stateID.String
		e.StateID = &s
	}

	if transitionID.Valid {
		t := transitionID.String
		e.TransitionID = &t
	}

	if deadline.Valid {
		d := deadline.Time
		e.Deadline = &d
	}

	return &e, nil
}

func marshalStrings(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}

	b, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("serializing string list: %w", err)
	}

	return string(b), nil
}

func unmarshalStrings(value string) ([]string, error) {
	if value == "" {
		return nil, nil
	}

	var values []string
	if err := json.Unmarshal([]byte(value), &values); err != nil {
		return nil, fmt.Errorf("deserializing string list: %w", err)
	}

	if len(values) == 0 {
		return nil, nil
	}

	return values, nil
}
