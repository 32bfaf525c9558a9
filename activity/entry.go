package activity

import (
	"time"

	"github.com/google/uuid"
)

type EntryType int

const (
	_ EntryType = iota

	// EntryTransition records the arrival in a state, either by starting the
	// activity, taking a transition, or a force stop.
	EntryTransition

	// EntryComment records a remark made while the activity sits in a state.
	EntryComment
)

func (et EntryType) String() string {
	switch et {
	case EntryTransition:
		return "Transition"
	case EntryComment:
		return "Comment"
	default:
		return "Unknown"
	}
}

// Entry is one record in an activity's history. Entries are append-only and
// never mutated; the newest entry for an activity defines its current state.
// An empty history means the activity has not been started.
type Entry struct {
	ID         string    `json:"id"`
	ActivityID string    `json:"activity_id"`
	Type       EntryType `json:"type"`

	// StateID is the state reached, or for a comment the state the activity
	// was in at the time. Nil when a comment was made before the activity was
	// started.
	StateID *string `json:"state_id,omitempty"`

	// TransitionID is the edge that was taken. Only set for transition
	// entries created by progressing the activity.
	TransitionID *string `json:"transition_id,omitempty"`

	Note      string    `json:"note"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`

	// Deadline is the expected exit time for the state recorded here, when
	// the state carries an estimate.
	Deadline *time.Time `json:"deadline,omitempty"`
}

func NewTransitionEntry(now time.Time, activityID string, stateID, transitionID *string, note, createdBy string, deadline *time.Time) *Entry {
	return &Entry{
		ID:           uuid.NewString(),
		ActivityID:   activityID,
		Type:         EntryTransition,
		StateID:      stateID,
		TransitionID: transitionID,
		Note:         note,
		CreatedBy:    createdBy,
		CreatedAt:    now,
		Deadline:     deadline,
	}
}

func NewCommentEntry(now time.Time, activityID string, stateID *string, note, createdBy string, deadline *time.Time) *Entry {
	return &Entry{
		ID:         uuid.NewString(),
		ActivityID: activityID,
		Type:       EntryComment,
		StateID:    stateID,
		Note:       note,
		CreatedBy:  createdBy,
		CreatedAt:  now,
		Deadline:   deadline,
	}
}
