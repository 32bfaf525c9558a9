package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/jellydator/ttlcache/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/enactgo/enact/activity"
	"github.com/enactgo/enact/backend"
	"github.com/enactgo/enact/backend/metrics"
	"github.com/enactgo/enact/events"
	"github.com/enactgo/enact/internal/log"
	"github.com/enactgo/enact/internal/metrickeys"
	"github.com/enactgo/enact/workflow"
)

// ErrWorkflowNotActive is returned when an activity is created against a
// workflow that is not in the active status.
var ErrWorkflowNotActive = errors.New("workflow is not active")

// ErrWorkflowNotInDefinition is returned when a graph mutation is attempted
// on a workflow that already left the definition status.
var ErrWorkflowNotInDefinition = errors.New("workflow is not in definition")

// Client drives workflows and activities against a backend. It owns all
// sequencing rules: graph mutation gates, activation, and the activity state
// machine. An activity's position is never cached, every operation reads the
// history head and hands it back to the backend's append so concurrent calls
// against the same activity serialize.
type Client struct {
	backend  backend.Backend
	clock    clock.Clock
	notifier events.Notifier

	definitions *ttlcache.Cache[string, *definition]
}

func New(b backend.Backend, opts ...Option) *Client {
	options := &options{
		clock:              clock.New(),
		definitionCacheTTL: time.Minute,
	}

	for _, opt := range opts {
		opt(options)
	}

	if options.notifier == nil {
		options.notifier = events.NewDispatcher(b.Options().Logger)
	}

	definitions := ttlcache.New(
		ttlcache.WithTTL[string, *definition](options.definitionCacheTTL),
	)
	go definitions.Start()

	return &Client{
		backend:     b,
		clock:       options.clock,
		notifier:    options.notifier,
		definitions: definitions,
	}
}

// Close releases client-owned resources. The backend is not closed.
func (c *Client) Close() error {
	c.definitions.Stop()
	return nil
}

// definition bundles a workflow with its full graph.
type definition struct {
	workflow    *workflow.Workflow
	states      []*workflow.State
	transitions []*workflow.Transition
	statesByID  map[string]*workflow.State
}

func (d *definition) state(id string) *workflow.State {
	return d.statesByID[id]
}

func (d *definition) startStates() []*workflow.State {
	var starts []*workflow.State
	for _, s := range d.states {
		if s.IsStartState {
			starts = append(starts, s)
		}
	}

	return starts
}

func (c *Client) definition(ctx context.Context, workflowID string) (*definition, error) {
	if item := c.definitions.Get(workflowID); item != nil {
		return item.Value(), nil
	}

	wf, err := c.backend.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	states, err := c.backend.GetStates(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	transitions, err := c.backend.GetTransitions(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	d := &definition{
		workflow:    wf,
		states:      states,
		transitions: transitions,
		statesByID:  make(map[string]*workflow.State, len(states)),
	}
	for _, s := range states {
		d.statesByID[s.ID] = s
	}

	// Only active definitions are immutable, don't cache the rest
	if wf.Status == workflow.StatusActive {
		c.definitions.Set(workflowID, d, ttlcache.DefaultTTL)
	}

	return d, nil
}

// CreateWorkflow persists a new workflow in the definition status.
func (c *Client) CreateWorkflow(ctx context.Context, name, description, createdBy string) (*workflow.Workflow, error) {
	wf := workflow.NewWorkflow(c.clock.Now(), name, description, createdBy)

	ctx, span := c.backend.Tracer().Start(ctx, "CreateWorkflow", trace.WithAttributes(
		attribute.String(log.WorkflowIDKey, wf.ID),
		attribute.String(log.WorkflowNameKey, name),
	))
	defer span.End()

	if err := c.backend.CreateWorkflow(ctx, wf); err != nil {
		return nil, fmt.Errorf("creating workflow: %w", err)
	}

	c.backend.Options().Logger.Debug(
		"Created workflow",
		log.WorkflowIDKey, wf.ID,
		log.WorkflowNameKey, wf.Name,
	)

	c.backend.Metrics().Counter(metrickeys.WorkflowCreated, metrics.Tags{}, 1)

	return wf, nil
}

// AddState adds a state to a workflow still in definition. A missing ID is
// assigned.
func (c *Client) AddState(ctx context.Context, s *workflow.State) error {
	def, err := c.definition(ctx, s.WorkflowID)
	if err != nil {
		return err
	}

	if def.workflow.Status != workflow.StatusDefinition {
		return ErrWorkflowNotInDefinition
	}

	if s.ID == "" {
		ns := workflow.NewState(s.WorkflowID, s.Name)
		s.ID = ns.ID
	}
	if s.EstimationUnit == 0 {
		s.EstimationUnit = workflow.Day
	}

	if err := c.backend.CreateState(ctx, s); err != nil {
		return fmt.Errorf("adding state: %w", err)
	}

	return nil
}

// AddTransition adds a transition to a workflow still in definition.
func (c *Client) AddTransition(ctx context.Context, t *workflow.Transition) error {
	def, err := c.definition(ctx, t.WorkflowID)
	if err != nil {
		return err
	}

	if def.workflow.Status != workflow.StatusDefinition {
		return ErrWorkflowNotInDefinition
	}

	if t.ID == "" {
		nt := workflow.NewTransition(t.WorkflowID, t.Name, t.FromStateID, t.ToStateID)
		t.ID = nt.ID
	}

	if err := c.backend.CreateTransition(ctx, t); err != nil {
		return fmt.Errorf("adding transition: %w", err)
	}

	return nil
}

// ValidateWorkflow runs the structural graph checks and returns the full
// report.
func (c *Client) ValidateWorkflow(ctx context.Context, workflowID string) (*workflow.ValidationResult, error) {
	def, err := c.definition(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	return workflow.Validate(def.workflow, def.states, def.transitions), nil
}

// ActivateWorkflow moves a workflow from definition to active after
// validating its graph. Active workflows accept activities and their graph is
// treated as immutable.
func (c *Client) ActivateWorkflow(ctx context.Context, workflowID string) error {
	ctx, span := c.backend.Tracer().Start(ctx, "ActivateWorkflow", trace.WithAttributes(
		attribute.String(log.WorkflowIDKey, workflowID),
	))
	defer span.End()

	def, err := c.definition(ctx, workflowID)
	if err != nil {
		return err
	}

	if !def.workflow.CanActivate() {
		return &ActivationError{WorkflowID: workflowID, Kind: ActivationNotInDefinition}
	}

	result := workflow.Validate(def.workflow, def.states, def.transitions)
	if !result.Valid() {
		return &ActivationError{WorkflowID: workflowID, Kind: ActivationInvalidGraph, Result: result}
	}

	def.workflow.Status = workflow.StatusActive
	if err := c.backend.SaveWorkflow(ctx, def.workflow); err != nil {
		return fmt.Errorf("activating workflow: %w", err)
	}

	c.definitions.Delete(workflowID)

	c.backend.Options().Logger.Info(
		"Activated workflow",
		log.WorkflowIDKey, workflowID,
		log.WorkflowNameKey, def.workflow.Name,
	)

	c.backend.Metrics().Counter(metrickeys.WorkflowActivated, metrics.Tags{}, 1)

	return nil
}

// RetireWorkflow retires a workflow so it can no longer be used for new
// activities. Unconditional and irreversible, any status can retire.
func (c *Client) RetireWorkflow(ctx context.Context, workflowID string) error {
	ctx, span := c.backend.Tracer().Start(ctx, "RetireWorkflow", trace.WithAttributes(
		attribute.String(log.WorkflowIDKey, workflowID),
	))
	defer span.End()

	wf, err := c.backend.GetWorkflow(ctx, workflowID)
	if err != nil {
		return err
	}

	wf.Status = workflow.StatusRetired
	if err := c.backend.SaveWorkflow(ctx, wf); err != nil {
		return fmt.Errorf("retiring workflow: %w", err)
	}

	c.definitions.Delete(workflowID)

	c.backend.Metrics().Counter(metrickeys.WorkflowRetired, metrics.Tags{}, 1)

	return nil
}

// CreateActivity creates a new activity against an active workflow.
func (c *Client) CreateActivity(ctx context.Context, workflowID, subject, createdBy string) (*activity.Activity, error) {
	ctx, span := c.backend.Tracer().Start(ctx, "CreateActivity", trace.WithAttributes(
		attribute.String(log.WorkflowIDKey, workflowID),
		attribute.String(log.SubjectKey, subject),
	))
	defer span.End()

	def, err := c.definition(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if def.workflow.Status != workflow.StatusActive {
		return nil, ErrWorkflowNotActive
	}

	a := activity.NewActivity(c.clock.Now(), workflowID, subject, createdBy)
	if err := c.backend.CreateActivity(ctx, a); err != nil {
		return nil, fmt.Errorf("creating activity: %w", err)
	}

	c.backend.Options().Logger.Debug(
		"Created activity",
		log.ActivityIDKey, a.ID,
		log.WorkflowIDKey, workflowID,
		log.SubjectKey, subject,
	)

	c.backend.Metrics().Counter(metrickeys.ActivityCreated, metrics.Tags{}, 1)

	return a, nil
}

// CurrentState returns the newest history entry of an activity, or nil when
// it has not been started. The newest entry is the only authority on the
// activity's position.
func (c *Client) CurrentState(ctx context.Context, activityID string) (*activity.Entry, error) {
	return c.backend.GetLatestEntry(ctx, activityID)
}

// History returns the full history of an activity, newest first.
func (c *Client) History(ctx context.Context, activityID string) ([]*activity.Entry, error) {
	return c.backend.GetHistory(ctx, activityID)
}

// Start puts an activity into its workflow's start state.
func (c *Client) Start(ctx context.Context, activityID, user string) (*activity.Entry, error) {
	ctx, span := c.backend.Tracer().Start(ctx, "Start", trace.WithAttributes(
		attribute.String(log.ActivityIDKey, activityID),
	))
	defer span.End()

	act, err := c.backend.GetActivity(ctx, activityID)
	if err != nil {
		return nil, err
	}

	head, err := c.backend.GetLatestEntry(ctx, activityID)
	if err != nil {
		return nil, err
	}

	if head != nil && head.StateID != nil {
		return nil, &StartError{ActivityID: activityID, Kind: StartAlreadyStarted}
	}

	if act.CompletedAt != nil {
		return nil, &StartError{ActivityID: activityID, Kind: StartAlreadyCompleted}
	}

	def, err := c.definition(ctx, act.WorkflowID)
	if err != nil {
		return nil, err
	}

	starts := def.startStates()
	if len(starts) != 1 {
		return nil, &StartError{ActivityID: activityID, Kind: StartNoSingleStartState}
	}

	start := starts[0]
	now := c.clock.Now()
	entry := activity.NewTransitionEntry(now, activityID, &start.ID, nil, "Started workflow", user, start.DeadlineFrom(now))

	if err := c.append(ctx, act, headID(head), entry, nil, start); err != nil {
		return nil, err
	}

	c.backend.Options().Logger.Debug(
		"Started activity",
		log.ActivityIDKey, activityID,
		log.StateIDKey, start.ID,
		log.UserKey, user,
	)

	c.backend.Metrics().Counter(metrickeys.ActivityStarted, metrics.Tags{}, 1)

	return entry, nil
}

// Progress takes a transition out of the activity's current state. The note
// defaults to the transition's name. Reaching an end state completes the
// activity in the same append.
func (c *Client) Progress(ctx context.Context, activityID, transitionID, user, note string) (*activity.Entry, error) {
	ctx, span := c.backend.Tracer().Start(ctx, "Progress", trace.WithAttributes(
		attribute.String(log.ActivityIDKey, activityID),
		attribute.String(log.TransitionIDKey, transitionID),
	))
	defer span.End()

	act, err := c.backend.GetActivity(ctx, activityID)
	if err != nil {
		return nil, err
	}

	tr, err := c.backend.GetTransition(ctx, transitionID)
	if err != nil {
		return nil, err
	}

	head, err := c.backend.GetLatestEntry(ctx, activityID)
	if err != nil {
		return nil, err
	}

	if head == nil {
		return nil, &ProgressError{ActivityID: activityID, TransitionID: transitionID, Kind: ProgressNotStarted}
	}

	// The transition is matched against the current position purely by state
	// identity
	if head.StateID == nil || *head.StateID != tr.FromStateID {
		return nil, &ProgressError{ActivityID: activityID, TransitionID: transitionID, Kind: ProgressWrongState}
	}

	// Resolve the destination through the transition's own workflow
	def, err := c.definition(ctx, tr.WorkflowID)
	if err != nil {
		return nil, err
	}

	to := def.state(tr.ToStateID)
	if to == nil {
		return nil, backend.ErrStateNotFound
	}

	if note == "" {
		note = tr.Name
	}

	now := c.clock.Now()
	entry := activity.NewTransitionEntry(now, activityID, &to.ID, &tr.ID, note, user, to.DeadlineFrom(now))

	var completedAt *time.Time
	if to.IsEndState {
		completedAt = &now
	}

	if err := c.append(ctx, act, head.ID, entry, completedAt, to); err != nil {
		return nil, err
	}

	c.backend.Options().Logger.Debug(
		"Progressed activity",
		log.ActivityIDKey, activityID,
		log.TransitionIDKey, tr.ID,
		log.StateIDKey, to.ID,
		log.UserKey, user,
	)

	c.backend.Metrics().Counter(metrickeys.TransitionTaken, metrics.Tags{}, 1)
	if to.IsEndState {
		c.backend.Metrics().Counter(metrickeys.ActivityCompleted, metrics.Tags{}, 1)
	}

	return entry, nil
}

// AddComment records a remark at the activity's current position. The entry
// repeats the current state and carries that state's deadline computed at
// comment time. Commenting never completes or moves an activity.
func (c *Client) AddComment(ctx context.Context, activityID, user, note string) (*activity.Entry, error) {
	ctx, span := c.backend.Tracer().Start(ctx, "AddComment", trace.WithAttributes(
		attribute.String(log.ActivityIDKey, activityID),
	))
	defer span.End()

	if note == "" {
		return nil, &CommentError{ActivityID: activityID}
	}

	act, err := c.backend.GetActivity(ctx, activityID)
	if err != nil {
		return nil, err
	}

	head, err := c.backend.GetLatestEntry(ctx, activityID)
	if err != nil {
		return nil, err
	}

	now := c.clock.Now()

	var stateID *string
	var deadline *time.Time
	var current *workflow.State
	if head != nil && head.StateID != nil {
		stateID = head.StateID

		def, err := c.definition(ctx, act.WorkflowID)
		if err != nil {
			return nil, err
		}

		if current = def.state(*head.StateID); current != nil {
			deadline = current.DeadlineFrom(now)
		}
	}

	entry := activity.NewCommentEntry(now, activityID, stateID, note, user, deadline)

	if err := c.append(ctx, act, headID(head), entry, nil, current); err != nil {
		return nil, err
	}

	c.backend.Metrics().Counter(metrickeys.CommentAdded, metrics.Tags{}, 1)

	return entry, nil
}

// ForceStop abandons an activity. When the activity has a history, a final
// transition entry repeating the current state records the reason; either way
// the activity is completed. Legal at any point, including before start, and
// the first completion timestamp sticks.
func (c *Client) ForceStop(ctx context.Context, activityID, user, reason string) (*activity.Entry, error) {
	ctx, span := c.backend.Tracer().Start(ctx, "ForceStop", trace.WithAttributes(
		attribute.String(log.ActivityIDKey, activityID),
	))
	defer span.End()

	act, err := c.backend.GetActivity(ctx, activityID)
	if err != nil {
		return nil, err
	}

	head, err := c.backend.GetLatestEntry(ctx, activityID)
	if err != nil {
		return nil, err
	}

	now := c.clock.Now()

	if head == nil {
		if err := c.backend.CompleteActivity(ctx, activityID, now); err != nil {
			return nil, err
		}

		c.backend.Metrics().Counter(metrickeys.ForceStopped, metrics.Tags{}, 1)

		return nil, nil
	}

	var current *workflow.State
	if head.StateID != nil {
		def, err := c.definition(ctx, act.WorkflowID)
		if err != nil {
			return nil, err
		}

		current = def.state(*head.StateID)
	}

	note := fmt.Sprintf("Workflow forced to stop! Reason given: %s", reason)
	entry := activity.NewTransitionEntry(now, activityID, head.StateID, nil, note, user, nil)

	if err := c.append(ctx, act, head.ID, entry, &now, current); err != nil {
		return nil, err
	}

	c.backend.Options().Logger.Info(
		"Force stopped activity",
		log.ActivityIDKey, activityID,
		log.UserKey, user,
	)

	c.backend.Metrics().Counter(metrickeys.ForceStopped, metrics.Tags{}, 1)

	return entry, nil
}

// AssignWorkflow tags a single external object with a workflow.
func (c *Client) AssignWorkflow(ctx context.Context, objectType, objectID, workflowID string) error {
	return c.backend.AssignObjectWorkflow(ctx, objectType, objectID, workflowID)
}

// WorkflowFor returns the workflow assigned to an external object.
func (c *Client) WorkflowFor(ctx context.Context, objectType, objectID string) (string, error) {
	return c.backend.ObjectWorkflow(ctx, objectType, objectID)
}

// AssignModelWorkflow tags a whole object type with a workflow.
func (c *Client) AssignModelWorkflow(ctx context.Context, objectType, workflowID string) error {
	return c.backend.AssignModelWorkflow(ctx, objectType, workflowID)
}

// ModelWorkflowFor returns the workflow assigned to an object type.
func (c *Client) ModelWorkflowFor(ctx context.Context, objectType string) (string, error) {
	return c.backend.ModelWorkflow(ctx, objectType)
}

// append persists a history entry and publishes the surrounding lifecycle
// events. Event delivery is best effort, only the append itself can fail.
// state is the state recorded in the entry, nil when the entry carries none.
func (c *Client) append(ctx context.Context, act *activity.Activity, expectedHeadID string, entry *activity.Entry, completedAt *time.Time, state *workflow.State) error {
	c.notify(ctx, events.WorkflowPreChange, act, entry)

	if err := c.backend.AppendHistory(ctx, act.ID, expectedHeadID, entry, completedAt); err != nil {
		return err
	}

	c.notify(ctx, events.WorkflowPostChange, act, entry)

	switch entry.Type {
	case activity.EntryTransition:
		c.notify(ctx, events.WorkflowTransitioned, act, entry)
	case activity.EntryComment:
		c.notify(ctx, events.WorkflowCommented, act, entry)
	}

	if state != nil {
		if state.IsStartState {
			c.notify(ctx, events.WorkflowStarted, act, entry)
		} else if state.IsEndState {
			c.notify(ctx, events.WorkflowEnded, act, entry)
		}
	}

	return nil
}

func (c *Client) notify(ctx context.Context, t events.Type, act *activity.Activity, entry *activity.Entry) {
	event := &events.Event{
		Type:       t,
		WorkflowID: act.WorkflowID,
		ActivityID: act.ID,
		Entry:      entry,
		OccurredAt: c.clock.Now(),
	}

	if err := c.notifier.Publish(ctx, event); err != nil {
		c.backend.Options().Logger.Warn(
			"Publishing event failed",
			log.EventTypeKey, string(t),
			log.ActivityIDKey, act.ID,
			"error", err,
		)
	}
}

func headID(head *activity.Entry) string {
	if head == nil {
		return ""
	}

	return head.ID
}
