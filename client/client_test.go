package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/enactgo/enact/activity"
	"github.com/enactgo/enact/backend"
	"github.com/enactgo/enact/backend/sqlite"
	"github.com/enactgo/enact/events"
	"github.com/enactgo/enact/workflow"
)

func setup(t *testing.T, opts ...Option) (*Client, *clock.Mock) {
	t.Helper()

	mock := clock.NewMock()
	mock.Set(time.Date(2023, time.March, 14, 12, 0, 0, 0, time.UTC))

	b := sqlite.NewInMemoryBackend()
	c := New(b, append([]Option{WithClock(mock)}, opts...)...)

	t.Cleanup(func() {
		c.Close()
		b.Close()
	})

	return c, mock
}

type graph struct {
	wf *workflow.Workflow

	draft    *workflow.State
	review   *workflow.State
	approved *workflow.State
	rejected *workflow.State

	submit  *workflow.Transition
	approve *workflow.Transition
	reject  *workflow.Transition
	cancel  *workflow.Transition
}

// createApproval builds and activates the canonical test workflow:
// Draft(start) -Submit-> Review -Approve-> Approved(end)
//
//	Review -Reject-> Draft, Draft -Cancel-> Rejected(end)
func createApproval(t *testing.T, ctx context.Context, c *Client) *graph {
	t.Helper()

	wf, err := c.CreateWorkflow(ctx, "Approval", "expense approval", "admin")
	require.NoError(t, err)

	g := &graph{wf: wf}

	g.draft = workflow.NewState(wf.ID, "Draft")
	g.draft.IsStartState = true
	g.draft.EstimationValue = 2
	g.draft.EstimationUnit = workflow.Day

	g.review = workflow.NewState(wf.ID, "Review")
	g.review.EstimationValue = 4
	g.review.EstimationUnit = workflow.Hour

	g.approved = workflow.NewState(wf.ID, "Approved")
	g.approved.IsEndState = true

	g.rejected = workflow.NewState(wf.ID, "Rejected")
	g.rejected.IsEndState = true

	for _, s := range []*workflow.State{g.draft, g.review, g.approved, g.rejected} {
		require.NoError(t, c.AddState(ctx, s))
	}

	g.submit = workflow.NewTransition(wf.ID, "Submit", g.draft.ID, g.review.ID)
	g.approve = workflow.NewTransition(wf.ID, "Approve", g.review.ID, g.approved.ID)
	g.reject = workflow.NewTransition(wf.ID, "Reject", g.review.ID, g.draft.ID)
	g.cancel = workflow.NewTransition(wf.ID, "Cancel", g.draft.ID, g.rejected.ID)

	for _, tr := range []*workflow.Transition{g.submit, g.approve, g.reject, g.cancel} {
		require.NoError(t, c.AddTransition(ctx, tr))
	}

	require.NoError(t, c.ActivateWorkflow(ctx, wf.ID))

	return g
}

func startedActivity(t *testing.T, ctx context.Context, c *Client, g *graph) *activity.Activity {
	t.Helper()

	a, err := c.CreateActivity(ctx, g.wf.ID, "order-42", "alice")
	require.NoError(t, err)

	_, err = c.Start(ctx, a.ID, "alice")
	require.NoError(t, err)

	return a
}

func Test_ActivateWorkflow_InvalidGraph(t *testing.T) {
	c, _ := setup(t)
	ctx := context.Background()

	wf, err := c.CreateWorkflow(ctx, "Broken", "", "admin")
	require.NoError(t, err)

	// No start state, no end state
	s := workflow.NewState(wf.ID, "Limbo")
	require.NoError(t, c.AddState(ctx, s))

	err = c.ActivateWorkflow(ctx, wf.ID)

	var aerr *ActivationError
	require.ErrorAs(t, err, &aerr)
	require.Equal(t, ActivationInvalidGraph, aerr.Kind)
	require.NotNil(t, aerr.Result)
	require.NotEmpty(t, aerr.Result.WorkflowErrors)

	got, err := c.backend.GetWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	require.Equal(t, workflow.StatusDefinition, got.Status, "failed activation must not change the status")
}

func Test_ActivateWorkflow_OnlyFromDefinition(t *testing.T) {
	c, _ := setup(t)
	ctx := context.Background()

	g := createApproval(t, ctx, c)

	err := c.ActivateWorkflow(ctx, g.wf.ID)

	var aerr *ActivationError
	require.ErrorAs(t, err, &aerr)
	require.Equal(t, ActivationNotInDefinition, aerr.Kind)
}

func Test_RetireWorkflow_AnyStatus(t *testing.T) {
	c, _ := setup(t)
	ctx := context.Background()

	g := createApproval(t, ctx, c)

	require.NoError(t, c.RetireWorkflow(ctx, g.wf.ID))

	got, err := c.backend.GetWorkflow(ctx, g.wf.ID)
	require.NoError(t, err)
	require.Equal(t, workflow.StatusRetired, got.Status)

	// Retiring again is fine
	require.NoError(t, c.RetireWorkflow(ctx, g.wf.ID))
}

func Test_GraphFrozenAfterActivation(t *testing.T) {
	c, _ := setup(t)
	ctx := context.Background()

	g := createApproval(t, ctx, c)

	err := c.AddState(ctx, workflow.NewState(g.wf.ID, "Extra"))
	require.ErrorIs(t, err, ErrWorkflowNotInDefinition)

	err = c.AddTransition(ctx, workflow.NewTransition(g.wf.ID, "Late", g.draft.ID, g.review.ID))
	require.ErrorIs(t, err, ErrWorkflowNotInDefinition)
}

func Test_CreateActivity_RequiresActiveWorkflow(t *testing.T) {
	c, _ := setup(t)
	ctx := context.Background()

	wf, err := c.CreateWorkflow(ctx, "Approval", "", "admin")
	require.NoError(t, err)

	_, err = c.CreateActivity(ctx, wf.ID, "order-42", "alice")
	require.ErrorIs(t, err, ErrWorkflowNotActive)

	g := createApproval(t, ctx, c)
	require.NoError(t, c.RetireWorkflow(ctx, g.wf.ID))

	_, err = c.CreateActivity(ctx, g.wf.ID, "order-42", "alice")
	require.ErrorIs(t, err, ErrWorkflowNotActive)
}

func Test_Start(t *testing.T) {
	c, mock := setup(t)
	ctx := context.Background()

	g := createApproval(t, ctx, c)

	a, err := c.CreateActivity(ctx, g.wf.ID, "order-42", "alice")
	require.NoError(t, err)

	entry, err := c.Start(ctx, a.ID, "alice")
	require.NoError(t, err)

	require.Equal(t, activity.EntryTransition, entry.Type)
	require.Equal(t, g.draft.ID, *entry.StateID)
	require.Nil(t, entry.TransitionID)
	require.Equal(t, "Started workflow", entry.Note)
	require.NotNil(t, entry.Deadline)
	require.Equal(t, mock.Now().Add(48*time.Hour), *entry.Deadline)

	head, err := c.CurrentState(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, entry.ID, head.ID)
}

func Test_Start_Twice(t *testing.T) {
	c, _ := setup(t)
	ctx := context.Background()

	g := createApproval(t, ctx, c)
	a := startedActivity(t, ctx, c, g)

	_, err := c.Start(ctx, a.ID, "alice")

	var serr *StartError
	require.ErrorAs(t, err, &serr)
	require.Equal(t, StartAlreadyStarted, serr.Kind)

	entries, err := c.History(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1, "the rejected start must not append")
}

func Test_Start_AfterForceStop(t *testing.T) {
	c, _ := setup(t)
	ctx := context.Background()

	g := createApproval(t, ctx, c)

	a, err := c.CreateActivity(ctx, g.wf.ID, "order-42", "alice")
	require.NoError(t, err)

	_, err = c.ForceStop(ctx, a.ID, "alice", "no longer needed")
	require.NoError(t, err)

	_, err = c.Start(ctx, a.ID, "alice")

	var serr *StartError
	require.ErrorAs(t, err, &serr)
	require.Equal(t, StartAlreadyCompleted, serr.Kind)
}

func Test_Progress_NotStarted(t *testing.T) {
	c, _ := setup(t)
	ctx := context.Background()

	g := createApproval(t, ctx, c)

	a, err := c.CreateActivity(ctx, g.wf.ID, "order-42", "alice")
	require.NoError(t, err)

	_, err = c.Progress(ctx, a.ID, g.submit.ID, "alice", "")

	var perr *ProgressError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, ProgressNotStarted, perr.Kind)
}

func Test_Progress_WrongState(t *testing.T) {
	c, _ := setup(t)
	ctx := context.Background()

	g := createApproval(t, ctx, c)
	a := startedActivity(t, ctx, c, g)

	// Approve originates in Review, the activity sits in Draft
	_, err := c.Progress(ctx, a.ID, g.approve.ID, "alice", "")

	var perr *ProgressError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, ProgressWrongState, perr.Kind)

	entries, err := c.History(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1, "the rejected progress must not append")
}

func Test_Progress_NoteDefaultsToTransitionName(t *testing.T) {
	c, mock := setup(t)
	ctx := context.Background()

	g := createApproval(t, ctx, c)
	a := startedActivity(t, ctx, c, g)

	entry, err := c.Progress(ctx, a.ID, g.submit.ID, "alice", "")
	require.NoError(t, err)

	require.Equal(t, "Submit", entry.Note)
	require.Equal(t, g.review.ID, *entry.StateID)
	require.Equal(t, g.submit.ID, *entry.TransitionID)
	require.NotNil(t, entry.Deadline)
	require.Equal(t, mock.Now().Add(4*time.Hour), *entry.Deadline)

	entry, err = c.Progress(ctx, a.ID, g.reject.ID, "bob", "needs more detail")
	require.NoError(t, err)
	require.Equal(t, "needs more detail", entry.Note)
}

func Test_Progress_EndStateCompletes(t *testing.T) {
	c, mock := setup(t)
	ctx := context.Background()

	g := createApproval(t, ctx, c)
	a := startedActivity(t, ctx, c, g)

	_, err := c.Progress(ctx, a.ID, g.submit.ID, "alice", "")
	require.NoError(t, err)

	entry, err := c.Progress(ctx, a.ID, g.approve.ID, "bob", "")
	require.NoError(t, err)
	require.Nil(t, entry.Deadline, "end state carries no estimate")

	got, err := c.backend.GetActivity(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CompletedAt)
	require.Equal(t, mock.Now(), got.CompletedAt.UTC())

	_, err = c.Start(ctx, a.ID, "alice")
	var serr *StartError
	require.ErrorAs(t, err, &serr)
	require.Equal(t, StartAlreadyStarted, serr.Kind)
}

func Test_AddComment_Empty(t *testing.T) {
	c, _ := setup(t)
	ctx := context.Background()

	g := createApproval(t, ctx, c)
	a := startedActivity(t, ctx, c, g)

	_, err := c.AddComment(ctx, a.ID, "alice", "")

	var cerr *CommentError
	require.ErrorAs(t, err, &cerr)

	entries, err := c.History(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func Test_AddComment(t *testing.T) {
	c, mock := setup(t)
	ctx := context.Background()

	g := createApproval(t, ctx, c)
	a := startedActivity(t, ctx, c, g)

	mock.Add(time.Hour)

	entry, err := c.AddComment(ctx, a.ID, "bob", "please have a look")
	require.NoError(t, err)

	require.Equal(t, activity.EntryComment, entry.Type)
	require.Equal(t, g.draft.ID, *entry.StateID, "a comment repeats the current state")
	require.Equal(t, "please have a look", entry.Note)
	require.NotNil(t, entry.Deadline)
	require.Equal(t, mock.Now().Add(48*time.Hour), *entry.Deadline, "comments snapshot the current state's deadline")

	got, err := c.backend.GetActivity(ctx, a.ID)
	require.NoError(t, err)
	require.Nil(t, got.CompletedAt, "commenting never completes an activity")
}

func Test_AddComment_BeforeStart(t *testing.T) {
	c, _ := setup(t)
	ctx := context.Background()

	g := createApproval(t, ctx, c)

	a, err := c.CreateActivity(ctx, g.wf.ID, "order-42", "alice")
	require.NoError(t, err)

	entry, err := c.AddComment(ctx, a.ID, "alice", "created ahead of time")
	require.NoError(t, err)
	require.Nil(t, entry.StateID)
	require.Nil(t, entry.Deadline)

	// Starting afterwards still works, the comment carries no state
	_, err = c.Start(ctx, a.ID, "alice")
	require.NoError(t, err)
}

func Test_ForceStop(t *testing.T) {
	c, mock := setup(t)
	ctx := context.Background()

	g := createApproval(t, ctx, c)
	a := startedActivity(t, ctx, c, g)

	entry, err := c.ForceStop(ctx, a.ID, "alice", "obsolete")
	require.NoError(t, err)

	require.Equal(t, activity.EntryTransition, entry.Type)
	require.Equal(t, g.draft.ID, *entry.StateID, "force stop repeats the current state")
	require.Equal(t, "Workflow forced to stop! Reason given: obsolete", entry.Note)
	require.Nil(t, entry.Deadline)

	got, err := c.backend.GetActivity(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CompletedAt)
	first := *got.CompletedAt

	// A second force stop appends again but the completion timestamp sticks
	mock.Add(time.Hour)
	_, err = c.ForceStop(ctx, a.ID, "alice", "still obsolete")
	require.NoError(t, err)

	got, err = c.backend.GetActivity(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, first, *got.CompletedAt)
}

func Test_ForceStop_NeverStarted(t *testing.T) {
	c, _ := setup(t)
	ctx := context.Background()

	g := createApproval(t, ctx, c)

	a, err := c.CreateActivity(ctx, g.wf.ID, "order-42", "alice")
	require.NoError(t, err)

	entry, err := c.ForceStop(ctx, a.ID, "alice", "never needed")
	require.NoError(t, err)
	require.Nil(t, entry, "no history entry without a current state")

	entries, err := c.History(ctx, a.ID)
	require.NoError(t, err)
	require.Empty(t, entries)

	got, err := c.backend.GetActivity(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CompletedAt)
}

func Test_Events_Ordering(t *testing.T) {
	d := events.NewDispatcher(nil)

	var mu sync.Mutex
	var got []events.Type
	d.SubscribeAll(func(ctx context.Context, event *events.Event) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, event.Type)
		return nil
	})

	c, _ := setup(t, WithNotifier(d))
	ctx := context.Background()

	g := createApproval(t, ctx, c)

	a, err := c.CreateActivity(ctx, g.wf.ID, "order-42", "alice")
	require.NoError(t, err)

	_, err = c.Start(ctx, a.ID, "alice")
	require.NoError(t, err)
	require.Equal(t, []events.Type{
		events.WorkflowPreChange,
		events.WorkflowPostChange,
		events.WorkflowTransitioned,
		events.WorkflowStarted,
	}, got)

	got = nil
	_, err = c.AddComment(ctx, a.ID, "bob", "note")
	require.NoError(t, err)
	require.Equal(t, []events.Type{
		events.WorkflowPreChange,
		events.WorkflowPostChange,
		events.WorkflowCommented,
		events.WorkflowStarted,
	}, got, "a comment in the start state still reports the start state")

	got = nil
	_, err = c.Progress(ctx, a.ID, g.submit.ID, "alice", "")
	require.NoError(t, err)
	require.Equal(t, []events.Type{
		events.WorkflowPreChange,
		events.WorkflowPostChange,
		events.WorkflowTransitioned,
	}, got, "Review is neither start nor end")

	got = nil
	_, err = c.Progress(ctx, a.ID, g.approve.ID, "bob", "")
	require.NoError(t, err)
	require.Equal(t, []events.Type{
		events.WorkflowPreChange,
		events.WorkflowPostChange,
		events.WorkflowTransitioned,
		events.WorkflowEnded,
	}, got)
}

type failingNotifier struct{}

func (failingNotifier) Publish(ctx context.Context, event *events.Event) error {
	return errors.New("subscriber down")
}

func Test_NotifierFailure_DoesNotFailAppend(t *testing.T) {
	c, _ := setup(t, WithNotifier(failingNotifier{}))
	ctx := context.Background()

	g := createApproval(t, ctx, c)

	a, err := c.CreateActivity(ctx, g.wf.ID, "order-42", "alice")
	require.NoError(t, err)

	entry, err := c.Start(ctx, a.ID, "alice")
	require.NoError(t, err)
	require.NotNil(t, entry)

	entries, err := c.History(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func Test_EndToEnd_Approval(t *testing.T) {
	c, _ := setup(t)
	ctx := context.Background()

	g := createApproval(t, ctx, c)

	a, err := c.CreateActivity(ctx, g.wf.ID, "order-42", "alice")
	require.NoError(t, err)

	_, err = c.Start(ctx, a.ID, "alice")
	require.NoError(t, err)

	head, err := c.CurrentState(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, g.draft.ID, *head.StateID)

	_, err = c.Progress(ctx, a.ID, g.submit.ID, "alice", "")
	require.NoError(t, err)

	head, err = c.CurrentState(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, g.review.ID, *head.StateID)

	_, err = c.Progress(ctx, a.ID, g.approve.ID, "bob", "")
	require.NoError(t, err)

	head, err = c.CurrentState(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, g.approved.ID, *head.StateID)

	entries, err := c.History(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	got, err := c.backend.GetActivity(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CompletedAt)
}

type conflictingBackend struct {
	backend.Backend
}

func (cb *conflictingBackend) AppendHistory(ctx context.Context, activityID, expectedHeadID string, entry *activity.Entry, completedAt *time.Time) error {
	return backend.ErrConflict
}

func Test_Progress_SurfacesConflict(t *testing.T) {
	ctx := context.Background()

	mock := clock.NewMock()
	mock.Set(time.Date(2023, time.March, 14, 12, 0, 0, 0, time.UTC))

	sb := sqlite.NewInMemoryBackend()
	defer sb.Close()

	c := New(sb, WithClock(mock))
	g := createApproval(t, ctx, c)
	a := startedActivity(t, ctx, c, g)
	c.Close()

	// Same store, but every append loses the race
	cc := New(&conflictingBackend{Backend: sb}, WithClock(mock))
	defer cc.Close()

	_, err := cc.Progress(ctx, a.ID, g.submit.ID, "alice", "")
	require.ErrorIs(t, err, backend.ErrConflict)

	entries, err := cc.History(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1, "a conflicting append must leave the history untouched")
}

func Test_ConcurrentProgress_SingleWinner(t *testing.T) {
	ignore := goleak.IgnoreCurrent()
	t.Cleanup(func() { goleak.VerifyNone(t, ignore) })

	c, _ := setup(t)
	ctx := context.Background()

	g := createApproval(t, ctx, c)
	a := startedActivity(t, ctx, c, g)

	// Submit and Cancel both originate in Draft. Raced against each other,
	// exactly one may win.
	transitions := []string{g.submit.ID, g.cancel.ID}

	var wg sync.WaitGroup
	errs := make([]error, len(transitions))
	for i, id := range transitions {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = c.Progress(ctx, a.ID, id, "alice", "")
		}(i, id)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}

		var perr *ProgressError
		if !errors.Is(err, backend.ErrConflict) && !errors.As(err, &perr) {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	require.Equal(t, 1, wins, "exactly one concurrent progress may append")

	entries, err := c.History(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2, "start plus the single winning progress")
}
