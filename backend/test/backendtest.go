package test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/enactgo/enact/activity"
	"github.com/enactgo/enact/backend"
	"github.com/enactgo/enact/workflow"
)

// BackendTest verifies the persistence contract every backend has to fulfill.
// Each subtest runs against a fresh backend returned by setup.
func BackendTest(t *testing.T, setup func(opts ...backend.BackendOption) backend.Backend, teardown func(b backend.Backend)) {
	tests := []struct {
		name string
		f    func(t *testing.T, ctx context.Context, b backend.Backend)
	}{
		{
			name: "GetWorkflow_ReturnsNotFound",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				_, err := b.GetWorkflow(ctx, uuid.NewString())
				require.ErrorIs(t, err, backend.ErrWorkflowNotFound)
			},
		},
		{
			name: "CreateWorkflow_Roundtrips",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				wf := workflow.NewWorkflow(time.Now().UTC(), "Approval", "expense approval", "admin")
				require.NoError(t, b.CreateWorkflow(ctx, wf))

				got, err := b.GetWorkflow(ctx, wf.ID)
				require.NoError(t, err)
				require.Equal(t, wf.Name, got.Name)
				require.Equal(t, wf.Description, got.Description)
				require.Equal(t, workflow.StatusDefinition, got.Status)
			},
		},
		{
			name: "SaveWorkflow_PersistsStatus",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				wf := workflow.NewWorkflow(time.Now().UTC(), "Approval", "", "admin")
				require.NoError(t, b.CreateWorkflow(ctx, wf))

				wf.Status = workflow.StatusActive
				require.NoError(t, b.SaveWorkflow(ctx, wf))

				got, err := b.GetWorkflow(ctx, wf.ID)
				require.NoError(t, err)
				require.Equal(t, workflow.StatusActive, got.Status)
			},
		},
		{
			name: "GetStates_ReturnsWorkflowStates",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				wf, states, _ := createGraph(t, ctx, b)

				got, err := b.GetStates(ctx, wf.ID)
				require.NoError(t, err)
				require.Len(t, got, len(states))

				byID := map[string]*workflow.State{}
				for _, s := range got {
					byID[s.ID] = s
				}

				start := byID[states[0].ID]
				require.NotNil(t, start)
				require.True(t, start.IsStartState)
				require.Equal(t, 2, start.EstimationValue)
				require.Equal(t, workflow.Day, start.EstimationUnit)
				require.Equal(t, []string{"alice", "bob"}, start.Users)
			},
		},
		{
			name: "GetTransitions_ReturnsWorkflowTransitions",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				wf, states, transitions := createGraph(t, ctx, b)

				got, err := b.GetTransitions(ctx, wf.ID)
				require.NoError(t, err)
				require.Len(t, got, len(transitions))

				single, err := b.GetTransition(ctx, transitions[0].ID)
				require.NoError(t, err)
				require.Equal(t, states[0].ID, single.FromStateID)
				require.Equal(t, states[1].ID, single.ToStateID)
			},
		},
		{
			name: "GetTransition_ReturnsNotFound",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				_, err := b.GetTransition(ctx, uuid.NewString())
				require.ErrorIs(t, err, backend.ErrTransitionNotFound)
			},
		},
		{
			name: "CreateActivity_Roundtrips",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				wf, _, _ := createGraph(t, ctx, b)

				a := activity.NewActivity(time.Now().UTC(), wf.ID, "order-42", "alice")
				require.NoError(t, b.CreateActivity(ctx, a))

				got, err := b.GetActivity(ctx, a.ID)
				require.NoError(t, err)
				require.Equal(t, "order-42", got.Subject)
				require.Nil(t, got.CompletedAt)
			},
		},
		{
			name: "GetActivity_ReturnsNotFound",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				_, err := b.GetActivity(ctx, uuid.NewString())
				require.ErrorIs(t, err, backend.ErrActivityNotFound)
			},
		},
		{
			name: "GetLatestEntry_NilForEmptyHistory",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				wf, _, _ := createGraph(t, ctx, b)
				a := createActivity(t, ctx, b, wf.ID)

				head, err := b.GetLatestEntry(ctx, a.ID)
				require.NoError(t, err)
				require.Nil(t, head)
			},
		},
		{
			name: "AppendHistory_EmptyHead",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				wf, states, _ := createGraph(t, ctx, b)
				a := createActivity(t, ctx, b, wf.ID)

				e := activity.NewTransitionEntry(time.Now().UTC(), a.ID, &states[0].ID, nil, "Started workflow", "alice", nil)
				require.NoError(t, b.AppendHistory(ctx, a.ID, "", e, nil))

				head, err := b.GetLatestEntry(ctx, a.ID)
				require.NoError(t, err)
				require.NotNil(t, head)
				require.Equal(t, e.ID, head.ID)
				require.Equal(t, states[0].ID, *head.StateID)
			},
		},
		{
			name: "AppendHistory_HeadMismatchConflicts",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				wf, states, _ := createGraph(t, ctx, b)
				a := createActivity(t, ctx, b, wf.ID)

				first := activity.NewTransitionEntry(time.Now().UTC(), a.ID, &states[0].ID, nil, "Started workflow", "alice", nil)
				require.NoError(t, b.AppendHistory(ctx, a.ID, "", first, nil))

				stale := activity.NewTransitionEntry(time.Now().UTC(), a.ID, &states[1].ID, nil, "Submit", "alice", nil)
				err := b.AppendHistory(ctx, a.ID, "", stale, nil)
				require.ErrorIs(t, err, backend.ErrConflict)

				// The losing append must not leave an entry behind
				entries, err := b.GetHistory(ctx, a.ID)
				require.NoError(t, err)
				require.Len(t, entries, 1)
			},
		},
		{
			name: "AppendHistory_UnknownActivity",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				e := activity.NewCommentEntry(time.Now().UTC(), uuid.NewString(), nil, "note", "alice", nil)
				err := b.AppendHistory(ctx, e.ActivityID, "", e, nil)
				require.ErrorIs(t, err, backend.ErrActivityNotFound)
			},
		},
		{
			name: "AppendHistory_StampsCompletion",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				wf, states, _ := createGraph(t, ctx, b)
				a := createActivity(t, ctx, b, wf.ID)

				now := time.Now().UTC()
				e := activity.NewTransitionEntry(now, a.ID, &states[2].ID, nil, "Approve", "alice", nil)
				require.NoError(t, b.AppendHistory(ctx, a.ID, "", e, &now))

				got, err := b.GetActivity(ctx, a.ID)
				require.NoError(t, err)
				require.NotNil(t, got.CompletedAt)
			},
		},
		{
			name: "GetHistory_NewestFirst",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				wf, states, transitions := createGraph(t, ctx, b)
				a := createActivity(t, ctx, b, wf.ID)

				now := time.Now().UTC()
				first := activity.NewTransitionEntry(now, a.ID, &states[0].ID, nil, "Started workflow", "alice", nil)
				require.NoError(t, b.AppendHistory(ctx, a.ID, "", first, nil))

				second := activity.NewTransitionEntry(now, a.ID, &states[1].ID, &transitions[0].ID, "Submit", "alice", nil)
				require.NoError(t, b.AppendHistory(ctx, a.ID, first.ID, second, nil))

				third := activity.NewCommentEntry(now, a.ID, &states[1].ID, "please review", "bob", nil)
				require.NoError(t, b.AppendHistory(ctx, a.ID, second.ID, third, nil))

				entries, err := b.GetHistory(ctx, a.ID)
				require.NoError(t, err)
				require.Len(t, entries, 3)
				require.Equal(t, third.ID, entries[0].ID)
				require.Equal(t, second.ID, entries[1].ID)
				require.Equal(t, first.ID, entries[2].ID)
				require.Equal(t, activity.EntryComment, entries[0].Type)
				require.Equal(t, transitions[0].ID, *entries[1].TransitionID)
			},
		},
		{
			name: "CompleteActivity_FirstStampWins",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				wf, _, _ := createGraph(t, ctx, b)
				a := createActivity(t, ctx, b, wf.ID)

				first := time.Date(2023, time.March, 14, 12, 0, 0, 0, time.UTC)
				require.NoError(t, b.CompleteActivity(ctx, a.ID, first))
				require.NoError(t, b.CompleteActivity(ctx, a.ID, first.Add(time.Hour)))

				got, err := b.GetActivity(ctx, a.ID)
				require.NoError(t, err)
				require.NotNil(t, got.CompletedAt)
				require.Equal(t, first, got.CompletedAt.UTC())
			},
		},
		{
			name: "CompleteActivity_UnknownActivity",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				err := b.CompleteActivity(ctx, uuid.NewString(), time.Now().UTC())
				require.ErrorIs(t, err, backend.ErrActivityNotFound)
			},
		},
		{
			name: "ObjectWorkflow_AssignAndLookup",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				wf, _, _ := createGraph(t, ctx, b)

				require.NoError(t, b.AssignObjectWorkflow(ctx, "order", "42", wf.ID))

				got, err := b.ObjectWorkflow(ctx, "order", "42")
				require.NoError(t, err)
				require.Equal(t, wf.ID, got)

				_, err = b.ObjectWorkflow(ctx, "order", "43")
				require.ErrorIs(t, err, backend.ErrRelationNotFound)
			},
		},
		{
			name: "ObjectWorkflow_SecondAssignmentRejected",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				wf, _, _ := createGraph(t, ctx, b)

				require.NoError(t, b.AssignObjectWorkflow(ctx, "order", "42", wf.ID))
				err := b.AssignObjectWorkflow(ctx, "order", "42", wf.ID)
				require.ErrorIs(t, err, backend.ErrRelationExists)
			},
		},
		{
			name: "ModelWorkflow_AssignOverwritesAndLooksUp",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				wf, _, _ := createGraph(t, ctx, b)
				other, _, _ := createGraph(t, ctx, b)

				_, err := b.ModelWorkflow(ctx, "order")
				require.ErrorIs(t, err, backend.ErrRelationNotFound)

				require.NoError(t, b.AssignModelWorkflow(ctx, "order", wf.ID))
				require.NoError(t, b.AssignModelWorkflow(ctx, "order", other.ID))

				got, err := b.ModelWorkflow(ctx, "order")
				require.NoError(t, err)
				require.Equal(t, other.ID, got)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := setup()
			ctx := context.Background()

			t.Cleanup(func() {
				if teardown != nil {
					teardown(b)
				}

				b.Close()
			})

			tt.f(t, ctx, b)
		})
	}
}

// createGraph persists the Approval workflow used by the contract tests:
// Draft(start) -Submit-> Review -Approve-> Approved(end), Review -Reject-> Draft.
func createGraph(t *testing.T, ctx context.Context, b backend.Backend) (*workflow.Workflow, []*workflow.State, []*workflow.Transition) {
	t.Helper()

	wf := workflow.NewWorkflow(time.Now().UTC(), "Approval", "", "admin")
	require.NoError(t, b.CreateWorkflow(ctx, wf))

	draft := workflow.NewState(wf.ID, "Draft")
	draft.IsStartState = true
	draft.EstimationValue = 2
	draft.EstimationUnit = workflow.Day
	draft.Users = []string{"alice", "bob"}

	review := workflow.NewState(wf.ID, "Review")
	approved := workflow.NewState(wf.ID, "Approved")
	approved.IsEndState = true

	states := []*workflow.State{draft, review, approved}
	for _, s := range states {
		require.NoError(t, b.CreateState(ctx, s))
	}

	transitions := []*workflow.Transition{
		workflow.NewTransition(wf.ID, "Submit", draft.ID, review.ID),
		workflow.NewTransition(wf.ID, "Approve", review.ID, approved.ID),
		workflow.NewTransition(wf.ID, "Reject", review.ID, draft.ID),
	}
	for _, tr := range transitions {
		require.NoError(t, b.CreateTransition(ctx, tr))
	}

	return wf, states, transitions
}

func createActivity(t *testing.T, ctx context.Context, b backend.Backend, workflowID string) *activity.Activity {
	t.Helper()

	a := activity.NewActivity(time.Now().UTC(), workflowID, "subject", "alice")
	require.NoError(t, b.CreateActivity(ctx, a))

	return a
}
