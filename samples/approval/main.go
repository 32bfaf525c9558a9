package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/enactgo/enact/backend/sqlite"
	"github.com/enactgo/enact/client"
	"github.com/enactgo/enact/events"
	"github.com/enactgo/enact/workflow"
)

func main() {
	ctx := context.Background()

	b := sqlite.NewInMemoryBackend()
	defer b.Close()

	d := events.NewDispatcher(slog.Default())
	d.SubscribeAll(func(ctx context.Context, event *events.Event) error {
		fmt.Println("event:", event.Type)
		return nil
	})

	c := client.New(b, client.WithNotifier(d))
	defer c.Close()

	wf, err := c.CreateWorkflow(ctx, "Approval", "expense approval", "admin")
	if err != nil {
		panic(err)
	}

	draft := workflow.NewState(wf.ID, "Draft")
	draft.IsStartState = true
	draft.EstimationValue = 2
	draft.EstimationUnit = workflow.Day

	review := workflow.NewState(wf.ID, "Review")
	review.EstimationValue = 4
	review.EstimationUnit = workflow.Hour

	approved := workflow.NewState(wf.ID, "Approved")
	approved.IsEndState = true

	for _, s := range []*workflow.State{draft, review, approved} {
		if err := c.AddState(ctx, s); err != nil {
			panic(err)
		}
	}

	submit := workflow.NewTransition(wf.ID, "Submit", draft.ID, review.ID)
	approve := workflow.NewTransition(wf.ID, "Approve", review.ID, approved.ID)

	for _, t := range []*workflow.Transition{submit, approve} {
		if err := c.AddTransition(ctx, t); err != nil {
			panic(err)
		}
	}

	if err := c.ActivateWorkflow(ctx, wf.ID); err != nil {
		var aerr *client.ActivationError
		if errors.As(err, &aerr) && aerr.Result != nil {
			for _, msg := range aerr.Result.WorkflowErrors {
				fmt.Fprintln(os.Stderr, msg)
			}
		}
		panic(err)
	}

	a, err := c.CreateActivity(ctx, wf.ID, "expense-report-42", "alice")
	if err != nil {
		panic(err)
	}

	if _, err := c.Start(ctx, a.ID, "alice"); err != nil {
		panic(err)
	}

	if _, err := c.Progress(ctx, a.ID, submit.ID, "alice", ""); err != nil {
		panic(err)
	}

	if _, err := c.AddComment(ctx, a.ID, "bob", "looks good to me"); err != nil {
		panic(err)
	}

	if _, err := c.Progress(ctx, a.ID, approve.ID, "bob", "approved"); err != nil {
		panic(err)
	}

	entries, err := c.History(ctx, a.ID)
	if err != nil {
		panic(err)
	}

	fmt.Println("history, newest first:")
	for _, e := range entries {
		fmt.Printf("  %s %q by %s\n", e.Type, e.Note, e.CreatedBy)
	}
}
