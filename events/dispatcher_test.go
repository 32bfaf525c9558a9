package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func Test_Dispatcher_DeliversInOrder(t *testing.T) {
	d := NewDispatcher(nil)

	var got []string
	d.SubscribeAll(func(ctx context.Context, event *Event) error {
		got = append(got, "all:"+string(event.Type))
		return nil
	})
	d.Subscribe(WorkflowStarted, func(ctx context.Context, event *Event) error {
		got = append(got, "started")
		return nil
	})
	d.Subscribe(WorkflowEnded, func(ctx context.Context, event *Event) error {
		got = append(got, "ended")
		return nil
	})

	ctx := context.Background()
	require.NoError(t, d.Publish(ctx, &Event{Type: WorkflowStarted, OccurredAt: time.Now()}))
	require.NoError(t, d.Publish(ctx, &Event{Type: WorkflowCommented, OccurredAt: time.Now()}))

	require.Equal(t, []string{"all:workflow_started", "started", "all:workflow_commented"}, got)
}

func Test_Dispatcher_SwallowsHandlerErrors(t *testing.T) {
	d := NewDispatcher(nil)

	calls := 0
	d.Subscribe(WorkflowTransitioned, func(ctx context.Context, event *Event) error {
		calls++
		return errors.New("subscriber broken")
	})
	d.Subscribe(WorkflowTransitioned, func(ctx context.Context, event *Event) error {
		calls++
		return nil
	})

	err := d.Publish(context.Background(), &Event{Type: WorkflowTransitioned})
	require.NoError(t, err, "handler errors must not propagate")
	require.Equal(t, 2, calls, "a failing handler must not stop later handlers")
}
