package redis

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/enactgo/enact/events"
)

func Test_ChannelNaming(t *testing.T) {
	p := NewPublisher(nil)
	require.Equal(t, "enact:workflow_started", p.channel(events.WorkflowStarted))

	p = NewPublisher(nil, WithChannelPrefix("myapp"))
	require.Equal(t, "myapp:workflow_ended", p.channel(events.WorkflowEnded))
}
