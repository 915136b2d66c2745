package sse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubBroadcastAndUserDelivery(t *testing.T) {
	h := NewHub(nil)
	admin := &Client{ID: "c1", UserID: "admin", Events: make(chan Event, 4)}
	evaluator := &Client{ID: "c2", UserID: "evaluator-1", Events: make(chan Event, 4)}
	h.Register(admin)
	h.Register(evaluator)
	assert.Equal(t, 2, h.ClientCount())

	h.Broadcast(Event{EventType: "EvaluationSubmitted", Data: "{}"})
	h.SendToUser("evaluator-1", Event{EventType: "EvaluationReturned", Data: "{}"})

	assert.Len(t, admin.Events, 1)
	require.Len(t, evaluator.Events, 2)
	<-evaluator.Events
	assert.Equal(t, "EvaluationReturned", (<-evaluator.Events).EventType)

	h.Unregister("c1")
	_, open := <-admin.Events
	assert.True(t, open, "buffered event is still readable")
	_, open = <-admin.Events
	assert.False(t, open)
	assert.Equal(t, 1, h.ClientCount())
}

func TestHubDropsWhenBufferFull(t *testing.T) {
	h := NewHub(nil)
	c := &Client{ID: "c1", Events: make(chan Event, 1)}
	h.Register(c)

	h.Broadcast(Event{EventType: "a"})
	h.Broadcast(Event{EventType: "b"})

	require.Len(t, c.Events, 1)
	assert.Equal(t, "a", (<-c.Events).EventType)
}
