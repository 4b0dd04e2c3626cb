package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to CallStatus
		want     bool
	}{
		{CallStatusInitiated, CallStatusRinging, true},
		{CallStatusInitiated, CallStatusEnded, true},
		{CallStatusInitiated, CallStatusAnswered, false},
		{CallStatusRinging, CallStatusAnswered, true},
		{CallStatusRinging, CallStatusDeclined, true},
		{CallStatusRinging, CallStatusMissed, true},
		{CallStatusRinging, CallStatusConnected, false},
		{CallStatusAnswered, CallStatusConnected, true},
		{CallStatusAnswered, CallStatusEnded, true},
		{CallStatusConnected, CallStatusEnded, true},
		// Terminal states never resurrect
		{CallStatusEnded, CallStatusRinging, false},
		{CallStatusEnded, CallStatusAnswered, false},
		{CallStatusDeclined, CallStatusAnswered, false},
		{CallStatusMissed, CallStatusRinging, false},
	}

	for _, c := range cases {
		assert.Equal(t, c.want, CanTransition(c.from, c.to), "%s -> %s", c.from, c.to)
	}
}

func TestCallStatusTerminal(t *testing.T) {
	assert.True(t, CallStatusEnded.Terminal())
	assert.True(t, CallStatusMissed.Terminal())
	assert.True(t, CallStatusDeclined.Terminal())
	assert.False(t, CallStatusRinging.Terminal())
	assert.False(t, CallStatusAnswered.Terminal())
	assert.False(t, CallStatusConnected.Terminal())
}

func TestCallSessionPeer(t *testing.T) {
	caller := uuid.New()
	callee := uuid.New()
	session := &CallSession{CallerID: caller, CalleeID: callee}

	assert.Equal(t, callee, session.Peer(caller))
	assert.Equal(t, caller, session.Peer(callee))
	assert.True(t, session.Participant(caller))
	assert.True(t, session.Participant(callee))
	assert.False(t, session.Participant(uuid.New()))
}
