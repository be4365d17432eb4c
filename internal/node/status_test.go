package node

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/specialistvlad/unloadcopy/internal/nodeid"
	"github.com/specialistvlad/unloadcopy/internal/task"
)

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "pending", StatusPending.String())
	assert.Equal(t, "skipped", StatusSkipped.String())
	assert.Equal(t, "unknown", Status(42).String())
}

func TestStatus_IsTerminal(t *testing.T) {
	for _, s := range []Status{StatusSucceeded, StatusFailed, StatusSkipped} {
		assert.True(t, s.IsTerminal(), s.String())
	}
	for _, s := range []Status{StatusPending, StatusReady, StatusRunning} {
		assert.False(t, s.IsTerminal(), s.String())
	}
}

func TestCanTransition(t *testing.T) {
	testCases := []struct {
		from, to Status
		allowed  bool
	}{
		{StatusPending, StatusReady, true},
		{StatusPending, StatusSkipped, true},
		{StatusPending, StatusRunning, false},
		{StatusReady, StatusRunning, true},
		{StatusRunning, StatusSucceeded, true},
		{StatusRunning, StatusFailed, true},
		{StatusRunning, StatusSkipped, false},
		{StatusSucceeded, StatusFailed, false},
		{StatusSkipped, StatusPending, false},
	}

	for _, tc := range testCases {
		t.Run(tc.from.String()+"->"+tc.to.String(), func(t *testing.T) {
			assert.Equal(t, tc.allowed, CanTransition(tc.from, tc.to))
		})
	}
}

func TestNode_Accessors(t *testing.T) {
	n := New(Handle(3), nodeid.New("barrier", "cluster_checks"), task.Barrier{})
	assert.Equal(t, Handle(3), n.Handle())
	assert.Equal(t, "#3", n.Handle().String())
	assert.Equal(t, "barrier.cluster_checks", n.ID())
	assert.True(t, n.IsBarrier())
}
