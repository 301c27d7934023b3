package task

import (
	"testing"

	"github.com/google/uuid"
)

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusPosted, StatusAccepted, true},
		{StatusPosted, StatusCancelled, true},
		{StatusPosted, StatusCompleted, false},
		{StatusAccepted, StatusCompleted, true},
		{StatusAccepted, StatusCancelled, true},
		{StatusAccepted, StatusPosted, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCompleted, StatusAccepted, false},
		{StatusCancelled, StatusAccepted, false},
		{StatusCancelled, StatusCompleted, false},
	}

	for _, c := range cases {
		if got := c.from.CanTransitionTo(c.to); got != c.want {
			t.Errorf("%s -> %s: got %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestStatusTerminal(t *testing.T) {
	if StatusPosted.Terminal() || StatusAccepted.Terminal() {
		t.Error("posted and accepted must not be terminal")
	}
	if !StatusCompleted.Terminal() || !StatusCancelled.Terminal() {
		t.Error("completed and cancelled must be terminal")
	}
}

func TestStatusValid(t *testing.T) {
	for _, s := range []Status{StatusPosted, StatusAccepted, StatusCompleted, StatusCancelled} {
		if !s.Valid() {
			t.Errorf("%s should be valid", s)
		}
	}
	if Status("paused").Valid() {
		t.Error("unknown status should be invalid")
	}
}

func TestHoldLive(t *testing.T) {
	task := &Task{Status: StatusPosted, Escrowed: true}
	if !task.HoldLive() {
		t.Error("posted escrowed task should have a live hold")
	}

	task.Status = StatusAccepted
	if !task.HoldLive() {
		t.Error("accepted escrowed task should have a live hold")
	}

	task.Status = StatusCompleted
	task.Escrowed = false
	if task.HoldLive() {
		t.Error("completed task should not have a live hold")
	}

	task = &Task{Status: StatusPosted, Escrowed: false}
	if task.HoldLive() {
		t.Error("task without escrow flag should not have a live hold")
	}
}

func TestOwnershipChecks(t *testing.T) {
	client := uuid.New()
	runner := uuid.New()

	task := &Task{ClientID: client}
	if !task.IsOwnedBy(client) || task.IsOwnedBy(runner) {
		t.Error("ownership check failed")
	}
	if task.IsRunner(runner) {
		t.Error("unbound task should have no runner")
	}

	task.RunnerID = uuid.NullUUID{UUID: runner, Valid: true}
	if !task.IsRunner(runner) || task.IsRunner(client) {
		t.Error("runner check failed")
	}
}
