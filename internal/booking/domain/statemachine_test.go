package domain

import (
	"strings"
	"testing"
)

func eventsOf(types ...EventType) []BookingEvent {
	events := make([]BookingEvent, 0, len(types))
	for _, t := range types {
		events = append(events, BookingEvent{EventType: t})
	}
	return events
}

func TestCanTransitionLegalEdges(t *testing.T) {
	cases := []struct {
		name    string
		current Status
		target  Status
		events  []BookingEvent
	}{
		{"pending to accepted", StatusPending, StatusAccepted, eventsOf(EventCreated)},
		{"pending to rejected", StatusPending, StatusRejected, eventsOf(EventCreated)},
		{"pending to cancelled", StatusPending, StatusCancelled, eventsOf(EventCreated)},
		{"accepted to in_progress", StatusAccepted, StatusInProgress, eventsOf(EventCreated, EventAccepted)},
		{"accepted to cancelled", StatusAccepted, StatusCancelled, eventsOf(EventCreated, EventAccepted)},
		{"in_progress to completed", StatusInProgress, StatusCompleted, eventsOf(EventCreated, EventAccepted, EventCheckedIn)},
		{"in_progress to cancelled", StatusInProgress, StatusCancelled, eventsOf(EventCreated, EventAccepted, EventCheckedIn)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ok, reason := CanTransition(tc.current, tc.target, tc.events)
			if !ok {
				t.Fatalf("expected %s -> %s to be legal, got: %s", tc.current, tc.target, reason)
			}
		})
	}
}

func TestCanTransitionIllegalEdges(t *testing.T) {
	cases := []struct {
		name    string
		current Status
		target  Status
	}{
		{"pending skips to in_progress", StatusPending, StatusInProgress},
		{"pending skips to completed", StatusPending, StatusCompleted},
		{"accepted back to pending", StatusAccepted, StatusPending},
		{"accepted straight to completed", StatusAccepted, StatusCompleted},
		{"in_progress back to accepted", StatusInProgress, StatusAccepted},
		{"completed to cancelled", StatusCompleted, StatusCancelled},
		{"rejected to cancelled", StatusRejected, StatusCancelled},
		{"cancelled to accepted", StatusCancelled, StatusAccepted},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ok, reason := CanTransition(tc.current, tc.target, eventsOf(EventCreated, EventAccepted, EventCheckedIn))
			if ok {
				t.Fatalf("expected %s -> %s to be illegal", tc.current, tc.target)
			}
			if reason == "" {
				t.Fatal("expected a reason for the rejected transition")
			}
		})
	}
}

func TestCanTransitionHistoryGuard(t *testing.T) {
	// IN_PROGRESS without a CHECKED_IN event is a corrupted log: the booking
	// never legitimately entered the status it is trying to leave.
	ok, reason := CanTransition(StatusInProgress, StatusCompleted, eventsOf(EventCreated, EventAccepted))
	if ok {
		t.Fatal("expected incomplete history to block the transition")
	}
	if !strings.Contains(reason, string(EventCheckedIn)) {
		t.Fatalf("expected reason to name the missing event, got: %s", reason)
	}

	ok, reason = CanTransition(StatusAccepted, StatusInProgress, nil)
	if ok {
		t.Fatal("expected empty history to block the transition")
	}
	if !strings.Contains(reason, string(EventCreated)) || !strings.Contains(reason, string(EventAccepted)) {
		t.Fatalf("expected reason to list every missing event, got: %s", reason)
	}
}

func TestCanTransitionTerminalStates(t *testing.T) {
	for _, status := range []Status{StatusCompleted, StatusRejected, StatusCancelled} {
		ok, reason := CanTransition(status, StatusAccepted, eventsOf(EventCreated))
		if ok {
			t.Fatalf("expected %s to be terminal", status)
		}
		if !strings.Contains(reason, "terminal") {
			t.Fatalf("expected terminal reason for %s, got: %s", status, reason)
		}
		if !IsTerminal(status) {
			t.Fatalf("IsTerminal(%s) = false, want true", status)
		}
	}
	for _, status := range []Status{StatusPending, StatusAccepted, StatusInProgress} {
		if IsTerminal(status) {
			t.Fatalf("IsTerminal(%s) = true, want false", status)
		}
	}
}

func TestRequiredEventFor(t *testing.T) {
	event, err := RequiredEventFor(StatusPending, StatusAccepted)
	if err != nil {
		t.Fatalf("RequiredEventFor: %v", err)
	}
	if event != EventAccepted {
		t.Fatalf("expected %s, got %s", EventAccepted, event)
	}

	event, err = RequiredEventFor(StatusInProgress, StatusCancelled)
	if err != nil {
		t.Fatalf("RequiredEventFor: %v", err)
	}
	if event != EventCancelled {
		t.Fatalf("expected %s, got %s", EventCancelled, event)
	}

	if _, err := RequiredEventFor(StatusCompleted, StatusCancelled); err == nil {
		t.Fatal("expected error for terminal source status")
	}
	if _, err := RequiredEventFor(StatusPending, StatusCompleted); err == nil {
		t.Fatal("expected error for missing edge")
	}
}

func TestCanBeCancelledIsLooserThanEdges(t *testing.T) {
	if CanBeCancelled(StatusCompleted) {
		t.Fatal("completed bookings must not be cancellable")
	}
	// REJECTED passes the hint but the edge graph still refuses it; the hint
	// is for UI, the graph is authoritative.
	if !CanBeCancelled(StatusRejected) {
		t.Fatal("hint should pass for rejected")
	}
	if ok, _ := CanTransition(StatusRejected, StatusCancelled, eventsOf(EventCreated, EventRejected)); ok {
		t.Fatal("edge graph must still refuse cancelling a rejected booking")
	}
}
