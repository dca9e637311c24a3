package domain

import (
	"fmt"
	"strings"
)

// transitions maps each legal edge to the event type that must be appended
// when taking it. Absent edges are invalid transitions.
var transitions = map[Status]map[Status]EventType{
	StatusPending: {
		StatusAccepted:  EventAccepted,
		StatusRejected:  EventRejected,
		StatusCancelled: EventCancelled,
	},
	StatusAccepted: {
		StatusInProgress: EventCheckedIn,
		StatusCancelled:  EventCancelled,
	},
	StatusInProgress: {
		StatusCompleted: EventCompleted,
		StatusCancelled: EventCancelled,
	},
}

// requiredHistory lists the event types that must already exist in a
// booking's log for the booking to have legitimately reached that status.
var requiredHistory = map[Status][]EventType{
	StatusPending:    {EventCreated},
	StatusAccepted:   {EventCreated, EventAccepted},
	StatusRejected:   {EventCreated, EventRejected},
	StatusInProgress: {EventCreated, EventAccepted, EventCheckedIn},
	StatusCompleted:  {EventCreated, EventAccepted, EventCheckedIn, EventCheckedOut, EventCompleted},
	StatusCancelled:  {EventCreated, EventCancelled},
}

// CanTransition reports whether moving current -> target is legal given the
// booking's event log. The history guard applies to the *current* status: a
// booking may not leave a status it never legitimately entered. The returned
// reason is human readable and names any missing events.
func CanTransition(current, target Status, events []BookingEvent) (bool, string) {
	targets, ok := transitions[current]
	if !ok {
		return false, fmt.Sprintf("booking status %s is terminal", current)
	}
	if _, ok := targets[target]; !ok {
		return false, fmt.Sprintf("transition from %s to %s is not allowed", current, target)
	}

	missing := missingEvents(current, events)
	if len(missing) > 0 {
		return false, fmt.Sprintf("booking history is incomplete for status %s: missing events %s",
			current, strings.Join(missing, ", "))
	}
	return true, ""
}

// RequiredEventFor returns the event type that a transition must append.
func RequiredEventFor(current, target Status) (EventType, error) {
	targets, ok := transitions[current]
	if !ok {
		return "", fmt.Errorf("%w: %s is terminal", ErrInvalidTransition, current)
	}
	event, ok := targets[target]
	if !ok {
		return "", fmt.Errorf("%w: %s to %s", ErrInvalidTransition, current, target)
	}
	return event, nil
}

// IsTerminal reports whether a status has no outgoing edges.
func IsTerminal(s Status) bool {
	_, ok := transitions[s]
	return !ok
}

// CanBeCancelled is a fast pre-check for callers building UI or permission
// hints. It is deliberately looser than the edge graph (REJECTED passes here
// but has no CANCELLED edge); the edge graph stays authoritative and every
// cancel still goes through CanTransition.
func CanBeCancelled(s Status) bool {
	return s != StatusCompleted
}

func missingEvents(status Status, events []BookingEvent) []string {
	seen := make(map[EventType]bool, len(events))
	for _, e := range events {
		seen[e.EventType] = true
	}

	var missing []string
	for _, required := range requiredHistory[status] {
		if !seen[required] {
			missing = append(missing, string(required))
		}
	}
	return missing
}
