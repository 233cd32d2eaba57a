package enums

import "fmt"

// GroupState models the formation lifecycle of a purchase group.
type GroupState string

const (
	GroupStateForming       GroupState = "forming"
	GroupStateFull          GroupState = "full"
	GroupStateContemplating GroupState = "contemplating"
	GroupStateCompleted     GroupState = "completed"
)

var validGroupStates = []GroupState{
	GroupStateForming,
	GroupStateFull,
	GroupStateContemplating,
	GroupStateCompleted,
}

var groupStateRank = map[GroupState]int{
	GroupStateForming:       0,
	GroupStateFull:          1,
	GroupStateContemplating: 2,
	GroupStateCompleted:     3,
}

// String implements fmt.Stringer.
func (s GroupState) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s GroupState) IsValid() bool {
	for _, candidate := range validGroupStates {
		if candidate == s {
			return true
		}
	}
	return false
}

// CanTransitionTo enforces the monotonic state machine: transitions never
// move backwards and never skip over the contemplation step.
func (s GroupState) CanTransitionTo(next GroupState) bool {
	from, ok := groupStateRank[s]
	if !ok {
		return false
	}
	to, ok := groupStateRank[next]
	if !ok {
		return false
	}
	return to == from+1
}

// ParseGroupState converts raw input into a GroupState.
func ParseGroupState(value string) (GroupState, error) {
	for _, candidate := range validGroupStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid group state %q", value)
}
