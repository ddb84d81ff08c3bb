package models

import "fmt"

// State is a position in the Gap Scan wizard
type State int

const (
	StateStep1 State = iota + 1
	StateStep2
	StateStep3
	StateSubmitting
	StateSuccess
	StateError
)

var stateNames = map[State]string{
	StateStep1:      "step1",
	StateStep2:      "step2",
	StateStep3:      "step3",
	StateSubmitting: "submitting",
	StateSuccess:    "success",
	StateError:      "error",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText renders the state by name in JSON responses.
func (s State) MarshalText() ([]byte, error) {
	if _, ok := stateNames[s]; !ok {
		return nil, fmt.Errorf("unknown form state %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name.
func (s *State) UnmarshalText(text []byte) error {
	for state, name := range stateNames {
		if name == string(text) {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown form state %q", string(text))
}

// Step returns the wizard step (1..3) the visitor interacts with in this
// state. Error returns to step 3; terminal and in-flight states report 0.
func (s State) Step() int {
	switch s {
	case StateStep1:
		return 1
	case StateStep2:
		return 2
	case StateStep3, StateError:
		return 3
	default:
		return 0
	}
}
