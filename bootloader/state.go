package bootloader

import "fmt"

// State is a step of the flashing sequence. States only move forward:
//
//	Idle -> Opening -> Opened -> InterfaceReady -> Identified -> Writing -> Booting -> Done
//
// Any step may end in Failed.
type State int

const (
	Idle State = iota
	Opening
	Opened
	InterfaceReady
	Identified
	Writing
	Booting
	Done
	Failed
)

var stateNames = [...]string{
	Idle:           "idle",
	Opening:        "opening",
	Opened:         "opened",
	InterfaceReady: "interface_ready",
	Identified:     "identified",
	Writing:        "writing",
	Booting:        "booting",
	Done:           "done",
	Failed:         "failed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == Done || s == Failed
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	for i, name := range stateNames {
		if name == string(text) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", text)
}

// Operator-visible status messages.
const (
	StatusNotConnected = "Not connected"
	StatusOpening      = "Opening device"
	StatusOpened       = "Device opened"
	StatusInterface    = "Interface setup"
	StatusIdentified   = "Chip Info acquired"
	StatusWriting      = "Writing Image..."
	StatusDone         = "Done!"
)
