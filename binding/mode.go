package binding

import (
	"fmt"
	"strings"
)

// Mode selects the direction values flow in.
type Mode uint8

const (
	OneWay Mode = iota
	TwoWay
	OneWayToSource
	OneTime
	None
)

var modeNames = [...]string{
	OneWay:         "one-way",
	TwoWay:         "two-way",
	OneWayToSource: "one-way-to-source",
	OneTime:        "one-time",
	None:           "none",
}

func (m Mode) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("Mode(%d)", m)
}

func (m Mode) IsValid() bool { return int(m) < len(modeNames) }

// ParseMode accepts the String form, case insensitively, with or without
// dashes.
func ParseMode(s string) (Mode, error) {
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-")
	for m, name := range modeNames {
		if norm == name || norm == strings.ReplaceAll(name, "-", "") {
			return Mode(m), nil
		}
	}
	return 0, fmt.Errorf("unknown binding mode %q", s)
}

func (m Mode) MarshalText() ([]byte, error) {
	if !m.IsValid() {
		return nil, fmt.Errorf("invalid binding mode %d", m)
	}
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(b []byte) error {
	v, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

func (m Mode) updatesTarget() bool {
	return m == OneWay || m == TwoWay || m == OneTime
}

func (m Mode) updatesSource() bool {
	return m == TwoWay || m == OneWayToSource
}

func (m Mode) observesSource() bool {
	return m == OneWay || m == TwoWay
}

func (m Mode) observesTarget() bool {
	return m == OneWay || m == TwoWay || m == OneWayToSource
}

// State is the lifecycle position of a Binding.
type State uint32

const (
	Created State = iota
	Attached
	Syncing
	Idle
	Detached
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Attached:
		return "attached"
	case Syncing:
		return "syncing"
	case Idle:
		return "idle"
	case Detached:
		return "detached"
	}
	return fmt.Sprintf("State(%d)", s)
}
