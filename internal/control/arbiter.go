package control

import "github.com/verdantlabs/hydrocore/internal/device"

// Source identifies who is asking for an actuator change.
type Source string

const (
	SourceUser       Source = "user"
	SourceAI         Source = "ai"
	SourceAutomation Source = "automation"
)

// Valid reports whether s is a known command source.
func (s Source) Valid() bool {
	switch s {
	case SourceUser, SourceAI, SourceAutomation:
		return true
	}
	return false
}

// Allowed decides whether a command source may drive an actuator in the
// given control mode. Pure function, no side effects.
//
// In auto mode the machine owns the actuator: ai and automation pass,
// a user is blocked unless force is set (emergency override). In
// manual mode the user owns it: ai and automation are blocked, force
// notwithstanding.
//
// Returns the decision and, when blocked, a human-readable reason.
func Allowed(mode device.ControlMode, source Source, force bool) (bool, string) {
	if !source.Valid() {
		return false, "unknown command source"
	}

	switch mode {
	case device.ModeAuto:
		if source == SourceUser && !force {
			return false, "actuator is in AUTO mode; use force to override"
		}
		return true, ""
	case device.ModeManual:
		if source != SourceUser {
			return false, "actuator is in MANUAL mode"
		}
		return true, ""
	default:
		return false, "unknown control mode"
	}
}
