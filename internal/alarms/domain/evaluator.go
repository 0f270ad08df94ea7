package alarms

import (
	"time"

	catalog "home-monitor/internal/catalog/domain"
	readings "home-monitor/internal/readings/domain"
)

// Evaluation is the net outcome of running one batch through the alarm state
// machine. Intermediate transitions are collapsed: only the last one is
// retained. FinalValue and FinalAt are nil when no transition occurred.
type Evaluation struct {
	StateChanged bool
	FinalActive  bool
	FinalValue   *float64
	FinalAt      *time.Time
}

// Evaluate walks a sorted, deduplicated batch through symmetric value-based
// hysteresis around the parameter's trigger threshold.
//
// Readings at or before AlarmUpdatedAt are stale relative to the last
// transition and never affect state. A trigger or hysteresis left unset
// disables transitions entirely, except the forced deactivation of a
// still-active alarm whose kind was changed to none.
func Evaluate(param catalog.Parameter, batch []readings.Reading) Evaluation {
	result := Evaluation{FinalActive: param.AlarmActive}

	// A none-kind alarm can never activate.
	if param.AlarmKind == catalog.AlarmKindNone && !param.AlarmActive {
		return result
	}

	active := param.AlarmActive
	for _, reading := range batch {
		if param.AlarmUpdatedAt != nil && !reading.Time.After(*param.AlarmUpdatedAt) {
			continue
		}
		if !crossesBoundary(param.AlarmKind, active, reading.Value, param.AlarmTrigger, param.AlarmHysteresis) {
			continue
		}
		if param.AlarmKind == catalog.AlarmKindNone {
			active = false
		} else {
			active = !active
		}
		value := reading.Value
		at := reading.Time
		result.StateChanged = true
		result.FinalActive = active
		result.FinalValue = &value
		result.FinalAt = &at
	}
	return result
}

// crossesBoundary reports whether a value moves the alarm across its current
// activation or deactivation boundary. Activation boundaries are inclusive
// and deactivation boundaries exclusive, so a value sitting exactly on a
// boundary cannot oscillate.
func crossesBoundary(kind catalog.AlarmKind, active bool, value float64, trigger, hysteresis *float64) bool {
	if kind == catalog.AlarmKindNone {
		return active
	}
	if trigger == nil || hysteresis == nil {
		return false
	}
	boundaryUp := *trigger + *hysteresis
	boundaryDown := *trigger - *hysteresis

	switch kind {
	case catalog.AlarmKindLow:
		if active {
			return value > boundaryUp
		}
		return value <= boundaryDown
	case catalog.AlarmKindHigh:
		if active {
			return value < boundaryDown
		}
		return value >= boundaryUp
	default:
		return false
	}
}
