package catalog

import (
	"errors"
	"time"
)

// AlarmKind selects the threshold direction for a parameter's alarm.
type AlarmKind string

const (
	AlarmKindNone AlarmKind = "none"
	AlarmKindLow  AlarmKind = "low"
	AlarmKindHigh AlarmKind = "high"
)

// Valid returns true when the kind is supported.
func (k AlarmKind) Valid() bool {
	switch k {
	case AlarmKindNone, AlarmKindLow, AlarmKindHigh:
		return true
	default:
		return false
	}
}

// Parameter is one monitored quantity on a device, together with its alarm
// configuration and persisted alarm state. The ingestion core only mutates
// AlarmActive and AlarmUpdatedAt; everything else belongs to the catalog.
type Parameter struct {
	ID              int64
	DeviceID        int64
	Name            string
	Unit            string
	AlarmKind       AlarmKind
	AlarmTrigger    *float64
	AlarmHysteresis *float64
	AlarmActive     bool
	AlarmUpdatedAt  *time.Time
}

// ParameterDisplay carries the current row data used to render a notification
// message: human-readable names plus the live alarm state.
type ParameterDisplay struct {
	ID             int64
	Name           string
	Unit           string
	DeviceName     string
	AlarmActive    bool
	AlarmUpdatedAt *time.Time
}

// ErrNotFound indicates a missing parameter row.
var ErrNotFound = errors.New("catalog: parameter not found")
