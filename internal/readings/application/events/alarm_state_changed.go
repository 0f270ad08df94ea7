package events

import "time"

// AlarmStateChanged is published when one ingestion call flips a parameter's
// net alarm state. Only the final transition of the batch is carried; the
// intermediate flips are never visible outside the transaction.
type AlarmStateChanged struct {
	ParameterID int64     `json:"parameter_id"`
	Value       float64   `json:"value"`
	Active      bool      `json:"active"`
	OccurredAt  time.Time `json:"occurred_at"`
}
