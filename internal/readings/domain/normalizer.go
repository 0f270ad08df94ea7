package readings

import (
	"fmt"
	"math"
	"sort"
)

// pointRule is one declared constraint on a batch entry field. check returns
// an empty string when the constraint holds.
type pointRule struct {
	field string
	check func(point RawPoint) string
}

var pointRules = []pointRule{
	{
		field: "value",
		check: func(point RawPoint) string {
			if point.Value == nil {
				return "The value field is required"
			}
			if math.IsNaN(*point.Value) || math.IsInf(*point.Value, 0) {
				return "The value field must be a finite number"
			}
			return ""
		},
	},
	{
		field: "time",
		check: func(point RawPoint) string {
			if point.Time == nil || *point.Time == "" {
				return "The time field is required"
			}
			if _, err := ParseTime(*point.Time); err != nil {
				return "The time field must match the format " + TimeFormat
			}
			return ""
		},
	},
}

// Normalize validates and canonicalizes a raw batch for one parameter.
//
// The whole batch is rejected when it is empty, exceeds MaxBatchSize, or any
// entry violates a rule; the returned ValidationError names each offending
// field. On success the batch comes back sorted ascending by time with
// duplicate timestamps removed. When two entries share a timestamp the
// first-encountered one wins (stable, input-order tie-break).
func Normalize(parameterID int64, batch []RawPoint) ([]Reading, error) {
	if len(batch) == 0 || len(batch) > MaxBatchSize {
		return nil, NewValidationError("data",
			fmt.Sprintf("The data field must contain between 1 and %d readings", MaxBatchSize))
	}

	fields := make(map[string][]string)
	for i, point := range batch {
		for _, rule := range pointRules {
			if msg := rule.check(point); msg != "" {
				key := fmt.Sprintf("data.%d.%s", i, rule.field)
				fields[key] = append(fields[key], msg)
			}
		}
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	seen := make(map[int64]struct{}, len(batch))
	normalized := make([]Reading, 0, len(batch))
	for _, point := range batch {
		ts, _ := ParseTime(*point.Time)
		if _, dup := seen[ts.Unix()]; dup {
			continue
		}
		seen[ts.Unix()] = struct{}{}
		normalized = append(normalized, Reading{
			ParameterID: parameterID,
			Time:        ts,
			Value:       *point.Value,
		})
	}

	sort.SliceStable(normalized, func(i, j int) bool {
		return normalized[i].Time.Before(normalized[j].Time)
	})
	return normalized, nil
}
