package readings

import "time"

// TimeFormat is the wire format for reading timestamps: UTC, second
// precision, literal Z suffix. Offsets other than Z are rejected.
const TimeFormat = "2006-01-02T15:04:05Z"

// MaxBatchSize bounds one ingestion call.
const MaxBatchSize = 200

const (
	MinBucketMinutes     = 5
	MaxBucketMinutes     = 1440 // 24 * 60
	DefaultBucketMinutes = 60
)

// Reading is one immutable time-series sample. (parameter id, time) is the
// natural key; duplicates are absorbed at write time, never overwritten.
type Reading struct {
	ParameterID int64
	Time        time.Time
	Value       float64
}

// RawPoint is one unvalidated batch entry as submitted by a client. Pointer
// fields distinguish missing from zero values.
type RawPoint struct {
	Value *float64 `json:"value"`
	Time  *string  `json:"time"`
}

// BucketRow is one aggregated summary over a fixed-width time bucket.
type BucketRow struct {
	BucketStart time.Time
	Count       int64
	MinValue    float64
	MaxValue    float64
	AvgValue    float64
}

// ParseTime parses a reading timestamp in the wire format.
func ParseTime(value string) (time.Time, error) {
	return time.ParseInLocation(TimeFormat, value, time.UTC)
}
