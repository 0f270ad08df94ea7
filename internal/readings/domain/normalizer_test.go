package readings

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"
)

func rawPoint(value float64, ts string) RawPoint {
	return RawPoint{Value: &value, Time: &ts}
}

func TestNormalizeSortsAscending(t *testing.T) {
	batch := []RawPoint{
		rawPoint(3, "2026-03-01T12:02:00Z"),
		rawPoint(1, "2026-03-01T12:00:00Z"),
		rawPoint(2, "2026-03-01T12:01:00Z"),
	}
	got, err := Normalize(7, batch)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	for i, want := range []float64{1, 2, 3} {
		if got[i].Value != want {
			t.Fatalf("got[%d].Value = %v, want %v", i, got[i].Value, want)
		}
		if got[i].ParameterID != 7 {
			t.Fatalf("got[%d].ParameterID = %d, want 7", i, got[i].ParameterID)
		}
	}
	if !got[0].Time.Before(got[1].Time) || !got[1].Time.Before(got[2].Time) {
		t.Fatal("output not sorted ascending")
	}
}

func TestNormalizeKeepsFirstDuplicate(t *testing.T) {
	batch := []RawPoint{
		rawPoint(10, "2026-03-01T12:00:00Z"),
		rawPoint(99, "2026-03-01T12:00:00Z"),
		rawPoint(20, "2026-03-01T12:05:00Z"),
	}
	got, err := Normalize(1, batch)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Value != 10 {
		t.Fatalf("duplicate resolution kept %v, want first value 10", got[0].Value)
	}
}

func TestNormalizeRejectsEmptyBatch(t *testing.T) {
	_, err := Normalize(1, nil)
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	msgs := validation.Fields["data"]
	if len(msgs) != 1 || !strings.Contains(msgs[0], "between 1 and 200") {
		t.Fatalf("unexpected messages: %v", msgs)
	}
}

func TestNormalizeRejectsOversizeBatch(t *testing.T) {
	batch := make([]RawPoint, MaxBatchSize+1)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := range batch {
		batch[i] = rawPoint(float64(i), base.Add(time.Duration(i)*time.Minute).Format(TimeFormat))
	}
	_, err := Normalize(1, batch)
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if _, ok := validation.Fields["data"]; !ok {
		t.Fatalf("expected batch-level data error, got %v", validation.Fields)
	}
}

func TestNormalizeFieldErrorsAreIndexed(t *testing.T) {
	value := math.NaN()
	badTime := "01-03-2026 12:00"
	batch := []RawPoint{
		rawPoint(1, "2026-03-01T12:00:00Z"),
		{Value: &value, Time: &badTime},
		{Value: nil, Time: nil},
	}
	_, err := Normalize(1, batch)
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	wantKeys := []string{"data.1.value", "data.1.time", "data.2.value", "data.2.time"}
	for _, key := range wantKeys {
		if len(validation.Fields[key]) == 0 {
			t.Fatalf("missing field error %q in %v", key, validation.Fields)
		}
	}
	if len(validation.Fields) != len(wantKeys) {
		t.Fatalf("unexpected extra field errors: %v", validation.Fields)
	}
}

func TestNormalizeRejectsOffsetTimestamps(t *testing.T) {
	// The format requires a literal Z suffix; explicit numeric offsets are
	// not accepted even when they denote UTC.
	batch := []RawPoint{rawPoint(1, "2026-03-01T12:00:00+00:00")}
	_, err := Normalize(1, batch)
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(validation.Fields["data.0.time"]) == 0 {
		t.Fatalf("expected data.0.time error, got %v", validation.Fields)
	}
}

func TestValidationErrorMessageListsFieldsSorted(t *testing.T) {
	err := &ValidationError{Fields: map[string][]string{
		"b": {"second"},
		"a": {"first"},
	}}
	msg := err.Error()
	if !strings.Contains(msg, "a") || !strings.Contains(msg, "b") {
		t.Fatalf("message missing fields: %q", msg)
	}
	if strings.Index(msg, "a") > strings.Index(msg, "b") {
		t.Fatalf("fields not sorted in message: %q", msg)
	}
}
