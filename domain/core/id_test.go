package core

import (
	"errors"
	"testing"
)

// TestNewIDUniqueness tests that NewID generates unique identifiers
func TestNewIDUniqueness(t *testing.T) {
	const numIDs = 10000

	ids := make(map[ID]bool, numIDs)
	for i := 0; i < numIDs; i++ {
		id := NewID()
		if id.IsEmpty() {
			t.Errorf("Generated empty ID at iteration %d", i)
		}
		if ids[id] {
			t.Errorf("Generated duplicate ID: %s", id)
		}
		ids[id] = true
	}

	if len(ids) != numIDs {
		t.Errorf("Expected %d unique IDs, got %d", numIDs, len(ids))
	}
}

// TestParseRunID tests run ID parsing
func TestParseRunID(t *testing.T) {
	valid := NewRunID().String()
	tests := []struct {
		input    string
		expected RunID
		hasError bool
	}{
		{valid, RunID(valid), false},
		{"run-123", "", true},
		{"", "", true},
		{"   ", "", true},
	}

	for _, test := range tests {
		result, err := ParseRunID(test.input)
		if test.hasError && err == nil {
			t.Errorf("Expected error for input '%s', but got none", test.input)
		}
		if !test.hasError && err != nil {
			t.Errorf("Unexpected error for input '%s': %v", test.input, err)
		}
		if result != test.expected {
			t.Errorf("Expected %s, got %s", test.expected, result)
		}
	}
}

// TestComputeSeriesHash tests that fingerprints are order independent and bit sensitive
func TestComputeSeriesHash(t *testing.T) {
	a := ComputeSeriesHash(map[string][]float64{"test": {1, 2, 3}, "ctrl": {4, 5}})
	b := ComputeSeriesHash(map[string][]float64{"ctrl": {4, 5}, "test": {1, 2, 3}})
	if a != b {
		t.Errorf("Expected identical hashes, got %s and %s", a, b)
	}

	c := ComputeSeriesHash(map[string][]float64{"test": {1, 2, 3.0000000001}, "ctrl": {4, 5}})
	if a == c {
		t.Error("Expected different hashes for different values")
	}
	if len(a.Short()) != 12 {
		t.Errorf("Expected short hash of 12 chars, got %q", a.Short())
	}
}

func TestNotFoundErrors(t *testing.T) {
	err := RunNotFound(RunID("r-1"))
	if !errors.Is(err, ErrRunNotFound) || !errors.Is(err, ErrNotFound) {
		t.Errorf("RunNotFound should match ErrRunNotFound and ErrNotFound: %v", err)
	}
	if errors.Is(err, ErrBatchNotFound) {
		t.Errorf("RunNotFound should not match ErrBatchNotFound")
	}
	if got := BatchNotFound(BatchID("b-1")).Error(); got != "batch not found: b-1" {
		t.Errorf("unexpected message %q", got)
	}
}
