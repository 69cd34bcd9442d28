package locks

import (
	"errors"
	"testing"
)

func TestEncodeRecord(t *testing.T) {
	raw, err := encodeRecord(NewJobSet(3, 1, 2))
	if err != nil {
		t.Fatalf("encodeRecord failed: %v", err)
	}
	if string(raw) != `{"version":2,"jobs":[1,2,3]}` {
		t.Errorf("unexpected encoding: %s", raw)
	}

	raw, err = encodeRecord(NewJobSet())
	if err != nil {
		t.Fatalf("encodeRecord failed: %v", err)
	}
	if string(raw) != `{"version":2,"jobs":[]}` {
		t.Errorf("empty set must encode as an empty list, got %s", raw)
	}
}

func TestDecodeRecord(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []int64
		invalid  bool
	}{
		{name: "current format", input: `{"version":2,"jobs":[4,5]}`, expected: []int64{4, 5}},
		{name: "empty set", input: `{"version":2,"jobs":[]}`, expected: nil},
		{name: "null jobs", input: `{"version":2,"jobs":null}`, expected: nil},
		{name: "duplicates collapse", input: `{"version":2,"jobs":[4,4]}`, expected: []int64{4}},
		{name: "legacy null", input: `null`, invalid: true},
		{name: "legacy zero", input: `0`, invalid: true},
		{name: "legacy job", input: `17`, invalid: true},
		{name: "wrong version", input: `{"version":1,"jobs":[1]}`, invalid: true},
		{name: "unknown field", input: `{"version":2,"jobs":[1],"owner":"x"}`, invalid: true},
		{name: "empty", input: ``, invalid: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jobs, err := decodeRecord([]byte(tt.input))
			if tt.invalid {
				if !errors.Is(err, ErrInvalidRecord) {
					t.Errorf("expected ErrInvalidRecord, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("decodeRecord failed: %v", err)
			}
			if !jobs.Equal(NewJobSet(tt.expected...)) {
				t.Errorf("got %v, want %v", SortedIDs(jobs), tt.expected)
			}
		})
	}
}

func TestDecodeLegacyRecord(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    []int64
		exists      bool
		shouldError bool
	}{
		{name: "null is uninitialized", input: `null`, exists: false},
		{name: "empty is uninitialized", input: ``, exists: false},
		{name: "zero is unlocked", input: `0`, exists: true},
		{name: "job id", input: `42`, expected: []int64{42}, exists: true},
		{name: "padded job id", input: " 42\n", expected: []int64{42}, exists: true},
		{name: "negative", input: `-3`, shouldError: true},
		{name: "fraction", input: `1.5`, shouldError: true},
		{name: "garbage", input: `locked`, shouldError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jobs, exists, err := decodeLegacyRecord([]byte(tt.input))
			if tt.shouldError {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("decodeLegacyRecord failed: %v", err)
			}
			if exists != tt.exists {
				t.Errorf("exists = %v, want %v", exists, tt.exists)
			}
			if !jobs.Equal(NewJobSet(tt.expected...)) {
				t.Errorf("got %v, want %v", SortedIDs(jobs), tt.expected)
			}
		})
	}
}
