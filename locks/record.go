package locks

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// recordVersion identifies the set-valued record format. Anything stored under
// a lock key that does not decode as a versioned record is treated as the
// legacy single-job format.
const recordVersion = 2

type record struct {
	Version int     `json:"version"`
	Jobs    []int64 `json:"jobs"`
}

// encodeRecord serializes a job set in the current format with sorted ids.
func encodeRecord(jobs JobSet) ([]byte, error) {
	ids := SortedIDs(jobs)
	if ids == nil {
		ids = []int64{}
	}
	raw, err := json.Marshal(record{Version: recordVersion, Jobs: ids})
	if err != nil {
		return nil, fmt.Errorf("failed to encode lock record: %w", err)
	}
	return raw, nil
}

// decodeRecord parses a record in the current format.
func decodeRecord(raw []byte) (JobSet, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, ErrInvalidRecord
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	var rec record
	if err := dec.Decode(&rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if rec.Version != recordVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidRecord, rec.Version)
	}
	return NewJobSet(rec.Jobs...), nil
}

// decodeLegacyRecord parses the single nullable job id format. null means the
// project was never initialized, 0 means explicitly unlocked, and any other
// value is the one job holding the lock.
func decodeLegacyRecord(raw []byte) (jobs JobSet, exists bool, err error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return NewJobSet(), false, nil
	}

	var jobID *int64
	if err := json.Unmarshal(trimmed, &jobID); err != nil {
		return nil, false, fmt.Errorf("failed to decode legacy lock record: %w", err)
	}

	switch {
	case jobID == nil:
		return NewJobSet(), false, nil
	case *jobID == 0:
		return NewJobSet(), true, nil
	case *jobID < 0:
		return nil, false, fmt.Errorf("failed to decode legacy lock record: negative job id %d", *jobID)
	default:
		return NewJobSet(*jobID), true, nil
	}
}
