package persistence

import (
	"encoding/json"
	"fmt"

	"github.com/Layr-Labs/ink-verifier/pkg/types"
)

// MarshalRunReport serializes a RunReport to JSON bytes.
func MarshalRunReport(report *types.RunReport) ([]byte, error) {
	if report == nil {
		return nil, fmt.Errorf("cannot marshal nil RunReport")
	}

	data, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal RunReport to JSON: %w", err)
	}
	return data, nil
}

// UnmarshalRunReport deserializes a RunReport from JSON bytes.
func UnmarshalRunReport(data []byte) (*types.RunReport, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unmarshal empty data")
	}

	var report types.RunReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON to RunReport: %w", err)
	}
	return &report, nil
}

// CloneRunReport returns a deep copy made through the JSON form.
func CloneRunReport(report *types.RunReport) (*types.RunReport, error) {
	data, err := MarshalRunReport(report)
	if err != nil {
		return nil, err
	}
	return UnmarshalRunReport(data)
}
