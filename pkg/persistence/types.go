package persistence

import (
	"errors"
	"fmt"
	"sort"

	"github.com/Layr-Labs/ink-verifier/pkg/types"
	"github.com/google/uuid"
)

var ErrClosed = errors.New("persistence layer is closed")

// ValidateRunID checks that id is a canonical UUID, which keeps it safe to
// embed in storage keys.
func ValidateRunID(id string) error {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("invalid run id %q: %w", id, err)
	}
	if parsed.String() != id {
		return fmt.Errorf("run id %q is not in canonical form", id)
	}
	return nil
}

// SortReports orders reports by start time, then run id.
func SortReports(reports []*types.RunReport) {
	sort.Slice(reports, func(i, j int) bool {
		if !reports[i].StartedAt.Equal(reports[j].StartedAt) {
			return reports[i].StartedAt.Before(reports[j].StartedAt)
		}
		return reports[i].RunID < reports[j].RunID
	})
}
