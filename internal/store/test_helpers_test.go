package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/dsi-icl/eae-interface/internal/testutil"
)

// createTestStore creates a new store with sequential IDs and a stepping
// clock.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path,
		WithIDGenerator(testutil.NewFixedIDGenerator(testutil.SequentialIDs("query", 20)...)),
		WithClock(testutil.NewStepClock(time.Time{}, time.Second)),
	)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

const testQuery = `{"cohort":[[{"field":"31.0.0","value":"Male","op":"="}]],"data_requested":["102.0.1"],"new_fields":[]}`
