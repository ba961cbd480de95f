package testutil

import (
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/changestore/internal/record"
	"github.com/roach88/changestore/internal/schema"
	"github.com/roach88/changestore/internal/storage"
)

// ProjectCollection is the collection used by the project fixtures.
const ProjectCollection = "Project"

// ProjectKey is the key field of ProjectCollection.
const ProjectKey = "ProjectFileNo"

// ProjectSchema declares ProjectCollection.
func ProjectSchema() schema.Descriptor {
	return schema.Descriptor{ProjectCollection: {KeyPath: ProjectKey}}
}

// Projects returns n distinct project records keyed "P-001", "P-002", ...
// Each call returns fresh records.
func Projects(n int) []record.Record {
	out := make([]record.Record, n)
	for i := range out {
		out[i] = Project(fmt.Sprintf("P-%03d", i+1), fmt.Sprintf("Project %d", i+1))
	}
	return out
}

// Project returns one project record.
func Project(fileNo, title string) record.Record {
	return record.Record{
		ProjectKey:  fileNo,
		"Title":     title,
		"Budget":    int64(1000),
		"Milestone": []any{"draft"},
	}
}

// NewEngine creates a SQLite engine in a temp directory, closed when the
// test ends.
func NewEngine(t testing.TB) *storage.SQLite {
	t.Helper()
	e, err := storage.NewSQLite(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

// QuietLogger discards all output.
func QuietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
