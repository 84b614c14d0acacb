package storage

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpen(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "subdir", "nested", "audit.db")

	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	if db.Path() != dbPath {
		t.Errorf("Path() = %q, want %q", db.Path(), dbPath)
	}

	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatalf("query journal_mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("journal_mode = %q, want wal", journalMode)
	}

	v, err := db.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestLogDecision_RoundTrip(t *testing.T) {
	db := openTestDB(t)

	d := &Decision{
		ThreadID:    "t-1",
		InterruptID: "int-1",
		Actions:     []string{"dispatch_case"},
		SubmitType:  "accept",
		Outcome:     OutcomeSubmitted,
	}
	require.NoError(t, db.LogDecision(d))
	assert.NotEmpty(t, d.ID)
	assert.False(t, d.CreatedAt.IsZero())

	got, err := db.GetDecision(d.ID)
	require.NoError(t, err)
	assert.Equal(t, "t-1", got.ThreadID)
	assert.Equal(t, []string{"dispatch_case"}, got.Actions)
	assert.Equal(t, OutcomeSubmitted, got.Outcome)
	assert.WithinDuration(t, d.CreatedAt, got.CreatedAt, time.Second)
}

func TestGetDecision_NotFound(t *testing.T) {
	db := openTestDB(t)
	_, err := db.GetDecision("missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestListDecisions_NewestFirst(t *testing.T) {
	db := openTestDB(t)

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for i, outcome := range []Outcome{OutcomeRejected, OutcomeSubmitted, OutcomeResolved} {
		require.NoError(t, db.LogDecision(&Decision{
			Outcome:   outcome,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	all, err := db.ListDecisions(0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, OutcomeResolved, all[0].Outcome)
	assert.Equal(t, OutcomeRejected, all[2].Outcome)
	assert.Empty(t, all[0].Actions)

	limited, err := db.ListDecisions(2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestClose(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	require.NoError(t, db.Close())

	var result int
	assert.Error(t, db.QueryRow("SELECT 1").Scan(&result), "query should fail after close")
}
