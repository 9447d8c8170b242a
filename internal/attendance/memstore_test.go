package attendance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemStoreSaveRejectsDuplicate(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()
	now := time.Now().UTC()

	first := Record{ID: "r1", SessionID: "sess-1", StudentID: "S001", StudentName: "Alice", AttendedAt: now}
	require.NoError(t, store.SaveRecord(ctx, first))

	// Different record id, same (session, student): rejected, not upserted.
	second := Record{ID: "r2", SessionID: "sess-1", StudentID: "S001", StudentName: "Impostor", AttendedAt: now.Add(time.Minute)}
	require.ErrorIs(t, store.SaveRecord(ctx, second), ErrDuplicateAttendance)

	records, err := store.ListBySession(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "r1", records[0].ID)
	require.Equal(t, "Alice", records[0].StudentName)
}

func TestMemStoreSavePrecondition(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()
	require.Error(t, store.SaveRecord(ctx, Record{ID: "r1", StudentID: "S001"}))
	require.Error(t, store.SaveRecord(ctx, Record{ID: "r1", SessionID: "sess-1"}))
}

func TestMemStoreListBySessionIsolation(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	require.NoError(t, store.SaveRecord(ctx, Record{ID: "a", SessionID: "sess-1", StudentID: "S001"}))
	require.NoError(t, store.SaveRecord(ctx, Record{ID: "b", SessionID: "sess-2", StudentID: "S001"}))
	require.NoError(t, store.SaveRecord(ctx, Record{ID: "c", SessionID: "sess-2", StudentID: "S002"}))

	records, err := store.ListBySession(ctx, "sess-2")
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, rec := range records {
		require.Equal(t, "sess-2", rec.SessionID)
	}
}

func TestMemStoreExistsForStudent(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()
	require.NoError(t, store.SaveRecord(ctx, Record{ID: "a", SessionID: "sess-1", StudentID: "S001"}))

	tests := []struct {
		sessionID, studentID string
		want                 bool
	}{
		{"sess-1", "S001", true},
		{"sess-1", " s001 ", true},
		{"sess-1", "S002", false},
		{"sess-2", "S001", false},
	}
	for _, tt := range tests {
		got, err := store.ExistsForStudent(ctx, tt.sessionID, tt.studentID)
		require.NoError(t, err)
		require.Equal(t, tt.want, got, "ExistsForStudent(%q, %q)", tt.sessionID, tt.studentID)
	}
}

func TestMemStoreSetAnchor(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()
	require.NoError(t, store.SaveRecord(ctx, Record{ID: "a", SessionID: "sess-1", StudentID: "S001"}))

	require.NoError(t, store.SetAnchor(ctx, "a", "anchored", "0xabc"))
	rec, err := store.RecordByID(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, "anchored", rec.AnchorStatus)
	require.Equal(t, "0xabc", rec.AnchorTx)

	require.ErrorIs(t, store.SetAnchor(ctx, "missing", "anchored", ""), ErrRecordNotFound)
}

func TestNormalizeStudentID(t *testing.T) {
	tests := []struct{ in, want string }{
		{"S001", "s001"},
		{"  S001  ", "s001"},
		{"s001", "s001"},
		{"\tAB-12\n", "ab-12"},
	}
	for _, tt := range tests {
		if got := NormalizeStudentID(tt.in); got != tt.want {
			t.Errorf("NormalizeStudentID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
