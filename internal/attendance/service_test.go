package attendance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"classpass/internal/geo"
)

// latDegreeMeters is the north-south ground distance of one degree of
// latitude under the great-circle model.
const latDegreeMeters = 6371000 * 3.141592653589793 / 180

func newTestService(t *testing.T) *Service {
	t.Helper()
	return NewService(NewMemStore())
}

func seedSession(t *testing.T, svc *Service, fence *geo.Geofence, loc *geo.Location) (Teacher, Class, Session) {
	t.Helper()
	ctx := context.Background()
	teacher, err := svc.RegisterTeacher(ctx, "Ms. Chen", "chen@example.edu", "hunter22")
	require.NoError(t, err)
	cls, err := svc.CreateClass(ctx, teacher.ID, "Distributed Systems", "CS-401", loc, fence)
	require.NoError(t, err)
	sess, err := svc.CreateSession(ctx, teacher.ID, cls.ID, "Week 3 Lecture")
	require.NoError(t, err)
	return teacher, cls, sess
}

func TestRegisterAndLogin(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	teacher, err := svc.RegisterTeacher(ctx, "Ms. Chen", "Chen@Example.edu ", "hunter22")
	require.NoError(t, err)
	require.Equal(t, "chen@example.edu", teacher.Email)
	require.NotEqual(t, "hunter22", teacher.PasswordHash)

	_, err = svc.RegisterTeacher(ctx, "Other", "chen@example.edu", "pw")
	require.ErrorIs(t, err, ErrEmailTaken)

	got, err := svc.Login(ctx, "chen@example.edu", "hunter22")
	require.NoError(t, err)
	require.Equal(t, teacher.ID, got.ID)

	_, err = svc.Login(ctx, "chen@example.edu", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(ctx, "nobody@example.edu", "hunter22")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestCheckInScenario(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	center := geo.Location{Latitude: 10.0, Longitude: 106.0, Accuracy: 5}
	fence := &geo.Geofence{Latitude: 10.0, Longitude: 106.0, RadiusMeters: 100}
	_, _, sess := seedSession(t, svc, fence, &center)

	// At the center: inside, distance zero.
	res, err := svc.CheckIn(ctx, CheckInRequest{
		SessionCode:  sess.SessionCode,
		StudentName:  "Alice Ngo",
		StudentID:    "S001",
		StudentEmail: "alice@example.edu",
		Location:     &geo.Location{Latitude: 10.0, Longitude: 106.0, Accuracy: 8},
	})
	require.NoError(t, err)
	require.Equal(t, geo.StatusInside, res.Status)
	require.NotNil(t, res.Record.DistanceFromClass)
	require.Equal(t, 0.0, *res.Record.DistanceFromClass)
	require.Equal(t, "0m", res.Distance)

	// Same student again: rejected, first record retained.
	_, err = svc.CheckIn(ctx, CheckInRequest{
		SessionCode: sess.SessionCode,
		StudentName: "Alice Ngo",
		StudentID:   "S001",
		Location:    &geo.Location{Latitude: 10.0, Longitude: 106.0},
	})
	require.ErrorIs(t, err, ErrDuplicateAttendance)

	// ~150m north of the fence: outside.
	res, err = svc.CheckIn(ctx, CheckInRequest{
		SessionCode: sess.SessionCode,
		StudentName: "Bob Tran",
		StudentID:   "S002",
		Location:    &geo.Location{Latitude: 10.0 + 150/latDegreeMeters, Longitude: 106.0},
	})
	require.NoError(t, err)
	require.Equal(t, geo.StatusOutside, res.Status)
}

func TestCheckInDuplicateNormalized(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	_, _, sess := seedSession(t, svc, nil, nil)

	_, err := svc.CheckIn(ctx, CheckInRequest{
		SessionCode: sess.SessionCode, StudentName: "Alice", StudentID: "S001",
	})
	require.NoError(t, err)

	// Trimmed, case-folded id must hit the same slot.
	_, err = svc.CheckIn(ctx, CheckInRequest{
		SessionCode: sess.SessionCode, StudentName: "Alice Again", StudentID: "  s001 ",
	})
	require.ErrorIs(t, err, ErrDuplicateAttendance)
}

func TestCheckInLocationRequired(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	fence := &geo.Geofence{Latitude: 52.52, Longitude: 13.405, RadiusMeters: 100}
	_, _, sess := seedSession(t, svc, fence, nil)

	_, err := svc.CheckIn(ctx, CheckInRequest{
		SessionCode: sess.SessionCode,
		StudentName: "Alice",
		StudentID:   "S001",
	})
	require.ErrorIs(t, err, ErrLocationRequired)

	// Nothing was recorded, so a positioned retry goes through.
	res, err := svc.CheckIn(ctx, CheckInRequest{
		SessionCode: sess.SessionCode,
		StudentName: "Alice",
		StudentID:   "S001",
		Location:    &geo.Location{Latitude: 52.52, Longitude: 13.405},
	})
	require.NoError(t, err)
	require.Equal(t, geo.StatusInside, res.Status)
}

func TestCheckInNoGeofence(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	_, _, sess := seedSession(t, svc, nil, nil)

	res, err := svc.CheckIn(ctx, CheckInRequest{
		SessionCode: sess.SessionCode,
		StudentName: "Alice",
		StudentID:   "S001",
		Location:    &geo.Location{Latitude: 52.52, Longitude: 13.405},
	})
	require.NoError(t, err)
	require.Equal(t, geo.StatusInside, res.Status)
	require.Nil(t, res.Record.DistanceFromClass)

	// Without a fence a location is not required either.
	res, err = svc.CheckIn(ctx, CheckInRequest{
		SessionCode: sess.SessionCode,
		StudentName: "Bob",
		StudentID:   "S002",
	})
	require.NoError(t, err)
	require.Equal(t, geo.StatusInside, res.Status)
}

func TestCheckInSessionErrors(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	teacher, _, sess := seedSession(t, svc, nil, nil)

	_, err := svc.CheckIn(ctx, CheckInRequest{
		SessionCode: "no-such-code", StudentName: "Alice", StudentID: "S001",
	})
	require.ErrorIs(t, err, ErrSessionNotFound)

	require.NoError(t, svc.EndSession(ctx, teacher.ID, sess.ID))
	_, err = svc.CheckIn(ctx, CheckInRequest{
		SessionCode: sess.SessionCode, StudentName: "Alice", StudentID: "S001",
	})
	require.ErrorIs(t, err, ErrSessionInactive)
}

func TestEndSessionTerminal(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	teacher, _, sess := seedSession(t, svc, nil, nil)

	require.NoError(t, svc.EndSession(ctx, teacher.ID, sess.ID))

	ended, err := svc.SessionForTeacher(ctx, teacher.ID, sess.ID)
	require.NoError(t, err)
	require.False(t, ended.IsActive)
	require.NotNil(t, ended.EndTime)

	err = svc.EndSession(ctx, teacher.ID, sess.ID)
	require.ErrorIs(t, err, ErrSessionInactive)
}

func TestAbsentees(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	teacher, _, sess := seedSession(t, svc, nil, nil)

	roster := []StudentInfo{
		{ID: "1", Name: "Alice", StudentID: "S001"},
		{ID: "2", Name: "Bob", StudentID: "S002"},
		{ID: "3", Name: "Carol", StudentID: "S003"},
	}
	require.NoError(t, svc.UploadRoster(ctx, teacher.ID, sess.ID, roster))

	// Bob checks in with a differently-cased id.
	_, err := svc.CheckIn(ctx, CheckInRequest{
		SessionCode: sess.SessionCode, StudentName: "Bob", StudentID: " s002",
	})
	require.NoError(t, err)

	absent, err := svc.Absentees(ctx, teacher.ID, sess.ID)
	require.NoError(t, err)
	require.Len(t, absent, 2)
	require.Equal(t, "S001", absent[0].StudentID)
	require.Equal(t, "S003", absent[1].StudentID)
}

func TestRecordsNewestFirst(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	teacher, _, sess := seedSession(t, svc, nil, nil)

	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"S001", "S002", "S003"} {
		offset := time.Duration(i) * time.Minute
		svc.now = func() time.Time { return base.Add(offset) }
		_, err := svc.CheckIn(ctx, CheckInRequest{
			SessionCode: sess.SessionCode, StudentName: "Student " + id, StudentID: id,
		})
		require.NoError(t, err)
	}

	records, err := svc.Records(ctx, teacher.ID, sess.ID)
	require.NoError(t, err)
	require.Len(t, records, 3)
	require.Equal(t, "S003", records[0].StudentID)
	require.Equal(t, "S001", records[2].StudentID)
}

func TestOwnershipEnforced(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	_, cls, sess := seedSession(t, svc, nil, nil)

	other, err := svc.RegisterTeacher(ctx, "Mr. Pham", "pham@example.edu", "pw123456")
	require.NoError(t, err)

	_, err = svc.Records(ctx, other.ID, sess.ID)
	require.ErrorIs(t, err, ErrNotOwner)
	err = svc.DeleteClass(ctx, other.ID, cls.ID)
	require.ErrorIs(t, err, ErrNotOwner)
}

func TestWatch(t *testing.T) {
	svc := newTestService(t)
	_, _, sess := seedSession(t, svc, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	updates := svc.Watch(ctx, sess.ID, 10*time.Millisecond)

	first := <-updates
	require.Empty(t, first)

	_, err := svc.CheckIn(context.Background(), CheckInRequest{
		SessionCode: sess.SessionCode, StudentName: "Alice", StudentID: "S001",
	})
	require.NoError(t, err)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case snapshot := <-updates:
			if len(snapshot) == 1 {
				cancel()
				// Channel must close after cancellation.
				for {
					if _, ok := <-updates; !ok {
						return
					}
				}
			}
		case <-deadline:
			t.Fatal("watch never observed the new record")
		}
	}
}

type fakeCache struct {
	entries map[string]string
	hits    int
}

func (f *fakeCache) CachedSessionID(_ context.Context, code string) string {
	if id, ok := f.entries[code]; ok {
		f.hits++
		return id
	}
	return ""
}

func (f *fakeCache) CacheSessionID(_ context.Context, code, sessionID string) {
	f.entries[code] = sessionID
}

func TestResolveSessionUsesCache(t *testing.T) {
	svc := newTestService(t)
	cache := &fakeCache{entries: map[string]string{}}
	svc.WithCodeCache(cache)
	_, _, sess := seedSession(t, svc, nil, nil)
	ctx := context.Background()

	got, _, err := svc.ResolveSession(ctx, sess.SessionCode)
	require.NoError(t, err)
	require.Equal(t, sess.ID, got.ID)
	require.Equal(t, 0, cache.hits)

	got, _, err = svc.ResolveSession(ctx, sess.SessionCode)
	require.NoError(t, err)
	require.Equal(t, sess.ID, got.ID)
	require.Equal(t, 1, cache.hits)
}
