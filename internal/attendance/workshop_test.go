package attendance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"classpass/internal/geo"
)

func seedWorkshop(t *testing.T, svc *Service) (Teacher, Workshop) {
	t.Helper()
	ctx := context.Background()
	teacher, err := svc.RegisterTeacher(ctx, "Ms. Chen", "chen@example.edu", "hunter22")
	require.NoError(t, err)
	w, err := svc.CreateWorkshop(ctx, teacher.ID, "Web3 Intro", "W3-2026", "From basics to advanced", "2026-12-19",
		&geo.Location{Latitude: 10.76, Longitude: 106.66})
	require.NoError(t, err)
	return teacher, w
}

func TestWorkshopLifecycle(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	teacher, w := seedWorkshop(t, svc)

	list, err := svc.Workshops(ctx, teacher.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "W3-2026", list[0].Code)

	resolved, err := svc.ResolveWorkshop(ctx, " W3-2026 ")
	require.NoError(t, err)
	require.Equal(t, w.ID, resolved.ID)

	_, err = svc.ResolveWorkshop(ctx, "NOPE")
	require.ErrorIs(t, err, ErrWorkshopNotFound)

	require.NoError(t, svc.DeleteWorkshop(ctx, teacher.ID, w.ID))
	_, err = svc.ResolveWorkshop(ctx, "W3-2026")
	require.ErrorIs(t, err, ErrWorkshopNotFound)
}

func TestWorkshopCodeTaken(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	teacher, _ := seedWorkshop(t, svc)

	_, err := svc.CreateWorkshop(ctx, teacher.ID, "Another Event", "W3-2026", "", "", nil)
	require.ErrorIs(t, err, ErrWorkshopCodeTaken)
}

func TestAttendWorkshop(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	teacher, w := seedWorkshop(t, svc)

	attendant, err := svc.AttendWorkshop(ctx, AttendWorkshopRequest{
		Code: "W3-2026", Name: "Alice", Email: "alice@example.com", Phone: "0901234567",
	})
	require.NoError(t, err)
	require.Equal(t, w.ID, attendant.WorkshopID)

	// Same email after trimming and case folding is a duplicate.
	_, err = svc.AttendWorkshop(ctx, AttendWorkshopRequest{
		Code: "W3-2026", Name: "Alice Again", Email: " Alice@Example.COM ", Phone: "0901234567",
	})
	require.ErrorIs(t, err, ErrDuplicateAttendant)

	attendants, err := svc.Attendants(ctx, teacher.ID, w.ID)
	require.NoError(t, err)
	require.Len(t, attendants, 1)
	require.Equal(t, "Alice", attendants[0].Name)
}

func TestAttendWorkshopValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	seedWorkshop(t, svc)

	cases := []struct {
		name string
		req  AttendWorkshopRequest
	}{
		{"missing fields", AttendWorkshopRequest{Code: "W3-2026", Name: "Alice"}},
		{"bad email", AttendWorkshopRequest{Code: "W3-2026", Name: "Alice", Email: "not-an-email", Phone: "0901234567"}},
		{"short phone", AttendWorkshopRequest{Code: "W3-2026", Name: "Alice", Email: "alice@example.com", Phone: "12345"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.AttendWorkshop(ctx, tc.req)
			require.Error(t, err)
		})
	}
}

func TestAttendantsNewestFirst(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	teacher, w := seedWorkshop(t, svc)

	base := time.Date(2026, 12, 19, 9, 0, 0, 0, time.UTC)
	for i, email := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		at := base.Add(time.Duration(i) * time.Minute)
		svc.now = func() time.Time { return at }
		_, err := svc.AttendWorkshop(ctx, AttendWorkshopRequest{
			Code: "W3-2026", Name: "P", Email: email, Phone: "0901234567",
		})
		require.NoError(t, err)
	}

	attendants, err := svc.Attendants(ctx, teacher.ID, w.ID)
	require.NoError(t, err)
	require.Len(t, attendants, 3)
	require.Equal(t, "c@example.com", attendants[0].Email)
	require.Equal(t, "a@example.com", attendants[2].Email)
}

func TestWorkshopOwnership(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	_, w := seedWorkshop(t, svc)

	other, err := svc.RegisterTeacher(ctx, "Mr. Pham", "pham@example.edu", "pw123456")
	require.NoError(t, err)

	_, err = svc.Attendants(ctx, other.ID, w.ID)
	require.ErrorIs(t, err, ErrNotOwner)
	require.ErrorIs(t, svc.DeleteWorkshop(ctx, other.ID, w.ID), ErrNotOwner)
}
