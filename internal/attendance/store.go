package attendance

import (
	"context"
	"time"

	"classpass/internal/geo"
)

// Store persists the attendance domain. Two implementations exist: the
// Postgres repository for production and a mutex-guarded in-memory store for
// development and tests.
//
// SaveRecord is the one contract implementations must not weaken: at most
// one record per (session, normalized student id), append-only, rejection on
// conflict rather than upsert. In Postgres that is a uniqueness constraint;
// in memory it is a scan under a lock.
type Store interface {
	CreateTeacher(ctx context.Context, t Teacher) error
	TeacherByEmail(ctx context.Context, email string) (*Teacher, error)

	CreateClass(ctx context.Context, c Class) error
	ClassByID(ctx context.Context, id string) (*Class, error)
	ListClasses(ctx context.Context, teacherID string) ([]Class, error)
	UpdateClassLocation(ctx context.Context, id string, loc *geo.Location, fence *geo.Geofence) error
	DeleteClass(ctx context.Context, id string) error

	CreateSession(ctx context.Context, s Session) error
	SessionByID(ctx context.Context, id string) (*Session, error)
	SessionByCode(ctx context.Context, code string) (*Session, error)
	ListSessions(ctx context.Context, classID string) ([]Session, error)
	EndSession(ctx context.Context, id string, endedAt time.Time) error
	ReplaceRoster(ctx context.Context, sessionID string, students []StudentInfo) error

	CreateWorkshop(ctx context.Context, w Workshop) error
	WorkshopByID(ctx context.Context, id string) (*Workshop, error)
	WorkshopByCode(ctx context.Context, code string) (*Workshop, error)
	ListWorkshops(ctx context.Context, teacherID string) ([]Workshop, error)
	DeleteWorkshop(ctx context.Context, id string) error
	SaveAttendant(ctx context.Context, a Attendant) error
	ListAttendants(ctx context.Context, workshopID string) ([]Attendant, error)

	SaveRecord(ctx context.Context, r Record) error
	ListBySession(ctx context.Context, sessionID string) ([]Record, error)
	ExistsForStudent(ctx context.Context, sessionID, studentID string) (bool, error)
	RecordByID(ctx context.Context, id string) (*Record, error)
	SetAnchor(ctx context.Context, id, status, tx string) error
}
