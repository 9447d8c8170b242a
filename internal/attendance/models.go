package attendance

import (
	"math/rand"
	"strconv"
	"strings"
	"time"

	"classpass/internal/geo"
)

// Teacher owns classes and sessions.
type Teacher struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// StudentInfo is one roster entry uploaded by a teacher.
type StudentInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	StudentID string `json:"student_id"`
	Email     string `json:"email"`
}

// Class groups attendance sessions. The geofence bounds where students may
// check in; the plain location is the class's own recorded position and is
// only used for distance display. Both may come from the same GPS capture.
type Class struct {
	ID          string        `json:"id"`
	TeacherID   string        `json:"teacher_id"`
	Name        string        `json:"name"`
	Code        string        `json:"code"`
	Description string        `json:"description"`
	Location    *geo.Location `json:"location,omitempty"`
	Geofence    *geo.Geofence `json:"geofence,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

// Session is one attendance-taking window for a class. Ending a session is a
// terminal transition: EndTime is set once and IsActive never goes back up.
type Session struct {
	ID          string        `json:"id"`
	ClassID     string        `json:"class_id"`
	TeacherID   string        `json:"teacher_id"`
	SessionCode string        `json:"session_code"`
	Name        string        `json:"name"`
	StartTime   time.Time     `json:"start_time"`
	EndTime     *time.Time    `json:"end_time,omitempty"`
	IsActive    bool          `json:"is_active"`
	Students    []StudentInfo `json:"students,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

// Record is one accepted check-in. Attendance fields are permanent audit
// data: never updated, never deleted. Only the anchoring metadata is filled
// in later by the worker.
type Record struct {
	ID                string        `json:"id"`
	SessionID         string        `json:"session_id"`
	StudentName       string        `json:"student_name"`
	StudentID         string        `json:"student_id"`
	StudentEmail      string        `json:"student_email"`
	AttendedAt        time.Time     `json:"attended_at"`
	Location          *geo.Location `json:"location,omitempty"`
	DistanceFromClass *float64      `json:"distance_from_class,omitempty"` // km, computed at write time
	GeofenceStatus    geo.Status    `json:"geofence_status"`
	AnchorStatus      string        `json:"anchor_status,omitempty"`
	AnchorTx          string        `json:"anchor_tx,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
}

// Workshop is a one-off event with open check-in by a teacher-chosen code.
// Unlike sessions it has no roster and no end transition; the teacher
// deletes it when the event is over.
type Workshop struct {
	ID          string        `json:"id"`
	TeacherID   string        `json:"teacher_id"`
	Name        string        `json:"name"`
	Code        string        `json:"code"`
	Description string        `json:"description"`
	EventDate   string        `json:"event_date"`
	Location    *geo.Location `json:"location,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

// Attendant is one workshop check-in. Workshops identify people by email,
// not student id.
type Attendant struct {
	ID         string    `json:"id"`
	WorkshopID string    `json:"workshop_id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Phone      string    `json:"phone"`
	AttendedAt time.Time `json:"attended_at"`
}

// NormalizeEmail is the comparison rule for attendant emails, same shape as
// NormalizeStudentID.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeStudentID is the one comparison rule for student ids: trimmed and
// case-folded. Both the duplicate check and the absentee set-difference use
// it.
func NormalizeStudentID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewSessionCode builds a human-shareable session code: epoch millis plus a
// random base36 suffix.
func NewSessionCode() string {
	return strconv.FormatInt(time.Now().UnixMilli(), 10) + "-" + randBase36(9)
}

// NewClassCode builds a short join code for a class.
func NewClassCode() string {
	return strings.ToUpper(randBase36(6))
}

func randBase36(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = base36[rand.Intn(len(base36))]
	}
	return string(b)
}
