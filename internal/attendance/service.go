package attendance

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"classpass/internal/geo"
)

// DefaultWatchInterval is how often Watch re-reads a session's records.
const DefaultWatchInterval = 2 * time.Second

// CheckInRequest is a student's submission for a session, resolved by code.
type CheckInRequest struct {
	SessionCode  string
	StudentName  string
	StudentID    string
	StudentEmail string
	Location     *geo.Location
}

// CheckInResult is what the check-in UI displays back to the student.
type CheckInResult struct {
	Record    Record     `json:"record"`
	Status    geo.Status `json:"status"`
	Distance  string     `json:"distance,omitempty"` // formatted, from the class location
	ClassName string     `json:"class_name"`
	Session   string     `json:"session_name"`
}

// CodeCache is an optional fast path for resolving shareable session codes,
// hit on every student page load and check-in.
type CodeCache interface {
	CachedSessionID(ctx context.Context, code string) string
	CacheSessionID(ctx context.Context, code, sessionID string)
}

// Service coordinates classes, sessions and attendance records.
type Service struct {
	store Store
	cache CodeCache
	now   func() time.Time
}

// NewService creates a service backed by a store.
func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// WithCodeCache attaches a session-code cache.
func (s *Service) WithCodeCache(cache CodeCache) *Service {
	s.cache = cache
	return s
}

// RegisterTeacher creates a teacher account with a bcrypt password hash.
func (s *Service) RegisterTeacher(ctx context.Context, name, email, password string) (Teacher, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" || email == "" || password == "" {
		return Teacher{}, errors.New("name, email and password required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return Teacher{}, err
	}
	t := Teacher{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		PasswordHash: string(hash),
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.CreateTeacher(ctx, t); err != nil {
		return Teacher{}, err
	}
	return t, nil
}

// Login checks credentials and returns the teacher.
func (s *Service) Login(ctx context.Context, email, password string) (Teacher, error) {
	t, err := s.store.TeacherByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return Teacher{}, err
	}
	if t == nil {
		return Teacher{}, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(t.PasswordHash), []byte(password)) != nil {
		return Teacher{}, ErrInvalidCredentials
	}
	return *t, nil
}

// CreateClass registers a class for a teacher. Location and geofence are
// both optional and independent: the location is for distance display, the
// geofence bounds check-ins.
func (s *Service) CreateClass(ctx context.Context, teacherID, name, description string, loc *geo.Location, fence *geo.Geofence) (Class, error) {
	name = strings.TrimSpace(name)
	if teacherID == "" || name == "" {
		return Class{}, errors.New("teacher id and class name required")
	}
	c := Class{
		ID:          uuid.NewString(),
		TeacherID:   teacherID,
		Name:        name,
		Code:        NewClassCode(),
		Description: strings.TrimSpace(description),
		Location:    loc,
		Geofence:    fence,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.store.CreateClass(ctx, c); err != nil {
		return Class{}, err
	}
	return c, nil
}

// Classes lists a teacher's classes.
func (s *Service) Classes(ctx context.Context, teacherID string) ([]Class, error) {
	return s.store.ListClasses(ctx, teacherID)
}

// ClassForTeacher loads a class and verifies ownership.
func (s *Service) ClassForTeacher(ctx context.Context, teacherID, classID string) (*Class, error) {
	c, err := s.store.ClassByID(ctx, classID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrClassNotFound
	}
	if c.TeacherID != teacherID {
		return nil, ErrNotOwner
	}
	return c, nil
}

// SetClassLocation updates a class's reference location and geofence,
// typically both from one GPS capture.
func (s *Service) SetClassLocation(ctx context.Context, teacherID, classID string, loc *geo.Location, fence *geo.Geofence) error {
	if _, err := s.ClassForTeacher(ctx, teacherID, classID); err != nil {
		return err
	}
	return s.store.UpdateClassLocation(ctx, classID, loc, fence)
}

// DeleteClass removes a class.
func (s *Service) DeleteClass(ctx context.Context, teacherID, classID string) error {
	if _, err := s.ClassForTeacher(ctx, teacherID, classID); err != nil {
		return err
	}
	return s.store.DeleteClass(ctx, classID)
}

// CreateSession opens an attendance session under a class with a fresh
// shareable code.
func (s *Service) CreateSession(ctx context.Context, teacherID, classID, name string) (Session, error) {
	if _, err := s.ClassForTeacher(ctx, teacherID, classID); err != nil {
		return Session{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Session{}, errors.New("session name required")
	}
	now := s.now().UTC()
	sess := Session{
		ID:          uuid.NewString(),
		ClassID:     classID,
		TeacherID:   teacherID,
		SessionCode: NewSessionCode(),
		Name:        name,
		StartTime:   now,
		IsActive:    true,
		CreatedAt:   now,
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return Session{}, err
	}
	return sess, nil
}

// Sessions lists a class's sessions.
func (s *Service) Sessions(ctx context.Context, teacherID, classID string) ([]Session, error) {
	if _, err := s.ClassForTeacher(ctx, teacherID, classID); err != nil {
		return nil, err
	}
	return s.store.ListSessions(ctx, classID)
}

// SessionForTeacher loads a session and verifies ownership.
func (s *Service) SessionForTeacher(ctx context.Context, teacherID, sessionID string) (*Session, error) {
	sess, err := s.store.SessionByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrSessionNotFound
	}
	if sess.TeacherID != teacherID {
		return nil, ErrNotOwner
	}
	return sess, nil
}

// EndSession closes a session. The transition is terminal: end time is set
// once and an already-ended session cannot be ended again.
func (s *Service) EndSession(ctx context.Context, teacherID, sessionID string) error {
	if _, err := s.SessionForTeacher(ctx, teacherID, sessionID); err != nil {
		return err
	}
	return s.store.EndSession(ctx, sessionID, s.now().UTC())
}

// ResolveSession looks up an active session by its shareable code and loads
// its class. This is the student-facing entry point.
func (s *Service) ResolveSession(ctx context.Context, code string) (*Session, *Class, error) {
	code = strings.TrimSpace(code)

	var sess *Session
	var err error
	if s.cache != nil {
		if id := s.cache.CachedSessionID(ctx, code); id != "" {
			sess, err = s.store.SessionByID(ctx, id)
			if err != nil {
				return nil, nil, err
			}
		}
	}
	if sess == nil {
		sess, err = s.store.SessionByCode(ctx, code)
		if err != nil {
			return nil, nil, err
		}
		if sess != nil && s.cache != nil {
			s.cache.CacheSessionID(ctx, code, sess.ID)
		}
	}
	if sess == nil {
		return nil, nil, ErrSessionNotFound
	}
	if !sess.IsActive {
		return nil, nil, ErrSessionInactive
	}
	cls, err := s.store.ClassByID(ctx, sess.ClassID)
	if err != nil {
		return nil, nil, err
	}
	if cls == nil {
		return nil, nil, ErrClassNotFound
	}
	return sess, cls, nil
}

// CheckIn records a student's attendance. The submitted position is
// classified against the class geofence and the distance from the class's
// reference location is computed once, at write time. The store rejects a
// second record for the same student.
func (s *Service) CheckIn(ctx context.Context, req CheckInRequest) (CheckInResult, error) {
	sess, cls, err := s.ResolveSession(ctx, req.SessionCode)
	if err != nil {
		return CheckInResult{}, err
	}

	name := strings.TrimSpace(req.StudentName)
	studentID := strings.TrimSpace(req.StudentID)
	if name == "" || studentID == "" {
		return CheckInResult{}, errors.New("student name and student id required")
	}

	// A class with a geofence only accepts positioned check-ins; omitting
	// the location is not a way around the fence.
	if req.Location == nil && cls.Geofence != nil {
		return CheckInResult{}, ErrLocationRequired
	}

	status := geo.StatusInside
	var distance *float64
	if req.Location != nil {
		status = geo.Classify(req.Location.Latitude, req.Location.Longitude, cls.Geofence)
		if cls.Location != nil {
			d := geo.Distance(req.Location.Latitude, req.Location.Longitude,
				cls.Location.Latitude, cls.Location.Longitude)
			distance = &d
		}
	}

	now := s.now().UTC()
	rec := Record{
		ID:                uuid.NewString(),
		SessionID:         sess.ID,
		StudentName:       name,
		StudentID:         studentID,
		StudentEmail:      strings.TrimSpace(req.StudentEmail),
		AttendedAt:        now,
		Location:          req.Location,
		DistanceFromClass: distance,
		GeofenceStatus:    status,
		CreatedAt:         now,
	}
	if err := s.store.SaveRecord(ctx, rec); err != nil {
		return CheckInResult{}, err
	}

	result := CheckInResult{
		Record:    rec,
		Status:    status,
		ClassName: cls.Name,
		Session:   sess.Name,
	}
	if distance != nil {
		result.Distance = geo.FormatDistance(*distance)
	}
	return result, nil
}

// Records returns a session's records, newest first. The ordering is a view
// concern applied here, not a store guarantee.
func (s *Service) Records(ctx context.Context, teacherID, sessionID string) ([]Record, error) {
	if _, err := s.SessionForTeacher(ctx, teacherID, sessionID); err != nil {
		return nil, err
	}
	records, err := s.store.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].AttendedAt.After(records[j].AttendedAt)
	})
	return records, nil
}

// UploadRoster replaces a session's roster wholesale.
func (s *Service) UploadRoster(ctx context.Context, teacherID, sessionID string, students []StudentInfo) error {
	if _, err := s.SessionForTeacher(ctx, teacherID, sessionID); err != nil {
		return err
	}
	return s.store.ReplaceRoster(ctx, sessionID, students)
}

// Absentees computes the roster entries with no attendance record, matching
// student ids with the normalized comparison rule.
func (s *Service) Absentees(ctx context.Context, teacherID, sessionID string) ([]StudentInfo, error) {
	sess, err := s.SessionForTeacher(ctx, teacherID, sessionID)
	if err != nil {
		return nil, err
	}
	records, err := s.store.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	attended := make(map[string]bool, len(records))
	for _, rec := range records {
		attended[NormalizeStudentID(rec.StudentID)] = true
	}
	absent := []StudentInfo{}
	for _, st := range sess.Students {
		if !attended[NormalizeStudentID(st.StudentID)] {
			absent = append(absent, st)
		}
	}
	return absent, nil
}

// Watch re-reads a session's records on a fixed interval and pushes each
// snapshot to the returned channel. The loop is cooperative: it stops and
// closes the channel when ctx is cancelled.
func (s *Service) Watch(ctx context.Context, sessionID string, interval time.Duration) <-chan []Record {
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	out := make(chan []Record, 1)
	go func() {
		defer close(out)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			records, err := s.store.ListBySession(ctx, sessionID)
			if err == nil {
				sort.Slice(records, func(i, j int) bool {
					return records[i].AttendedAt.After(records[j].AttendedAt)
				})
				select {
				case out <- records:
				case <-ctx.Done():
					return
				}
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
