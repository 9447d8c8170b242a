package attendance

import (
	"context"
	"errors"
	"sync"
	"time"

	"classpass/internal/geo"
)

// MemStore is a mutex-guarded in-memory Store used for development and
// tests. Its SaveRecord scans for a conflicting record and then appends;
// serializing every write under one lock keeps that check-then-append
// atomic.
type MemStore struct {
	mu         sync.Mutex
	teachers   map[string]Teacher // keyed by email
	classes    map[string]Class
	sessions   map[string]Session
	workshops  map[string]Workshop
	records    []Record
	attendants []Attendant
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		teachers:  make(map[string]Teacher),
		classes:   make(map[string]Class),
		sessions:  make(map[string]Session),
		workshops: make(map[string]Workshop),
	}
}

func (m *MemStore) CreateTeacher(_ context.Context, t Teacher) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.teachers[t.Email]; ok {
		return ErrEmailTaken
	}
	m.teachers[t.Email] = t
	return nil
}

func (m *MemStore) TeacherByEmail(_ context.Context, email string) (*Teacher, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.teachers[email]; ok {
		return &t, nil
	}
	return nil, nil
}

func (m *MemStore) CreateClass(_ context.Context, c Class) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.classes[c.ID] = c
	return nil
}

func (m *MemStore) ClassByID(_ context.Context, id string) (*Class, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.classes[id]; ok {
		return &c, nil
	}
	return nil, nil
}

func (m *MemStore) ListClasses(_ context.Context, teacherID string) ([]Class, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Class
	for _, c := range m.classes {
		if c.TeacherID == teacherID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *MemStore) UpdateClassLocation(_ context.Context, id string, loc *geo.Location, fence *geo.Geofence) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.classes[id]
	if !ok {
		return ErrClassNotFound
	}
	c.Location = loc
	c.Geofence = fence
	m.classes[id] = c
	return nil
}

func (m *MemStore) DeleteClass(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.classes[id]; !ok {
		return ErrClassNotFound
	}
	delete(m.classes, id)
	return nil
}

func (m *MemStore) CreateSession(_ context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return nil
}

func (m *MemStore) SessionByID(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		return &s, nil
	}
	return nil, nil
}

func (m *MemStore) SessionByCode(_ context.Context, code string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.SessionCode == code {
			return &s, nil
		}
	}
	return nil, nil
}

func (m *MemStore) ListSessions(_ context.Context, classID string) ([]Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Session
	for _, s := range m.sessions {
		if s.ClassID == classID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *MemStore) EndSession(_ context.Context, id string, endedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	if !s.IsActive {
		return ErrSessionInactive
	}
	s.IsActive = false
	s.EndTime = &endedAt
	m.sessions[id] = s
	return nil
}

func (m *MemStore) ReplaceRoster(_ context.Context, sessionID string, students []StudentInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	s.Students = students
	m.sessions[sessionID] = s
	return nil
}

func (m *MemStore) CreateWorkshop(_ context.Context, w Workshop) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.workshops {
		if existing.Code == w.Code {
			return ErrWorkshopCodeTaken
		}
	}
	m.workshops[w.ID] = w
	return nil
}

func (m *MemStore) WorkshopByID(_ context.Context, id string) (*Workshop, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w, ok := m.workshops[id]; ok {
		return &w, nil
	}
	return nil, nil
}

func (m *MemStore) WorkshopByCode(_ context.Context, code string) (*Workshop, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.workshops {
		if w.Code == code {
			return &w, nil
		}
	}
	return nil, nil
}

func (m *MemStore) ListWorkshops(_ context.Context, teacherID string) ([]Workshop, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Workshop
	for _, w := range m.workshops {
		if w.TeacherID == teacherID {
			out = append(out, w)
		}
	}
	return out, nil
}

func (m *MemStore) DeleteWorkshop(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.workshops[id]; !ok {
		return ErrWorkshopNotFound
	}
	delete(m.workshops, id)
	return nil
}

func (m *MemStore) SaveAttendant(_ context.Context, a Attendant) error {
	if a.WorkshopID == "" || a.Email == "" {
		return errors.New("workshop id and email required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	norm := NormalizeEmail(a.Email)
	for _, existing := range m.attendants {
		if existing.WorkshopID == a.WorkshopID && NormalizeEmail(existing.Email) == norm {
			return ErrDuplicateAttendant
		}
	}
	m.attendants = append(m.attendants, a)
	return nil
}

func (m *MemStore) ListAttendants(_ context.Context, workshopID string) ([]Attendant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Attendant
	for _, a := range m.attendants {
		if a.WorkshopID == workshopID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *MemStore) SaveRecord(_ context.Context, rec Record) error {
	if rec.SessionID == "" || rec.StudentID == "" {
		return errors.New("session id and student id required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	norm := NormalizeStudentID(rec.StudentID)
	for _, existing := range m.records {
		if existing.SessionID == rec.SessionID && NormalizeStudentID(existing.StudentID) == norm {
			return ErrDuplicateAttendance
		}
	}
	m.records = append(m.records, rec)
	return nil
}

func (m *MemStore) ListBySession(_ context.Context, sessionID string) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Record
	for _, rec := range m.records {
		if rec.SessionID == sessionID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *MemStore) ExistsForStudent(_ context.Context, sessionID, studentID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	norm := NormalizeStudentID(studentID)
	for _, rec := range m.records {
		if rec.SessionID == sessionID && NormalizeStudentID(rec.StudentID) == norm {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemStore) RecordByID(_ context.Context, id string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.records {
		if rec.ID == id {
			r := rec
			return &r, nil
		}
	}
	return nil, nil
}

func (m *MemStore) SetAnchor(_ context.Context, id, status, tx string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.records {
		if m.records[i].ID == id {
			m.records[i].AnchorStatus = status
			m.records[i].AnchorTx = tx
			return nil
		}
	}
	return ErrRecordNotFound
}
