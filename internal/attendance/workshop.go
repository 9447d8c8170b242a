package attendance

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"

	"classpass/internal/geo"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// AttendWorkshopRequest is an open registration for a workshop, keyed by its
// shareable code.
type AttendWorkshopRequest struct {
	Code  string
	Name  string
	Email string
	Phone string
}

// CreateWorkshop registers a workshop under a teacher. The code is chosen by
// the teacher and must be unique across all workshops.
func (s *Service) CreateWorkshop(ctx context.Context, teacherID, name, code, description, eventDate string, loc *geo.Location) (Workshop, error) {
	name = strings.TrimSpace(name)
	code = strings.TrimSpace(code)
	if teacherID == "" || name == "" || code == "" {
		return Workshop{}, errors.New("teacher id, workshop name and code required")
	}
	w := Workshop{
		ID:          uuid.NewString(),
		TeacherID:   teacherID,
		Name:        name,
		Code:        code,
		Description: strings.TrimSpace(description),
		EventDate:   strings.TrimSpace(eventDate),
		Location:    loc,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.store.CreateWorkshop(ctx, w); err != nil {
		return Workshop{}, err
	}
	return w, nil
}

// Workshops lists a teacher's workshops.
func (s *Service) Workshops(ctx context.Context, teacherID string) ([]Workshop, error) {
	return s.store.ListWorkshops(ctx, teacherID)
}

// WorkshopForTeacher loads a workshop and verifies ownership.
func (s *Service) WorkshopForTeacher(ctx context.Context, teacherID, workshopID string) (*Workshop, error) {
	w, err := s.store.WorkshopByID(ctx, workshopID)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, ErrWorkshopNotFound
	}
	if w.TeacherID != teacherID {
		return nil, ErrNotOwner
	}
	return w, nil
}

// DeleteWorkshop removes a workshop and its attendants.
func (s *Service) DeleteWorkshop(ctx context.Context, teacherID, workshopID string) error {
	if _, err := s.WorkshopForTeacher(ctx, teacherID, workshopID); err != nil {
		return err
	}
	return s.store.DeleteWorkshop(ctx, workshopID)
}

// ResolveWorkshop looks up a workshop by its shareable code. This is the
// attendant-facing entry point.
func (s *Service) ResolveWorkshop(ctx context.Context, code string) (*Workshop, error) {
	w, err := s.store.WorkshopByCode(ctx, strings.TrimSpace(code))
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, ErrWorkshopNotFound
	}
	return w, nil
}

// AttendWorkshop records one registration. Attendants are identified by
// email; the store rejects a second registration with the same normalized
// email.
func (s *Service) AttendWorkshop(ctx context.Context, req AttendWorkshopRequest) (Attendant, error) {
	w, err := s.ResolveWorkshop(ctx, req.Code)
	if err != nil {
		return Attendant{}, err
	}

	name := strings.TrimSpace(req.Name)
	email := strings.TrimSpace(req.Email)
	phone := strings.TrimSpace(req.Phone)
	if name == "" || email == "" || phone == "" {
		return Attendant{}, errors.New("name, email and phone required")
	}
	if !emailPattern.MatchString(email) {
		return Attendant{}, errors.New("invalid email address")
	}
	if len(phone) < 10 {
		return Attendant{}, errors.New("invalid phone number")
	}

	a := Attendant{
		ID:         uuid.NewString(),
		WorkshopID: w.ID,
		Name:       name,
		Email:      email,
		Phone:      phone,
		AttendedAt: s.now().UTC(),
	}
	if err := s.store.SaveAttendant(ctx, a); err != nil {
		return Attendant{}, err
	}
	return a, nil
}

// Attendants returns a workshop's registrations, newest first.
func (s *Service) Attendants(ctx context.Context, teacherID, workshopID string) ([]Attendant, error) {
	if _, err := s.WorkshopForTeacher(ctx, teacherID, workshopID); err != nil {
		return nil, err
	}
	attendants, err := s.store.ListAttendants(ctx, workshopID)
	if err != nil {
		return nil, err
	}
	sort.Slice(attendants, func(i, j int) bool {
		return attendants[i].AttendedAt.After(attendants[j].AttendedAt)
	})
	return attendants, nil
}
