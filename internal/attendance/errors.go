package attendance

import "errors"

// Sentinel errors surfaced to the API boundary. None of these are fatal;
// handlers map them to HTTP statuses and user-facing messages.
var (
	ErrDuplicateAttendance = errors.New("student has already checked in to this session")
	ErrLocationRequired    = errors.New("a GPS position is required to check in to this session")
	ErrSessionNotFound     = errors.New("no session matches that code")
	ErrSessionInactive     = errors.New("this attendance session has ended")
	ErrClassNotFound       = errors.New("class not found")
	ErrRecordNotFound      = errors.New("attendance record not found")
	ErrEmailTaken          = errors.New("email is already registered")
	ErrWorkshopNotFound    = errors.New("no workshop matches that code")
	ErrWorkshopCodeTaken   = errors.New("workshop code is already in use")
	ErrDuplicateAttendant  = errors.New("this email is already registered for the workshop")
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrNotOwner            = errors.New("resource belongs to another teacher")
)
