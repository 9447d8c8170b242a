package attendance

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"classpass/internal/geo"
)

const pgUniqueViolation = "23505"

// Repository implements Store on Postgres. The duplicate-attendance rule is
// enforced by the unique index on (session_id, student_id_norm), so two
// near-simultaneous submissions can both pass any application-level check and
// still only one insert wins.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) CreateTeacher(ctx context.Context, t Teacher) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO teachers (id, email, name, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, t.ID, t.Email, t.Name, t.PasswordHash, t.CreatedAt)
	if isUniqueViolation(err) {
		return ErrEmailTaken
	}
	return err
}

func (r *Repository) TeacherByEmail(ctx context.Context, email string) (*Teacher, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, email, name, password_hash, created_at
		FROM teachers WHERE email = $1
	`, email)
	var t Teacher
	if err := row.Scan(&t.ID, &t.Email, &t.Name, &t.PasswordHash, &t.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

func (r *Repository) CreateClass(ctx context.Context, c Class) error {
	loc := nullLocation(c.Location)
	fence := nullFence(c.Geofence)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO classes (id, teacher_id, name, code, description,
			loc_lat, loc_lng, loc_accuracy, fence_lat, fence_lng, fence_radius_m, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, c.ID, c.TeacherID, c.Name, c.Code, c.Description,
		loc[0], loc[1], loc[2], fence[0], fence[1], fence[2], c.CreatedAt)
	return err
}

const classColumns = `id, teacher_id, name, code, description,
	loc_lat, loc_lng, loc_accuracy, fence_lat, fence_lng, fence_radius_m, created_at`

func (r *Repository) ClassByID(ctx context.Context, id string) (*Class, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+classColumns+` FROM classes WHERE id = $1`, id)
	c, err := scanClass(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return c, nil
}

func (r *Repository) ListClasses(ctx context.Context, teacherID string) ([]Class, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+classColumns+` FROM classes WHERE teacher_id = $1 ORDER BY created_at
	`, teacherID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Class
	for rows.Next() {
		c, err := scanClass(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (r *Repository) UpdateClassLocation(ctx context.Context, id string, loc *geo.Location, fence *geo.Geofence) error {
	l := nullLocation(loc)
	f := nullFence(fence)
	res, err := r.db.ExecContext(ctx, `
		UPDATE classes
		SET loc_lat = $2, loc_lng = $3, loc_accuracy = $4,
			fence_lat = $5, fence_lng = $6, fence_radius_m = $7
		WHERE id = $1
	`, id, l[0], l[1], l[2], f[0], f[1], f[2])
	if err != nil {
		return err
	}
	return checkAffected(res, ErrClassNotFound)
}

func (r *Repository) DeleteClass(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM classes WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return checkAffected(res, ErrClassNotFound)
}

func (r *Repository) CreateSession(ctx context.Context, s Session) error {
	students, err := json.Marshal(s.Students)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO sessions (id, class_id, teacher_id, session_code, name,
			start_time, end_time, is_active, students, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, s.ID, s.ClassID, s.TeacherID, s.SessionCode, s.Name,
		s.StartTime, s.EndTime, s.IsActive, students, s.CreatedAt)
	return err
}

const sessionColumns = `id, class_id, teacher_id, session_code, name,
	start_time, end_time, is_active, students, created_at`

func (r *Repository) SessionByID(ctx context.Context, id string) (*Session, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	return scanSession(row)
}

func (r *Repository) SessionByCode(ctx context.Context, code string) (*Session, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE session_code = $1`, code)
	return scanSession(row)
}

func (r *Repository) ListSessions(ctx context.Context, classID string) ([]Session, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions WHERE class_id = $1 ORDER BY start_time DESC
	`, classID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Session
	for rows.Next() {
		s, err := scanSessionRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// EndSession is a terminal transition: only an active session can be ended.
func (r *Repository) EndSession(ctx context.Context, id string, endedAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET is_active = FALSE, end_time = $2 WHERE id = $1 AND is_active
	`, id, endedAt)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		existing, err := r.SessionByID(ctx, id)
		if err != nil {
			return err
		}
		if existing == nil {
			return ErrSessionNotFound
		}
		return ErrSessionInactive
	}
	return nil
}

func (r *Repository) ReplaceRoster(ctx context.Context, sessionID string, students []StudentInfo) error {
	data, err := json.Marshal(students)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `UPDATE sessions SET students = $2 WHERE id = $1`, sessionID, data)
	if err != nil {
		return err
	}
	return checkAffected(res, ErrSessionNotFound)
}

func (r *Repository) CreateWorkshop(ctx context.Context, w Workshop) error {
	loc := nullLocation(w.Location)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO workshops (id, teacher_id, name, code, description, event_date,
			loc_lat, loc_lng, loc_accuracy, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, w.ID, w.TeacherID, w.Name, w.Code, w.Description, w.EventDate,
		loc[0], loc[1], loc[2], w.CreatedAt)
	if isUniqueViolation(err) {
		return ErrWorkshopCodeTaken
	}
	return err
}

const workshopColumns = `id, teacher_id, name, code, description, event_date,
	loc_lat, loc_lng, loc_accuracy, created_at`

func (r *Repository) WorkshopByID(ctx context.Context, id string) (*Workshop, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+workshopColumns+` FROM workshops WHERE id = $1`, id)
	return scanWorkshopRow(row)
}

func (r *Repository) WorkshopByCode(ctx context.Context, code string) (*Workshop, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+workshopColumns+` FROM workshops WHERE code = $1`, code)
	return scanWorkshopRow(row)
}

func (r *Repository) ListWorkshops(ctx context.Context, teacherID string) ([]Workshop, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+workshopColumns+` FROM workshops WHERE teacher_id = $1 ORDER BY created_at
	`, teacherID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Workshop
	for rows.Next() {
		w, err := scanWorkshop(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}

func (r *Repository) DeleteWorkshop(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM workshops WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return checkAffected(res, ErrWorkshopNotFound)
}

// SaveAttendant appends a workshop check-in. The unique index rejects a
// second registration for the same (workshop, normalized email) pair.
func (r *Repository) SaveAttendant(ctx context.Context, a Attendant) error {
	if a.WorkshopID == "" || a.Email == "" {
		return errors.New("workshop id and email required")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO workshop_attendants (id, workshop_id, name, email, email_norm, phone, attended_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, a.ID, a.WorkshopID, a.Name, a.Email, NormalizeEmail(a.Email), a.Phone, a.AttendedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateAttendant
	}
	return err
}

func (r *Repository) ListAttendants(ctx context.Context, workshopID string) ([]Attendant, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, workshop_id, name, email, phone, attended_at
		FROM workshop_attendants WHERE workshop_id = $1
	`, workshopID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Attendant
	for rows.Next() {
		var a Attendant
		if err := rows.Scan(&a.ID, &a.WorkshopID, &a.Name, &a.Email, &a.Phone, &a.AttendedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// SaveRecord appends a record. The unique index rejects a second record for
// the same (session, normalized student id) pair.
func (r *Repository) SaveRecord(ctx context.Context, rec Record) error {
	if rec.SessionID == "" || rec.StudentID == "" {
		return errors.New("session id and student id required")
	}
	loc := nullLocation(rec.Location)
	var dist sql.NullFloat64
	if rec.DistanceFromClass != nil {
		dist = sql.NullFloat64{Float64: *rec.DistanceFromClass, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_records (id, session_id, student_name, student_id, student_id_norm,
			student_email, attended_at, lat, lng, accuracy, distance_km, geofence_status,
			anchor_status, anchor_tx, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`, rec.ID, rec.SessionID, rec.StudentName, rec.StudentID, NormalizeStudentID(rec.StudentID),
		rec.StudentEmail, rec.AttendedAt, loc[0], loc[1], loc[2], dist, string(rec.GeofenceStatus),
		rec.AnchorStatus, rec.AnchorTx, rec.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateAttendance
	}
	return err
}

const recordColumns = `id, session_id, student_name, student_id, student_email,
	attended_at, lat, lng, accuracy, distance_km, geofence_status, anchor_status, anchor_tx, created_at`

func (r *Repository) ListBySession(ctx context.Context, sessionID string) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+recordColumns+` FROM attendance_records WHERE session_id = $1
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (r *Repository) ExistsForStudent(ctx context.Context, sessionID, studentID string) (bool, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM attendance_records WHERE session_id = $1 AND student_id_norm = $2
		)
	`, sessionID, NormalizeStudentID(studentID))
	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *Repository) RecordByID(ctx context.Context, id string) (*Record, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM attendance_records WHERE id = $1`, id)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

// SetAnchor records the anchoring outcome. Attendance fields stay untouched.
func (r *Repository) SetAnchor(ctx context.Context, id, status, tx string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE attendance_records SET anchor_status = $2, anchor_tx = $3 WHERE id = $1
	`, id, status, tx)
	if err != nil {
		return err
	}
	return checkAffected(res, ErrRecordNotFound)
}

type scannable interface {
	Scan(dest ...any) error
}

func scanClass(row scannable) (*Class, error) {
	var c Class
	var loc, fence [3]sql.NullFloat64
	if err := row.Scan(&c.ID, &c.TeacherID, &c.Name, &c.Code, &c.Description,
		&loc[0], &loc[1], &loc[2], &fence[0], &fence[1], &fence[2], &c.CreatedAt); err != nil {
		return nil, err
	}
	if loc[0].Valid {
		c.Location = &geo.Location{Latitude: loc[0].Float64, Longitude: loc[1].Float64, Accuracy: loc[2].Float64}
	}
	if fence[0].Valid {
		c.Geofence = &geo.Geofence{Latitude: fence[0].Float64, Longitude: fence[1].Float64, RadiusMeters: fence[2].Float64}
	}
	return &c, nil
}

func scanWorkshop(row scannable) (*Workshop, error) {
	var w Workshop
	var loc [3]sql.NullFloat64
	if err := row.Scan(&w.ID, &w.TeacherID, &w.Name, &w.Code, &w.Description, &w.EventDate,
		&loc[0], &loc[1], &loc[2], &w.CreatedAt); err != nil {
		return nil, err
	}
	if loc[0].Valid {
		w.Location = &geo.Location{Latitude: loc[0].Float64, Longitude: loc[1].Float64, Accuracy: loc[2].Float64}
	}
	return &w, nil
}

func scanWorkshopRow(row *sql.Row) (*Workshop, error) {
	w, err := scanWorkshop(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return w, nil
}

func scanSession(row *sql.Row) (*Session, error) {
	s, err := scanSessionRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

func scanSessionRow(row scannable) (*Session, error) {
	var s Session
	var endTime sql.NullTime
	var students []byte
	if err := row.Scan(&s.ID, &s.ClassID, &s.TeacherID, &s.SessionCode, &s.Name,
		&s.StartTime, &endTime, &s.IsActive, &students, &s.CreatedAt); err != nil {
		return nil, err
	}
	if endTime.Valid {
		t := endTime.Time
		s.EndTime = &t
	}
	if len(students) > 0 {
		if err := json.Unmarshal(students, &s.Students); err != nil {
			return nil, err
		}
	}
	return &s, nil
}

func scanRecord(row scannable) (*Record, error) {
	var rec Record
	var loc [3]sql.NullFloat64
	var dist sql.NullFloat64
	var status string
	if err := row.Scan(&rec.ID, &rec.SessionID, &rec.StudentName, &rec.StudentID, &rec.StudentEmail,
		&rec.AttendedAt, &loc[0], &loc[1], &loc[2], &dist, &status,
		&rec.AnchorStatus, &rec.AnchorTx, &rec.CreatedAt); err != nil {
		return nil, err
	}
	if loc[0].Valid {
		rec.Location = &geo.Location{Latitude: loc[0].Float64, Longitude: loc[1].Float64, Accuracy: loc[2].Float64}
	}
	if dist.Valid {
		d := dist.Float64
		rec.DistanceFromClass = &d
	}
	rec.GeofenceStatus = geo.Status(status)
	return &rec, nil
}

func nullLocation(loc *geo.Location) [3]sql.NullFloat64 {
	if loc == nil {
		return [3]sql.NullFloat64{}
	}
	return [3]sql.NullFloat64{
		{Float64: loc.Latitude, Valid: true},
		{Float64: loc.Longitude, Valid: true},
		{Float64: loc.Accuracy, Valid: true},
	}
}

func nullFence(fence *geo.Geofence) [3]sql.NullFloat64 {
	if fence == nil {
		return [3]sql.NullFloat64{}
	}
	return [3]sql.NullFloat64{
		{Float64: fence.Latitude, Valid: true},
		{Float64: fence.Longitude, Valid: true},
		{Float64: fence.RadiusMeters, Valid: true},
	}
}

func checkAffected(res sql.Result, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return missing
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
