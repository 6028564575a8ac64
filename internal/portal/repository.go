package portal

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound means the lookup ran and matched nothing.
	ErrNotFound = errors.New("not found")
	// ErrUnknownSubject means no attendance table exists for the subject.
	ErrUnknownSubject = errors.New("unknown subject")
	ErrForbidden      = errors.New("forbidden")
	ErrInactive       = fmt.Errorf("%w: account is inactive", ErrForbidden)
	ErrConflict       = errors.New("conflict")
	ErrInvalid        = errors.New("invalid input")
	// ErrInvalidCredentials covers both unknown email and wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrUnavailable means the backing store failed in a way worth retrying.
	ErrUnavailable = errors.New("store unavailable")
)

// Repository is the entity query layer. The spreadsheet and Postgres
// stores both implement it. Lookups that match nothing return ErrNotFound.
type Repository interface {
	FindUserByEmail(ctx context.Context, email string) (User, error)
	FindUserByID(ctx context.Context, id int) (User, error)
	FindUserByStudentID(ctx context.Context, studentID string) (User, error)
	AddUser(ctx context.Context, u User) (User, error)
	UpdateUser(ctx context.Context, u User) (User, error)
	ListUsers(ctx context.Context) ([]User, error)

	ListRoutines(ctx context.Context) ([]Routine, error)
	RoutinesByOwner(ctx context.Context, userID int) ([]Routine, error)
	AddRoutine(ctx context.Context, r Routine) (Routine, error)
	DeleteRoutine(ctx context.Context, id int) error

	UserAttendance(ctx context.Context, userID int) ([]Attendance, error)
	AttendanceBySubject(ctx context.Context, subject string) ([]Attendance, error)
	ListAttendance(ctx context.Context) ([]Attendance, error)
	AddAttendance(ctx context.Context, a Attendance) (Attendance, error)
	AddAttendanceBatch(ctx context.Context, marks []Attendance) ([]Attendance, error)
	AttendanceSubjects(ctx context.Context) ([]string, error)
	// AttendanceTarget reports the stored spelling of subject and whether
	// its marks go to the legacy unified table. Subjects with nowhere to
	// write return ErrUnknownSubject.
	AttendanceTarget(ctx context.Context, subject string) (name string, legacy bool, err error)

	ListResults(ctx context.Context) ([]Result, error)
	UserResults(ctx context.Context, userID int) ([]Result, error)
	AddResult(ctx context.Context, r Result) (Result, error)
}

// PasswordHasher hashes new passwords and checks stored hashes.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(hash, password string) bool
}
