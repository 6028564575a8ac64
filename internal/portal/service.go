// Package portal holds the school portal's entities and the service that
// applies role scoping and validation on top of a Repository.
package portal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"eduface/internal/logging"
)

// Service coordinates users, routines, attendance and results.
type Service struct {
	repo     Repository
	hasher   PasswordHasher
	subjects []string
	now      func() time.Time
}

// NewService creates a service backed by repo. subjects is the declared list
// of attendance subjects used to canonicalize subject names.
func NewService(repo Repository, hasher PasswordHasher, subjects []string) *Service {
	return &Service{repo: repo, hasher: hasher, subjects: subjects, now: time.Now}
}

// Registration is a self-service sign-up request.
type Registration struct {
	FullName  string
	Email     string
	StudentID string
	Phone     string
	Section   string
	Password  string
}

// Register creates a student account. Email and student ID must be unused.
func (s *Service) Register(ctx context.Context, in Registration) (User, error) {
	in.Email = strings.TrimSpace(in.Email)
	in.StudentID = strings.TrimSpace(in.StudentID)
	if in.Email == "" || in.StudentID == "" || in.Password == "" || strings.TrimSpace(in.FullName) == "" {
		return User{}, fmt.Errorf("%w: full name, email, student id and password are required", ErrInvalid)
	}

	if _, err := s.repo.FindUserByEmail(ctx, in.Email); err == nil {
		return User{}, fmt.Errorf("%w: email already registered", ErrConflict)
	} else if !errors.Is(err, ErrNotFound) {
		return User{}, err
	}
	if _, err := s.repo.FindUserByStudentID(ctx, in.StudentID); err == nil {
		return User{}, fmt.Errorf("%w: student id already registered", ErrConflict)
	} else if !errors.Is(err, ErrNotFound) {
		return User{}, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	return s.repo.AddUser(ctx, User{
		FullName:     strings.TrimSpace(in.FullName),
		Email:        in.Email,
		PasswordHash: hash,
		StudentID:    in.StudentID,
		Phone:        strings.TrimSpace(in.Phone),
		Role:         RoleStudent,
		Section:      strings.TrimSpace(in.Section),
		IsActive:     true,
	})
}

// CreateAdmin adds an admin account, or reports ErrConflict when the email
// is taken.
func (s *Service) CreateAdmin(ctx context.Context, fullName, email, password string) (User, error) {
	if _, err := s.repo.FindUserByEmail(ctx, email); err == nil {
		return User{}, fmt.Errorf("%w: email already registered", ErrConflict)
	} else if !errors.Is(err, ErrNotFound) {
		return User{}, err
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	return s.repo.AddUser(ctx, User{
		FullName:     fullName,
		Email:        email,
		PasswordHash: hash,
		Role:         RoleAdmin,
		IsActive:     true,
	})
}

// Authenticate checks credentials. A non-empty role must match the
// account's role.
func (s *Service) Authenticate(ctx context.Context, email, password, role string) (User, error) {
	u, err := s.repo.FindUserByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, err
	}
	if !s.hasher.Verify(u.PasswordHash, password) {
		return User{}, ErrInvalidCredentials
	}
	if !u.IsActive {
		return User{}, ErrInactive
	}
	if role != "" {
		want, err := ParseRole(role)
		if err != nil || want != u.Role {
			return User{}, fmt.Errorf("%w: account is not a %s account", ErrForbidden, role)
		}
	}
	s.upgradeHash(ctx, u, password)
	return u, nil
}

// upgradeHash replaces a legacy password hash after a successful login.
// Failures are logged and otherwise ignored.
func (s *Service) upgradeHash(ctx context.Context, u User, password string) {
	r, ok := s.hasher.(interface{ NeedsRehash(string) bool })
	if !ok || !r.NeedsRehash(u.PasswordHash) {
		return
	}
	hash, err := s.hasher.Hash(password)
	if err == nil {
		u.PasswordHash = hash
		_, err = s.repo.UpdateUser(ctx, u)
	}
	if err != nil {
		logging.FromContext(ctx).Warn("password rehash failed", "user_id", u.ID, "error", err)
	}
}

// Users lists every account. Admin only.
func (s *Service) Users(ctx context.Context, who Identity) ([]User, error) {
	if !who.IsAdmin() {
		return nil, ErrForbidden
	}
	return s.repo.ListUsers(ctx)
}

// User returns one account to its owner or an admin.
func (s *Service) User(ctx context.Context, who Identity, id int) (User, error) {
	if !who.IsAdmin() && who.UserID != id {
		return User{}, ErrForbidden
	}
	return s.repo.FindUserByID(ctx, id)
}

// ProfileUpdate holds the fields to change; nil leaves a field as is.
// Role and IsActive are admin only.
type ProfileUpdate struct {
	FullName *string
	Phone    *string
	Section  *string
	Role     *Role
	IsActive *bool
}

func (s *Service) UpdateProfile(ctx context.Context, who Identity, id int, in ProfileUpdate) (User, error) {
	if !who.IsAdmin() && who.UserID != id {
		return User{}, ErrForbidden
	}
	if !who.IsAdmin() && (in.Role != nil || in.IsActive != nil) {
		return User{}, fmt.Errorf("%w: only admins can change role or status", ErrForbidden)
	}
	u, err := s.repo.FindUserByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	if in.FullName != nil {
		name := strings.TrimSpace(*in.FullName)
		if name == "" {
			return User{}, fmt.Errorf("%w: full name cannot be empty", ErrInvalid)
		}
		u.FullName = name
	}
	if in.Phone != nil {
		u.Phone = strings.TrimSpace(*in.Phone)
	}
	if in.Section != nil {
		u.Section = strings.TrimSpace(*in.Section)
	}
	if in.Role != nil {
		u.Role = *in.Role
	}
	if in.IsActive != nil {
		u.IsActive = *in.IsActive
	}
	return s.repo.UpdateUser(ctx, u)
}

// ResetPassword replaces the password of the account with email.
func (s *Service) ResetPassword(ctx context.Context, email, password string) error {
	if len(password) < 6 {
		return fmt.Errorf("%w: password must be at least 6 characters", ErrInvalid)
	}
	u, err := s.repo.FindUserByEmail(ctx, email)
	if err != nil {
		return err
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	u.PasswordHash = hash
	_, err = s.repo.UpdateUser(ctx, u)
	return err
}

// Routines lists the schedule. day filters case-insensitively; ownerID > 0
// keeps only routines created by that user.
func (s *Service) Routines(ctx context.Context, day string, ownerID int) ([]Routine, error) {
	var (
		all []Routine
		err error
	)
	if ownerID > 0 {
		all, err = s.repo.RoutinesByOwner(ctx, ownerID)
	} else {
		all, err = s.repo.ListRoutines(ctx)
	}
	if err != nil || day == "" {
		return all, err
	}
	out := make([]Routine, 0, len(all))
	for _, r := range all {
		if strings.EqualFold(strings.TrimSpace(r.Day), strings.TrimSpace(day)) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Service) Routine(ctx context.Context, id int) (Routine, error) {
	all, err := s.repo.ListRoutines(ctx)
	if err != nil {
		return Routine{}, err
	}
	for _, r := range all {
		if r.ID == id {
			return r, nil
		}
	}
	return Routine{}, fmt.Errorf("routine %d: %w", id, ErrNotFound)
}

// CreateRoutine adds a class slot owned by the calling admin.
func (s *Service) CreateRoutine(ctx context.Context, who Identity, r Routine) (Routine, error) {
	if !who.IsAdmin() {
		return Routine{}, ErrForbidden
	}
	day, err := ParseDay(r.Day)
	if err != nil {
		return Routine{}, err
	}
	r.Day = day
	r.Subject = strings.TrimSpace(r.Subject)
	if r.Subject == "" || r.StartTime == "" || r.EndTime == "" {
		return Routine{}, fmt.Errorf("%w: subject, start time and end time are required", ErrInvalid)
	}
	if r.StartTime >= r.EndTime {
		return Routine{}, fmt.Errorf("%w: start time must be before end time", ErrInvalid)
	}
	if r.UserID == 0 {
		r.UserID = who.UserID
	}
	return s.repo.AddRoutine(ctx, r)
}

func (s *Service) DeleteRoutine(ctx context.Context, who Identity, id int) error {
	if !who.IsAdmin() {
		return ErrForbidden
	}
	return s.repo.DeleteRoutine(ctx, id)
}

// Attendance returns marks visible to who. Admins see every row, students
// only their own. A non-empty subject filters case-insensitively.
func (s *Service) Attendance(ctx context.Context, who Identity, subject string) ([]Attendance, error) {
	subject = strings.TrimSpace(subject)
	if who.IsAdmin() {
		if subject != "" {
			return s.repo.AttendanceBySubject(ctx, s.canonicalSubject(subject))
		}
		return s.repo.ListAttendance(ctx)
	}

	rows, err := s.repo.UserAttendance(ctx, who.UserID)
	if err != nil || subject == "" {
		return rows, err
	}
	out := make([]Attendance, 0, len(rows))
	for _, a := range rows {
		if strings.EqualFold(a.Subject, subject) {
			out = append(out, a)
		}
	}
	return out, nil
}

// Mark is an attendance entry as submitted by an admin. The student is
// named by UserID, StudentID or both; Date defaults to today.
type Mark struct {
	UserID    int
	StudentID string
	Subject   string
	Status    string
	Date      string
}

type destination struct {
	name   string
	legacy bool
}

// PrepareMarks validates marks and resolves them into storable rows. Every
// student must exist and every subject must have somewhere to be written,
// so a prepared batch fails only on store errors. Admin only.
func (s *Service) PrepareMarks(ctx context.Context, who Identity, marks []Mark) ([]Attendance, error) {
	if !who.IsAdmin() {
		return nil, ErrForbidden
	}
	if len(marks) == 0 {
		return nil, fmt.Errorf("%w: no attendance marks", ErrInvalid)
	}
	dests := map[string]destination{}
	out := make([]Attendance, 0, len(marks))
	for i, m := range marks {
		a, err := s.prepare(ctx, m, dests)
		if err != nil {
			return nil, fmt.Errorf("mark %d: %w", i, err)
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *Service) prepare(ctx context.Context, m Mark, dests map[string]destination) (Attendance, error) {
	status, err := ParseStatus(m.Status)
	if err != nil {
		return Attendance{}, err
	}
	subject := s.canonicalSubject(strings.TrimSpace(m.Subject))
	if subject == "" {
		return Attendance{}, fmt.Errorf("%w: subject is required", ErrInvalid)
	}
	date := strings.TrimSpace(m.Date)
	if date == "" {
		date = s.now().Format(DateLayout)
	} else if _, err := time.Parse(DateLayout, date); err != nil {
		return Attendance{}, fmt.Errorf("%w: date %q is not YYYY-MM-DD", ErrInvalid, m.Date)
	}

	key := strings.ToLower(subject)
	dest, ok := dests[key]
	if !ok {
		name, legacy, err := s.repo.AttendanceTarget(ctx, subject)
		if err != nil {
			return Attendance{}, err
		}
		dest = destination{name: name, legacy: legacy}
		dests[key] = dest
	}

	u, err := s.markedStudent(ctx, m)
	if err != nil {
		return Attendance{}, err
	}
	if !dest.legacy && u.StudentID == "" {
		return Attendance{}, fmt.Errorf("%w: user %d has no student id", ErrInvalid, u.ID)
	}

	return Attendance{
		UserID:    u.ID,
		StudentID: u.StudentID,
		Subject:   dest.name,
		Date:      date,
		Status:    status,
	}, nil
}

// markedStudent looks up the account a mark refers to. When both ids are
// given they must name the same account.
func (s *Service) markedStudent(ctx context.Context, m Mark) (User, error) {
	studentID := strings.TrimSpace(m.StudentID)
	switch {
	case m.UserID > 0:
		u, err := s.repo.FindUserByID(ctx, m.UserID)
		if err != nil {
			return User{}, err
		}
		u.StudentID = strings.TrimSpace(u.StudentID)
		if studentID != "" && studentID != u.StudentID {
			return User{}, fmt.Errorf("%w: student id %s does not belong to user %d", ErrInvalid, studentID, m.UserID)
		}
		return u, nil
	case studentID != "":
		u, err := s.repo.FindUserByStudentID(ctx, studentID)
		if err != nil {
			return User{}, err
		}
		u.StudentID = strings.TrimSpace(u.StudentID)
		return u, nil
	default:
		return User{}, fmt.Errorf("%w: user id or student id is required", ErrInvalid)
	}
}

// MarkAttendance records one mark. Admin only.
func (s *Service) MarkAttendance(ctx context.Context, who Identity, m Mark) (Attendance, error) {
	prepared, err := s.PrepareMarks(ctx, who, []Mark{m})
	if err != nil {
		return Attendance{}, err
	}
	return s.repo.AddAttendance(ctx, prepared[0])
}

// RecordAttendance writes marks already checked by PrepareMarks.
func (s *Service) RecordAttendance(ctx context.Context, marks []Attendance) ([]Attendance, error) {
	return s.repo.AddAttendanceBatch(ctx, marks)
}

// Subjects lists the declared subjects that have an attendance table.
func (s *Service) Subjects(ctx context.Context) ([]string, error) {
	return s.repo.AttendanceSubjects(ctx)
}

// Results returns every result to admins and a student's own otherwise.
func (s *Service) Results(ctx context.Context, who Identity) ([]Result, error) {
	if who.IsAdmin() {
		return s.repo.ListResults(ctx)
	}
	return s.repo.UserResults(ctx, who.UserID)
}

// StudentResults returns one student's results. Admin only.
func (s *Service) StudentResults(ctx context.Context, who Identity, userID int) ([]Result, error) {
	if !who.IsAdmin() {
		return nil, ErrForbidden
	}
	return s.repo.UserResults(ctx, userID)
}

// UploadResult records a result for a student. Admin only.
func (s *Service) UploadResult(ctx context.Context, who Identity, r Result) (Result, error) {
	if !who.IsAdmin() {
		return Result{}, ErrForbidden
	}
	if r.Marks < 0 {
		return Result{}, fmt.Errorf("%w: marks cannot be negative", ErrInvalid)
	}
	grade, err := ParseGrade(r.Grade)
	if err != nil {
		return Result{}, err
	}
	r.Grade = grade
	r.Subject = strings.TrimSpace(r.Subject)
	if r.Subject == "" {
		return Result{}, fmt.Errorf("%w: subject is required", ErrInvalid)
	}
	if r.Date == "" {
		r.Date = s.now().Format(DateLayout)
	} else if _, err := time.Parse(DateLayout, r.Date); err != nil {
		return Result{}, fmt.Errorf("%w: date %q is not YYYY-MM-DD", ErrInvalid, r.Date)
	}
	if _, err := s.repo.FindUserByID(ctx, r.UserID); err != nil {
		return Result{}, err
	}
	r.UploadedBy = who.UserID
	return s.repo.AddResult(ctx, r)
}

func (s *Service) canonicalSubject(name string) string {
	for _, sub := range s.subjects {
		if strings.EqualFold(sub, name) {
			return sub
		}
	}
	return name
}
