package portal

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Role is a user's access level.
type Role string

const (
	RoleStudent Role = "student"
	RoleAdmin   Role = "admin"
)

// ParseRole accepts any casing; stored roles are lowercase.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "student":
		return RoleStudent, nil
	case "admin":
		return RoleAdmin, nil
	}
	return "", fmt.Errorf("%w: unknown role %q", ErrInvalid, s)
}

// Status is an attendance mark.
type Status string

const (
	Present Status = "Present"
	Absent  Status = "Absent"
	Late    Status = "Late"
)

// ParseStatus accepts any casing and returns the canonical spelling.
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "present":
		return Present, nil
	case "absent":
		return Absent, nil
	case "late":
		return Late, nil
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrInvalid, s)
}

// ParseDay returns the canonical weekday name for s in any casing.
func ParseDay(s string) (string, error) {
	s = strings.TrimSpace(s)
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), s) {
			return d.String(), nil
		}
	}
	return "", fmt.Errorf("%w: unknown day %q", ErrInvalid, s)
}

var gradePattern = regexp.MustCompile(`^[A-Za-z][+-]?$`)

// ParseGrade checks that s is a short letter grade such as A, B+ or F.
func ParseGrade(s string) (string, error) {
	s = strings.TrimSpace(s)
	if !gradePattern.MatchString(s) {
		return "", fmt.Errorf("%w: grade %q is not a letter grade", ErrInvalid, s)
	}
	return strings.ToUpper(s), nil
}

// DateLayout is the on-sheet format of attendance and result dates.
const DateLayout = "2006-01-02"

type User struct {
	ID           int       `json:"id"`
	FullName     string    `json:"full_name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	StudentID    string    `json:"student_id"`
	Phone        string    `json:"phone"`
	Role         Role      `json:"role"`
	Section      string    `json:"section"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

// Routine is one class slot in the weekly schedule. UserID is the admin
// who created it.
type Routine struct {
	ID             int       `json:"id"`
	UserID         int       `json:"user_id"`
	Day            string    `json:"day"`
	StartTime      string    `json:"start_time"`
	EndTime        string    `json:"end_time"`
	Subject        string    `json:"subject"`
	InstructorName string    `json:"instructor_name"`
	RoomNumber     string    `json:"room_number"`
	CreatedAt      time.Time `json:"created_at"`
}

// Attendance is one mark. Rows from per-subject tables carry StudentID;
// rows from the legacy unified table carry ID and UserID.
type Attendance struct {
	ID        int    `json:"id,omitempty"`
	UserID    int    `json:"user_id,omitempty"`
	StudentID string `json:"student_id,omitempty"`
	Subject   string `json:"subject"`
	Date      string `json:"date"`
	Status    Status `json:"status"`
}

type Result struct {
	ID         int       `json:"id"`
	UserID     int       `json:"user_id"`
	Subject    string    `json:"subject"`
	Marks      int       `json:"marks"`
	Grade      string    `json:"grade"`
	Date       string    `json:"date"`
	UploadedBy int       `json:"uploaded_by,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Identity is the authenticated caller.
type Identity struct {
	UserID    int
	StudentID string
	Role      Role
}

func (id Identity) IsAdmin() bool { return id.Role == RoleAdmin }
