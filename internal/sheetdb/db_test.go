package sheetdb

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"eduface/internal/portal"
	"eduface/internal/sheet"
	"eduface/internal/sheet/xlsx"
)

var subjects = []string{"Chemistry", "Math", "Physics", "English"}

// countingBackend counts appends per sheet.
type countingBackend struct {
	sheet.Backend
	appends map[string]int
}

func (c *countingBackend) Append(ctx context.Context, name string, rows [][]string) error {
	c.appends[name]++
	return c.Backend.Append(ctx, name, rows)
}

type fixture struct {
	db      *DB
	book    *xlsx.Book
	backend *countingBackend
}

func newFixture(t *testing.T, opts Options) fixture {
	t.Helper()
	book := xlsx.New()
	cb := &countingBackend{Backend: book, appends: map[string]int{}}
	a := sheet.NewAdapter(cb, sheet.Options{CallTimeout: time.Second, MaxRetries: 0})
	if opts.Subjects == nil {
		opts.Subjects = subjects
	}
	db := New(a, nil, opts)
	db.now = func() time.Time { return time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC) }
	return fixture{db: db, book: book, backend: cb}
}

// sheetWith creates name directly in the workbook with the given rows.
func (f fixture) sheetWith(t *testing.T, name string, rows ...[]string) {
	t.Helper()
	ctx := context.Background()
	if err := f.book.AddSheet(ctx, name); err != nil {
		t.Fatal(err)
	}
	if len(rows) > 0 {
		if err := f.book.Append(ctx, name, rows); err != nil {
			t.Fatal(err)
		}
	}
}

func (f fixture) rows(t *testing.T, name string) [][]string {
	t.Helper()
	rows, err := f.book.Rows(context.Background(), name)
	if err != nil {
		t.Fatal(err)
	}
	return rows
}

func bootstrapped(t *testing.T) fixture {
	t.Helper()
	f := newFixture(t, Options{})
	if _, err := f.db.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	return f
}

func TestBootstrap_CreatesMissingTablesOnce(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	created, err := f.db.Bootstrap(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"Users", "Routines", "Results", "Chemistry", "Math", "Physics", "English"}
	if !reflect.DeepEqual(created, want) {
		t.Errorf("Bootstrap() = %v, want %v", created, want)
	}

	again, err := f.db.Bootstrap(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(again) != 0 {
		t.Errorf("second Bootstrap() created %v", again)
	}
}

func TestAddUser_FindByEmailAnyCase(t *testing.T) {
	f := bootstrapped(t)
	ctx := context.Background()

	u, err := f.db.AddUser(ctx, portal.User{
		FullName: "Asha Roy", Email: "Asha@School.edu", PasswordHash: "h",
		StudentID: "S1", Role: portal.RoleStudent,
	})
	if err != nil {
		t.Fatalf("AddUser() error = %v", err)
	}
	if u.ID != 1 || !u.IsActive {
		t.Errorf("AddUser() = %+v, want id 1 and active", u)
	}

	for _, email := range []string{"asha@school.edu", "ASHA@SCHOOL.EDU", " Asha@School.edu "} {
		got, err := f.db.FindUserByEmail(ctx, email)
		if err != nil {
			t.Fatalf("FindUserByEmail(%q) error = %v", email, err)
		}
		if got.ID != 1 || got.StudentID != "S1" {
			t.Errorf("FindUserByEmail(%q) = %+v", email, got)
		}
	}

	_, err = f.db.FindUserByEmail(ctx, "nobody@school.edu")
	if !errors.Is(err, portal.ErrNotFound) {
		t.Errorf("FindUserByEmail(missing) error = %v, want ErrNotFound", err)
	}

	row := f.rows(t, "Users")[1]
	want := []string{"1", "Asha Roy", "Asha@School.edu", "h", "S1", "", "student", "", "true", "2024-03-04T09:30:00Z"}
	if !reflect.DeepEqual(row, want) {
		t.Errorf("stored row = %v, want %v", row, want)
	}
}

func TestFindUserByID_AfterAdd(t *testing.T) {
	f := bootstrapped(t)
	ctx := context.Background()

	for _, email := range []string{"a@x.com", "b@x.com", "c@x.com"} {
		if _, err := f.db.AddUser(ctx, portal.User{Email: email}); err != nil {
			t.Fatal(err)
		}
	}
	got, err := f.db.FindUserByID(ctx, 2)
	if err != nil {
		t.Fatalf("FindUserByID(2) error = %v", err)
	}
	if got.Email != "b@x.com" {
		t.Errorf("FindUserByID(2).Email = %q, want b@x.com", got.Email)
	}
	if _, err := f.db.FindUserByID(ctx, 9); !errors.Is(err, portal.ErrNotFound) {
		t.Errorf("FindUserByID(9) error = %v, want ErrNotFound", err)
	}
}

func TestListUsers_Idempotent(t *testing.T) {
	f := newFixture(t, Options{})
	f.sheetWith(t, "User",
		[]string{"ID", "Full Name", "Email", "Role", "is_active"},
		[]string{"1", "Admin", "admin@eduface.com", "Admin", "true"},
		[]string{"2", "Rafi", "rafi@x.com", "student", "false"},
	)
	ctx := context.Background()

	first, err := f.db.ListUsers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	second, err := f.db.ListUsers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("ListUsers() not repeatable:\n%v\n%v", first, second)
	}
	if first[0].Role != portal.RoleAdmin || first[1].IsActive {
		t.Errorf("ListUsers() = %+v", first)
	}
}

func TestUpdateUser_WritesChangedCells(t *testing.T) {
	f := bootstrapped(t)
	ctx := context.Background()
	u, err := f.db.AddUser(ctx, portal.User{FullName: "Old", Email: "u@x.com", PasswordHash: "h1"})
	if err != nil {
		t.Fatal(err)
	}

	u.FullName = "New Name"
	u.PasswordHash = "h2"
	u.IsActive = false
	if _, err := f.db.UpdateUser(ctx, u); err != nil {
		t.Fatalf("UpdateUser() error = %v", err)
	}

	got, err := f.db.FindUserByID(ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.FullName != "New Name" || got.PasswordHash != "h2" || got.IsActive {
		t.Errorf("after UpdateUser = %+v", got)
	}

	_, err = f.db.UpdateUser(ctx, portal.User{ID: 42})
	if !errors.Is(err, portal.ErrNotFound) {
		t.Errorf("UpdateUser(missing) error = %v, want ErrNotFound", err)
	}
}

func TestUpdateUser_HeaderWithoutSection(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	f.sheetWith(t, "Users",
		[]string{"ID", "Full Name", "Email", "Password", "Student ID", "Phone", "Role", "is_active", "created_at"},
		[]string{"1", "Old", "s@x.com", "h:pw", "S1", "", "student", "true", "2024-03-01T00:00:00Z"},
	)
	u, err := f.db.FindUserByID(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}

	withSection := u
	withSection.FullName = "New Name"
	withSection.Section = "B"
	if _, err := f.db.UpdateUser(ctx, withSection); !errors.Is(err, portal.ErrInvalid) {
		t.Fatalf("UpdateUser(section) error = %v, want ErrInvalid", err)
	}
	if got := f.rows(t, "Users")[1][1]; got != "Old" {
		t.Errorf("name after rejected update = %q, want unchanged", got)
	}

	u.FullName = "New Name"
	if _, err := f.db.UpdateUser(ctx, u); err != nil {
		t.Fatalf("UpdateUser(name) error = %v", err)
	}
	got, err := f.db.FindUserByID(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if got.FullName != "New Name" || got.Section != "" || !got.IsActive {
		t.Errorf("after UpdateUser = %+v", got)
	}
}

func TestListRoutines_NormalizesHeaderSpellings(t *testing.T) {
	f := newFixture(t, Options{})
	f.sheetWith(t, "Routines",
		[]string{"id", "user_id", "day", "start_time", "end_time", "subject", "instructor_name", "room_number"},
		[]string{"1", "7", "Monday", "09:00", "10:00", "Math", "Rahman", "101"},
	)

	snake, err := f.db.ListRoutines(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	g := newFixture(t, Options{})
	g.sheetWith(t, "Routine",
		[]string{"ID", "User ID", "day", "start_time", "end_time", "subject", "instructor_name", "room_number"},
		[]string{"1", "7", "Monday", "09:00", "10:00", "Math", "Rahman", "101"},
	)
	spaced, err := g.db.ListRoutines(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(snake, spaced) {
		t.Errorf("routines differ:\n%+v\n%+v", snake, spaced)
	}
	if snake[0].UserID != 7 || snake[0].RoomNumber != "101" {
		t.Errorf("routine = %+v", snake[0])
	}
}

func TestAddRoutine_FollowsExistingHeaderOrder(t *testing.T) {
	f := newFixture(t, Options{})
	f.sheetWith(t, "Routines",
		[]string{"ID", "subject", "day", "User ID", "start_time", "end_time"},
		[]string{"1", "Math", "Monday", "7", "09:00", "10:00"},
	)
	r, err := f.db.AddRoutine(context.Background(), portal.Routine{
		UserID: 7, Day: "Tuesday", StartTime: "11:00", EndTime: "12:00", Subject: "Physics", RoomNumber: "B2",
	})
	if err != nil {
		t.Fatal(err)
	}
	if r.ID != 2 {
		t.Errorf("AddRoutine().ID = %d, want 2", r.ID)
	}
	got := f.rows(t, "Routines")[2]
	want := []string{"2", "Physics", "Tuesday", "7", "11:00", "12:00"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("appended row = %v, want %v", got, want)
	}
}

func TestRoutinesByOwner(t *testing.T) {
	f := bootstrapped(t)
	ctx := context.Background()
	for _, owner := range []int{1, 2, 1} {
		if _, err := f.db.AddRoutine(ctx, portal.Routine{UserID: owner, Day: "Monday", Subject: "Math"}); err != nil {
			t.Fatal(err)
		}
	}
	got, err := f.db.RoutinesByOwner(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != 1 || got[1].ID != 3 {
		t.Errorf("RoutinesByOwner(1) = %+v", got)
	}
}

func TestDeleteRoutine(t *testing.T) {
	f := newFixture(t, Options{})
	f.sheetWith(t, "Routines",
		[]string{"ID", "User ID", "day", "subject"},
		[]string{"1", "1", "Monday", "Math"},
		[]string{"2", "1", "Tuesday", "Physics"},
	)
	ctx := context.Background()

	err := f.db.DeleteRoutine(ctx, 3)
	if !errors.Is(err, portal.ErrNotFound) {
		t.Fatalf("DeleteRoutine(3) error = %v, want ErrNotFound", err)
	}
	if n := len(f.rows(t, "Routines")); n != 3 {
		t.Errorf("rows after failed delete = %d, want 3", n)
	}

	if err := f.db.DeleteRoutine(ctx, 1); err != nil {
		t.Fatalf("DeleteRoutine(1) error = %v", err)
	}
	left, err := f.db.ListRoutines(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(left) != 1 || left[0].ID != 2 {
		t.Errorf("routines after delete = %+v", left)
	}

	// Ids stay above the highest in use after a deletion.
	r, err := f.db.AddRoutine(ctx, portal.Routine{Day: "Friday", Subject: "English"})
	if err != nil {
		t.Fatal(err)
	}
	if r.ID != 3 {
		t.Errorf("AddRoutine() after delete id = %d, want 3", r.ID)
	}
}

func TestUserAttendance_ChemistryRows(t *testing.T) {
	f := newFixture(t, Options{})
	f.sheetWith(t, "Users",
		[]string{"ID", "Full Name", "Email", "Student ID", "Role"},
		[]string{"1", "Asha", "asha@x.com", "S1", "student"},
	)
	f.sheetWith(t, "Chemistry",
		[]string{"Student ID", "Date", "Status"},
		[]string{"S1", "2024-01-01", "Present"},
		[]string{"S2", "2024-01-01", "Absent"},
		[]string{"S1", "2024-01-02", "Late"},
	)
	ctx := context.Background()

	got, err := f.db.UserAttendance(ctx, 1)
	if err != nil {
		t.Fatalf("UserAttendance() error = %v", err)
	}
	want := []portal.Attendance{
		{StudentID: "S1", Subject: "Chemistry", Date: "2024-01-01", Status: portal.Present},
		{StudentID: "S1", Subject: "Chemistry", Date: "2024-01-02", Status: portal.Late},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("UserAttendance() = %+v, want %+v", got, want)
	}

	subjectsWithTables, err := f.db.AttendanceSubjects(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(subjectsWithTables, []string{"Chemistry"}) {
		t.Errorf("AttendanceSubjects() = %v", subjectsWithTables)
	}
}

func TestAttendanceBySubject(t *testing.T) {
	f := newFixture(t, Options{})
	f.sheetWith(t, "Math",
		[]string{"Student ID", "Date", "Status"},
		[]string{"S1", "2024-01-01", "present"},
	)
	ctx := context.Background()

	got, err := f.db.AttendanceBySubject(ctx, "math")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Subject != "Math" || got[0].Status != portal.Present {
		t.Errorf("AttendanceBySubject(math) = %+v", got)
	}

	for _, subject := range []string{"Physics", "Users", "Biology"} {
		_, err := f.db.AttendanceBySubject(ctx, subject)
		if !errors.Is(err, portal.ErrUnknownSubject) || !errors.Is(err, sheet.ErrTableNotFound) {
			t.Errorf("AttendanceBySubject(%s) error = %v, want unknown subject", subject, err)
		}
	}
}

func TestAddAttendance_SubjectThenLegacy(t *testing.T) {
	ctx := context.Background()

	t.Run("subject table", func(t *testing.T) {
		f := newFixture(t, Options{LegacyFallback: true})
		f.sheetWith(t, "Physics", []string{"Student ID", "Date", "Status"})
		a, err := f.db.AddAttendance(ctx, portal.Attendance{StudentID: "S1", Subject: "physics", Date: "2024-02-01", Status: portal.Absent})
		if err != nil {
			t.Fatal(err)
		}
		if a.Subject != "Physics" {
			t.Errorf("Subject = %q, want Physics", a.Subject)
		}
		if got := f.rows(t, "Physics")[1]; !reflect.DeepEqual(got, []string{"S1", "2024-02-01", "Absent"}) {
			t.Errorf("row = %v", got)
		}
	})

	t.Run("legacy fallback", func(t *testing.T) {
		f := newFixture(t, Options{LegacyFallback: true})
		f.sheetWith(t, "Attendances", []string{"ID", "User ID", "Subject", "Status", "Date", "CreatedAt"})
		a, err := f.db.AddAttendance(ctx, portal.Attendance{UserID: 4, Subject: "Physics", Date: "2024-02-01", Status: portal.Present})
		if err != nil {
			t.Fatal(err)
		}
		if a.ID != 1 {
			t.Errorf("legacy id = %d, want 1", a.ID)
		}
		want := []string{"1", "4", "Physics", "Present", "2024-02-01", "2024-03-04T09:30:00Z"}
		if got := f.rows(t, "Attendances")[1]; !reflect.DeepEqual(got, want) {
			t.Errorf("row = %v, want %v", got, want)
		}
	})

	t.Run("no table", func(t *testing.T) {
		f := newFixture(t, Options{LegacyFallback: true})
		_, err := f.db.AddAttendance(ctx, portal.Attendance{StudentID: "S1", Subject: "Physics", Status: portal.Present})
		if !errors.Is(err, sheet.ErrTableNotFound) {
			t.Errorf("error = %v, want ErrTableNotFound", err)
		}
	})

	t.Run("fallback disabled", func(t *testing.T) {
		f := newFixture(t, Options{})
		f.sheetWith(t, "Attendance", []string{"ID", "User ID", "Subject", "Status", "Date", "CreatedAt"})
		_, err := f.db.AddAttendance(ctx, portal.Attendance{UserID: 1, Subject: "Physics", Status: portal.Present})
		if !errors.Is(err, portal.ErrUnknownSubject) {
			t.Errorf("error = %v, want ErrUnknownSubject", err)
		}
	})
}

func TestAddAttendanceBatch_OneAppendPerSubject(t *testing.T) {
	f := bootstrapped(t)
	ctx := context.Background()
	before := map[string]int{}
	for k, v := range f.backend.appends {
		before[k] = v
	}

	marks := []portal.Attendance{
		{StudentID: "S1", Subject: "Math", Date: "2024-01-01", Status: portal.Present},
		{StudentID: "S2", Subject: "Math", Date: "2024-01-01", Status: portal.Absent},
		{StudentID: "S1", Subject: "English", Date: "2024-01-01", Status: portal.Late},
	}
	if _, err := f.db.AddAttendanceBatch(ctx, marks); err != nil {
		t.Fatal(err)
	}
	if n := f.backend.appends["Math"] - before["Math"]; n != 1 {
		t.Errorf("Math appends = %d, want 1", n)
	}
	if n := f.backend.appends["English"] - before["English"]; n != 1 {
		t.Errorf("English appends = %d, want 1", n)
	}
	if n := len(f.rows(t, "Math")); n != 3 {
		t.Errorf("Math rows = %d, want 3", n)
	}

	_, err := f.db.AddAttendanceBatch(ctx, []portal.Attendance{
		{StudentID: "S1", Subject: "Math", Status: portal.Present},
		{StudentID: "S1", Subject: "Biology", Status: portal.Present},
	})
	if !errors.Is(err, portal.ErrUnknownSubject) {
		t.Errorf("batch with unknown subject error = %v", err)
	}
	if n := len(f.rows(t, "Math")); n != 3 {
		t.Errorf("Math rows after rejected batch = %d, want 3", n)
	}
}

func TestListAttendance_SubjectsThenLegacy(t *testing.T) {
	f := newFixture(t, Options{})
	f.sheetWith(t, "English", []string{"Student ID", "Date", "Status"}, []string{"S1", "2024-01-02", "Present"})
	f.sheetWith(t, "Chemistry", []string{"Student ID", "Date", "Status"}, []string{"S2", "2024-01-01", "Absent"})
	f.sheetWith(t, "Attendance", []string{"ID", "User ID", "Subject", "Status", "Date"}, []string{"1", "3", "Math", "Late", "2023-12-01"})

	got, err := f.db.ListAttendance(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	var order []string
	for _, a := range got {
		order = append(order, a.Subject)
	}
	if !reflect.DeepEqual(order, []string{"Chemistry", "English", "Math"}) {
		t.Errorf("subject order = %v", order)
	}
	if got[2].ID != 1 || got[2].UserID != 3 {
		t.Errorf("legacy row = %+v", got[2])
	}
}

func TestMigrateLegacyAttendance(t *testing.T) {
	f := newFixture(t, Options{})
	f.sheetWith(t, "Users",
		[]string{"ID", "Email", "Student ID"},
		[]string{"1", "a@x.com", "S1"},
		[]string{"2", "b@x.com", ""},
	)
	f.sheetWith(t, "Math", []string{"Student ID", "Date", "Status"}, []string{"S1", "2024-01-01", "Present"})
	f.sheetWith(t, "Attendance",
		[]string{"ID", "User ID", "Subject", "Status", "Date"},
		[]string{"1", "1", "Math", "Present", "2024-01-01"},
		[]string{"2", "1", "math", "Absent", "2024-01-02"},
		[]string{"3", "1", "Physics", "Late", "2024-01-02"},
		[]string{"4", "2", "Math", "Late", "2024-01-02"},
		[]string{"5", "1", "Art", "Late", "2024-01-02"},
	)
	ctx := context.Background()

	n, err := f.db.MigrateLegacyAttendance(ctx)
	if err != nil {
		t.Fatalf("MigrateLegacyAttendance() error = %v", err)
	}
	if n != 2 {
		t.Errorf("copied = %d, want 2", n)
	}
	if got := f.rows(t, "Math"); len(got) != 3 || got[2][1] != "2024-01-02" {
		t.Errorf("Math rows = %v", got)
	}
	if got := f.rows(t, "Physics"); len(got) != 2 || got[1][0] != "S1" {
		t.Errorf("Physics rows = %v", got)
	}

	again, err := f.db.MigrateLegacyAttendance(ctx)
	if err != nil || again != 0 {
		t.Errorf("second migration = %d, %v; want 0", again, err)
	}
}

func TestAddResult_SequentialID(t *testing.T) {
	f := newFixture(t, Options{})
	f.sheetWith(t, "Result",
		[]string{"ID", "User ID", "Subject", "Marks", "Grade", "Date", "CreatedAt"},
		[]string{"1", "5", "Math", "70", "B", "2024-01-01", ""},
		[]string{"2", "6", "Math", "90", "A+", "2024-01-01", ""},
	)
	ctx := context.Background()

	r, err := f.db.AddResult(ctx, portal.Result{UserID: 5, Subject: "Physics", Marks: 85, Grade: "A", Date: "2024-02-01", UploadedBy: 1})
	if err != nil {
		t.Fatal(err)
	}
	if r.ID != 3 {
		t.Errorf("AddResult().ID = %d, want 3", r.ID)
	}

	mine, err := f.db.UserResults(ctx, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(mine) != 2 || mine[1].Marks != 85 || mine[1].Grade != "A" {
		t.Errorf("UserResults(5) = %+v", mine)
	}
	all, err := f.db.ListResults(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("ListResults() = %d rows, want 3", len(all))
	}
}

func TestStoreErr_TransientIsUnavailable(t *testing.T) {
	err := storeErr(sheet.ErrRateLimited)
	if !errors.Is(err, portal.ErrUnavailable) || !errors.Is(err, sheet.ErrTransient) {
		t.Errorf("storeErr() = %v", err)
	}
	if storeErr(nil) != nil {
		t.Error("storeErr(nil) should be nil")
	}
}
