package record

import (
	"reflect"
	"testing"
)

func TestNormalize_RoutineHeaderSpellings(t *testing.T) {
	spaced := map[string]string{
		"ID": "1", "User ID": "7", "day": "Monday", "start_time": "09:00",
		"end_time": "10:00", "subject": "Math", "instructor_name": "Rahman", "room_number": "101",
	}
	snake := map[string]string{
		"id": "1", "user_id": "7", "day": "Monday", "start_time": "09:00",
		"end_time": "10:00", "subject": "Math", "instructor_name": "Rahman", "room_number": "101",
	}

	a := Normalize(Routines, spaced)
	b := Normalize(Routines, snake)
	if !reflect.DeepEqual(a, b) {
		t.Errorf("normalized records differ:\n%v\n%v", a, b)
	}
	if a[UserID] != "7" {
		t.Errorf("user_id = %q, want 7", a[UserID])
	}
}

func TestNormalize_AbsentKeysAreEmpty(t *testing.T) {
	rec := Normalize(Routines, map[string]string{"ID": "3"})
	for _, k := range Routines.Keys() {
		if _, ok := rec[k]; !ok {
			t.Errorf("key %q missing from record", k)
		}
	}
	if rec[Subject] != "" {
		t.Errorf("subject = %q, want empty", rec[Subject])
	}
}

func TestNormalize_FirstPresentAliasWins(t *testing.T) {
	// "ID" is present but empty; it still wins over "id".
	rec := Normalize(Users, map[string]string{"ID": "", "id": "9"})
	if rec[ID] != "" {
		t.Errorf("id = %q, want empty from first present alias", rec[ID])
	}
	rec = Normalize(Users, map[string]string{"id": " 9 "})
	if rec[ID] != "9" {
		t.Errorf("id = %q, want 9", rec[ID])
	}
}

func TestLayout_FollowsExistingHeader(t *testing.T) {
	header := []string{"id", "day", "Notes", "user_id", "subject"}
	l := NewLayout(Routines, header)

	col, ok := l.ColumnOf(UserID)
	if !ok || col != 4 {
		t.Errorf("ColumnOf(user_id) = %d, %v; want 4", col, ok)
	}
	if _, ok := l.ColumnOf(RoomNumber); ok {
		t.Error("room_number should have no column")
	}

	row := l.Row(Record{ID: "5", UserID: "7", Day: "Friday", Subject: "Physics", RoomNumber: "B2"})
	want := []string{"5", "Friday", "", "7", "Physics"}
	if !reflect.DeepEqual(row, want) {
		t.Errorf("Row() = %v, want %v", row, want)
	}
}

func TestLayout_EmptyHeaderUsesCanonical(t *testing.T) {
	l := NewLayout(Users, nil)
	if !reflect.DeepEqual(l.Header(), Users.Header()) {
		t.Errorf("Header() = %v, want %v", l.Header(), Users.Header())
	}
	col, ok := l.ColumnOf(Password)
	if !ok || col != 4 {
		t.Errorf("ColumnOf(password) = %d, %v; want 4", col, ok)
	}
}

func TestCanonicalHeaders(t *testing.T) {
	tests := []struct {
		schema Schema
		want   []string
	}{
		{Users, []string{"ID", "Full Name", "Email", "Password", "Student ID", "Phone", "Role", "Section", "is_active", "created_at"}},
		{Routines, []string{"ID", "User ID", "day", "start_time", "end_time", "subject", "instructor_name", "room_number", "created_at"}},
		{SubjectAttendance, []string{"Student ID", "Date", "Status"}},
		{LegacyAttendance, []string{"ID", "User ID", "Subject", "Status", "Date", "CreatedAt"}},
		{Results, []string{"ID", "User ID", "Subject", "Marks", "Grade", "Date", "CreatedAt", "Uploaded By"}},
	}
	for _, tt := range tests {
		t.Run(tt.schema.Name, func(t *testing.T) {
			if got := tt.schema.Header(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Header() = %v, want %v", got, tt.want)
			}
		})
	}
}
