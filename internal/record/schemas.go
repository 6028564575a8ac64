package record

// Canonical keys shared by the schemas below.
const (
	ID             = "id"
	UserID         = "user_id"
	FullName       = "full_name"
	Email          = "email"
	Password       = "password"
	StudentID      = "student_id"
	Phone          = "phone"
	Role           = "role"
	Section        = "section"
	IsActive       = "is_active"
	CreatedAt      = "created_at"
	Day            = "day"
	StartTime      = "start_time"
	EndTime        = "end_time"
	Subject        = "subject"
	InstructorName = "instructor_name"
	RoomNumber     = "room_number"
	Date           = "date"
	Status         = "status"
	Marks          = "marks"
	Grade          = "grade"
	UploadedBy     = "uploaded_by"
)

var Users = Schema{
	Name: "users",
	Fields: []Field{
		{ID, []string{"ID", "id"}},
		{FullName, []string{"Full Name", "full_name", "Name", "name"}},
		{Email, []string{"Email", "email"}},
		{Password, []string{"Password", "password", "password_hash"}},
		{StudentID, []string{"Student ID", "student_id"}},
		{Phone, []string{"Phone", "phone", "Contact Number", "contact_number"}},
		{Role, []string{"Role", "role"}},
		{Section, []string{"Section", "section"}},
		{IsActive, []string{"is_active", "Is Active", "Active"}},
		{CreatedAt, []string{"created_at", "Created At", "CreatedAt"}},
	},
}

var Routines = Schema{
	Name: "routines",
	Fields: []Field{
		{ID, []string{"ID", "id"}},
		{UserID, []string{"User ID", "user_id"}},
		{Day, []string{"day", "Day"}},
		{StartTime, []string{"start_time", "Start Time"}},
		{EndTime, []string{"end_time", "End Time"}},
		{Subject, []string{"subject", "Subject"}},
		{InstructorName, []string{"instructor_name", "Instructor Name", "Instructor"}},
		{RoomNumber, []string{"room_number", "Room Number", "Room"}},
		{CreatedAt, []string{"created_at", "Created At", "CreatedAt"}},
	},
}

// SubjectAttendance is the layout of a per-subject attendance table.
var SubjectAttendance = Schema{
	Name: "subject_attendance",
	Fields: []Field{
		{StudentID, []string{"Student ID", "student_id"}},
		{Date, []string{"Date", "date"}},
		{Status, []string{"Status", "status"}},
	},
}

// LegacyAttendance is the layout of the older unified attendance table.
var LegacyAttendance = Schema{
	Name: "attendance",
	Fields: []Field{
		{ID, []string{"ID", "id"}},
		{UserID, []string{"User ID", "user_id"}},
		{Subject, []string{"Subject", "subject"}},
		{Status, []string{"Status", "status"}},
		{Date, []string{"Date", "date"}},
		{CreatedAt, []string{"CreatedAt", "created_at", "Created At"}},
	},
}

var Results = Schema{
	Name: "results",
	Fields: []Field{
		{ID, []string{"ID", "id"}},
		{UserID, []string{"User ID", "user_id"}},
		{Subject, []string{"Subject", "subject"}},
		{Marks, []string{"Marks", "marks"}},
		{Grade, []string{"Grade", "grade"}},
		{Date, []string{"Date", "date"}},
		{CreatedAt, []string{"CreatedAt", "created_at", "Created At"}},
		{UploadedBy, []string{"Uploaded By", "uploaded_by"}},
	},
}
