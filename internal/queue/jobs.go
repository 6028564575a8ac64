package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"eduface/internal/portal"
)

// TypeAttendanceBatch is a set of attendance marks already validated by the
// api server.
const TypeAttendanceBatch = "attendance.batch"

type AttendanceBatch struct {
	SubmittedBy int                 `json:"submitted_by"`
	SubmittedAt time.Time           `json:"submitted_at"`
	Marks       []portal.Attendance `json:"marks"`
}

// NewAttendanceBatch wraps b in a message with a fresh job id.
func NewAttendanceBatch(b AttendanceBatch) (Message, error) {
	body, err := json.Marshal(b)
	if err != nil {
		return Message{}, fmt.Errorf("encode attendance batch: %w", err)
	}
	return Message{ID: uuid.NewString(), Type: TypeAttendanceBatch, Body: body}, nil
}

// DecodeAttendanceBatch reads the body of a TypeAttendanceBatch message.
func DecodeAttendanceBatch(msg Message) (AttendanceBatch, error) {
	if msg.Type != TypeAttendanceBatch {
		return AttendanceBatch{}, fmt.Errorf("job %s: unexpected type %q", msg.ID, msg.Type)
	}
	var b AttendanceBatch
	if err := json.Unmarshal(msg.Body, &b); err != nil {
		return AttendanceBatch{}, fmt.Errorf("job %s: decode: %w", msg.ID, err)
	}
	return b, nil
}
