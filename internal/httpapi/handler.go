// Package httpapi exposes the portal service over JSON/HTTP with gin.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"eduface/internal/auth"
	"eduface/internal/logging"
	"eduface/internal/portal"
	"eduface/internal/queue"
)

// Checker reports whether a dependency is reachable.
type Checker func(ctx context.Context) bool

type Handler struct {
	svc    *portal.Service
	tokens *auth.Tokens
	jobs   queue.Queue
	health map[string]Checker
	now    func() time.Time
}

// New creates a handler. A nil jobs queue makes batch attendance synchronous.
func New(svc *portal.Service, tokens *auth.Tokens, jobs queue.Queue, health map[string]Checker) *Handler {
	return &Handler{svc: svc, tokens: tokens, jobs: jobs, health: health, now: time.Now}
}

func caller(c *gin.Context) portal.Identity {
	id, _ := auth.IdentityFrom(c)
	return id
}

func pathID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "id must be a positive integer"})
		return 0, false
	}
	return id, true
}

// ActiveAdmin re-reads the caller's account so that a demoted or
// deactivated admin loses access before the token expires.
func (h *Handler) ActiveAdmin(c *gin.Context) {
	id := caller(c)
	u, err := h.svc.User(c.Request.Context(), id, id.UserID)
	if errors.Is(err, portal.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "account no longer exists"})
		return
	}
	if err != nil {
		fail(c, err)
		return
	}
	if !u.IsActive || u.Role != portal.RoleAdmin {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin access revoked"})
		return
	}
	c.Next()
}

// ---------- Health ----------

func (h *Handler) Healthz(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok"}
	for name, check := range h.health {
		ok := check(c.Request.Context())
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

// ---------- Auth ----------

type registerRequest struct {
	FullName  string `json:"full_name" binding:"required"`
	Email     string `json:"email" binding:"required,email"`
	StudentID string `json:"student_id" binding:"required"`
	Phone     string `json:"phone"`
	Section   string `json:"section"`
	Password  string `json:"password" binding:"required,min=6"`
}

// UnmarshalJSON also accepts contact_number for phone.
func (r *registerRequest) UnmarshalJSON(b []byte) error {
	type plain registerRequest
	var in struct {
		plain
		ContactNumber string `json:"contact_number"`
	}
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	*r = registerRequest(in.plain)
	r.Phone = firstSet(r.Phone, in.ContactNumber)
	return nil
}

func firstSet(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	u, err := h.svc.Register(c.Request.Context(), portal.Registration{
		FullName:  req.FullName,
		Email:     req.Email,
		StudentID: req.StudentID,
		Phone:     req.Phone,
		Section:   req.Section,
		Password:  req.Password,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "registration successful", "user": u})
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	Role     string `json:"role"`
}

func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	u, err := h.svc.Authenticate(c.Request.Context(), req.Email, req.Password, req.Role)
	if err != nil {
		fail(c, err)
		return
	}
	h.issue(c, u)
}

func (h *Handler) issue(c *gin.Context, u portal.User) {
	pair, err := h.tokens.Issue(portal.Identity{UserID: u.ID, StudentID: u.StudentID, Role: u.Role})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":              pair.AccessToken,
		"access_token":       pair.AccessToken,
		"refresh_token":      pair.RefreshToken,
		"access_expires_at":  pair.AccessExp.Unix(),
		"refresh_expires_at": pair.RefreshExp.Unix(),
		"user":               u,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// Refresh exchanges a refresh token for a new pair. The account must still
// exist and be active.
func (h *Handler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	claims, err := h.tokens.ParseRefresh(req.RefreshToken)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	id := claims.Identity()
	u, err := h.svc.User(c.Request.Context(), id, id.UserID)
	if err != nil {
		fail(c, err)
		return
	}
	if !u.IsActive {
		fail(c, portal.ErrInactive)
		return
	}
	h.issue(c, u)
}

func (h *Handler) VerifyToken(c *gin.Context) {
	id := caller(c)
	u, err := h.svc.User(c.Request.Context(), id, id.UserID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true, "user": u})
}

// ---------- Users ----------

func (h *Handler) ListUsers(c *gin.Context) {
	users, err := h.svc.Users(c.Request.Context(), caller(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

func (h *Handler) GetUser(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	u, err := h.svc.User(c.Request.Context(), caller(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u})
}

type updateUserRequest struct {
	FullName *string `json:"full_name"`
	Phone    *string `json:"phone"`
	Section  *string `json:"section"`
	Role     *string `json:"role"`
	IsActive *bool   `json:"is_active"`
}

func (h *Handler) UpdateUser(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	in := portal.ProfileUpdate{FullName: req.FullName, Phone: req.Phone, Section: req.Section, IsActive: req.IsActive}
	if req.Role != nil {
		role, err := portal.ParseRole(*req.Role)
		if err != nil {
			fail(c, err)
			return
		}
		in.Role = &role
	}
	u, err := h.svc.UpdateProfile(c.Request.Context(), caller(c), id, in)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u})
}

// ---------- Routines ----------

type routineQuery struct {
	Day    string `form:"day" binding:"omitempty,weekday"`
	UserID int    `form:"user_id" binding:"omitempty,gte=1"`
}

func (h *Handler) ListRoutines(c *gin.Context) {
	var q routineQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	routines, err := h.svc.Routines(c.Request.Context(), q.Day, q.UserID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"routines": routines})
}

func (h *Handler) GetRoutine(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	r, err := h.svc.Routine(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"routine": r})
}

type routineRequest struct {
	UserID         int    `json:"user_id" binding:"omitempty,gte=1"`
	Day            string `json:"day" binding:"required,weekday"`
	StartTime      string `json:"start_time" binding:"required,hhmm"`
	EndTime        string `json:"end_time" binding:"required,hhmm"`
	Subject        string `json:"subject" binding:"required"`
	InstructorName string `json:"instructor_name"`
	RoomNumber     string `json:"room_number"`
}

// UnmarshalJSON also accepts the camelCase names older clients send.
func (r *routineRequest) UnmarshalJSON(b []byte) error {
	type plain routineRequest
	var in struct {
		plain
		StartTimeAlt string `json:"startTime"`
		EndTimeAlt   string `json:"endTime"`
		Room         string `json:"room"`
		Instructor   string `json:"instructor"`
	}
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	*r = routineRequest(in.plain)
	r.StartTime = firstSet(r.StartTime, in.StartTimeAlt)
	r.EndTime = firstSet(r.EndTime, in.EndTimeAlt)
	r.RoomNumber = firstSet(r.RoomNumber, in.Room)
	r.InstructorName = firstSet(r.InstructorName, in.Instructor)
	return nil
}

func (h *Handler) CreateRoutine(c *gin.Context) {
	var req routineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	r, err := h.svc.CreateRoutine(c.Request.Context(), caller(c), portal.Routine{
		UserID:         req.UserID,
		Day:            req.Day,
		StartTime:      req.StartTime,
		EndTime:        req.EndTime,
		Subject:        req.Subject,
		InstructorName: req.InstructorName,
		RoomNumber:     req.RoomNumber,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"routine": r})
}

func (h *Handler) DeleteRoutine(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.svc.DeleteRoutine(c.Request.Context(), caller(c), id); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "routine deleted"})
}

// ---------- Attendance ----------

func (h *Handler) ListAttendance(c *gin.Context) {
	rows, err := h.svc.Attendance(c.Request.Context(), caller(c), c.Query("subject"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"attendance": rows})
}

func (h *Handler) Subjects(c *gin.Context) {
	subjects, err := h.svc.Subjects(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"subjects": subjects})
}

type markRequest struct {
	UserID    int    `json:"user_id" binding:"omitempty,gte=1"`
	StudentID string `json:"student_id"`
	Subject   string `json:"subject" binding:"required"`
	Status    string `json:"status" binding:"required"`
	Date      string `json:"date" binding:"omitempty,datetime=2006-01-02"`
}

func (m markRequest) mark() portal.Mark {
	return portal.Mark{UserID: m.UserID, StudentID: m.StudentID, Subject: m.Subject, Status: m.Status, Date: m.Date}
}

func (h *Handler) MarkAttendance(c *gin.Context) {
	var req markRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	a, err := h.svc.MarkAttendance(c.Request.Context(), caller(c), req.mark())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"attendance": a})
}

type batchRequest struct {
	Marks []markRequest `json:"marks" binding:"required,min=1,dive"`
}

// MarkAttendanceBatch validates every mark, then hands the batch to the
// worker. Without a queue the batch is written before responding.
func (h *Handler) MarkAttendanceBatch(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	marks := make([]portal.Mark, len(req.Marks))
	for i, m := range req.Marks {
		marks[i] = m.mark()
	}
	ctx := c.Request.Context()
	who := caller(c)
	prepared, err := h.svc.PrepareMarks(ctx, who, marks)
	if err != nil {
		fail(c, err)
		return
	}

	if h.jobs == nil {
		saved, err := h.svc.RecordAttendance(ctx, prepared)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"attendance": saved})
		return
	}

	msg, err := queue.NewAttendanceBatch(queue.AttendanceBatch{
		SubmittedBy: who.UserID,
		SubmittedAt: h.now().UTC(),
		Marks:       prepared,
	})
	if err != nil {
		fail(c, err)
		return
	}
	if err := h.jobs.Publish(ctx, msg); err != nil {
		fail(c, err)
		return
	}
	logging.FromContext(ctx).Info("attendance batch queued", "job_id", msg.ID, "marks", len(prepared))
	c.JSON(http.StatusAccepted, gin.H{"job_id": msg.ID, "queued": len(prepared)})
}

// ---------- Results ----------

func (h *Handler) ListResults(c *gin.Context) {
	results, err := h.svc.Results(c.Request.Context(), caller(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (h *Handler) StudentResults(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	results, err := h.svc.StudentResults(c.Request.Context(), caller(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

type resultRequest struct {
	UserID  int    `json:"user_id" binding:"required,gte=1"`
	Subject string `json:"subject" binding:"required"`
	Marks   *int   `json:"marks" binding:"required,gte=0"`
	Grade   string `json:"grade" binding:"required,max=2"`
	Date    string `json:"date" binding:"omitempty,datetime=2006-01-02"`
}

func (h *Handler) UploadResult(c *gin.Context) {
	var req resultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	r, err := h.svc.UploadResult(c.Request.Context(), caller(c), portal.Result{
		UserID:  req.UserID,
		Subject: req.Subject,
		Marks:   *req.Marks,
		Grade:   req.Grade,
		Date:    req.Date,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"result": r})
}
