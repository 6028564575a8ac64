// Package worker drains queued jobs and writes them through the portal
// service.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"eduface/internal/logging"
	"eduface/internal/portal"
	"eduface/internal/queue"
)

var jobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "portal_jobs_total",
	Help: "Queued jobs handled by type and outcome.",
}, []string{"type", "outcome"})

// Recorder persists prepared attendance marks.
type Recorder interface {
	RecordAttendance(ctx context.Context, marks []portal.Attendance) ([]portal.Attendance, error)
}

// Worker consumes jobs from a queue. Jobs that fail because the store is
// unavailable go back on the queue until MaxAttempts is reached.
type Worker struct {
	jobs        queue.Queue
	rec         Recorder
	MaxAttempts int
	RetryDelay  time.Duration
}

func New(jobs queue.Queue, rec Recorder) *Worker {
	return &Worker{jobs: jobs, rec: rec, MaxAttempts: 5, RetryDelay: 2 * time.Second}
}

// requeue puts msg back without blocking when the queue supports it. The
// worker may be the only consumer, so waiting for a slot could deadlock.
func (w *Worker) requeue(ctx context.Context, msg queue.Message) error {
	if q, ok := w.jobs.(interface{ TryPublish(queue.Message) error }); ok {
		return q.TryPublish(msg)
	}
	return w.jobs.Publish(ctx, msg)
}

// Run processes jobs until ctx is canceled.
func (w *Worker) Run(ctx context.Context) error {
	messages, err := w.jobs.Consume(ctx)
	if err != nil {
		return err
	}
	logging.FromContext(ctx).Info("worker started, waiting for jobs")
	for msg := range messages {
		w.Handle(ctx, msg)
	}
	logging.FromContext(ctx).Info("worker stopped")
	return nil
}

// Handle processes one job and reports the outcome it recorded.
func (w *Worker) Handle(ctx context.Context, msg queue.Message) string {
	outcome := w.handle(ctx, msg)
	jobsProcessed.WithLabelValues(msg.Type, outcome).Inc()
	return outcome
}

func (w *Worker) handle(ctx context.Context, msg queue.Message) string {
	log := logging.WithFields(ctx, "job_id", msg.ID, "type", msg.Type, "attempt", msg.Attempt)
	if msg.Type != queue.TypeAttendanceBatch {
		log.Warn("skipping unknown job type")
		return "skipped"
	}

	batch, err := queue.DecodeAttendanceBatch(msg)
	if err != nil {
		log.Error("dropping malformed job", "error", err)
		return "dropped"
	}

	saved, err := w.rec.RecordAttendance(ctx, batch.Marks)
	if err == nil {
		log.Info("attendance batch recorded", "marks", len(saved), "submitted_by", batch.SubmittedBy)
		return "ok"
	}
	if !errors.Is(err, portal.ErrUnavailable) || msg.Attempt+1 >= w.MaxAttempts {
		log.Error("attendance batch failed", "error", err)
		return "failed"
	}

	select {
	case <-time.After(w.RetryDelay * time.Duration(msg.Attempt+1)):
	case <-ctx.Done():
		log.Warn("shutdown before retry, job lost", "error", err)
		return "failed"
	}
	msg.Attempt++
	if perr := w.requeue(ctx, msg); perr != nil {
		log.Error("requeue failed", "error", perr, "cause", err)
		return "failed"
	}
	log.Warn("attendance batch requeued", "error", err)
	return "retried"
}
