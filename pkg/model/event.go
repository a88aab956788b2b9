package model

import "time"

// EventKind tags the payload carried by an Event.
type EventKind string

const (
	EventJobLocked     EventKind = "job_locked"
	EventJobCompleted  EventKind = "job_completed"
	EventJobRetried    EventKind = "job_retried"
	EventJobExhausted  EventKind = "job_exhausted"
	EventJobDeleted    EventKind = "job_deleted"
	EventCourseChanged EventKind = "course_changed"
)

// Event is a transient, in-memory notification. Persistence (JobResult,
// CourseAudit) is a separate concern handled by the component that emits
// the event — the event bus itself never touches the database.
type Event struct {
	Kind      EventKind
	Timestamp time.Time
	Payload   any
}

// JobEventPayload is carried by all Job* event kinds.
type JobEventPayload struct {
	JobID      int32
	TargetType string
	Subject    string
	Term       string
	RetryCount int
	Error      string
}

// CourseChangedPayload is carried by CourseChanged events, emitted by
// ingestion's field-level change detection.
type CourseChangedPayload struct {
	TermCode string
	CRN      string
	Subject  string
	Field    string
	OldValue string
	NewValue string
}

// CourseAudit is a persisted record of one changed field on one course,
// written by ingestion alongside the in-memory CourseChanged event.
type CourseAudit struct {
	TermCode  string
	CRN       string
	Field     string
	OldValue  string
	NewValue  string
	CreatedAt time.Time
}

// CourseMetric is a persisted numeric time series point (enrollment, seats
// available, etc.) written alongside CourseAudit rows for changed numeric
// fields.
type CourseMetric struct {
	TermCode  string
	CRN       string
	Metric    string
	Value     float64
	CreatedAt time.Time
}
