package model

import "time"

type JobEventType string

const (
	EventReceived            JobEventType = "received"
	EventValidationFailed    JobEventType = "validation_failed"
	EventReservationConflict JobEventType = "reservation_conflict"
	EventJobSaved            JobEventType = "job_saved"
	EventStatusChanged       JobEventType = "status_changed"
	EventStatusConflict      JobEventType = "status_conflict"
	EventAPIError            JobEventType = "api_error"
	EventCleanupAction       JobEventType = "cleanup_action"
)

// JobEvent is an append-only audit entry. It is never updated.
type JobEvent struct {
	EventID    string                 `json:"event_id"`
	EventType  JobEventType           `json:"event_type"`
	StatusCode int                    `json:"status_code,omitempty"`
	Message    string                 `json:"message,omitempty"`
	JobID      string                 `json:"job_id,omitempty"`
	PaymentID  string                 `json:"payment_id,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}

// EventLogOutcome reports what happened to a best-effort audit write.
type EventLogOutcome struct {
	Attempted bool
	Succeeded bool
	Err       error
}

func (o EventLogOutcome) Failed() bool {
	return o.Attempted && !o.Succeeded
}

// CleanupSummary counts the rows touched by one cleanup sweep.
type CleanupSummary struct {
	ExpiredJobs         int64     `json:"expiredJobs"`
	ExpiredReservations int64     `json:"expiredReservations"`
	DeletedReservations int64     `json:"deletedReservations"`
	RanAt               time.Time `json:"ranAt"`
}

func (s CleanupSummary) Total() int64 {
	return s.ExpiredJobs + s.ExpiredReservations + s.DeletedReservations
}
