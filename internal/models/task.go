package models

import "time"

// Task represents a queued outbound job: a notification or a Sheets mirror
// update.
type Task struct {
	ID            int64      `json:"id"`
	TaskType      string     `json:"task_type"`
	TenantID      int64      `json:"tenant_id"`
	AppointmentID int64      `json:"appointment_id"`
	Payload       string     `json:"payload"`
	Status        string     `json:"status"`
	RetryCount    int        `json:"retry_count"`
	LastError     *string    `json:"last_error"`
	CreatedAt     time.Time  `json:"created_at"`
	ProcessedAt   *time.Time `json:"processed_at"`
	NextRetryAt   *time.Time `json:"next_retry_at"`
}

// NotifyPayload is the payload of a notify task.
type NotifyPayload struct {
	Phone string `json:"phone"`
	Text  string `json:"text"`
}
