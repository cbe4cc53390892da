package models

import "time"

// Result statuses returned to the dialogue engine.
const (
	StatusAvailable   = "available"
	StatusUnavailable = "unavailable"
	StatusBooked      = "booked"
	StatusConflict    = "conflict"
	StatusCanceled    = "canceled"
)

// Message direction and kind.
const (
	DirectionIn  = "in"
	DirectionOut = "out"

	KindText  = "text"
	KindAudio = "audio"
)

// Presence values reported by the WhatsApp gateway.
const (
	PresenceComposing = "composing"
	PresencePaused    = "paused"
	PresenceAvailable = "available"
)

// Outbox task types and statuses.
const (
	TaskNotify       = "notify"
	TaskSheetsAppend = "sheets_append"
	TaskSheetsCancel = "sheets_cancel"

	TaskStatusPending    = "pending"
	TaskStatusProcessing = "processing"
	TaskStatusDone       = "done"
	TaskStatusFailed     = "failed"
)

const (
	// DefaultProposalTTL is how long an unconfirmed proposal stays valid.
	DefaultProposalTTL = 30 * time.Minute

	// DefaultDebounceWindow is the quiet period after which buffered messages are processed.
	DefaultDebounceWindow = 5 * time.Second

	// DefaultRedisTTL bounds the lifetime of session keys in Redis.
	DefaultRedisTTL = 24 * time.Hour

	// WorkerQueueSize is the outbox worker's in-memory queue capacity.
	WorkerQueueSize = 1000

	// RateLimitMessages is the number of messages allowed per window.
	RateLimitMessages = 20

	// RateLimitWindow is the message rate-limit window.
	RateLimitWindow = time.Minute

	// SlotKeyLayout formats a slot key: the minute in UTC.
	SlotKeyLayout = "2006-01-02T15:04Z"

	// DateLayout is the date format used in requests.
	DateLayout = "2006-01-02"

	// DefaultTimezone is used when scheduling.timezone is empty.
	DefaultTimezone = "America/Sao_Paulo"
)
