package domain

// EntityKind discriminates the two tracked entity types.
type EntityKind string

const (
	KindMessage EntityKind = "message"
	KindCall    EntityKind = "call"
)

// Entity statuses.
const (
	StatusQueued     = "queued"
	StatusSent       = "sent"
	StatusDelivered  = "delivered"
	StatusFailed     = "failed"
	StatusRinging    = "ringing"
	StatusInProgress = "in-progress"
	StatusCompleted  = "completed"
)

type Message struct {
	ID          int64   `json:"id"`
	MessageSid  string  `json:"message_sid"`
	Provider    string  `json:"provider"`
	FromNumber  string  `json:"from_number"`
	ToNumber    string  `json:"to_number"`
	Body        string  `json:"body,omitempty"`
	Status      string  `json:"status" enum:"queued,sent,delivered,failed"`
	CallbackURL *string `json:"callback_url,omitempty"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
	UpdatedAt   string  `json:"updated_at" format:"date-time"`
}

type Call struct {
	ID          int64   `json:"id"`
	CallSid     string  `json:"call_sid"`
	Provider    string  `json:"provider"`
	FromNumber  string  `json:"from_number"`
	ToNumber    string  `json:"to_number"`
	Status      string  `json:"status" enum:"queued,ringing,in-progress,completed,failed"`
	CallbackURL *string `json:"callback_url,omitempty"`
	TwimlURL    *string `json:"twiml_url,omitempty"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
	UpdatedAt   string  `json:"updated_at" format:"date-time"`
}

// DeliveryEvent is one audit row per applied status transition.
type DeliveryEvent struct {
	ID         int64   `json:"id"`
	MessageSid *string `json:"message_sid,omitempty"`
	CallSid    *string `json:"call_sid,omitempty"`
	EventType  string  `json:"event_type"`
	Status     string  `json:"status"`
	CreatedAt  string  `json:"created_at" format:"date-time"`
}

// CallbackLog is one audit row per outbound callback HTTP attempt.
// StatusCode is nil when the attempt failed before any HTTP response.
type CallbackLog struct {
	ID            int64  `json:"id"`
	TargetURL     string `json:"target_url"`
	Payload       string `json:"payload"`
	StatusCode    *int   `json:"status_code,omitempty"`
	ResponseBody  string `json:"response_body,omitempty"`
	AttemptNumber int    `json:"attempt_number"`
	Outcome       string `json:"outcome" enum:"success,retryable_failure,terminal_failure"`
	CreatedAt     string `json:"created_at" format:"date-time"`
}

// Callback attempt outcome classes.
const (
	OutcomeSuccess          = "success"
	OutcomeRetryableFailure = "retryable_failure"
	OutcomeTerminalFailure  = "terminal_failure"
)

// Statistics are aggregate row counts for the dashboard and health check.
type Statistics struct {
	Messages  int `json:"messages"`
	Calls     int `json:"calls"`
	Callbacks int `json:"callbacks"`
}
