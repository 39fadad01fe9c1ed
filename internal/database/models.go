package database

import "time"

// ScanStatus is the lifecycle state of a scan. Transitions are monotonic
// toward a terminal state; the store rejects writes that are not in the
// transition table.
type ScanStatus string

const (
	ScanPending         ScanStatus = "pending"
	ScanRunning         ScanStatus = "running"
	ScanComplete        ScanStatus = "complete"
	ScanCompletePartial ScanStatus = "complete_partial"
	ScanFailedTimeout   ScanStatus = "failed_timeout"
)

// Terminal reports whether a scan in this state can never change again.
func (s ScanStatus) Terminal() bool {
	switch s {
	case ScanComplete, ScanCompletePartial, ScanFailedTimeout:
		return true
	}
	return false
}

// scanTransitions maps each target state to the states it may be entered from.
var scanTransitions = map[ScanStatus][]ScanStatus{
	ScanRunning:         {ScanPending},
	ScanComplete:        {ScanPending, ScanRunning},
	ScanCompletePartial: {ScanPending, ScanRunning},
	ScanFailedTimeout:   {ScanPending, ScanRunning},
}

// Event stages recorded per provider within a scan.
const (
	StageDispatched = "dispatched"
	StageCompleted  = "completed"
	StageFailed     = "failed"
	StageReconciled = "reconciled"
)

// Webhook delivery states.
const (
	DeliveryPending   = "pending"
	DeliveryDelivered = "delivered"
	DeliveryFailed    = "failed"
)

type Scan struct {
	ID              string     `json:"id"`
	WorkspaceID     string     `json:"workspace_id"`
	TargetType      string     `json:"target_type"`
	TargetValue     string     `json:"target_value"`
	Status          ScanStatus `json:"status"`
	Providers       []string   `json:"providers_queried"`
	DispatchPending bool       `json:"dispatch_pending"`
	CreatedAt       time.Time  `json:"created_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// ScanEvent is an append-only log entry for one provider lifecycle step.
type ScanEvent struct {
	ID           string    `json:"id"`
	ScanID       string    `json:"scan_id"`
	Provider     string    `json:"provider"`
	Stage        string    `json:"stage"`
	Status       string    `json:"status"`
	DurationMs   int64     `json:"duration_ms"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// EvidencePair is one key/value item of finding evidence. Order matters.
type EvidencePair struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Finding is a normalized unit of discovered exposure. Immutable after insert.
type Finding struct {
	ID         string         `json:"id"`
	ScanID     string         `json:"scan_id"`
	Provider   string         `json:"provider"`
	Kind       string         `json:"kind"`
	Severity   string         `json:"severity"`
	Confidence float64        `json:"confidence"`
	Evidence   []EvidencePair `json:"evidence"`
	Tags       []string       `json:"tags"`
	URL        string         `json:"url,omitempty"`
	ObservedAt time.Time      `json:"observed_at"`
	CreatedAt  time.Time      `json:"created_at"`
}

type WebhookEndpoint struct {
	ID                string     `json:"id"`
	URL               string     `json:"url"`
	SigningSecret     string     `json:"-"`
	Events            []string   `json:"events"`
	IsActive          bool       `json:"is_active"`
	SuccessCount      int64      `json:"success_count"`
	FailureCount      int64      `json:"failure_count"`
	MaxAttempts       int        `json:"max_attempts"`
	BackoffMultiplier float64    `json:"backoff_multiplier"`
	LastTriggeredAt   *time.Time `json:"last_triggered_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

type WebhookDelivery struct {
	ID             string     `json:"id"`
	EndpointID     string     `json:"webhook_endpoint_id"`
	EventType      string     `json:"event_type"`
	EventID        string     `json:"event_id"`
	Payload        string     `json:"payload"`
	Status         string     `json:"status"`
	ResponseStatus int        `json:"response_status,omitempty"`
	ResponseBody   string     `json:"response_body,omitempty"`
	AttemptNumber  int        `json:"attempt_number"`
	DurationMs     int64      `json:"duration_ms,omitempty"`
	NextRetryAt    *time.Time `json:"next_retry_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Rule is one typed predicate of a watchlist.
type Rule struct {
	Type     string `json:"type"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
}

type Watchlist struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	Rules     []Rule    `json:"rules"`
	CreatedAt time.Time `json:"created_at"`
}

type EntityNode struct {
	ID          string            `json:"id"`
	EntityType  string            `json:"entity_type"`
	EntityValue string            `json:"entity_value"`
	Metadata    map[string]string `json:"metadata"`
	CreatedAt   time.Time         `json:"created_at"`
}

// AuditRecord captures one forced reconciliation transition.
type AuditRecord struct {
	ID         string    `json:"id"`
	ScanID     string    `json:"scan_id"`
	OldStatus  string    `json:"old_status"`
	NewStatus  string    `json:"new_status"`
	HadResults bool      `json:"had_results"`
	AgeSeconds int64     `json:"age_seconds"`
	CreatedAt  time.Time `json:"created_at"`
}
