package models

import (
	"time"
)

// AuditEvent is the fire-and-forget payload posted to the audit sink.
type AuditEvent struct {
	Event     string    `json:"event"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	UserID    string    `json:"user_id"`
	FileName  string    `json:"fileName,omitempty"`
}

// Audit event names
const (
	AuditEventUpload     = "upload"
	AuditEventStream     = "stream"
	AuditEventDelete     = "delete"
	AuditEventDeleteAll  = "delete-all"
	AuditEventListFiles  = "get-all-videos"
	AuditEventUsageQuery = "request-resource-monitor"
)

// Audit event statuses
const (
	AuditStatusPending = "pending"
	AuditStatusSuccess = "success"
	AuditStatusFailed  = "failed"
	AuditStatusError   = "error"
)

// ReconciliationGap records a quota release that could not reach the ledger.
// Gaps are published to a durable queue and replayed by the reconciler, so the
// ledger only ever over-counts until the gap is drained.
type ReconciliationGap struct {
	Principal  string    `json:"principal"`
	DeltaBytes int64     `json:"delta_bytes"`
	OccurredAt time.Time `json:"occurred_at"`
}
