package model

import (
	"time"

	"github.com/google/uuid"
)

// DerivationEventType names a stage of a derivation pass.
type DerivationEventType string

const (
	DerivationStarted      DerivationEventType = "started"
	DerivationBatchFlushed DerivationEventType = "batch_flushed"
	DerivationCompleted    DerivationEventType = "completed"
	DerivationSkipped      DerivationEventType = "skipped"
	DerivationFailed       DerivationEventType = "failed"
)

// DerivationScope tells whether a pass covers everyone or selected students.
type DerivationScope string

const (
	DerivationScopeAll      DerivationScope = "all"
	DerivationScopeStudents DerivationScope = "students"
)

// DerivationEvent is published while a derivation pass runs.
type DerivationEvent struct {
	Type         DerivationEventType `json:"type"`
	RunID        string              `json:"run_id"`
	Scope        DerivationScope     `json:"scope"`
	Students     int                 `json:"students"`
	Records      int64               `json:"records"`
	Batches      int                 `json:"batches"`
	NonCompliant int                 `json:"non_compliant"`
	DurationMS   int64               `json:"duration_ms,omitempty"`
	Error        string              `json:"error,omitempty"`
	Timestamp    time.Time           `json:"timestamp"`
}

// RecomputeRequest is a recompute queue payload. All requests a forced
// full pass; otherwise StudentID names one student to recompute.
type RecomputeRequest struct {
	StudentID *uuid.UUID `json:"student_id,omitempty"`
	All       bool       `json:"all,omitempty"`
}
