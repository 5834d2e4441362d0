package model

import "time"

// AuditLog records who did what and when.
type AuditLog struct {
	ID        int64     `json:"id"`
	User      string    `json:"user"`
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
}
