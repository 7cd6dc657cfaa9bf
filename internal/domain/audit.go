package domain

import "time"

// AuditAction names one entry in the access trail.
type AuditAction string

const (
	AuditSessionStart    AuditAction = "session_start"
	AuditSessionResume   AuditAction = "session_resume"
	AuditConsentGiven    AuditAction = "consent_given"
	AuditConsentDeclined AuditAction = "consent_declined"
	AuditDataAccess      AuditAction = "data_access"
	AuditSessionRestart  AuditAction = "session_restart"
	AuditSessionEnd      AuditAction = "session_end"
)

// AuditEvent records what happened to a session and when. It never carries
// patient fields.
type AuditEvent struct {
	EventID   string      `json:"eventId"`
	SessionID string      `json:"sessionId"`
	Action    AuditAction `json:"action"`
	Step      Step        `json:"step"`
	At        time.Time   `json:"at"`
}
