package domain

import "time"

// Audit event statuses, kept compatible with the legacy login log.
const (
	AuditRegistered = "User registered"
	AuditVerified   = "Verified"
	AuditLogin      = "Login"
	AuditAutoLogin  = "Auto Login"
	AuditSignedOut  = "Signed Out"
)

// AuditEvent is one row of the login/audit log.
type AuditEvent struct {
	Status     string
	At         time.Time
	Email      string
	IP         string
	UserAgent  string
	DeviceID   string
	DeviceName string
}
