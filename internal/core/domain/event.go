package domain

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// AuthEventType names an auditable authentication or authorization action.
type AuthEventType string

const (
	EventLoginSucceeded AuthEventType = "login_succeeded"
	EventLoginFailed    AuthEventType = "login_failed"
	EventLoginThrottled AuthEventType = "login_throttled"
	EventUserRegistered AuthEventType = "user_registered"
	EventRoleGranted    AuthEventType = "role_granted"
	EventRoleRevoked    AuthEventType = "role_revoked"
)

// AuthEvent is one audit record. Subject is AccountSubject of the account
// acted upon, or the identifier as typed when no account was resolved. Actor
// is set only for admin actions.
type AuthEvent struct {
	ID        string
	Type      AuthEventType
	Subject   string
	UserID    int64
	Actor     string
	Role      Role
	Timestamp time.Time
}

// NewAuthEvent stamps a fresh id and the current UTC time.
func NewAuthEvent(t AuthEventType, subject string) AuthEvent {
	return AuthEvent{
		ID:        uuid.NewString(),
		Type:      t,
		Subject:   subject,
		Timestamp: time.Now().UTC(),
	}
}

// AccountSubject is the audit subject shared by every event about account id.
func AccountSubject(id int64) string {
	return "user:" + strconv.FormatInt(id, 10)
}
