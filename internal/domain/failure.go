package domain

import (
	"time"
)

// EmailType categorizes outbound mail. The retry budget for a failure is
// determined by its type.
type EmailType string

const (
	TypeReminder          EmailType = "reminder"
	TypeDisclosure        EmailType = "disclosure"
	TypeAdminNotification EmailType = "admin_notification"
	TypeVerification      EmailType = "verification"
)

// EmailFailure is one failed delivery attempt chain. It is created by the
// mailer when an immediate send fails and updated by the retry engine until
// the record is resolved or its retry budget runs out.
//
// RetryCount is the number of retries performed so far; the original send is
// not counted. ErrorMessage always holds the most recent provider error.
type EmailFailure struct {
	ID           string     `json:"id"`
	EmailType    EmailType  `json:"email_type"`
	Provider     string     `json:"provider"`
	Recipient    string     `json:"recipient"`
	Subject      string     `json:"subject"`
	ErrorMessage string     `json:"error_message"`
	RetryCount   int        `json:"retry_count"`
	CreatedAt    time.Time  `json:"created_at"`
	ResolvedAt   *time.Time `json:"resolved_at,omitempty"`
}

// Resolved reports whether a retry has already succeeded for this record.
func (f *EmailFailure) Resolved() bool {
	return f.ResolvedAt != nil
}
