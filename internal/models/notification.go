// internal/models/notification.go
package models

import "time"

// Notification is one message sent (or skipped) for an appraisal decision.
type Notification struct {
	ID         string                 `json:"id"`
	TrackingID string                 `json:"trackingId"`
	Recipient  string                 `json:"recipient"`
	Type       string                 `json:"type"`    // "decision_approved", "decision_board_review", "decision_rejected"
	Channel    string                 `json:"channel"` // "email", "sms"
	Status     string                 `json:"status"`  // "sent", "failed", "disabled"
	MessageID  string                 `json:"messageId,omitempty"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
	SentAt     *time.Time             `json:"sentAt,omitempty"`
	CreatedAt  time.Time              `json:"createdAt"`
}

type NotificationTemplate struct {
	Type     string `json:"type"`
	Subject  string `json:"subject"`
	Body     string `json:"body"`
	HTMLBody string `json:"htmlBody,omitempty"`
	SMS      string `json:"sms,omitempty"`
}
