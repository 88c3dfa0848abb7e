package sendnotification

import "loan-appraiser/internal/common/validation"

type Input struct {
	TrackingID string   `json:"trackingId"`
	Decision   string   `json:"decision,omitempty"`
	Score      *float64 `json:"score,omitempty"`
}

type Output struct {
	NotificationID string   `json:"notificationId"`
	Status         string   `json:"status"` // "sent", "failed", "disabled"
	Channels       []string `json:"channels"`
	SentAt         string   `json:"sentAt"` // ISO 8601
}

const (
	TypeDecisionApproved    = "decision_approved"
	TypeDecisionBoardReview = "decision_board_review"
	TypeDecisionRejected    = "decision_rejected"
)

const (
	StatusSent     = "sent"
	StatusFailed   = "failed"
	StatusDisabled = "disabled"
)

const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

var inputSchema = validation.MustCompile(validation.JSONSchema{
	Type: "object",
	Properties: map[string]validation.Property{
		"trackingId": {Type: "string", MinLength: validation.Int(1)},
		"decision":   {Type: "string", Enum: []interface{}{"approved", "board_review", "rejected"}},
	},
	Required:             []string{"trackingId"},
	AdditionalProperties: true,
})
