package indexapplication

import "loan-appraiser/internal/common/validation"

// Input carries the score-application output merged into the process variables.
type Input struct {
	TrackingID string   `json:"trackingId"`
	Status     string   `json:"status,omitempty"`
	Decision   string   `json:"decision,omitempty"`
	Score      *float64 `json:"score,omitempty"`
	Reasons    []string `json:"reasons,omitempty"`
}

type Output struct {
	Indexed   bool   `json:"indexed"`
	IndexName string `json:"indexName"`
}

var inputSchema = validation.MustCompile(validation.JSONSchema{
	Type: "object",
	Properties: map[string]validation.Property{
		"trackingId": {Type: "string", MinLength: validation.Int(1)},
		"status":     {Type: "string", Enum: []interface{}{"submitted", "approved", "board_review", "rejected"}},
		"score":      {Type: "number", Minimum: validation.Float(0)},
		"reasons":    {Type: "array", Items: &validation.Property{Type: "string"}},
	},
	Required:             []string{"trackingId"},
	AdditionalProperties: true,
})
