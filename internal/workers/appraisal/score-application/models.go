package scoreapplication

import "loan-appraiser/internal/common/validation"

type Input struct {
	TrackingID string `json:"trackingId"`
	LoanType   string `json:"loanType,omitempty"`
}

type Output struct {
	TrackingID     string   `json:"trackingId"`
	DecisionID     string   `json:"decisionId"`
	Status         string   `json:"status"`
	Decision       string   `json:"decision"`
	Score          float64  `json:"score"`
	Scored         bool     `json:"scored"`
	Reasons        []string `json:"reasons"`
	MonthlyPayment float64  `json:"monthlyPayment"`
	DTIRatio       float64  `json:"dtiRatio"`
}

var inputSchema = validation.MustCompile(validation.JSONSchema{
	Type: "object",
	Properties: map[string]validation.Property{
		"trackingId": {Type: "string", MinLength: validation.Int(1)},
		"loanType":   {Type: "string"},
	},
	Required:             []string{"trackingId"},
	AdditionalProperties: true,
})
