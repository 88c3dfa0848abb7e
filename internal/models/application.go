// internal/models/application.go
package models

import "time"

// Application statuses as they move through the back-office process.
const (
	StatusSubmitted   = "submitted"
	StatusApproved    = "approved"
	StatusBoardReview = "board_review"
	StatusRejected    = "rejected"
)

// Application is a submitted appraisal request as persisted by intake.
type Application struct {
	TrackingID         string                 `json:"trackingId" db:"tracking_id"`
	LoanType           string                 `json:"loanType" db:"loan_type"`
	ApplicantName      string                 `json:"applicantName" db:"applicant_name"`
	ApplicantEmail     string                 `json:"applicantEmail,omitempty" db:"applicant_email"`
	AccountNumber      string                 `json:"accountNumber,omitempty" db:"account_number"`
	LoanAmount         float64                `json:"loanAmount" db:"loan_amount"`
	InterestRate       float64                `json:"annualInterestRatePercent" db:"annual_interest_rate_percent"`
	TermYears          float64                `json:"loanTermYears" db:"loan_term_years"`
	SavingsBalance     *float64               `json:"savingsBalance,omitempty" db:"savings_balance"`
	Fields             map[string]interface{} `json:"fields" db:"fields"`
	Files              map[string]interface{} `json:"files,omitempty" db:"files"`
	Status             string                 `json:"status" db:"status"`
	Score              *float64               `json:"score,omitempty" db:"score"`
	ProcessInstanceKey int64                  `json:"processInstanceKey,omitempty" db:"process_instance_key"`
	SubmittedAt        time.Time              `json:"submittedAt" db:"submitted_at"`
	UpdatedAt          time.Time              `json:"updatedAt" db:"updated_at"`
}

// Decision is one scoring outcome recorded against an application.
type Decision struct {
	ID             string    `json:"id" db:"id"`
	TrackingID     string    `json:"trackingId" db:"tracking_id"`
	Score          float64   `json:"score" db:"score"`
	Decision       string    `json:"decision" db:"decision"`
	Reasons        []string  `json:"reasons" db:"reasons"`
	MonthlyPayment float64   `json:"monthlyPayment" db:"monthly_payment"`
	DTIRatio       float64   `json:"dtiRatio" db:"dti_ratio"`
	Scored         bool      `json:"scored" db:"scored"`
	CreatedAt      time.Time `json:"createdAt" db:"created_at"`
}

// ApprovedLoan is one row of the approved-loans report.
type ApprovedLoan struct {
	SerialNumber       int       `json:"sn"`
	TrackingID         string    `json:"trackingId"`
	AccountNumber      string    `json:"accountNumber"`
	ApplicantName      string    `json:"applicantName"`
	LoanType           string    `json:"loanType"`
	LoanAmount         float64   `json:"loanAmount"`
	DurationYears      float64   `json:"durationYears"`
	SavingsBalance     *float64  `json:"savingsBalance,omitempty"`
	MonthlyInstallment float64   `json:"monthlyInstallment"`
	SubmittedAt        time.Time `json:"submittedAt"`
}

// ApplicationSummary is the dashboard view of a recent application.
type ApplicationSummary struct {
	TrackingID    string    `json:"trackingId"`
	ApplicantName string    `json:"applicantName"`
	LoanType      string    `json:"loanType"`
	LoanAmount    float64   `json:"loanAmount"`
	Status        string    `json:"status"`
	Score         *float64  `json:"score,omitempty"`
	SubmittedAt   time.Time `json:"submittedAt"`
}

// Dashboard aggregates what the loan-selection page shows.
type Dashboard struct {
	TotalApproved int                  `json:"totalApprovedLoans"`
	Recent        []ApplicationSummary `json:"recentApplications"`
}
