package fields

// Applicant & loan information, shared by every loan type.
var applicantFields = []Field{
	{Name: "applicant_name", Label: "Applicant Name", Type: TypeText, Rule: Rule{Required: true}},
	{Name: "applicant_email", Label: "Applicant Email", Type: TypeEmail},
	{
		Name: "loan_amount", Label: "Loan Amount (XAF)", Type: TypeNumber,
		HelpText: "Requested principal amount.",
		Rule:     Rule{Required: true, Positive: true},
	},
	{
		Name: "annual_interest_rate_percent", Label: "Annual Interest Rate (%)", Type: TypeNumber,
		Rule: Rule{Required: true, Min: ptr(0), Max: ptr(100)},
	},
	{
		Name: "loan_term_years", Label: "Loan Term (Years)", Type: TypeNumber,
		Rule: Rule{Required: true, Positive: true, Integer: true},
	},
	{
		Name: "borrower_gross_monthly_income", Label: "Gross Monthly Income (XAF)", Type: TypeNumber,
		HelpText: "Total income before deductions.",
		Rule:     Rule{Required: true, Positive: true},
	},
	{
		Name: "existing_monthly_debt_payments", Label: "Existing Monthly Debt Payments (XAF)", Type: TypeNumber,
		HelpText: "Total monthly payments on other loans/debt.",
		Rule:     Rule{Required: true, Min: ptr(0)},
	},
	{Name: "account_number", Label: "Account Number", Type: TypeText, Rule: Rule{Required: true}},
	{Name: "date_of_loan", Label: "Date of Loan Application", Type: TypeDate, Rule: Rule{Required: true}},
	{
		Name: "loan_purpose", Label: "Loan Purpose", Type: TypeSelect,
		Options: []string{"business", "personal", "other"},
		Rule:    Rule{Required: true},
	},
}

// KYC details, shared by every loan type.
var kycFields = []Field{
	{Name: "identity_card_number", Label: "Identity Card Number", Type: TypeText, Rule: Rule{Required: true}},
	{Name: "place_of_birth", Label: "Place of Birth", Type: TypeText, Rule: Rule{Required: true}},
	{Name: "date_of_birth", Label: "Date of Birth", Type: TypeDate, Rule: Rule{Required: true}},
	{
		Name: "current_address", Label: "Current Address", Type: TypeText,
		HelpText: "Full street address, city, and country.",
		Rule:     Rule{Required: true},
	},
	{
		Name: "marital_status", Label: "Marital Status", Type: TypeSelect,
		Options: []string{"Single", "Married", "Divorced", "Widowed"},
		Rule:    Rule{Required: true},
	},
	{Name: "profession", Label: "Profession/Occupation", Type: TypeText, Rule: Rule{Required: true}},
	{
		Name: "duration_with_mfi_years", Label: "Duration with MFI (Years)", Type: TypeNumber,
		HelpText: "How long the applicant has been a member/client.",
		Rule:     Rule{Required: true, Min: ptr(0)},
	},
	{
		Name: "num_loans_other_mfi", Label: "No. of Loans from Other MFIs", Type: TypeNumber,
		Rule: Rule{Required: true, Integer: true, Min: ptr(0)},
	},
	{Name: "current_location", Label: "Current Location (City/Town)", Type: TypeText, Rule: Rule{Required: true}},
}

// KYCFieldNames are the KYC inputs that must all be present for a full-KYC credit in scoring.
var KYCFieldNames = []string{
	"identity_card_number",
	"place_of_birth",
	"current_address",
	"marital_status",
	"duration_with_mfi_years",
	"num_loans_other_mfi",
	"profession",
}
