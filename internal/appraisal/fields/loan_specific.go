package fields

func attest(name, label, help string) Field {
	return Field{Name: name, Label: label, Type: TypeCheckbox, HelpText: help, Rule: Rule{MustBeTrue: true}}
}

func optionalCheck(name, label, help string) Field {
	return Field{Name: name, Label: label, Type: TypeCheckbox, HelpText: help}
}

func document(name, label, help string) Field {
	return Field{Name: name, Label: label, Type: TypeFile, HelpText: help}
}

func savingsAmount(name, help string) Field {
	return Field{
		Name: name, Label: "Current Savings Balance (XAF)", Type: TypeNumber, HelpText: help,
		Rule: Rule{Required: true, Min: ptr(0)},
	}
}

const ratioOneFifth = "Savings balance is ≥ 1/5 (20%) of the requested loan amount"

var loanSpecificFields = map[Group][]Field{
	GroupMortgage: {
		document("legal_mortgage_agreement_document", "Legal Mortgage Agreement Document",
			"Is the signed legal agreement document valid ?"),
		{
			Name: "supporting_documents_notes", Label: "Supporting Documents/Notes", Type: TypeTextarea,
			HelpText: "List any additional supporting documents or appraisal notes.",
		},
		attest("land_title_document_check", "Land Title Document Confirmed",
			"Verify the land title document is valid and clear."),
		optionalCheck("power_of_attorney_document_check", "Power of Attorney Document Confirmed",
			"Confirm power of attorney documents (if applicable) are in order."),
		attest("no_existing_npl_check", "No Existing Non-Performing Loan (NPL) Record",
			"Confirm applicant has no record of existing Non-Performing Loans."),
	},

	GroupSalary: {
		document("copy_of_effective_service_document", "Copy of Effective Service Document",
			"Upload proof of confirmed employment status."),
		document("irrevocable_salary_transfer_document", "Irrevocable Salary Transfer Document",
			"Upload the signed commitment to transfer salary to the MFI."),
		attest("salary_passing_union_ge_3_months_check", "Salary has been passing through MFI for ≥ 3 months",
			"Internal check: Confirm salary history via MFI."),
		attest("savings_ge_1_10_loan_check", "Savings balance is ≥ 1/10 of the requested loan amount",
			"Internal check: Confirm required mandatory savings deposit."),
	},

	GroupWithinSavings: {
		{
			Name: "savings_balance_within_savings", Label: "Current Savings Balance (XAF)", Type: TypeNumber,
			Rule: Rule{Required: true, Positive: true},
		},
		{
			Name: "loan_amount_within_savings", Label: "Loan Amount Requested (XAF)", Type: TypeNumber,
			Rule: Rule{Required: true, Positive: true, Ref: &Ref{
				Field:   "savings_balance_within_savings",
				Op:      CompareLTE,
				Message: "Loan cannot exceed savings balance for this type",
			}},
		},
		attest("savings_covers_loan_plus_interest_check", "Savings balance fully covers the requested loan amount PLUS interest",
			"This is the primary security check for this loan type."),
		attest("loan_amount_blocked_in_savings_check", "Loan principal amount has been blocked in the member's savings account",
			"Confirm a hold has been placed on the necessary savings amount."),
		attest("no_active_default_check", "Applicant has no active default record with the MFI",
			"Confirm the applicant is in good standing before approval."),
	},

	GroupDailySavings: {
		document("signed_deduction_agreement_document", "Signed Deduction Agreement Document",
			"Upload the agreement authorizing daily deductions for loan repayment."),
		document("valid_surety_bond_document", "Valid Surety Bond Document",
			"Upload the document detailing the valid collateral or surety."),
		attest("daily_savings_active_ge_6_months_check", "Daily Savings account has been active for ≥ 6 months",
			"Verify the length and consistency of the savings history."),
		attest("positive_loan_repayment_history_check", "Applicant has a positive loan repayment history with the MFI",
			"Internal check: Confirm good standing on previous loans."),
		attest("savings_balance_ge_1_5_loan_check_daily", ratioOneFifth,
			"Confirm the required minimum savings balance for collateral."),
	},

	GroupStandingOrder: {
		attest("standing_order_active_ge_3_months_check", "Standing Order has been active for ≥ 3 months",
			"Verify the consistency of the standing order payments."),
		attest("loan_duration_le_1_year_check", "Loan duration is ≤ 1 year (12 months)",
			"Confirm loan duration is within the approved short-term limit."),
		attest("savings_balance_ge_1_5_loan_check_standing_order", ratioOneFifth,
			"Confirm the required minimum savings balance for partial collateral."),
		attest("no_existing_default_or_delinquency_check", "Applicant has no existing default or delinquency record",
			"Confirm the applicant's credit history is clean."),
	},

	GroupRealEstate: {
		document("legal_mortgage_agreement_document_re", "Signed Legal Mortgage Agreement Document",
			"Upload the signed agreement documenting the mortgage."),
		attest("loan_duration_ge_10_years_check", "Loan duration is specified as ≥ 10 years",
			"Confirm this long-term loan meets the minimum duration requirement."),
		attest("loan_amount_le_10_percent_paid_up_capital_check", "Loan amount is ≤ 10% of MFI's Paid-Up Capital",
			"Internal regulatory check for maximum lending exposure."),
		attest("land_title_in_borrowers_name_check", "Land title is registered directly in the borrower's name",
			"Confirm clear legal ownership for collateral."),
		attest("valid_proof_of_source_of_income_check_re", "Valid proof of source of income has been verified",
			"Confirm the ability of the borrower to repay the loan."),
	},

	GroupContainer: {
		document("bill_of_lading_document", "Copy of Bill of Lading",
			"Upload the shipping document proving ownership and transport."),
		document("custom_clearance_plan_document", "Custom Clearance Plan Document",
			"Upload the plan detailing the customs clearance process."),
		savingsAmount("savings_balance_amount_container", "Enter the member's current savings balance for verification."),
		attest("savings_balance_ge_1_5_loan_check_container", ratioOneFifth,
			"Confirm the required minimum savings balance for collateral."),
		attest("valid_proof_of_source_of_income_check_container", "Valid proof of source of income has been verified",
			"Confirm the ability of the borrower to service the loan."),
	},

	GroupAgricultural: {
		{
			Name: "loan_purpose_category", Label: "Loan Purpose Category", Type: TypeSelect,
			Options:  []string{"crops", "livestock", "equipment", "other"},
			HelpText: "Specify the primary agricultural activity the loan will finance.",
			Rule:     Rule{Required: true},
		},
		savingsAmount("savings_balance_amount_agri", "Enter the member's current savings balance."),
		document("total_cost_estimate_document", "Total Cost Estimate Document",
			"Upload the detailed budget for products and inputs."),
		optionalCheck("is_land_personal_belonging_check", "Agricultural land is verified as the borrower's personal property",
			"Verify land ownership for collateral assessment."),
		optionalCheck("has_authorization_of_usage_check", "Authorization of land usage has been confirmed (if not owned by applicant)",
			"Required if the land is not the borrower's personal property."),
		attest("savings_balance_ge_1_5_loan_check_agri", ratioOneFifth,
			"Confirm minimum savings balance requirement."),
		optionalCheck("valid_proof_of_source_of_income_check_agri", "Valid proof of non-farm source of income has been verified (if required)",
			"Confirm supplemental income for risk mitigation."),
	},

	GroupExpress: {
		savingsAmount("savings_balance_amount_express", "Enter the member's current savings balance for verification."),
		attest("salary_deducted_at_source_or_standing_order_check", "Salary deduction at source or standing order for repayment is confirmed",
			"Verify the automated mechanism for loan repayment."),
		attest("effective_service_available_check", "Applicant has an 'effective service' (e.g., active account history) available",
			"Confirm the applicant's account history meets the service criteria."),
		attest("clearly_valid_purpose_of_loan_check", "Loan has a clearly defined and valid purpose",
			"Confirm the intended use of the funds is acceptable."),
		attest("savings_balance_ge_1_10_loan_check", "Savings balance is ≥ 1/10 (10%) of the requested loan amount",
			"Confirm the required minimum savings balance for express collateral."),
		attest("no_existing_delinquent_loan_check", "Applicant has no existing delinquent loans",
			"Confirm the applicant's recent credit repayment status."),
	},

	GroupBusiness: {
		document("business_registration_document", "Business Registration Certificate/ID",
			"Upload the official document proving business entity status."),
		document("financial_statements_document", "Last 3 Years Financial Statements",
			"Upload income statements, balance sheets, or similar documents."),
		document("business_plan_document", "Detailed Business Plan",
			"Upload the plan detailing market, strategy, and projections."),
		attest("business_operational_min_3_years_check", "Business has been verifiably operational for a minimum of 3 years",
			"Confirm long-term stability and operational history."),
		attest("adequate_collateral_assessed_check", "Adequate collateral has been independently assessed and verified",
			"Confirm security arrangements for the business loan."),
	},

	GroupAboveSavings: {
		{
			Name: "savingsBalance", Label: "Savings Balance (XAF)", Type: TypeNumber,
			Rule: Rule{Required: true, Positive: true},
		},
		{
			Name: "loanAmountRequested", Label: "Loan Amount Requested (XAF)", Type: TypeNumber,
			Rule: Rule{Required: true, Positive: true, Ref: &Ref{
				Field:   "savingsBalance",
				Op:      CompareGTE,
				Message: "Loan must be greater than savings for this type",
			}},
		},
		{
			Name: "guaranteesDescription", Label: "Guarantees/Collateral Description", Type: TypeTextarea,
			HelpText: "Describe the guarantees or collateral offered for a loan above savings.",
			Rule:     Rule{Required: true},
		},
	},
}
