// Package scoring appraises a submitted application against the credit union's
// weighted scorecards and turns the score into a decision.
package scoring

import (
	"errors"
	"fmt"
	"math"

	"loan-appraiser/internal/appraisal/fields"
	"loan-appraiser/internal/appraisal/loantype"
	"loan-appraiser/internal/appraisal/render"
	"loan-appraiser/internal/appraisal/validator"
	"loan-appraiser/internal/common/config"
)

var ErrMissingAmount = errors.New("SCORING_MISSING_LOAN_AMOUNT")

type Decision string

const (
	DecisionApproved    Decision = "approved"
	DecisionBoardReview Decision = "board_review"
	DecisionRejected    Decision = "rejected"
)

// Result is one appraisal.
type Result struct {
	LoanType                loantype.LoanType `json:"loanType"`
	Score                   float64           `json:"score"`
	Decision                Decision          `json:"decision"`
	Reasons                 []string          `json:"reasons"`
	MonthlyPayment          float64           `json:"monthlyPayment"`
	TotalMonthlyDebt        float64           `json:"totalMonthlyDebt"`
	DTIRatio                float64           `json:"dtiRatio"`
	EstimatedNetIncome      float64           `json:"estimatedNetMonthlyIncome"`
	LoanToAnnualIncomeRatio float64           `json:"loanToAnnualIncomeRatio"`
	Scored                  bool              `json:"scored"`
}

// criterion credits weight when field carries a value. Document criteria
// report Provided/Not Provided, the rest Met/Not Met.
type criterion struct {
	field    string
	weight   float64
	notes    string
	document bool
}

type scorecard struct {
	criteria  []criterion
	kycWeight float64
	policy    func(s *Scorer, values map[string]any, amount float64, r *Result)
}

// Scorer holds the policy thresholds.
type Scorer struct {
	cfg   config.AppraisalConfig
	cards map[loantype.LoanType]scorecard
}

func New(cfg config.AppraisalConfig) *Scorer {
	if cfg.ApprovedThreshold == 0 {
		cfg.ApprovedThreshold = 96
	}
	if cfg.ReviewThreshold == 0 {
		cfg.ReviewThreshold = 75
	}
	if cfg.NetIncomeFactor == 0 {
		cfg.NetIncomeFactor = 0.8
	}
	if cfg.MaxDTIRatio == 0 {
		cfg.MaxDTIRatio = 0.4
	}
	if cfg.MortgageMaxAmount == 0 {
		cfg.MortgageMaxAmount = 500_000_000
	}
	if cfg.MortgageMaxYears == 0 {
		cfg.MortgageMaxYears = 10
	}
	if cfg.SalaryMaxAmount == 0 {
		cfg.SalaryMaxAmount = 10_000_000
	}
	return &Scorer{cfg: cfg, cards: scorecards()}
}

func scorecards() map[loantype.LoanType]scorecard {
	purpose := criterion{field: "loan_purpose", weight: 5, notes: "Purpose of Loan Clearly Stated", document: true}

	return map[loantype.LoanType]scorecard{
		loantype.Mortgage: {
			criteria: []criterion{
				{field: "legal_mortgage_agreement_document", weight: 30, notes: "Legal Mortgage Agreement on Land Title", document: true},
				{field: "land_title_document_check", weight: 15, notes: "Land Title in Borrower's Name", document: true},
				{field: "power_of_attorney_document_check", weight: 10, notes: "Power of Attorney (if applicable)", document: true},
				purpose,
				{field: "supporting_documents_notes", weight: 5, notes: "Supporting Documents (Site Plan, Quotes, etc.)", document: true},
				{field: "no_existing_npl_check", weight: 5, notes: "No Existing Non-Performing Loan (System Check)"},
			},
			kycWeight: 10,
			policy:    (*Scorer).mortgagePolicy,
		},
		loantype.Salary: {
			criteria: []criterion{
				purpose,
				{field: "copy_of_effective_service_document", weight: 15, notes: "Copy of Effective Service", document: true},
				{field: "irrevocable_salary_transfer_document", weight: 20, notes: "Irrevocable Salary Transfer Document", document: true},
				{field: "salary_passing_union_ge_3_months_check", weight: 20, notes: "Salary Passing Through Union for at Least 3 Months"},
				{field: "savings_ge_1_10_loan_check", weight: 15, notes: "Savings at Least 10% of Loan Requested"},
			},
			kycWeight: 10,
			policy:    (*Scorer).salaryPolicy,
		},
		loantype.WithinSavings: {
			criteria: []criterion{
				purpose,
				{field: "savings_covers_loan_plus_interest_check", weight: 45, notes: "Savings Covers Loan + Interest for Entire Tenure"},
				{field: "loan_amount_blocked_in_savings_check", weight: 35, notes: "Loan Amount Is Blocked in Savings Account"},
				{field: "no_active_default_check", weight: 5, notes: "No Active Default/Delinquent Loan"},
			},
			kycWeight: 10,
		},
		loantype.DailySavings: {
			criteria: []criterion{
				purpose,
				{field: "signed_deduction_agreement_document", weight: 15, notes: "Signed Deduction Agreement from Daily Savings", document: true},
				{field: "valid_surety_bond_document", weight: 20, notes: "Signed Surety Bond (Valid Surety)", document: true},
				{field: "daily_savings_active_ge_6_months_check", weight: 20, notes: "Daily Savings Active for at Least 6 Months"},
				{field: "positive_loan_repayment_history_check", weight: 15, notes: "Positive Loan Repayment History"},
				{field: "savings_balance_ge_1_5_loan_check_daily", weight: 15, notes: "Savings Balance at Least 20% of Loan Requested"},
			},
			kycWeight: 10,
		},
		loantype.StandingOrder: {
			criteria: []criterion{
				purpose,
				{field: "standing_order_active_ge_3_months_check", weight: 30, notes: "Standing Order Active for at Least 3 Months"},
				{field: "loan_duration_le_1_year_check", weight: 20, notes: "Loan Duration Within 1 Year (Policy Restriction)"},
				{field: "savings_balance_ge_1_5_loan_check_standing_order", weight: 20, notes: "Savings Balance at Least 20% of Loan Amount"},
				{field: "no_existing_default_or_delinquency_check", weight: 10, notes: "No Existing Default or Delinquency"},
			},
			kycWeight: 15,
		},
	}
}

// HasScorecard reports whether t is scored automatically.
func (s *Scorer) HasScorecard(t loantype.LoanType) bool {
	_, ok := s.cards[t]
	return ok
}

// Appraise scores values for t. Types without a scorecard are referred to the board.
func (s *Scorer) Appraise(t loantype.LoanType, values map[string]any) (Result, error) {
	if !t.Valid() {
		return Result{}, fmt.Errorf("%w: %q", loantype.ErrUnknownLoanType, string(t))
	}
	res := Result{LoanType: t, Reasons: []string{}}

	card, ok := s.cards[t]
	if !ok {
		res.Decision = DecisionBoardReview
		res.Reasons = append(res.Reasons, fmt.Sprintf("No automated scorecard for %s; referred to the board.", t.Label()))
		return res, nil
	}

	amount, err := validator.ToFloat(values["loan_amount"])
	if err != nil || validator.IsEmpty(values["loan_amount"]) {
		return Result{}, fmt.Errorf("%w: %v", ErrMissingAmount, values["loan_amount"])
	}

	for _, c := range card.criteria {
		s.applyCriterion(c, values, &res)
	}

	if FullKYC(values) {
		res.Score += card.kycWeight
		res.Reasons = append(res.Reasons, fmt.Sprintf("✔ Full KYC (ID, Place of Birth, Address, etc.) Provided. (+%s%%)", pct(card.kycWeight)))
	} else {
		res.Reasons = append(res.Reasons, "✖ Full KYC (ID, Place of Birth, Address, etc.) Not Fully Provided. (+0%)")
	}

	if card.policy != nil {
		card.policy(s, values, amount, &res)
	}

	res.Scored = true
	res.Decision = s.decide(res.Score)
	return res, nil
}

func (s *Scorer) applyCriterion(c criterion, values map[string]any, r *Result) {
	met, notMet := "Met", "Not Met"
	if c.document {
		met, notMet = "Provided", "Not Provided"
	}
	if present(values[c.field]) {
		r.Score += c.weight
		r.Reasons = append(r.Reasons, fmt.Sprintf("✔ %s (%s, +%s%%)", c.notes, met, pct(c.weight)))
		return
	}
	r.Reasons = append(r.Reasons, fmt.Sprintf("✖ %s (%s, +0%%)", c.notes, notMet))
}

func (s *Scorer) mortgagePolicy(values map[string]any, amount float64, r *Result) {
	years, _ := validator.ToFloat(values["loan_term_years"])
	rate, _ := validator.ToFloat(values["annual_interest_rate_percent"])
	income, _ := validator.ToFloat(values["borrower_gross_monthly_income"])
	existing, _ := validator.ToFloat(values["existing_monthly_debt_payments"])

	capText := render.FormatAmount(s.cfg.MortgageMaxAmount)
	if amount <= s.cfg.MortgageMaxAmount {
		r.Score += 5
		r.Reasons = append(r.Reasons, fmt.Sprintf("✔ Loan Amount (%s XAF) is within Union Policy (%s XAF cap). (+5%%)", whole(amount), capText))
	} else {
		r.Reasons = append(r.Reasons, fmt.Sprintf("✖ Loan Amount (%s XAF) exceeds Union Policy (%s XAF cap). (+0%%)", whole(amount), capText))
	}

	if years <= s.cfg.MortgageMaxYears {
		r.Score += 5
		r.Reasons = append(r.Reasons, fmt.Sprintf("✔ Loan Duration (%s years) is within Union Policy (%s years max). (+5%%)", pct(years), pct(s.cfg.MortgageMaxYears)))
	} else {
		r.Reasons = append(r.Reasons, fmt.Sprintf("✖ Loan Duration (%s years) exceeds Union Policy (%s years max). (+0%%)", pct(years), pct(s.cfg.MortgageMaxYears)))
	}

	r.MonthlyPayment = MonthlyPayment(amount, rate, years)
	r.TotalMonthlyDebt = r.MonthlyPayment + existing
	r.EstimatedNetIncome = income * s.cfg.NetIncomeFactor

	maxPct := pct(s.cfg.MaxDTIRatio * 100)
	if r.EstimatedNetIncome > 0 {
		r.DTIRatio = r.TotalMonthlyDebt / r.EstimatedNetIncome
		dti := fmt.Sprintf("%.1f%%", r.DTIRatio*100)
		if r.DTIRatio <= s.cfg.MaxDTIRatio {
			r.Score += 10
			r.Reasons = append(r.Reasons, fmt.Sprintf("✔ Monthly Repayment (%s XAF) is within %s%% of Estimated Net Income (%s XAF). DTI: %s. (+10%%)",
				whole(r.TotalMonthlyDebt), maxPct, whole(r.EstimatedNetIncome), dti))
		} else {
			r.Reasons = append(r.Reasons, fmt.Sprintf("✖ Monthly Repayment (%s XAF) exceeds %s%% of Estimated Net Income (%s XAF). DTI: %s. (+0%%)",
				whole(r.TotalMonthlyDebt), maxPct, whole(r.EstimatedNetIncome), dti))
		}
	} else {
		r.Reasons = append(r.Reasons, "✖ Cannot calculate repayment affordability: Estimated Net Income is zero. (+0%)")
	}

	if income > 0 {
		r.LoanToAnnualIncomeRatio = amount / (income * 12)
	}
}

func (s *Scorer) salaryPolicy(_ map[string]any, amount float64, r *Result) {
	capText := render.FormatAmount(s.cfg.SalaryMaxAmount)
	if amount <= s.cfg.SalaryMaxAmount {
		r.Score += 15
		r.Reasons = append(r.Reasons, fmt.Sprintf("✔ Loan Amount (%s XAF) is within %s XAF per Union Policy. (+15%%)", whole(amount), capText))
		return
	}
	r.Reasons = append(r.Reasons, fmt.Sprintf("✖ Loan Amount (%s XAF) exceeds %s XAF per Union Policy. (+0%%)", whole(amount), capText))
}

func (s *Scorer) decide(score float64) Decision {
	switch {
	case score >= s.cfg.ApprovedThreshold:
		return DecisionApproved
	case score >= s.cfg.ReviewThreshold:
		return DecisionBoardReview
	default:
		return DecisionRejected
	}
}

// MonthlyPayment is the annuity installment; a zero rate splits the principal evenly.
func MonthlyPayment(principal, annualRatePercent, years float64) float64 {
	n := years * 12
	if n <= 0 {
		return 0
	}
	if annualRatePercent == 0 {
		return principal / n
	}
	r := annualRatePercent / 100 / 12
	f := math.Pow(1+r, n)
	if f == 1 {
		return principal / n
	}
	return principal * r * f / (f - 1)
}

// FullKYC reports whether every KYC field carries a value.
func FullKYC(values map[string]any) bool {
	for _, name := range fields.KYCFieldNames {
		if validator.IsEmpty(values[name]) {
			return false
		}
	}
	return true
}

func present(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		if x == "false" || x == "off" {
			return false
		}
	case fields.FileRef:
		return x.Name != ""
	case *fields.FileRef:
		return x != nil && x.Name != ""
	}
	return !validator.IsEmpty(v)
}

func whole(v float64) string { return render.FormatAmount(math.Round(v)) }

func pct(v float64) string { return render.FormatAmount(v) }
