package repository

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"loan-appraiser/internal/models"
)

// ApprovedCSVHeader is the first row of the approved-loans export.
var ApprovedCSVHeader = []string{
	"S/N", "Account Number", "Name of Member", "Loan Amount (XAF)",
	"Duration (Years)", "Savings Balance (XAF)", "Monthly Installment (XAF)",
}

const notAvailable = "N/A"

// ExportApprovedCSV writes the approved-loans report to w and returns the number of loans.
func (r *Repository) ExportApprovedCSV(ctx context.Context, w io.Writer) (int, error) {
	loans, err := r.ListApproved(ctx)
	if err != nil {
		return 0, err
	}
	if err := WriteApprovedCSV(w, loans); err != nil {
		return 0, err
	}
	return len(loans), nil
}

// WriteApprovedCSV renders loans without thousands separators: whole francs for amounts,
// two decimals for the installment.
func WriteApprovedCSV(w io.Writer, loans []models.ApprovedLoan) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ApprovedCSVHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, l := range loans {
		account := l.AccountNumber
		if account == "" {
			account = notAvailable
		}
		savings := notAvailable
		if l.SavingsBalance != nil {
			savings = strconv.FormatFloat(*l.SavingsBalance, 'f', 0, 64)
		}
		if err := cw.Write([]string{
			strconv.Itoa(l.SerialNumber),
			account,
			l.ApplicantName,
			strconv.FormatFloat(l.LoanAmount, 'f', 0, 64),
			strconv.FormatFloat(l.DurationYears, 'f', -1, 64),
			savings,
			strconv.FormatFloat(l.MonthlyInstallment, 'f', 2, 64),
		}); err != nil {
			return fmt.Errorf("write csv row %d: %w", l.SerialNumber, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
