package claim

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/lunch-claims/internal/domain/entity"
)

// BillSummary is one row of the bill summary shown before submission
type BillSummary struct {
	Filename   string          `json:"filename"`
	Restaurant string          `json:"restaurant"`
	Date       string          `json:"date"`
	Cost       decimal.Decimal `json:"cost"`
}

// ReconciledBill is the aggregate of all bills in a claim
type ReconciledBill struct {
	AggregateCost decimal.Decimal `json:"aggregate_cost"`
	Bills         []BillSummary   `json:"bills"`
}

// Reconciler cross-checks the declared total and bill dates against extracted data
type Reconciler struct {
	policy Policy
}

// NewReconciler creates a reconciler for the given policy
func NewReconciler(policy Policy) *Reconciler {
	return &Reconciler{policy: policy}
}

// Reconcile aggregates the bills and checks them against the entered amount and order date.
// A bill with a zero or negative total counts as unreadable.
// Bill dates are checked fail-fast: the first offending bill is reported.
func (r *Reconciler) Reconcile(entered decimal.Decimal, bills []entity.BillExtraction, orderDate time.Time) (*ReconciledBill, error) {
	for i := range bills {
		if bills[i].Failed() {
			return nil, &ExtractionFailedError{Filename: bills[i].Filename, Err: bills[i].Err}
		}
		if !bills[i].Total.IsPositive() {
			return nil, &ExtractionFailedError{Filename: bills[i].Filename, Err: ErrNonPositiveTotal}
		}
	}

	result := &ReconciledBill{AggregateCost: decimal.Zero, Bills: make([]BillSummary, 0, len(bills))}
	for _, b := range bills {
		result.AggregateCost = result.AggregateCost.Add(b.Total)
		restaurant := b.RestaurantName
		if restaurant == "" {
			restaurant = "N/A"
		}
		result.Bills = append(result.Bills, BillSummary{
			Filename:   b.Filename,
			Restaurant: restaurant,
			Date:       b.Date,
			Cost:       b.Total,
		})
	}

	if entered.Sub(result.AggregateCost).Abs().GreaterThanOrEqual(r.policy.AmountTolerance) {
		return nil, &AmountMismatchError{Entered: entered, Aggregate: result.AggregateCost}
	}

	expected := Day(orderDate)
	for _, b := range bills {
		parsed, ok := ParseBillDate(b.Date)
		if !ok {
			return nil, &BillDateMismatchError{Filename: b.Filename, Expected: expected, Actual: b.Date}
		}
		if !parsed.Equal(expected) {
			return nil, &BillDateMismatchError{
				Filename: b.Filename,
				Expected: expected,
				Actual:   parsed.Format("2006/01/02"),
			}
		}
	}

	return result, nil
}
