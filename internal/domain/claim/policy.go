package claim

import "github.com/shopspring/decimal"

// Policy holds the reimbursement rules that are configuration rather than code
type Policy struct {
	RatePerPerson   decimal.Decimal // per-head allowance
	ClaimWindowDays int             // days after the order date a claim may still be filed
	AmountTolerance decimal.Decimal // declared vs extracted totals must differ by less than this
	MaxBills        int             // upper bound on bills per claim
}

// DefaultPolicy returns the standard lunch policy: 400.00 per person, 15 days, 1.00 tolerance, 5 bills
func DefaultPolicy() Policy {
	return Policy{
		RatePerPerson:   decimal.NewFromInt(400),
		ClaimWindowDays: 15,
		AmountTolerance: decimal.NewFromInt(1),
		MaxBills:        5,
	}
}

// MaxAllowed returns the cap for a group of the given size
func (p Policy) MaxAllowed(groupSize int) decimal.Decimal {
	if groupSize < 1 {
		return decimal.Zero
	}
	return p.RatePerPerson.Mul(decimal.NewFromInt(int64(groupSize)))
}

// Reimbursable returns min(aggregate, rate × groupSize)
func (p Policy) Reimbursable(aggregate decimal.Decimal, groupSize int) decimal.Decimal {
	return decimal.Min(aggregate, p.MaxAllowed(groupSize))
}
