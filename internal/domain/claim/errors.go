package claim

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/lunch-claims/internal/domain/entity"
)

// Error codes reported to clients and used as metric labels
const (
	CodeInvalidDateWindow  = "invalid_date_window"
	CodeClaimWindowExpired = "claim_window_expired"
	CodeUnknownEmployee    = "unknown_employee"
	CodeAbsentMember       = "absent_member"
	CodeNoEligibleMembers  = "no_eligible_members"
	CodeDuplicateClaim     = "duplicate_claim"
	CodeDuplicateBill      = "duplicate_bill_number"
	CodeExtractionFailed   = "extraction_failed"
	CodeAmountMismatch     = "amount_mismatch"
	CodeBillDateMismatch   = "bill_date_mismatch"
	CodeInvalidRequest     = "invalid_request"
	CodeNotFound           = "not_found"
	CodePersistence        = "persistence_error"
	CodeUnknown            = "unknown"
)

var (
	// ErrInvalidDateWindow is returned when the claim date precedes the order date
	ErrInvalidDateWindow = errors.New("claim date cannot be before order date")

	// ErrClaimWindowExpired is returned when the claim is filed after the allowed window
	ErrClaimWindowExpired = errors.New("claim window has expired")

	// ErrNoEligibleMembers is returned when no group member remains after validation
	ErrNoEligibleMembers = errors.New("no eligible group members")

	// ErrDuplicateBillNumber is returned when the bill number is already on file
	ErrDuplicateBillNumber = errors.New("bill number already claimed")

	// ErrClaimNotFound is returned when no claim has the given bill number
	ErrClaimNotFound = errors.New("claim not found")

	// ErrEmployeeNotFound is returned when no employee has the given id
	ErrEmployeeNotFound = errors.New("employee not found")

	// ErrNonPositiveTotal marks a bill whose extracted total is zero or negative
	ErrNonPositiveTotal = errors.New("bill total must be greater than zero")

	// ErrInvalidRequest wraps malformed submissions (missing bill number, bad amount, bill count)
	ErrInvalidRequest = errors.New("invalid claim request")
)

// UnknownEmployeeError lists ids that are not in the employee directory
type UnknownEmployeeError struct {
	IDs []string
}

func (e *UnknownEmployeeError) Error() string {
	return fmt.Sprintf("unknown employee ids: %s", strings.Join(e.IDs, ", "))
}

// AbsentMemberError lists members who were not present on the order date
type AbsentMemberError struct {
	Date  time.Time
	Names []string
}

func (e *AbsentMemberError) Error() string {
	return fmt.Sprintf("the following employees were absent on %s and are not eligible: %s",
		e.Date.Format(entity.DateLayout), strings.Join(e.Names, ", "))
}

// DuplicateClaimError lists members who already appear in a claim for the same order date
type DuplicateClaimError struct {
	Date  time.Time
	Names []string
}

func (e *DuplicateClaimError) Error() string {
	return fmt.Sprintf("the following employees already claimed for reimbursement on %s: %s",
		e.Date.Format(entity.DateLayout), strings.Join(e.Names, ", "))
}

// ExtractionFailedError is returned when a bill could not be read
type ExtractionFailedError struct {
	Filename string
	Err      error
}

func (e *ExtractionFailedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("could not extract data from %s: %v", e.Filename, e.Err)
	}
	return fmt.Sprintf("could not extract data from %s", e.Filename)
}

func (e *ExtractionFailedError) Unwrap() error { return e.Err }

// AmountMismatchError is returned when the declared total disagrees with the bills
type AmountMismatchError struct {
	Entered   decimal.Decimal
	Aggregate decimal.Decimal
}

func (e *AmountMismatchError) Error() string {
	return fmt.Sprintf("total bill amount mismatch: entered %s, extracted %s",
		entity.FormatAmount(e.Entered), entity.FormatAmount(e.Aggregate))
}

// BillDateMismatchError is returned for the first bill whose date is not the order date
type BillDateMismatchError struct {
	Filename string
	Expected time.Time
	Actual   string
}

func (e *BillDateMismatchError) Error() string {
	return fmt.Sprintf("bill date mismatch in file %s: order date %s, bill date %s",
		e.Filename, e.Expected.Format("2006/01/02"), e.Actual)
}

// PersistenceError wraps data-access failures
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// CodeOf maps an error from the claim pipeline to a stable code
func CodeOf(err error) string {
	if err == nil {
		return ""
	}

	var (
		unknown   *UnknownEmployeeError
		absent    *AbsentMemberError
		duplicate *DuplicateClaimError
		extract   *ExtractionFailedError
		amount    *AmountMismatchError
		billDate  *BillDateMismatchError
		persist   *PersistenceError
	)

	switch {
	case errors.Is(err, ErrInvalidDateWindow):
		return CodeInvalidDateWindow
	case errors.Is(err, ErrClaimWindowExpired):
		return CodeClaimWindowExpired
	case errors.Is(err, ErrNoEligibleMembers):
		return CodeNoEligibleMembers
	case errors.Is(err, ErrDuplicateBillNumber):
		return CodeDuplicateBill
	case errors.Is(err, ErrInvalidRequest):
		return CodeInvalidRequest
	case errors.Is(err, ErrClaimNotFound), errors.Is(err, ErrEmployeeNotFound):
		return CodeNotFound
	case errors.As(err, &unknown):
		return CodeUnknownEmployee
	case errors.As(err, &absent):
		return CodeAbsentMember
	case errors.As(err, &duplicate):
		return CodeDuplicateClaim
	case errors.As(err, &extract):
		return CodeExtractionFailed
	case errors.As(err, &amount):
		return CodeAmountMismatch
	case errors.As(err, &billDate):
		return CodeBillDateMismatch
	case errors.As(err, &persist):
		return CodePersistence
	}
	return CodeUnknown
}
