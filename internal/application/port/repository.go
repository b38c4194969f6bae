package port

import (
	"context"
	"time"

	"github.com/garyjia/lunch-claims/internal/domain/entity"
)

// EmployeeRepository reads the employee master
type EmployeeRepository interface {
	List(ctx context.Context) ([]*entity.Employee, error)
	GetByID(ctx context.Context, id string) (*entity.Employee, error)
}

// AttendanceRepository reads attendance records
type AttendanceRepository interface {
	IsPresent(ctx context.Context, employeeID string, date time.Time) (bool, error)
}

// ClaimRepository persists claims. Records are never deleted.
type ClaimRepository interface {
	// AppendClaim inserts a claim, its member index and its extraction audit rows atomically.
	// It returns claim.ErrDuplicateBillNumber or *claim.DuplicateClaimError when a unique key is hit.
	AppendClaim(ctx context.Context, record *entity.ClaimRecord, extractions []*entity.ExtractedBillRecord) error

	// UpdateStatus sets the status and returns the previous one
	UpdateStatus(ctx context.Context, billNumber string, status entity.ClaimStatus) (entity.ClaimStatus, error)

	GetByBillNumber(ctx context.Context, billNumber string) (*entity.ClaimRecord, error)
	ListByOrderDate(ctx context.Context, orderDate time.Time) ([]*entity.ClaimRecord, error)
	ListByClaimant(ctx context.Context, claimantID string, orderDate time.Time) ([]*entity.ClaimRecord, error)
	ListAll(ctx context.Context) ([]*entity.ClaimRecord, error)
	GetStatusHistory(ctx context.Context, billNumber string) ([]*entity.StatusChange, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
