package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/garyjia/lunch-claims/internal/application/port"
	"github.com/garyjia/lunch-claims/internal/domain/entity"
	"github.com/garyjia/lunch-claims/internal/observability/metrics"
)

// StatusRow is one admin decision
type StatusRow struct {
	BillNumber string `json:"bill_number"`
	Approve    bool   `json:"approve"`
	Reject     bool   `json:"reject"`
}

// AppliedTransition is a status that was written
type AppliedTransition struct {
	BillNumber string             `json:"bill_number"`
	Status     entity.ClaimStatus `json:"status"`
}

// RowError is a row whose update failed
type RowError struct {
	BillNumber string `json:"bill_number"`
	Reason     string `json:"reason"`
}

// BatchResult reports what happened to each row of a batch
type BatchResult struct {
	Applied []AppliedTransition `json:"applied"`
	Skipped []string            `json:"skipped"`
	Errors  []RowError          `json:"errors"`
}

// ApprovalService applies admin decisions to claims
type ApprovalService interface {
	Resolve(ctx context.Context, rows []StatusRow) *BatchResult
}

type approvalServiceImpl struct {
	claims    port.ClaimRepository
	employees port.EmployeeRepository
	notifier  port.StatusNotifier
	metrics   *metrics.ClaimMetrics
	logger    *zap.Logger
}

// NewApprovalService creates an ApprovalService. notifier and m may be nil.
func NewApprovalService(
	claims port.ClaimRepository,
	employees port.EmployeeRepository,
	notifier port.StatusNotifier,
	m *metrics.ClaimMetrics,
	logger *zap.Logger,
) ApprovalService {
	return &approvalServiceImpl{
		claims:    claims,
		employees: employees,
		notifier:  notifier,
		metrics:   m,
		logger:    logger,
	}
}

// DesiredStatus maps the approve/reject flags to a status.
// Both flags set is ambiguous and reports false. Neither flag resets to Pending.
func DesiredStatus(row StatusRow) (entity.ClaimStatus, bool) {
	switch {
	case row.Approve && row.Reject:
		return "", false
	case row.Approve:
		return entity.ClaimStatusApproved, true
	case row.Reject:
		return entity.ClaimStatusRejected, true
	default:
		return entity.ClaimStatusPending, true
	}
}

// Resolve applies each row independently; one failing row never stops the batch
func (s *approvalServiceImpl) Resolve(ctx context.Context, rows []StatusRow) *BatchResult {
	result := &BatchResult{
		Applied: []AppliedTransition{},
		Skipped: []string{},
		Errors:  []RowError{},
	}

	for _, row := range rows {
		billNumber := strings.TrimSpace(row.BillNumber)
		if billNumber == "" {
			continue
		}

		status, ok := DesiredStatus(row)
		if !ok {
			s.logger.Warn("Both approve and reject set, row skipped", zap.String("bill_number", billNumber))
			s.metrics.ObserveStatusUpdate("ambiguous", metrics.ResultSkipped)
			result.Skipped = append(result.Skipped, billNumber)
			continue
		}

		previous, err := s.claims.UpdateStatus(ctx, billNumber, status)
		if err != nil {
			s.logger.Error("Failed to update claim status",
				zap.String("bill_number", billNumber),
				zap.String("status", string(status)),
				zap.Error(err))
			s.metrics.ObserveStatusUpdate(string(status), metrics.ResultError)
			result.Errors = append(result.Errors, RowError{BillNumber: billNumber, Reason: err.Error()})
			continue
		}

		s.metrics.ObserveStatusUpdate(string(status), metrics.ResultApplied)
		result.Applied = append(result.Applied, AppliedTransition{BillNumber: billNumber, Status: status})

		if previous != status {
			s.notify(ctx, billNumber, previous)
		}
	}

	s.logger.Info("Status batch processed",
		zap.Int("rows", len(rows)),
		zap.Int("applied", len(result.Applied)),
		zap.Int("skipped", len(result.Skipped)),
		zap.Int("errors", len(result.Errors)))
	return result
}

// notify is best effort: failures are logged and never change the batch result
func (s *approvalServiceImpl) notify(ctx context.Context, billNumber string, previous entity.ClaimStatus) {
	if s.notifier == nil {
		return
	}

	record, err := s.claims.GetByBillNumber(ctx, billNumber)
	if err != nil {
		s.logger.Warn("Cannot load claim for notification", zap.String("bill_number", billNumber), zap.Error(err))
		return
	}
	claimant, err := s.employees.GetByID(ctx, record.ClaimantID)
	if err != nil {
		s.logger.Warn("Cannot load claimant for notification",
			zap.String("bill_number", billNumber),
			zap.String("claimant_id", record.ClaimantID),
			zap.Error(err))
		return
	}

	if err := s.notifier.NotifyStatusChange(ctx, claimant, record, previous); err != nil {
		s.logger.Warn("Status notification failed", zap.String("bill_number", billNumber), zap.Error(err))
	}
}
