package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/lunch-claims/internal/application/port"
	"github.com/garyjia/lunch-claims/internal/domain/claim"
	"github.com/garyjia/lunch-claims/internal/domain/entity"
	"github.com/garyjia/lunch-claims/pkg/database"
	"go.uber.org/zap"
)

// ClaimRepository implements port.ClaimRepository
type ClaimRepository struct {
	db     *database.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewClaimRepository creates a new claim repository
func NewClaimRepository(db *database.DB, logger *zap.Logger) *ClaimRepository {
	return &ClaimRepository{
		db:     db,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

const claimColumns = `bill_number, order_date, claim_date, claimant_id, group_members,
	bill_amount_cents, reimbursed_amount_cents, bill_files, status, created_at, updated_at`

// AppendClaim inserts the claim, one claim_members row per member and the extraction
// audit rows in a single transaction. The record is stored as Pending.
func (r *ClaimRepository) AppendClaim(ctx context.Context, record *entity.ClaimRecord, extractions []*entity.ExtractedBillRecord) error {
	members, err := claim.EncodeGroupMembers(record.GroupMembers)
	if err != nil {
		return &claim.PersistenceError{Op: "encode group members", Err: err}
	}
	files, err := json.Marshal(nonNil(record.BillFilePaths))
	if err != nil {
		return &claim.PersistenceError{Op: "encode bill files", Err: err}
	}

	now := r.now()
	orderDate := record.OrderDate.Format(entity.DateLayout)

	err = r.db.WithTransaction(ctx, func(txCtx context.Context) error {
		exec := database.ExecutorFrom(txCtx, r.db.DB)

		if err := r.checkBillNumber(txCtx, exec, record.BillNumber); err != nil {
			return err
		}
		if err := r.checkMembers(txCtx, exec, orderDate, record.GroupMembers); err != nil {
			return err
		}

		_, err := exec.ExecContext(txCtx, `
			INSERT INTO claim_history (`+claimColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			record.BillNumber,
			orderDate,
			record.ClaimDate.Format(entity.DateLayout),
			record.ClaimantID,
			members,
			entity.AmountCents(record.BillAmount),
			entity.AmountCents(record.ReimbursedAmount),
			string(files),
			string(entity.ClaimStatusPending),
			now,
			now,
		)
		if err != nil {
			if database.IsUniqueViolation(err) {
				return claim.ErrDuplicateBillNumber
			}
			return fmt.Errorf("failed to insert claim: %w", err)
		}

		for _, m := range record.GroupMembers {
			_, err := exec.ExecContext(txCtx,
				`INSERT INTO claim_members (order_date, employee_id, bill_number) VALUES (?, ?, ?)`,
				orderDate, m.ID, record.BillNumber)
			if err != nil {
				if database.IsUniqueViolation(err) {
					return &claim.DuplicateClaimError{Date: record.OrderDate, Names: []string{m.Name}}
				}
				return fmt.Errorf("failed to insert claim member: %w", err)
			}
		}

		for _, x := range extractions {
			if err := r.insertExtraction(txCtx, exec, record.BillNumber, x, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return r.wrap("append claim", err)
	}

	record.Status = entity.ClaimStatusPending
	record.CreatedAt = now
	record.UpdatedAt = now
	record.RawGroupMembers = members

	r.logger.Info("Claim stored",
		zap.String("bill_number", record.BillNumber),
		zap.String("order_date", orderDate),
		zap.Int("members", len(record.GroupMembers)))
	return nil
}

func (r *ClaimRepository) checkBillNumber(ctx context.Context, exec database.Executor, billNumber string) error {
	var exists int
	err := exec.QueryRowContext(ctx, `SELECT 1 FROM claim_history WHERE bill_number = ?`, billNumber).Scan(&exists)
	if err == nil {
		return claim.ErrDuplicateBillNumber
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to check bill number: %w", err)
	}
	return nil
}

// checkMembers reports every member already indexed for the order date
func (r *ClaimRepository) checkMembers(ctx context.Context, exec database.Executor, orderDate string, members []entity.GroupMember) error {
	if len(members) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(members)), ", ")
	args := make([]interface{}, 0, len(members)+1)
	args = append(args, orderDate)
	for _, m := range members {
		args = append(args, m.ID)
	}

	rows, err := exec.QueryContext(ctx,
		`SELECT employee_id FROM claim_members WHERE order_date = ? AND employee_id IN (`+placeholders+`)`,
		args...)
	if err != nil {
		return fmt.Errorf("failed to check claim members: %w", err)
	}
	defer rows.Close()

	taken := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("failed to scan claim member: %w", err)
		}
		taken[id] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if len(taken) == 0 {
		return nil
	}

	var names []string
	for _, m := range members {
		if taken[m.ID] {
			names = append(names, m.Name)
		}
	}
	date, _ := time.Parse(entity.DateLayout, orderDate)
	return &claim.DuplicateClaimError{Date: date, Names: names}
}

func (r *ClaimRepository) insertExtraction(ctx context.Context, exec database.Executor, claimBill string, x *entity.ExtractedBillRecord, now time.Time) error {
	_, err := exec.ExecContext(ctx, `
		INSERT INTO extracted_bills (
			id, claim_bill_number, filename, restaurant_name, bill_number,
			bill_date, total_cents, raw_response, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		x.ID, claimBill, x.Filename, x.RestaurantName, x.BillNumber,
		x.BillDate, entity.AmountCents(x.Total), x.RawResponse, now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert extracted bill %s: %w", x.Filename, err)
	}
	x.ClaimBillNo = claimBill
	x.CreatedAt = now
	return nil
}

// UpdateStatus sets the status of one claim, records the transition and returns the previous status
func (r *ClaimRepository) UpdateStatus(ctx context.Context, billNumber string, status entity.ClaimStatus) (entity.ClaimStatus, error) {
	if !status.IsValid() {
		return "", fmt.Errorf("%w: unknown status %q", claim.ErrInvalidRequest, status)
	}

	var previous entity.ClaimStatus
	now := r.now()

	err := r.db.WithTransaction(ctx, func(txCtx context.Context) error {
		exec := database.ExecutorFrom(txCtx, r.db.DB)

		var current string
		err := exec.QueryRowContext(txCtx,
			`SELECT status FROM claim_history WHERE bill_number = ?`, billNumber).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return claim.ErrClaimNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to read claim status: %w", err)
		}
		previous = entity.ClaimStatus(current)

		if _, err := exec.ExecContext(txCtx,
			`UPDATE claim_history SET status = ?, updated_at = ? WHERE bill_number = ?`,
			string(status), now, billNumber); err != nil {
			return fmt.Errorf("failed to update claim status: %w", err)
		}

		if _, err := exec.ExecContext(txCtx, `
			INSERT INTO claim_status_history (bill_number, previous_status, new_status, changed_at)
			VALUES (?, ?, ?, ?)`,
			billNumber, current, string(status), now); err != nil {
			return fmt.Errorf("failed to record status change: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", r.wrap("update status", err)
	}

	r.logger.Info("Claim status updated",
		zap.String("bill_number", billNumber),
		zap.String("previous_status", string(previous)),
		zap.String("new_status", string(status)))
	return previous, nil
}

// GetByBillNumber returns one claim or claim.ErrClaimNotFound
func (r *ClaimRepository) GetByBillNumber(ctx context.Context, billNumber string) (*entity.ClaimRecord, error) {
	records, err := r.query(ctx, `WHERE bill_number = ?`, billNumber)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, claim.ErrClaimNotFound
	}
	return records[0], nil
}

// ListByOrderDate returns every claim for an order date, oldest first
func (r *ClaimRepository) ListByOrderDate(ctx context.Context, orderDate time.Time) ([]*entity.ClaimRecord, error) {
	return r.query(ctx, `WHERE order_date = ? ORDER BY created_at ASC`, orderDate.Format(entity.DateLayout))
}

// ListByClaimant returns the claims a claimant filed for an order date
func (r *ClaimRepository) ListByClaimant(ctx context.Context, claimantID string, orderDate time.Time) ([]*entity.ClaimRecord, error) {
	return r.query(ctx, `WHERE claimant_id = ? AND order_date = ? ORDER BY created_at ASC`,
		claimantID, orderDate.Format(entity.DateLayout))
}

// ListAll returns every claim, newest claim date first
func (r *ClaimRepository) ListAll(ctx context.Context) ([]*entity.ClaimRecord, error) {
	return r.query(ctx, `ORDER BY claim_date DESC, created_at DESC`)
}

// GetStatusHistory returns the status transitions of a claim in the order they happened
func (r *ClaimRepository) GetStatusHistory(ctx context.Context, billNumber string) ([]*entity.StatusChange, error) {
	rows, err := database.ExecutorFrom(ctx, r.db.DB).QueryContext(ctx, `
		SELECT bill_number, previous_status, new_status, changed_at
		FROM claim_status_history
		WHERE bill_number = ?
		ORDER BY id ASC`, billNumber)
	if err != nil {
		return nil, r.wrap("get status history", err)
	}
	defer rows.Close()

	var changes []*entity.StatusChange
	for rows.Next() {
		var (
			c              entity.StatusChange
			previous, next string
		)
		if err := rows.Scan(&c.BillNumber, &previous, &next, &c.ChangedAt); err != nil {
			return nil, r.wrap("scan status history", err)
		}
		c.PreviousStatus = entity.ClaimStatus(previous)
		c.NewStatus = entity.ClaimStatus(next)
		changes = append(changes, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, r.wrap("get status history", err)
	}
	return changes, nil
}

func (r *ClaimRepository) query(ctx context.Context, clause string, args ...interface{}) ([]*entity.ClaimRecord, error) {
	rows, err := database.ExecutorFrom(ctx, r.db.DB).QueryContext(ctx,
		`SELECT `+claimColumns+` FROM claim_history `+clause, args...)
	if err != nil {
		r.logger.Error("Failed to query claims", zap.Error(err))
		return nil, r.wrap("query claims", err)
	}
	defer rows.Close()

	var records []*entity.ClaimRecord
	for rows.Next() {
		record, err := r.scanClaim(rows)
		if err != nil {
			return nil, r.wrap("scan claim", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, r.wrap("query claims", err)
	}
	return records, nil
}

func (r *ClaimRepository) scanClaim(rows *sql.Rows) (*entity.ClaimRecord, error) {
	var (
		record               entity.ClaimRecord
		orderDate, claimDate string
		billFiles, status    string
		billCents, reimCents int64
	)

	err := rows.Scan(
		&record.BillNumber,
		&orderDate,
		&claimDate,
		&record.ClaimantID,
		&record.RawGroupMembers,
		&billCents,
		&reimCents,
		&billFiles,
		&status,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if record.OrderDate, err = time.Parse(entity.DateLayout, orderDate); err != nil {
		return nil, fmt.Errorf("invalid order_date %q on %s: %w", orderDate, record.BillNumber, err)
	}
	if record.ClaimDate, err = time.Parse(entity.DateLayout, claimDate); err != nil {
		return nil, fmt.Errorf("invalid claim_date %q on %s: %w", claimDate, record.BillNumber, err)
	}

	record.BillAmount = entity.AmountFromCents(billCents)
	record.ReimbursedAmount = entity.AmountFromCents(reimCents)
	record.Status = entity.ClaimStatus(status)

	if members, ok := claim.DecodeGroupMembersTolerant(record.RawGroupMembers); ok {
		record.GroupMembers = members
	} else {
		r.logger.Warn("Malformed group_members on stored claim",
			zap.String("bill_number", record.BillNumber))
	}

	if billFiles != "" {
		if err := json.Unmarshal([]byte(billFiles), &record.BillFilePaths); err != nil {
			r.logger.Warn("Malformed bill_files on stored claim",
				zap.String("bill_number", record.BillNumber), zap.Error(err))
		}
	}

	return &record, nil
}

// wrap keeps domain errors intact and turns everything else into a PersistenceError
func (r *ClaimRepository) wrap(op string, err error) error {
	if claim.CodeOf(err) != claim.CodeUnknown {
		return err
	}
	return &claim.PersistenceError{Op: op, Err: err}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// Verify interface compliance
var _ port.ClaimRepository = (*ClaimRepository)(nil)
