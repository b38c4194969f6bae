package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/lunch-claims/internal/application/port"
	"github.com/garyjia/lunch-claims/internal/domain/entity"
	"github.com/garyjia/lunch-claims/pkg/database"
	"go.uber.org/zap"
)

const statusPresent = "present"

// AttendanceRepository implements port.AttendanceRepository
type AttendanceRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewAttendanceRepository creates a new attendance repository
func NewAttendanceRepository(db *database.DB, logger *zap.Logger) *AttendanceRepository {
	return &AttendanceRepository{
		db:     db,
		logger: logger,
	}
}

// IsPresent reports whether the employee is marked present on date.
// A missing record counts as absent.
func (r *AttendanceRepository) IsPresent(ctx context.Context, employeeID string, date time.Time) (bool, error) {
	query := `SELECT status FROM attendance WHERE employee_id = ? AND attendance_date = ?`

	var status string
	err := database.ExecutorFrom(ctx, r.db.DB).
		QueryRowContext(ctx, query, employeeID, date.Format(entity.DateLayout)).
		Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		r.logger.Error("Failed to read attendance",
			zap.String("employee_id", employeeID),
			zap.String("date", date.Format(entity.DateLayout)),
			zap.Error(err))
		return false, fmt.Errorf("failed to read attendance: %w", err)
	}

	return strings.EqualFold(strings.TrimSpace(status), statusPresent), nil
}

// Record stores an attendance status for one employee and day
func (r *AttendanceRepository) Record(ctx context.Context, rec entity.AttendanceRecord) error {
	status := "Absent"
	if rec.Present {
		status = "Present"
	}

	query := `INSERT INTO attendance (employee_id, attendance_date, status) VALUES (?, ?, ?)`
	switch r.db.Driver() {
	case database.DriverMySQL:
		query += ` ON DUPLICATE KEY UPDATE status = VALUES(status)`
	default:
		query += ` ON CONFLICT(employee_id, attendance_date) DO UPDATE SET status = excluded.status`
	}

	_, err := database.ExecutorFrom(ctx, r.db.DB).ExecContext(ctx, query,
		rec.EmployeeID, rec.Date.Format(entity.DateLayout), status)
	if err != nil {
		return fmt.Errorf("failed to record attendance: %w", err)
	}
	return nil
}

// Verify interface compliance
var _ port.AttendanceRepository = (*AttendanceRepository)(nil)
