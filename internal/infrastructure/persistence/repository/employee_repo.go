package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/garyjia/lunch-claims/internal/application/port"
	"github.com/garyjia/lunch-claims/internal/domain/claim"
	"github.com/garyjia/lunch-claims/internal/domain/entity"
	"github.com/garyjia/lunch-claims/pkg/database"
	"go.uber.org/zap"
)

// EmployeeRepository implements port.EmployeeRepository
type EmployeeRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewEmployeeRepository creates a new employee repository
func NewEmployeeRepository(db *database.DB, logger *zap.Logger) *EmployeeRepository {
	return &EmployeeRepository{
		db:     db,
		logger: logger,
	}
}

const employeeColumns = `employee_id, name, designation, project, manager, email, contact`

// List returns all employees ordered by name
func (r *EmployeeRepository) List(ctx context.Context) ([]*entity.Employee, error) {
	query := `SELECT ` + employeeColumns + ` FROM employees ORDER BY name ASC, employee_id ASC`

	rows, err := database.ExecutorFrom(ctx, r.db.DB).QueryContext(ctx, query)
	if err != nil {
		r.logger.Error("Failed to list employees", zap.Error(err))
		return nil, fmt.Errorf("failed to list employees: %w", err)
	}
	defer rows.Close()

	var employees []*entity.Employee
	for rows.Next() {
		var e entity.Employee
		if err := rows.Scan(&e.ID, &e.Name, &e.Designation, &e.Project, &e.Manager, &e.Email, &e.Contact); err != nil {
			return nil, fmt.Errorf("failed to scan employee: %w", err)
		}
		employees = append(employees, &e)
	}
	return employees, rows.Err()
}

// GetByID returns one employee or claim.ErrEmployeeNotFound
func (r *EmployeeRepository) GetByID(ctx context.Context, id string) (*entity.Employee, error) {
	query := `SELECT ` + employeeColumns + ` FROM employees WHERE employee_id = ?`

	var e entity.Employee
	err := database.ExecutorFrom(ctx, r.db.DB).QueryRowContext(ctx, query, id).
		Scan(&e.ID, &e.Name, &e.Designation, &e.Project, &e.Manager, &e.Email, &e.Contact)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, claim.ErrEmployeeNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get employee", zap.String("employee_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get employee: %w", err)
	}
	return &e, nil
}

// Upsert creates or replaces an employee record
func (r *EmployeeRepository) Upsert(ctx context.Context, e *entity.Employee) error {
	query := `INSERT INTO employees (` + employeeColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?)`
	switch r.db.Driver() {
	case database.DriverMySQL:
		query += ` ON DUPLICATE KEY UPDATE name = VALUES(name), designation = VALUES(designation),
			project = VALUES(project), manager = VALUES(manager), email = VALUES(email), contact = VALUES(contact)`
	default:
		query += ` ON CONFLICT(employee_id) DO UPDATE SET name = excluded.name, designation = excluded.designation,
			project = excluded.project, manager = excluded.manager, email = excluded.email, contact = excluded.contact`
	}

	_, err := database.ExecutorFrom(ctx, r.db.DB).ExecContext(ctx, query,
		e.ID, e.Name, e.Designation, e.Project, e.Manager, e.Email, e.Contact)
	if err != nil {
		r.logger.Error("Failed to upsert employee", zap.String("employee_id", e.ID), zap.Error(err))
		return fmt.Errorf("failed to upsert employee: %w", err)
	}
	return nil
}

// Verify interface compliance
var _ port.EmployeeRepository = (*EmployeeRepository)(nil)
