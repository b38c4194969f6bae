// Package importer loads the employee master and attendance register from an .xlsx workbook.
package importer

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/lunch-claims/internal/application/port"
	"github.com/garyjia/lunch-claims/internal/domain/claim"
	"github.com/garyjia/lunch-claims/internal/domain/entity"
)

// Sheet names expected in the workbook
const (
	EmployeeSheet   = "EmployeeMaster"
	AttendanceSheet = "Attendance"
)

// Directory is the reference data read from a workbook
type Directory struct {
	Employees  []*entity.Employee
	Attendance []entity.AttendanceRecord
}

// EmployeeWriter stores employees
type EmployeeWriter interface {
	Upsert(ctx context.Context, e *entity.Employee) error
}

// AttendanceWriter stores attendance entries
type AttendanceWriter interface {
	Record(ctx context.Context, rec entity.AttendanceRecord) error
}

// ReadDirectory parses both sheets. Columns are located by header name, in any order.
// The attendance sheet is optional.
func ReadDirectory(r io.Reader) (*Directory, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	employees, err := readEmployees(f)
	if err != nil {
		return nil, err
	}

	var attendance []entity.AttendanceRecord
	if idx, _ := f.GetSheetIndex(AttendanceSheet); idx >= 0 {
		if attendance, err = readAttendance(f); err != nil {
			return nil, err
		}
	}

	return &Directory{Employees: employees, Attendance: attendance}, nil
}

func readEmployees(f *excelize.File) ([]*entity.Employee, error) {
	rows, err := f.GetRows(EmployeeSheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s sheet: %w", EmployeeSheet, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s sheet is empty", EmployeeSheet)
	}

	cols := headerIndex(rows[0])
	idCol, ok := cols["employee id"]
	if !ok {
		return nil, fmt.Errorf("%s sheet has no Employee ID column", EmployeeSheet)
	}
	nameCol, ok := cols["employee name"]
	if !ok {
		return nil, fmt.Errorf("%s sheet has no Employee Name column", EmployeeSheet)
	}

	var employees []*entity.Employee
	for _, row := range rows[1:] {
		id := cell(row, idCol)
		if id == "" {
			continue
		}
		employees = append(employees, &entity.Employee{
			ID:          id,
			Name:        cell(row, nameCol),
			Designation: cellByName(row, cols, "designation"),
			Project:     cellByName(row, cols, "project"),
			Manager:     cellByName(row, cols, "reporting manager"),
			Email:       cellByName(row, cols, "email"),
			Contact:     cellByName(row, cols, "contact"),
		})
	}
	return employees, nil
}

func readAttendance(f *excelize.File) ([]entity.AttendanceRecord, error) {
	rows, err := f.GetRows(AttendanceSheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read %s sheet: %w", AttendanceSheet, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	cols := headerIndex(rows[0])
	idCol, okID := cols["employee id"]
	dateCol, okDate := cols["date"]
	statusCol, okStatus := cols["status"]
	if !okID || !okDate || !okStatus {
		return nil, fmt.Errorf("%s sheet needs Employee ID, Date and Status columns", AttendanceSheet)
	}

	var records []entity.AttendanceRecord
	for i, row := range rows[1:] {
		id := cell(row, idCol)
		if id == "" {
			continue
		}
		date, err := parseDate(cell(row, dateCol))
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", AttendanceSheet, i+2, err)
		}
		records = append(records, entity.AttendanceRecord{
			EmployeeID: id,
			Date:       date,
			Present:    strings.EqualFold(cell(row, statusCol), "present"),
		})
	}
	return records, nil
}

// parseDate accepts ISO dates, bill-style dates and Excel date serials
func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse(entity.DateLayout, raw); err == nil {
		return t, nil
	}
	if serial, err := strconv.ParseFloat(raw, 64); err == nil {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid date serial %q: %w", raw, err)
		}
		return claim.Day(t), nil
	}
	if t, ok := claim.ParseBillDate(raw); ok {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid date %q", raw)
}

func headerIndex(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	return cols
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func cellByName(row []string, cols map[string]int, name string) string {
	idx, ok := cols[name]
	if !ok {
		return ""
	}
	return cell(row, idx)
}

// Importer writes a Directory in one transaction
type Importer struct {
	tx         port.TransactionManager
	employees  EmployeeWriter
	attendance AttendanceWriter
	logger     *zap.Logger
}

// NewImporter creates an importer
func NewImporter(tx port.TransactionManager, employees EmployeeWriter, attendance AttendanceWriter, logger *zap.Logger) *Importer {
	return &Importer{tx: tx, employees: employees, attendance: attendance, logger: logger}
}

// Import upserts every employee and attendance entry; nothing is written if any row fails
func (im *Importer) Import(ctx context.Context, dir *Directory) error {
	err := im.tx.WithTransaction(ctx, func(ctx context.Context) error {
		for _, e := range dir.Employees {
			if err := im.employees.Upsert(ctx, e); err != nil {
				return err
			}
		}
		for _, rec := range dir.Attendance {
			if err := im.attendance.Record(ctx, rec); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to import directory: %w", err)
	}

	im.logger.Info("Directory imported",
		zap.Int("employees", len(dir.Employees)),
		zap.Int("attendance", len(dir.Attendance)))
	return nil
}
