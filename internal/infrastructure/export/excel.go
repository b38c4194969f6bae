package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/garyjia/lunch-claims/internal/domain/claim"
	"github.com/garyjia/lunch-claims/internal/domain/entity"
)

const sheetName = "Claims"

var headers = []string{
	"Bill Number", "Order Date", "Claim Date", "Claimant ID", "Group Members",
	"Group Size", "Bill Amount", "Reimbursed Amount", "Status", "Bill Files",
}

// ClaimWorkbook writes claim listings as an .xlsx workbook
type ClaimWorkbook struct{}

// NewClaimWorkbook creates a workbook writer
func NewClaimWorkbook() *ClaimWorkbook {
	return &ClaimWorkbook{}
}

// Write renders one row per claim, in the order given, to w
func (x *ClaimWorkbook) Write(w io.Writer, records []*entity.ClaimRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	amountStyle, err := f.NewStyle(&excelize.Style{NumFmt: 4}) // #,##0.00
	if err != nil {
		return fmt.Errorf("failed to create amount style: %w", err)
	}

	if err := f.SetSheetRow(sheetName, "A1", &headers); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if err := f.SetCellStyle(sheetName, "A1", "J1", headerStyle); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}

	for i, r := range records {
		row := i + 2
		members, _ := claim.MembersOf(r)

		values := []interface{}{
			r.BillNumber,
			r.OrderDate.Format(entity.DateLayout),
			r.ClaimDate.Format(entity.DateLayout),
			r.ClaimantID,
			formatMembers(members, r.RawGroupMembers),
			len(members),
			r.BillAmount.InexactFloat64(),
			r.ReimbursedAmount.InexactFloat64(),
			string(r.Status),
			strings.Join(r.BillFilePaths, ", "),
		}

		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return fmt.Errorf("failed to write row for %s: %w", r.BillNumber, err)
		}

		from, _ := excelize.CoordinatesToCellName(7, row)
		to, _ := excelize.CoordinatesToCellName(8, row)
		if err := f.SetCellStyle(sheetName, from, to, amountStyle); err != nil {
			return fmt.Errorf("failed to style row for %s: %w", r.BillNumber, err)
		}
	}

	if err := f.SetColWidth(sheetName, "A", "J", 18); err != nil {
		return err
	}
	if err := f.SetColWidth(sheetName, "E", "E", 48); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// formatMembers renders "Name (ID), ..." and falls back to the stored text for unreadable rows
func formatMembers(members []entity.GroupMember, raw string) string {
	if members == nil {
		return raw
	}
	parts := make([]string, 0, len(members))
	for _, m := range members {
		parts = append(parts, fmt.Sprintf("%s (%s)", m.Name, m.ID))
	}
	return strings.Join(parts, ", ")
}
