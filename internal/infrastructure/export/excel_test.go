package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/garyjia/lunch-claims/internal/domain/entity"
)

func TestClaimWorkbook_Write(t *testing.T) {
	records := []*entity.ClaimRecord{
		{
			BillNumber:       "B-2",
			OrderDate:        time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC),
			ClaimDate:        time.Date(2024, 5, 4, 0, 0, 0, 0, time.UTC),
			ClaimantID:       "E1",
			GroupMembers:     []entity.GroupMember{{ID: "E1", Name: "Asha"}, {ID: "E2", Name: "Ravi"}},
			BillAmount:       decimal.RequireFromString("1000.50"),
			ReimbursedAmount: decimal.NewFromInt(800),
			BillFilePaths:    []string{"2024-05-02/a.jpg"},
			Status:           entity.ClaimStatusApproved,
		},
		{
			BillNumber:      "B-legacy",
			OrderDate:       time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
			ClaimDate:       time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC),
			RawGroupMembers: "not json",
			Status:          entity.ClaimStatusPending,
		},
	}

	var buf bytes.Buffer
	require.NoError(t, NewClaimWorkbook().Write(&buf, records))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, headers, rows[0])
	assert.Equal(t, "B-2", rows[1][0])
	assert.Equal(t, "2024-05-02", rows[1][1])
	assert.Equal(t, "Asha (E1), Ravi (E2)", rows[1][4])
	assert.Equal(t, "2", rows[1][5])
	assert.Equal(t, "Approved", rows[1][8])

	amount, err := f.GetCellValue(sheetName, "G2", excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	assert.Equal(t, "1000.5", amount)

	assert.Equal(t, "not json", rows[2][4])
	assert.Equal(t, "0", rows[2][5])
}
