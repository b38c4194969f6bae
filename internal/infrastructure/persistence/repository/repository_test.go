package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/lunch-claims/internal/domain/claim"
	"github.com/garyjia/lunch-claims/internal/domain/entity"
	"github.com/garyjia/lunch-claims/pkg/database"
)

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()
	logger := zap.NewNop()

	db, err := database.New(database.Config{
		Driver: database.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "claims.db"),
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.NewMigrator(db, logger).RunMigrations(context.Background()))
	return db
}

func day(s string) time.Time {
	d, err := time.Parse(entity.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return d
}

func newClaim(bill string, members ...entity.GroupMember) *entity.ClaimRecord {
	return &entity.ClaimRecord{
		BillNumber:       bill,
		OrderDate:        day("2024-05-01"),
		ClaimDate:        day("2024-05-03"),
		ClaimantID:       "E1",
		GroupMembers:     members,
		BillAmount:       decimal.RequireFromString("900.50"),
		ReimbursedAmount: decimal.NewFromInt(800),
		BillFilePaths:    []string{"data/bills/2024-05-01/a.jpg"},
	}
}

var (
	asha = entity.GroupMember{ID: "E1", Name: "Asha"}
	ravi = entity.GroupMember{ID: "E2", Name: "Ravi"}
)

func TestEmployeeRepository(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := NewEmployeeRepository(db, zap.NewNop())

	require.NoError(t, repo.Upsert(ctx, &entity.Employee{ID: "E2", Name: "Ravi", Email: "ravi@example.com"}))
	require.NoError(t, repo.Upsert(ctx, &entity.Employee{ID: "E1", Name: "Asha"}))
	require.NoError(t, repo.Upsert(ctx, &entity.Employee{ID: "E1", Name: "Asha N", Project: "Atlas"}))

	all, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Asha N", all[0].Name)
	assert.Equal(t, "Atlas", all[0].Project)

	e, err := repo.GetByID(ctx, "E2")
	require.NoError(t, err)
	assert.Equal(t, "ravi@example.com", e.Email)

	_, err = repo.GetByID(ctx, "nope")
	assert.ErrorIs(t, err, claim.ErrEmployeeNotFound)
}

func TestAttendanceRepository_IsPresent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := NewAttendanceRepository(db, zap.NewNop())

	_, err := db.ExecContext(ctx, `INSERT INTO attendance (employee_id, attendance_date, status) VALUES
		('E1', '2024-05-01', 'Present'),
		('E2', '2024-05-01', ' present '),
		('E3', '2024-05-01', 'Absent')`)
	require.NoError(t, err)
	require.NoError(t, repo.Record(ctx, entity.AttendanceRecord{EmployeeID: "E4", Date: day("2024-05-01"), Present: true}))

	tests := []struct {
		id   string
		date string
		want bool
	}{
		{"E1", "2024-05-01", true},
		{"E2", "2024-05-01", true},
		{"E3", "2024-05-01", false},
		{"E4", "2024-05-01", true},
		{"E1", "2024-05-02", false},
	}
	for _, tt := range tests {
		got, err := repo.IsPresent(ctx, tt.id, day(tt.date))
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%s on %s", tt.id, tt.date)
	}
}

func TestClaimRepository_AppendAndRead(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := NewClaimRepository(db, zap.NewNop())

	record := newClaim("B-1", asha, ravi)
	extractions := []*entity.ExtractedBillRecord{{
		ID:             "01HXA0000000000000000000AA",
		Filename:       "a.jpg",
		RestaurantName: "Saravana Bhavan",
		BillNumber:     "INV-1",
		BillDate:       "01/05/2024",
		Total:          decimal.RequireFromString("900.50"),
		RawResponse:    `{"total": 900}`,
	}}

	require.NoError(t, repo.AppendClaim(ctx, record, extractions))
	assert.Equal(t, entity.ClaimStatusPending, record.Status)

	got, err := repo.GetByBillNumber(ctx, "B-1")
	require.NoError(t, err)
	assert.Equal(t, []entity.GroupMember{asha, ravi}, got.GroupMembers)
	assert.Equal(t, `[{"id":"E1","name":"Asha"},{"id":"E2","name":"Ravi"}]`, got.RawGroupMembers)
	assert.Equal(t, "800.00", entity.FormatAmount(got.ReimbursedAmount))
	assert.Equal(t, "900.50", entity.FormatAmount(got.BillAmount))
	assert.Equal(t, []string{"data/bills/2024-05-01/a.jpg"}, got.BillFilePaths)
	assert.True(t, got.OrderDate.Equal(day("2024-05-01")))
	assert.Equal(t, entity.ClaimStatusPending, got.Status)

	var count int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM extracted_bills WHERE claim_bill_number = 'B-1'`).Scan(&count))
	assert.Equal(t, 1, count)

	byDate, err := repo.ListByOrderDate(ctx, day("2024-05-01"))
	require.NoError(t, err)
	assert.Len(t, byDate, 1)

	mine, err := repo.ListByClaimant(ctx, "E1", day("2024-05-01"))
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	none, err := repo.ListByClaimant(ctx, "E2", day("2024-05-01"))
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = repo.GetByBillNumber(ctx, "missing")
	assert.ErrorIs(t, err, claim.ErrClaimNotFound)
}

func TestClaimRepository_UniqueBackstop(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := NewClaimRepository(db, zap.NewNop())

	require.NoError(t, repo.AppendClaim(ctx, newClaim("B-1", asha), nil))

	t.Run("same bill number", func(t *testing.T) {
		err := repo.AppendClaim(ctx, newClaim("B-1", ravi), nil)
		assert.ErrorIs(t, err, claim.ErrDuplicateBillNumber)
	})

	t.Run("member already claimed that day", func(t *testing.T) {
		err := repo.AppendClaim(ctx, newClaim("B-2", ravi, asha), nil)

		var dup *claim.DuplicateClaimError
		require.True(t, errors.As(err, &dup), "got %v", err)
		assert.Equal(t, []string{"Asha"}, dup.Names)

		_, err = repo.GetByBillNumber(ctx, "B-2")
		assert.ErrorIs(t, err, claim.ErrClaimNotFound, "failed insert must leave nothing behind")
	})

	t.Run("same member on another day", func(t *testing.T) {
		other := newClaim("B-3", asha)
		other.OrderDate = day("2024-05-02")
		assert.NoError(t, repo.AppendClaim(ctx, other, nil))
	})
}

func TestClaimRepository_UpdateStatus(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := NewClaimRepository(db, zap.NewNop())
	require.NoError(t, repo.AppendClaim(ctx, newClaim("B-1", asha), nil))

	previous, err := repo.UpdateStatus(ctx, "B-1", entity.ClaimStatusApproved)
	require.NoError(t, err)
	assert.Equal(t, entity.ClaimStatusPending, previous)

	previous, err = repo.UpdateStatus(ctx, "B-1", entity.ClaimStatusPending)
	require.NoError(t, err)
	assert.Equal(t, entity.ClaimStatusApproved, previous)

	got, err := repo.GetByBillNumber(ctx, "B-1")
	require.NoError(t, err)
	assert.Equal(t, entity.ClaimStatusPending, got.Status)

	history, err := repo.GetStatusHistory(ctx, "B-1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, entity.ClaimStatusApproved, history[0].NewStatus)
	assert.Equal(t, entity.ClaimStatusApproved, history[1].PreviousStatus)

	_, err = repo.UpdateStatus(ctx, "missing", entity.ClaimStatusApproved)
	assert.ErrorIs(t, err, claim.ErrClaimNotFound)

	_, err = repo.UpdateStatus(ctx, "B-1", entity.ClaimStatus("Paid"))
	assert.ErrorIs(t, err, claim.ErrInvalidRequest)
}

func TestClaimRepository_ListAllToleratesLegacyRows(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := NewClaimRepository(db, zap.NewNop())

	require.NoError(t, repo.AppendClaim(ctx, newClaim("B-new", asha), nil))

	_, err := db.ExecContext(ctx, `
		INSERT INTO claim_history (bill_number, order_date, claim_date, claimant_id, group_members,
			bill_amount_cents, reimbursed_amount_cents, bill_files, status, created_at, updated_at)
		VALUES
			('B-legacy', '2024-04-01', '2024-05-10', 'E2', '[{''id'': ''E2'', ''name'': ''Ravi''}]', 50000, 40000, '[]', 'Approved', ?, ?),
			('B-broken', '2024-03-01', '2024-03-02', 'E2', 'garbage', 100, 100, '[]', 'Rejected', ?, ?)`,
		time.Now(), time.Now(), time.Now(), time.Now())
	require.NoError(t, err)

	all, err := repo.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)

	assert.Equal(t, "B-legacy", all[0].BillNumber)
	assert.Equal(t, []entity.GroupMember{ravi}, all[0].GroupMembers)
	assert.Equal(t, "B-new", all[1].BillNumber)
	assert.Equal(t, "B-broken", all[2].BillNumber)
	assert.Nil(t, all[2].GroupMembers)
	assert.Equal(t, "garbage", all[2].RawGroupMembers)
}
