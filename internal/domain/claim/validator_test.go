package claim

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/lunch-claims/internal/domain/entity"
)

func date(s string) time.Time {
	t, err := time.Parse(entity.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func directory() map[string]entity.Employee {
	return map[string]entity.Employee{
		"E1": {ID: "E1", Name: "Asha"},
		"E2": {ID: "E2", Name: "Ravi"},
		"E3": {ID: "E3", Name: "Meena"},
		"E4": {ID: "E4", Name: "Karthik"},
	}
}

func allPresent(string, time.Time) (bool, error) { return true, nil }

func absentFor(ids ...string) AttendanceLookup {
	absent := make(map[string]bool)
	for _, id := range ids {
		absent[id] = true
	}
	return func(id string, _ time.Time) (bool, error) {
		return !absent[id], nil
	}
}

func baseInput() ValidationInput {
	return ValidationInput{
		OrderDate:    date("2024-05-01"),
		ClaimDate:    date("2024-05-03"),
		ClaimantID:   "E1",
		CandidateIDs: []string{"E1", "E2"},
		Directory:    directory(),
		Attendance:   allPresent,
	}
}

func TestValidator_DateWindow(t *testing.T) {
	v := NewValidator(DefaultPolicy())

	tests := []struct {
		name      string
		claimDate string
		wantErr   error
	}{
		{"claim before order", "2024-04-30", ErrInvalidDateWindow},
		{"same day", "2024-05-01", nil},
		{"fifteen days", "2024-05-16", nil},
		{"sixteen days", "2024-05-17", ErrClaimWindowExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := baseInput()
			in.ClaimDate = date(tt.claimDate)

			group, err := v.Validate(in)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, group)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 2, group.Size())
		})
	}
}

func TestValidator_DateWindowIgnoresTimeOfDay(t *testing.T) {
	v := NewValidator(DefaultPolicy())
	in := baseInput()
	in.OrderDate = time.Date(2024, 5, 1, 23, 30, 0, 0, time.UTC)
	in.ClaimDate = time.Date(2024, 5, 16, 0, 5, 0, 0, time.UTC)

	_, err := v.Validate(in)
	assert.NoError(t, err)
}

func TestValidator_ConfigurableWindow(t *testing.T) {
	policy := DefaultPolicy()
	policy.ClaimWindowDays = 3
	v := NewValidator(policy)

	in := baseInput()
	in.ClaimDate = date("2024-05-05")

	_, err := v.Validate(in)
	assert.ErrorIs(t, err, ErrClaimWindowExpired)
}

func TestValidator_AbsentMemberRejectsWholeGroup(t *testing.T) {
	v := NewValidator(DefaultPolicy())
	in := baseInput()
	in.CandidateIDs = []string{"E1", "E2", "E3"}
	in.Attendance = absentFor("E2", "E3")

	group, err := v.Validate(in)

	require.Error(t, err)
	assert.Nil(t, group)

	var absent *AbsentMemberError
	require.True(t, errors.As(err, &absent))
	assert.Equal(t, []string{"Ravi", "Meena"}, absent.Names)
	assert.Contains(t, err.Error(), "2024-05-01")
}

func TestValidator_AttendanceLookupFailure(t *testing.T) {
	v := NewValidator(DefaultPolicy())
	in := baseInput()
	in.Attendance = func(string, time.Time) (bool, error) {
		return false, errors.New("connection reset")
	}

	_, err := v.Validate(in)

	var persist *PersistenceError
	require.True(t, errors.As(err, &persist))
	assert.Equal(t, CodePersistence, CodeOf(err))
}

func TestValidator_UnknownEmployees(t *testing.T) {
	v := NewValidator(DefaultPolicy())

	t.Run("unknown claimant", func(t *testing.T) {
		in := baseInput()
		in.ClaimantID = "X9"
		_, err := v.Validate(in)

		var unknown *UnknownEmployeeError
		require.True(t, errors.As(err, &unknown))
		assert.Equal(t, []string{"X9"}, unknown.IDs)
	})

	t.Run("unknown member", func(t *testing.T) {
		in := baseInput()
		in.CandidateIDs = []string{"E1", "X1", "X2"}
		_, err := v.Validate(in)

		var unknown *UnknownEmployeeError
		require.True(t, errors.As(err, &unknown))
		assert.Equal(t, []string{"X1", "X2"}, unknown.IDs)
	})
}

func TestValidator_EmptyGroup(t *testing.T) {
	v := NewValidator(DefaultPolicy())
	in := baseInput()
	in.CandidateIDs = []string{" ", ""}

	_, err := v.Validate(in)
	assert.ErrorIs(t, err, ErrNoEligibleMembers)
}

func TestValidator_NormalizesCandidates(t *testing.T) {
	v := NewValidator(DefaultPolicy())
	in := baseInput()
	in.CandidateIDs = []string{"E2", " E1 ", "E2"}

	group, err := v.Validate(in)

	require.NoError(t, err)
	assert.Equal(t, []entity.GroupMember{
		{ID: "E2", Name: "Ravi"},
		{ID: "E1", Name: "Asha"},
	}, group.Members)
	assert.Equal(t, "Asha", group.Claimant.Name)
}

func TestValidator_DuplicateClaim(t *testing.T) {
	v := NewValidator(DefaultPolicy())

	history := []*entity.ClaimRecord{
		{
			BillNumber:   "B-100",
			OrderDate:    date("2024-05-01"),
			GroupMembers: []entity.GroupMember{{ID: "E2", Name: "Ravi"}},
		},
		{
			BillNumber:      "B-101",
			OrderDate:       date("2024-05-01"),
			RawGroupMembers: `[{"id": "E3", "name": "Meena"}, {"id": "E4", "name": "Karthik"}]`,
		},
		{
			// different day, must be ignored
			BillNumber:   "B-099",
			OrderDate:    date("2024-04-30"),
			GroupMembers: []entity.GroupMember{{ID: "E1", Name: "Asha"}},
		},
	}

	in := baseInput()
	in.CandidateIDs = []string{"E1", "E2", "E3"}
	in.History = history

	_, err := v.Validate(in)

	var dup *DuplicateClaimError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, []string{"Ravi", "Meena"}, dup.Names)
	assert.Equal(t, CodeDuplicateClaim, CodeOf(err))
}

func TestValidator_DuplicateUsesSnapshotNameForDepartedEmployee(t *testing.T) {
	v := NewValidator(DefaultPolicy())
	dir := directory()

	in := baseInput()
	in.Directory = dir
	in.History = []*entity.ClaimRecord{{
		BillNumber:   "B-1",
		OrderDate:    date("2024-05-01"),
		GroupMembers: []entity.GroupMember{{ID: "E2", Name: "Ravi K"}},
	}}
	dir["E2"] = entity.Employee{ID: "E2"}

	_, err := v.Validate(in)

	var dup *DuplicateClaimError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, []string{"Ravi K"}, dup.Names)
}

func TestValidator_MalformedHistoryIsSkipped(t *testing.T) {
	v := NewValidator(DefaultPolicy())

	in := baseInput()
	in.History = []*entity.ClaimRecord{
		{BillNumber: "B-bad", OrderDate: date("2024-05-01"), RawGroupMembers: "not json"},
		{BillNumber: "B-legacy", OrderDate: date("2024-05-01"), RawGroupMembers: "[{'id': 'E4', 'name': 'Karthik'}]"},
	}

	group, err := v.Validate(in)

	require.NoError(t, err)
	assert.Equal(t, []string{"B-bad"}, group.SkippedHistory)
}

func TestValidator_LegacySingleQuotedHistoryStillDetectsDuplicates(t *testing.T) {
	v := NewValidator(DefaultPolicy())

	in := baseInput()
	in.History = []*entity.ClaimRecord{
		{BillNumber: "B-legacy", OrderDate: date("2024-05-01"), RawGroupMembers: "[{'id': 'E1', 'name': 'Asha'}]"},
	}

	_, err := v.Validate(in)

	var dup *DuplicateClaimError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, []string{"Asha"}, dup.Names)
}
