package claim

import (
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/lunch-claims/internal/domain/entity"
)

// AttendanceLookup reports whether an employee was present on a date
type AttendanceLookup func(employeeID string, date time.Time) (bool, error)

// ValidationInput is a snapshot of everything the validator needs
type ValidationInput struct {
	OrderDate    time.Time
	ClaimDate    time.Time
	ClaimantID   string
	CandidateIDs []string
	Directory    map[string]entity.Employee
	Attendance   AttendanceLookup
	History      []*entity.ClaimRecord
}

// ValidatedGroup is the eligible group for a claim
type ValidatedGroup struct {
	OrderDate time.Time
	ClaimDate time.Time
	Claimant  entity.Employee
	Members   []entity.GroupMember

	// SkippedHistory holds bill numbers of history rows whose members could not be decoded
	SkippedHistory []string
}

// Size returns the number of group members
func (g *ValidatedGroup) Size() int {
	return len(g.Members)
}

// Validator enforces the date window, attendance and duplicate rules
type Validator struct {
	policy Policy
}

// NewValidator creates a validator for the given policy
func NewValidator(policy Policy) *Validator {
	return &Validator{policy: policy}
}

// Validate checks a candidate group. It has no side effects.
func (v *Validator) Validate(in ValidationInput) (*ValidatedGroup, error) {
	orderDate := Day(in.OrderDate)
	claimDate := Day(in.ClaimDate)

	if claimDate.Before(orderDate) {
		return nil, ErrInvalidDateWindow
	}
	if DaysBetween(orderDate, claimDate) > v.policy.ClaimWindowDays {
		return nil, fmt.Errorf("%w: claiming more than %d days after the order date",
			ErrClaimWindowExpired, v.policy.ClaimWindowDays)
	}

	claimant, ok := in.Directory[in.ClaimantID]
	if !ok {
		return nil, &UnknownEmployeeError{IDs: []string{in.ClaimantID}}
	}

	candidates := normalizeIDs(in.CandidateIDs)
	var unknown []string
	for _, id := range candidates {
		if _, ok := in.Directory[id]; !ok {
			unknown = append(unknown, id)
		}
	}
	if len(unknown) > 0 {
		return nil, &UnknownEmployeeError{IDs: unknown}
	}

	members, err := v.checkAttendance(candidates, orderDate, in)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, ErrNoEligibleMembers
	}

	skipped, err := v.checkDuplicates(members, orderDate, in)
	if err != nil {
		return nil, err
	}

	return &ValidatedGroup{
		OrderDate:      orderDate,
		ClaimDate:      claimDate,
		Claimant:       claimant,
		Members:        members,
		SkippedHistory: skipped,
	}, nil
}

// checkAttendance rejects the whole group if any member was absent
func (v *Validator) checkAttendance(ids []string, orderDate time.Time, in ValidationInput) ([]entity.GroupMember, error) {
	members := make([]entity.GroupMember, 0, len(ids))
	var absent []string

	for _, id := range ids {
		employee := in.Directory[id]
		present, err := in.Attendance(id, orderDate)
		if err != nil {
			return nil, &PersistenceError{Op: "check attendance for " + id, Err: err}
		}
		if !present {
			absent = append(absent, employee.Name)
			continue
		}
		members = append(members, entity.GroupMember{ID: id, Name: employee.Name})
	}

	if len(absent) > 0 {
		return nil, &AbsentMemberError{Date: orderDate, Names: absent}
	}
	return members, nil
}

// checkDuplicates aggregates overlaps across every history row for the order date
func (v *Validator) checkDuplicates(members []entity.GroupMember, orderDate time.Time, in ValidationInput) ([]string, error) {
	candidate := make(map[string]bool, len(members))
	for _, m := range members {
		candidate[m.ID] = true
	}

	var (
		skipped []string
		names   []string
		seen    = make(map[string]bool)
	)

	for _, record := range in.History {
		if record == nil || !SameDay(record.OrderDate, orderDate) {
			continue
		}

		previous, ok := MembersOf(record)
		if !ok {
			skipped = append(skipped, record.BillNumber)
			continue
		}

		for _, m := range previous {
			if !candidate[m.ID] || seen[m.ID] {
				continue
			}
			seen[m.ID] = true
			names = append(names, displayName(m, in.Directory))
		}
	}

	if len(names) > 0 {
		return skipped, &DuplicateClaimError{Date: orderDate, Names: names}
	}
	return skipped, nil
}

// MembersOf returns the decoded group of a stored claim, tolerating legacy payloads
func MembersOf(record *entity.ClaimRecord) ([]entity.GroupMember, bool) {
	if record.GroupMembers != nil {
		return record.GroupMembers, true
	}
	if record.RawGroupMembers == "" {
		return nil, false
	}
	return DecodeGroupMembersTolerant(record.RawGroupMembers)
}

func displayName(m entity.GroupMember, directory map[string]entity.Employee) string {
	if e, ok := directory[m.ID]; ok && e.Name != "" {
		return e.Name
	}
	if m.Name != "" {
		return m.Name
	}
	return m.ID
}

// normalizeIDs trims ids and drops blanks and repeats, keeping first occurrence order
func normalizeIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
