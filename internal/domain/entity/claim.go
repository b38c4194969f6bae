package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// ClaimStatus is the review state of a claim
type ClaimStatus string

const (
	ClaimStatusPending  ClaimStatus = "Pending"
	ClaimStatusApproved ClaimStatus = "Approved"
	ClaimStatusRejected ClaimStatus = "Rejected"
)

// IsValid reports whether s is one of the known statuses
func (s ClaimStatus) IsValid() bool {
	switch s {
	case ClaimStatusPending, ClaimStatusApproved, ClaimStatusRejected:
		return true
	}
	return false
}

// DateLayout is the storage and wire format for calendar dates
const DateLayout = "2006-01-02"

// GroupMember is a snapshot of an employee taken when the claim was filed
type GroupMember struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ClaimRecord is a persisted group lunch claim, keyed by bill number
type ClaimRecord struct {
	BillNumber       string          `json:"bill_number"`
	OrderDate        time.Time       `json:"order_date"`
	ClaimDate        time.Time       `json:"claim_date"`
	ClaimantID       string          `json:"claimant_id"`
	GroupMembers     []GroupMember   `json:"group_members"`
	BillAmount       decimal.Decimal `json:"bill_amount"`
	ReimbursedAmount decimal.Decimal `json:"reimbursed_amount"`
	BillFilePaths    []string        `json:"bill_file_paths"`
	Status           ClaimStatus     `json:"status"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`

	// RawGroupMembers holds the stored JSON as read from the database.
	// It is decoded lazily so that one bad legacy row cannot fail a whole listing.
	RawGroupMembers string `json:"-"`
}

// MemberIDs returns the ids of the group members in order
func (c *ClaimRecord) MemberIDs() []string {
	ids := make([]string, 0, len(c.GroupMembers))
	for _, m := range c.GroupMembers {
		ids = append(ids, m.ID)
	}
	return ids
}

// StatusChange is an audit row written on every status update
type StatusChange struct {
	BillNumber     string      `json:"bill_number"`
	PreviousStatus ClaimStatus `json:"previous_status"`
	NewStatus      ClaimStatus `json:"new_status"`
	ChangedAt      time.Time   `json:"changed_at"`
}
