package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// BillUpload is one uploaded bill file
type BillUpload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// BillExtraction is the structured result of reading one bill.
// Err is set when the extraction failed; the other fields are then meaningless.
type BillExtraction struct {
	ID             string          `json:"id"`
	Filename       string          `json:"filename"`
	RestaurantName string          `json:"restaurant_name"`
	BillNumber     string          `json:"bill_number"`
	Date           string          `json:"date"`
	Total          decimal.Decimal `json:"total"`
	RawResponse    string          `json:"-"`
	Err            error           `json:"-"`
}

// Failed reports whether the extraction produced no usable data
func (b *BillExtraction) Failed() bool {
	return b.Err != nil
}

// ExtractedBillRecord is the stored audit copy of an extraction for a confirmed claim
type ExtractedBillRecord struct {
	ID             string          `json:"id"`
	ClaimBillNo    string          `json:"claim_bill_number"`
	Filename       string          `json:"filename"`
	RestaurantName string          `json:"restaurant_name"`
	BillNumber     string          `json:"bill_number"`
	BillDate       string          `json:"bill_date"`
	Total          decimal.Decimal `json:"total"`
	RawResponse    string          `json:"raw_response"`
	CreatedAt      time.Time       `json:"created_at"`
}
