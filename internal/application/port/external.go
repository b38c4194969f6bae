package port

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/garyjia/lunch-claims/internal/domain/entity"
)

// ExtractionResult is the structured bill data returned by the OCR provider.
// Every field is nullable, matching the provider JSON.
type ExtractionResult struct {
	RestaurantName *string          `json:"restaurant_name"`
	BillNumber     *string          `json:"bill_number"`
	Date           *string          `json:"date"`
	Total          *decimal.Decimal `json:"total"`

	RawResponse string `json:"-"`
}

// BillExtractor reads bill fields from an image or PDF.
// Any provider failure, including malformed JSON, is returned as an error.
type BillExtractor interface {
	Extract(ctx context.Context, bill entity.BillUpload) (*ExtractionResult, error)
}

// StatusNotifier tells a claimant that their claim changed status
type StatusNotifier interface {
	NotifyStatusChange(ctx context.Context, claimant *entity.Employee, record *entity.ClaimRecord, previous entity.ClaimStatus) error
}
