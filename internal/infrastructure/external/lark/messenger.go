package lark

import (
	"context"
	"fmt"
	"strings"

	"github.com/garyjia/lunch-claims/internal/application/port"
	"github.com/garyjia/lunch-claims/internal/domain/entity"
	"go.uber.org/zap"
)

// TextSender is the part of Client the notifier needs
type TextSender interface {
	SendText(ctx context.Context, email, text string) (string, error)
}

// StatusNotifier implements port.StatusNotifier with Lark text messages
type StatusNotifier struct {
	sender TextSender
	logger *zap.Logger
}

// NewStatusNotifier creates a notifier that messages claimants by email address
func NewStatusNotifier(sender TextSender, logger *zap.Logger) *StatusNotifier {
	return &StatusNotifier{
		sender: sender,
		logger: logger,
	}
}

// NotifyStatusChange tells the claimant about a new claim status.
// Claimants without an email address are skipped.
func (n *StatusNotifier) NotifyStatusChange(ctx context.Context, claimant *entity.Employee, record *entity.ClaimRecord, previous entity.ClaimStatus) error {
	if claimant == nil || claimant.Email == "" {
		n.logger.Debug("Claimant has no email, skipping notification",
			zap.String("bill_number", record.BillNumber))
		return nil
	}

	_, err := n.sender.SendText(ctx, claimant.Email, statusMessage(claimant, record, previous))
	if err != nil {
		return fmt.Errorf("failed to notify %s: %w", claimant.ID, err)
	}
	return nil
}

func statusMessage(claimant *entity.Employee, record *entity.ClaimRecord, previous entity.ClaimStatus) string {
	var b strings.Builder
	name := claimant.Name
	if name == "" {
		name = claimant.ID
	}

	fmt.Fprintf(&b, "Hi %s, your lunch claim %s for %s is now %s (was %s).\n",
		name, record.BillNumber, record.OrderDate.Format(entity.DateLayout), record.Status, previous)
	fmt.Fprintf(&b, "Bill amount: %s, reimbursable: %s, group size: %d.",
		entity.FormatAmount(record.BillAmount), entity.FormatAmount(record.ReimbursedAmount), len(record.GroupMembers))
	return b.String()
}

// Verify interface compliance
var _ port.StatusNotifier = (*StatusNotifier)(nil)
