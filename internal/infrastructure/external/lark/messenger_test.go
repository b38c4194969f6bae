package lark

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/lunch-claims/internal/domain/entity"
)

type mockSender struct {
	mock.Mock
}

func (m *mockSender) SendText(ctx context.Context, email, text string) (string, error) {
	args := m.Called(ctx, email, text)
	return args.String(0), args.Error(1)
}

func approvedRecord() *entity.ClaimRecord {
	return &entity.ClaimRecord{
		BillNumber:       "B-7",
		Status:           entity.ClaimStatusApproved,
		BillAmount:       decimal.NewFromInt(900),
		ReimbursedAmount: decimal.NewFromInt(800),
		GroupMembers:     []entity.GroupMember{{ID: "E1"}, {ID: "E2"}},
	}
}

func TestStatusNotifier_SendsToClaimantEmail(t *testing.T) {
	sender := new(mockSender)
	sender.On("SendText", mock.Anything, "asha@example.com",
		mock.MatchedBy(func(text string) bool {
			return strings.Contains(text, "B-7") &&
				strings.Contains(text, "now Approved (was Pending)") &&
				strings.Contains(text, "reimbursable: 800.00")
		})).Return("om_1", nil)

	n := NewStatusNotifier(sender, zap.NewNop())
	err := n.NotifyStatusChange(context.Background(),
		&entity.Employee{ID: "E1", Name: "Asha", Email: "asha@example.com"},
		approvedRecord(), entity.ClaimStatusPending)

	require.NoError(t, err)
	sender.AssertExpectations(t)
}

func TestStatusNotifier_SkipsWithoutEmail(t *testing.T) {
	sender := new(mockSender)
	n := NewStatusNotifier(sender, zap.NewNop())

	err := n.NotifyStatusChange(context.Background(), &entity.Employee{ID: "E1"}, approvedRecord(), entity.ClaimStatusPending)

	require.NoError(t, err)
	sender.AssertNotCalled(t, "SendText", mock.Anything, mock.Anything, mock.Anything)
}

func TestStatusNotifier_PropagatesSendFailure(t *testing.T) {
	sender := new(mockSender)
	sender.On("SendText", mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("code=230013"))

	n := NewStatusNotifier(sender, zap.NewNop())
	err := n.NotifyStatusChange(context.Background(),
		&entity.Employee{ID: "E1", Email: "asha@example.com"}, approvedRecord(), entity.ClaimStatusPending)

	assert.Error(t, err)
}
