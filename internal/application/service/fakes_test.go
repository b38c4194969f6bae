package service

import (
	"context"
	"errors"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/garyjia/lunch-claims/internal/application/port"
	"github.com/garyjia/lunch-claims/internal/domain/claim"
	"github.com/garyjia/lunch-claims/internal/domain/entity"
)

type fakeEmployeeRepo struct {
	employees map[string]*entity.Employee
	listErr   error
}

func (f *fakeEmployeeRepo) List(ctx context.Context) ([]*entity.Employee, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]*entity.Employee, 0, len(f.employees))
	for _, e := range f.employees {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeEmployeeRepo) GetByID(ctx context.Context, id string) (*entity.Employee, error) {
	if e, ok := f.employees[id]; ok {
		return e, nil
	}
	return nil, claim.ErrEmployeeNotFound
}

type fakeAttendanceRepo struct {
	absent map[string]bool
}

func (f *fakeAttendanceRepo) IsPresent(ctx context.Context, employeeID string, date time.Time) (bool, error) {
	return !f.absent[employeeID], nil
}

type fakeClaimRepo struct {
	mu           sync.Mutex
	records      map[string]*entity.ClaimRecord
	extractions  map[string][]*entity.ExtractedBillRecord
	appendErr    error
	updateFunc   func(billNumber string, status entity.ClaimStatus) (entity.ClaimStatus, error)
	updateCalls  []string
	appendCalled int
}

func newFakeClaimRepo() *fakeClaimRepo {
	return &fakeClaimRepo{
		records:     make(map[string]*entity.ClaimRecord),
		extractions: make(map[string][]*entity.ExtractedBillRecord),
	}
}

func (f *fakeClaimRepo) AppendClaim(ctx context.Context, record *entity.ClaimRecord, extractions []*entity.ExtractedBillRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appendCalled++
	if f.appendErr != nil {
		return f.appendErr
	}
	if _, ok := f.records[record.BillNumber]; ok {
		return claim.ErrDuplicateBillNumber
	}
	record.Status = entity.ClaimStatusPending
	f.records[record.BillNumber] = record
	f.extractions[record.BillNumber] = extractions
	return nil
}

func (f *fakeClaimRepo) UpdateStatus(ctx context.Context, billNumber string, status entity.ClaimStatus) (entity.ClaimStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateCalls = append(f.updateCalls, billNumber)
	if f.updateFunc != nil {
		return f.updateFunc(billNumber, status)
	}
	r, ok := f.records[billNumber]
	if !ok {
		return "", claim.ErrClaimNotFound
	}
	previous := r.Status
	r.Status = status
	return previous, nil
}

func (f *fakeClaimRepo) GetByBillNumber(ctx context.Context, billNumber string) (*entity.ClaimRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.records[billNumber]; ok {
		return r, nil
	}
	return nil, claim.ErrClaimNotFound
}

func (f *fakeClaimRepo) ListByOrderDate(ctx context.Context, orderDate time.Time) ([]*entity.ClaimRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*entity.ClaimRecord
	for _, r := range f.records {
		if claim.SameDay(r.OrderDate, orderDate) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeClaimRepo) ListByClaimant(ctx context.Context, claimantID string, orderDate time.Time) ([]*entity.ClaimRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*entity.ClaimRecord
	for _, r := range f.records {
		if r.ClaimantID == claimantID && claim.SameDay(r.OrderDate, orderDate) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeClaimRepo) ListAll(ctx context.Context) ([]*entity.ClaimRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*entity.ClaimRecord, 0, len(f.records))
	for _, r := range f.records {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeClaimRepo) GetStatusHistory(ctx context.Context, billNumber string) ([]*entity.StatusChange, error) {
	return nil, nil
}

// memStorage is an in-memory port.FileStorage
type memStorage struct {
	mu     sync.Mutex
	files  map[string][]byte
	failAt int // 1-based Save call that fails; 0 never fails
	saves  int
}

func newMemStorage() *memStorage {
	return &memStorage{files: make(map[string][]byte)}
}

func (m *memStorage) Save(ctx context.Context, path string, content []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.saves == m.failAt {
		return errors.New("disk full")
	}
	m.files[path] = content
	return nil
}

func (m *memStorage) Read(ctx context.Context, path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.files[path]; ok {
		return c, nil
	}
	return nil, os.ErrNotExist
}

func (m *memStorage) Delete(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, path)
	return nil
}

func (m *memStorage) GetFullPath(relativePath string) string { return "/bills/" + relativePath }

func (m *memStorage) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.files)
}

// mockExtractor is a testify mock of port.BillExtractor
type mockExtractor struct {
	mock.Mock
}

func (m *mockExtractor) Extract(ctx context.Context, bill entity.BillUpload) (*port.ExtractionResult, error) {
	args := m.Called(ctx, bill.Filename)
	if r, ok := args.Get(0).(*port.ExtractionResult); ok {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeNotifier) NotifyStatusChange(ctx context.Context, claimant *entity.Employee, record *entity.ClaimRecord, previous entity.ClaimStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, record.BillNumber+":"+string(previous)+"->"+string(record.Status))
	return f.err
}

func extraction(restaurant, date, total string) *port.ExtractionResult {
	parsed := decimal.RequireFromString(total)
	return &port.ExtractionResult{
		RestaurantName: &restaurant,
		Date:           &date,
		Total:          &parsed,
		RawResponse:    `{"total":` + total + `}`,
	}
}

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
