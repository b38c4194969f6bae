package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/garyjia/lunch-claims/internal/application/port"
	"github.com/garyjia/lunch-claims/internal/domain/claim"
	"github.com/garyjia/lunch-claims/internal/domain/entity"
	"github.com/garyjia/lunch-claims/internal/observability/metrics"
	"github.com/garyjia/lunch-claims/pkg/utils"
)

// ErrNoTotal marks an extraction where the provider could not read a total
var ErrNoTotal = errors.New("no total found on bill")

// SubmitRequest is a claim as entered by the claimant
type SubmitRequest struct {
	OrderDate  time.Time
	ClaimDate  time.Time
	ClaimantID string
	MemberIDs  []string
	BillNumber string
	Amount     decimal.Decimal
	Bills      []entity.BillUpload
}

// ClaimPreview is everything shown to the claimant before confirmation
type ClaimPreview struct {
	BillNumber    string               `json:"bill_number"`
	OrderDate     string               `json:"order_date"`
	ClaimDate     string               `json:"claim_date"`
	Claimant      entity.Employee      `json:"claimant"`
	Members       []entity.GroupMember `json:"members"`
	GroupSize     int                  `json:"group_size"`
	EnteredAmount decimal.Decimal      `json:"entered_amount"`
	AggregateCost decimal.Decimal      `json:"aggregate_cost"`
	MaxAllowed    decimal.Decimal      `json:"max_allowed"`
	Reimbursable  decimal.Decimal      `json:"reimbursable"`
	Bills         []claim.BillSummary  `json:"bills"`
}

// ClaimService runs the claim pipeline and serves claim lookups
type ClaimService interface {
	Preview(ctx context.Context, req SubmitRequest) (*ClaimPreview, error)
	Submit(ctx context.Context, req SubmitRequest) (*entity.ClaimRecord, error)

	Get(ctx context.Context, billNumber string) (*entity.ClaimRecord, error)
	ListAll(ctx context.Context) ([]*entity.ClaimRecord, error)
	MyClaims(ctx context.Context, employeeID string, orderDate time.Time) ([]*entity.ClaimRecord, error)
	StatusHistory(ctx context.Context, billNumber string) ([]*entity.StatusChange, error)
	BillFile(ctx context.Context, billNumber string, index int) ([]byte, string, error)

	Employees(ctx context.Context) ([]*entity.Employee, error)
	Employee(ctx context.Context, id string) (*entity.Employee, error)
}

// ClaimServiceConfig holds pipeline tuning
type ClaimServiceConfig struct {
	Policy            claim.Policy
	Concurrency       int
	ExtractionTimeout time.Duration
}

type claimServiceImpl struct {
	employees  port.EmployeeRepository
	attendance port.AttendanceRepository
	claims     port.ClaimRepository
	extractor  port.BillExtractor
	files      port.FileStorage
	metrics    *metrics.ClaimMetrics
	logger     *zap.Logger

	policy            claim.Policy
	validator         *claim.Validator
	reconciler        *claim.Reconciler
	concurrency       int
	extractionTimeout time.Duration
	newID             func() string
}

// NewClaimService creates a ClaimService. m may be nil.
func NewClaimService(
	cfg ClaimServiceConfig,
	employees port.EmployeeRepository,
	attendance port.AttendanceRepository,
	claims port.ClaimRepository,
	extractor port.BillExtractor,
	files port.FileStorage,
	m *metrics.ClaimMetrics,
	logger *zap.Logger,
) ClaimService {
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	return &claimServiceImpl{
		employees:         employees,
		attendance:        attendance,
		claims:            claims,
		extractor:         extractor,
		files:             files,
		metrics:           m,
		logger:            logger,
		policy:            cfg.Policy,
		validator:         claim.NewValidator(cfg.Policy),
		reconciler:        claim.NewReconciler(cfg.Policy),
		concurrency:       concurrency,
		extractionTimeout: cfg.ExtractionTimeout,
		newID:             func() string { return ulid.Make().String() },
	}
}

// pipelineResult is the outcome of validation, extraction and reconciliation
type pipelineResult struct {
	group        *claim.ValidatedGroup
	extractions  []entity.BillExtraction
	reconciled   *claim.ReconciledBill
	reimbursable decimal.Decimal
}

// Preview runs the full pipeline without writing anything
func (s *claimServiceImpl) Preview(ctx context.Context, req SubmitRequest) (*ClaimPreview, error) {
	result, err := s.run(ctx, &req)
	s.metrics.ObserveSubmission(metrics.StagePreview, outcome(err))
	if err != nil {
		s.logRejected("Claim preview rejected", &req, err)
		return nil, err
	}

	return &ClaimPreview{
		BillNumber:    req.BillNumber,
		OrderDate:     result.group.OrderDate.Format(entity.DateLayout),
		ClaimDate:     result.group.ClaimDate.Format(entity.DateLayout),
		Claimant:      result.group.Claimant,
		Members:       result.group.Members,
		GroupSize:     result.group.Size(),
		EnteredAmount: req.Amount,
		AggregateCost: result.reconciled.AggregateCost,
		MaxAllowed:    s.policy.MaxAllowed(result.group.Size()),
		Reimbursable:  result.reimbursable,
		Bills:         result.reconciled.Bills,
	}, nil
}

// Submit reruns the pipeline, stores the bill files and appends the claim as Pending
func (s *claimServiceImpl) Submit(ctx context.Context, req SubmitRequest) (*entity.ClaimRecord, error) {
	record, err := s.submit(ctx, &req)
	s.metrics.ObserveSubmission(metrics.StageSubmit, outcome(err))
	if err != nil {
		s.logRejected("Claim submission rejected", &req, err)
		return nil, err
	}

	s.metrics.AddReimbursed(record.ReimbursedAmount.InexactFloat64())
	s.logger.Info("Claim submitted",
		append(utils.ClaimFields(record.BillNumber, record.ClaimantID, record.OrderDate.Format(entity.DateLayout)),
			zap.Int("group_size", len(record.GroupMembers)),
			zap.String("bill_amount", entity.FormatAmount(record.BillAmount)),
			zap.String("reimbursed_amount", entity.FormatAmount(record.ReimbursedAmount)))...)
	return record, nil
}

func (s *claimServiceImpl) submit(ctx context.Context, req *SubmitRequest) (*entity.ClaimRecord, error) {
	result, err := s.run(ctx, req)
	if err != nil {
		return nil, err
	}

	paths, err := s.storeBills(ctx, result.group.OrderDate, req.Bills)
	if err != nil {
		return nil, err
	}

	record := &entity.ClaimRecord{
		BillNumber:       req.BillNumber,
		OrderDate:        result.group.OrderDate,
		ClaimDate:        result.group.ClaimDate,
		ClaimantID:       result.group.Claimant.ID,
		GroupMembers:     result.group.Members,
		BillAmount:       req.Amount,
		ReimbursedAmount: result.reimbursable,
		BillFilePaths:    paths,
		Status:           entity.ClaimStatusPending,
	}

	audit := make([]*entity.ExtractedBillRecord, 0, len(result.extractions))
	for _, x := range result.extractions {
		audit = append(audit, &entity.ExtractedBillRecord{
			ID:             x.ID,
			Filename:       x.Filename,
			RestaurantName: x.RestaurantName,
			BillNumber:     x.BillNumber,
			BillDate:       x.Date,
			Total:          x.Total,
			RawResponse:    x.RawResponse,
		})
	}

	if err := s.claims.AppendClaim(ctx, record, audit); err != nil {
		s.removeBills(ctx, paths)
		return nil, err
	}
	return record, nil
}

// run is the side-effect free part shared by Preview and Submit
func (s *claimServiceImpl) run(ctx context.Context, req *SubmitRequest) (*pipelineResult, error) {
	if err := s.checkRequest(req); err != nil {
		return nil, err
	}

	directory, err := s.directory(ctx)
	if err != nil {
		return nil, err
	}

	orderDate := claim.Day(req.OrderDate)
	history, err := s.claims.ListByOrderDate(ctx, orderDate)
	if err != nil {
		return nil, asPersistence("load claim history", err)
	}

	group, err := s.validator.Validate(claim.ValidationInput{
		OrderDate:    req.OrderDate,
		ClaimDate:    req.ClaimDate,
		ClaimantID:   req.ClaimantID,
		CandidateIDs: req.MemberIDs,
		Directory:    directory,
		Attendance: func(id string, date time.Time) (bool, error) {
			return s.attendance.IsPresent(ctx, id, date)
		},
		History: history,
	})
	if group != nil && len(group.SkippedHistory) > 0 {
		s.warnMalformed(orderDate, group.SkippedHistory)
	}
	if err != nil {
		var dup *claim.DuplicateClaimError
		if errors.As(err, &dup) {
			s.warnMalformed(orderDate, skippedRows(history))
		}
		return nil, err
	}

	extractions := s.extractAll(ctx, req.Bills)

	reconciled, err := s.reconciler.Reconcile(req.Amount, extractions, group.OrderDate)
	if err != nil {
		return nil, err
	}

	return &pipelineResult{
		group:        group,
		extractions:  extractions,
		reconciled:   reconciled,
		reimbursable: s.policy.Reimbursable(reconciled.AggregateCost, group.Size()),
	}, nil
}

func (s *claimServiceImpl) checkRequest(req *SubmitRequest) error {
	req.BillNumber = utils.SanitizeString(req.BillNumber)
	req.ClaimantID = utils.SanitizeString(req.ClaimantID)

	if err := utils.ValidateBillNumber(req.BillNumber); err != nil {
		return fmt.Errorf("%w: %v", claim.ErrInvalidRequest, err)
	}
	if req.ClaimantID == "" {
		return fmt.Errorf("%w: claimant is required", claim.ErrInvalidRequest)
	}
	if req.OrderDate.IsZero() || req.ClaimDate.IsZero() {
		return fmt.Errorf("%w: order date and claim date are required", claim.ErrInvalidRequest)
	}
	if !req.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", claim.ErrInvalidRequest)
	}
	if len(req.Bills) == 0 {
		return fmt.Errorf("%w: at least one bill is required", claim.ErrInvalidRequest)
	}
	if s.policy.MaxBills > 0 && len(req.Bills) > s.policy.MaxBills {
		return fmt.Errorf("%w: at most %d bills per claim", claim.ErrInvalidRequest, s.policy.MaxBills)
	}
	for _, b := range req.Bills {
		if len(b.Data) == 0 {
			return fmt.Errorf("%w: bill %s is empty", claim.ErrInvalidRequest, b.Filename)
		}
	}
	return nil
}

func (s *claimServiceImpl) directory(ctx context.Context) (map[string]entity.Employee, error) {
	employees, err := s.employees.List(ctx)
	if err != nil {
		return nil, asPersistence("load employees", err)
	}
	directory := make(map[string]entity.Employee, len(employees))
	for _, e := range employees {
		directory[e.ID] = *e
	}
	return directory, nil
}

// extractAll reads every bill with bounded parallelism. Results keep upload order.
func (s *claimServiceImpl) extractAll(ctx context.Context, bills []entity.BillUpload) []entity.BillExtraction {
	results := make([]entity.BillExtraction, len(bills))
	sem := make(chan struct{}, s.concurrency)
	var wg sync.WaitGroup

	for i := range bills {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[i] = entity.BillExtraction{Filename: bills[i].Filename, Err: ctx.Err()}
				return
			}
			results[i] = s.extractOne(ctx, bills[i])
		}(i)
	}

	wg.Wait()
	return results
}

func (s *claimServiceImpl) extractOne(ctx context.Context, bill entity.BillUpload) (out entity.BillExtraction) {
	out = entity.BillExtraction{ID: s.newID(), Filename: bill.Filename}

	if s.extractionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.extractionTimeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			out.Err = fmt.Errorf("extractor panic: %v", r)
		}
		s.metrics.ObserveExtraction(out.Failed(), time.Since(start))
		if out.Failed() {
			s.logger.Warn("Bill extraction failed", zap.String("filename", bill.Filename), zap.Error(out.Err))
		}
	}()

	result, err := s.extractor.Extract(ctx, bill)
	if err != nil {
		out.Err = err
		return out
	}
	if result == nil || result.Total == nil {
		out.Err = ErrNoTotal
		return out
	}
	if !result.Total.IsPositive() {
		out.Err = fmt.Errorf("%w: read %s", claim.ErrNonPositiveTotal, result.Total.String())
		return out
	}

	out.RestaurantName = deref(result.RestaurantName)
	out.BillNumber = deref(result.BillNumber)
	out.Date = deref(result.Date)
	out.Total = result.Total.Round(entity.AmountPlaces)
	out.RawResponse = result.RawResponse
	return out
}

// storeBills writes uploads under <order date>/<ulid>_<name>; on failure nothing is left behind
func (s *claimServiceImpl) storeBills(ctx context.Context, orderDate time.Time, bills []entity.BillUpload) ([]string, error) {
	dir := orderDate.Format(entity.DateLayout)
	paths := make([]string, 0, len(bills))

	for _, b := range bills {
		p := path.Join(dir, s.newID()+"_"+utils.SanitizeFilename(b.Filename))
		if err := s.files.Save(ctx, p, b.Data); err != nil {
			s.removeBills(ctx, paths)
			return nil, &claim.PersistenceError{Op: "store bill " + b.Filename, Err: err}
		}
		paths = append(paths, p)
	}
	return paths, nil
}

func (s *claimServiceImpl) removeBills(ctx context.Context, paths []string) {
	for _, p := range paths {
		if err := s.files.Delete(ctx, p); err != nil {
			s.logger.Error("Failed to remove stored bill", zap.String("path", p), zap.Error(err))
		}
	}
}

// Get returns one claim by bill number
func (s *claimServiceImpl) Get(ctx context.Context, billNumber string) (*entity.ClaimRecord, error) {
	return s.claims.GetByBillNumber(ctx, billNumber)
}

// ListAll returns every claim, newest claim date first
func (s *claimServiceImpl) ListAll(ctx context.Context) ([]*entity.ClaimRecord, error) {
	return s.claims.ListAll(ctx)
}

// MyClaims returns the claims an employee filed for an order date.
// An id with no claims, including one missing from the directory, yields an empty list.
func (s *claimServiceImpl) MyClaims(ctx context.Context, employeeID string, orderDate time.Time) ([]*entity.ClaimRecord, error) {
	records, err := s.claims.ListByClaimant(ctx, employeeID, claim.Day(orderDate))
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []*entity.ClaimRecord{}
	}
	return records, nil
}

// StatusHistory returns the status transitions of a claim
func (s *claimServiceImpl) StatusHistory(ctx context.Context, billNumber string) ([]*entity.StatusChange, error) {
	if _, err := s.claims.GetByBillNumber(ctx, billNumber); err != nil {
		return nil, err
	}
	return s.claims.GetStatusHistory(ctx, billNumber)
}

// BillFile returns the content and stored name of the index-th bill of a claim
func (s *claimServiceImpl) BillFile(ctx context.Context, billNumber string, index int) ([]byte, string, error) {
	record, err := s.claims.GetByBillNumber(ctx, billNumber)
	if err != nil {
		return nil, "", err
	}
	if index < 0 || index >= len(record.BillFilePaths) {
		return nil, "", fmt.Errorf("%w: claim %s has %d bill files", claim.ErrInvalidRequest, billNumber, len(record.BillFilePaths))
	}

	p := record.BillFilePaths[index]
	content, err := s.files.Read(ctx, p)
	if err != nil {
		return nil, "", asPersistence("read bill file", err)
	}
	return content, path.Base(p), nil
}

// Employees returns the employee directory
func (s *claimServiceImpl) Employees(ctx context.Context) ([]*entity.Employee, error) {
	return s.employees.List(ctx)
}

// Employee returns one employee
func (s *claimServiceImpl) Employee(ctx context.Context, id string) (*entity.Employee, error) {
	return s.employees.GetByID(ctx, id)
}

func (s *claimServiceImpl) warnMalformed(orderDate time.Time, billNumbers []string) {
	if len(billNumbers) == 0 {
		return
	}
	s.metrics.AddMalformedHistory(len(billNumbers))
	s.logger.Warn("Skipped claims with unreadable group members during duplicate check",
		zap.String("order_date", orderDate.Format(entity.DateLayout)),
		zap.Strings("bill_numbers", billNumbers))
}

func (s *claimServiceImpl) logRejected(msg string, req *SubmitRequest, err error) {
	fields := utils.ClaimFields(req.BillNumber, req.ClaimantID, req.OrderDate.Format(entity.DateLayout))
	fields = append(fields, zap.String("code", claim.CodeOf(err)), zap.Error(err))

	var persist *claim.PersistenceError
	if errors.As(err, &persist) {
		s.logger.Error(msg, fields...)
		return
	}
	s.logger.Info(msg, fields...)
}

// skippedRows lists history rows whose group members cannot be decoded
func skippedRows(history []*entity.ClaimRecord) []string {
	var out []string
	for _, r := range history {
		if r == nil {
			continue
		}
		if _, ok := claim.MembersOf(r); !ok {
			out = append(out, r.BillNumber)
		}
	}
	return out
}

func outcome(err error) string {
	if err == nil {
		return metrics.OutcomeOK
	}
	return claim.CodeOf(err)
}

// asPersistence keeps domain errors and wraps anything else as a PersistenceError
func asPersistence(op string, err error) error {
	if claim.CodeOf(err) != claim.CodeUnknown {
		return err
	}
	return &claim.PersistenceError{Op: op, Err: err}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
