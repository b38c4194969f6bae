package http

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/garyjia/lunch-claims/internal/application/service"
	"github.com/garyjia/lunch-claims/internal/domain/claim"
	"github.com/garyjia/lunch-claims/internal/domain/entity"
	"github.com/garyjia/lunch-claims/internal/infrastructure/export"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Handlers contains all HTTP request handlers
type Handlers struct {
	claims         service.ClaimService
	approvals      service.ApprovalService
	workbook       *export.ClaimWorkbook
	maxUploadBytes int64
	logger         *zap.Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	claims service.ClaimService,
	approvals service.ApprovalService,
	maxUploadBytes int64,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		claims:         claims,
		approvals:      approvals,
		workbook:       export.NewClaimWorkbook(),
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// ClaimResponse is a claim row as shown to the claimant and on the admin grid
type ClaimResponse struct {
	BillNumber       string               `json:"bill_number"`
	OrderDate        string               `json:"order_date"`
	ClaimDate        string               `json:"claim_date"`
	ClaimantID       string               `json:"claimant_id"`
	GroupMembers     []entity.GroupMember `json:"group_members"`
	GroupSize        int                  `json:"group_size"`
	BillAmount       decimal.Decimal      `json:"bill_amount"`
	ReimbursedAmount decimal.Decimal      `json:"reimbursed_amount"`
	BillFiles        int                  `json:"bill_files"`
	Status           entity.ClaimStatus   `json:"status"`
	Approve          bool                 `json:"approve"`
	Reject           bool                 `json:"reject"`
	CreatedAt        string               `json:"created_at,omitempty"`
}

// claimForm is the multipart body of preview and submit; bills are sent as repeated "bills" files
type claimForm struct {
	OrderDate  string   `form:"order_date" binding:"required"`
	ClaimDate  string   `form:"claim_date" binding:"required"`
	ClaimantID string   `form:"claimant_id" binding:"required"`
	MemberIDs  []string `form:"member_ids"`
	BillNumber string   `form:"bill_number" binding:"required"`
	Amount     string   `form:"amount" binding:"required"`
}

// StatusRequest is the body of POST /api/claims/status
type StatusRequest struct {
	Rows []service.StatusRow `json:"rows" binding:"required"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// ListEmployees handles GET /api/employees
func (h *Handlers) ListEmployees(c *gin.Context) {
	employees, err := h.claims.Employees(c.Request.Context())
	if err != nil {
		h.fail(c, "Failed to list employees", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: employees})
}

// GetEmployee handles GET /api/employees/:id
func (h *Handlers) GetEmployee(c *gin.Context) {
	employee, err := h.claims.Employee(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "Failed to get employee", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: employee})
}

// PreviewClaim handles POST /api/claims/preview
func (h *Handlers) PreviewClaim(c *gin.Context) {
	req, ok := h.bindClaim(c)
	if !ok {
		return
	}

	preview, err := h.claims.Preview(c.Request.Context(), req)
	if err != nil {
		h.fail(c, "Claim preview failed", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: preview})
}

// SubmitClaim handles POST /api/claims
func (h *Handlers) SubmitClaim(c *gin.Context) {
	req, ok := h.bindClaim(c)
	if !ok {
		return
	}

	record, err := h.claims.Submit(c.Request.Context(), req)
	if err != nil {
		h.fail(c, "Claim submission failed", err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: toClaimResponse(record)})
}

// ListClaims handles GET /api/claims
func (h *Handlers) ListClaims(c *gin.Context) {
	records, err := h.claims.ListAll(c.Request.Context())
	if err != nil {
		h.fail(c, "Failed to list claims", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: toClaimResponses(records)})
}

// MyClaims handles GET /api/claims/mine?employee_id=&order_date=
func (h *Handlers) MyClaims(c *gin.Context) {
	employeeID := strings.TrimSpace(c.Query("employee_id"))
	if employeeID == "" {
		h.badRequest(c, "employee_id is required")
		return
	}
	orderDate, err := time.Parse(entity.DateLayout, c.Query("order_date"))
	if err != nil {
		h.badRequest(c, "order_date must be YYYY-MM-DD")
		return
	}

	records, err := h.claims.MyClaims(c.Request.Context(), employeeID, orderDate)
	if err != nil {
		h.fail(c, "Failed to list employee claims", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: toClaimResponses(records)})
}

// GetClaim handles GET /api/claims/:bill_number
func (h *Handlers) GetClaim(c *gin.Context) {
	record, err := h.claims.Get(c.Request.Context(), c.Param("bill_number"))
	if err != nil {
		h.fail(c, "Failed to get claim", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: toClaimResponse(record)})
}

// ClaimHistory handles GET /api/claims/:bill_number/history
func (h *Handlers) ClaimHistory(c *gin.Context) {
	history, err := h.claims.StatusHistory(c.Request.Context(), c.Param("bill_number"))
	if err != nil {
		h.fail(c, "Failed to get claim history", err)
		return
	}
	if history == nil {
		history = []*entity.StatusChange{}
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: history})
}

// BillFile handles GET /api/claims/:bill_number/files/:index
func (h *Handlers) BillFile(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		h.badRequest(c, "invalid file index")
		return
	}

	content, name, err := h.claims.BillFile(c.Request.Context(), c.Param("bill_number"), index)
	if err != nil {
		h.fail(c, "Failed to read bill file", err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", name))
	c.Data(http.StatusOK, http.DetectContentType(content), content)
}

// UpdateStatuses handles POST /api/claims/status
func (h *Handlers) UpdateStatuses(c *gin.Context) {
	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid status request: "+err.Error())
		return
	}

	result := h.approvals.Resolve(c.Request.Context(), req.Rows)
	c.JSON(http.StatusOK, Response{Success: len(result.Errors) == 0, Data: result})
}

// ExportClaims handles GET /api/claims/export
func (h *Handlers) ExportClaims(c *gin.Context) {
	records, err := h.claims.ListAll(c.Request.Context())
	if err != nil {
		h.fail(c, "Failed to list claims for export", err)
		return
	}

	var buf bytes.Buffer
	if err := h.workbook.Write(&buf, records); err != nil {
		h.fail(c, "Failed to build claims workbook", &claim.PersistenceError{Op: "export claims", Err: err})
		return
	}

	filename := fmt.Sprintf("lunch_claims_%s.xlsx", time.Now().UTC().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

// bindClaim reads the multipart claim form; it writes the error response itself
func (h *Handlers) bindClaim(c *gin.Context) (service.SubmitRequest, bool) {
	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	}

	var form claimForm
	if err := c.ShouldBind(&form); err != nil {
		h.badRequest(c, "invalid claim form: "+err.Error())
		return service.SubmitRequest{}, false
	}

	orderDate, err := time.Parse(entity.DateLayout, strings.TrimSpace(form.OrderDate))
	if err != nil {
		h.badRequest(c, "order_date must be YYYY-MM-DD")
		return service.SubmitRequest{}, false
	}
	claimDate, err := time.Parse(entity.DateLayout, strings.TrimSpace(form.ClaimDate))
	if err != nil {
		h.badRequest(c, "claim_date must be YYYY-MM-DD")
		return service.SubmitRequest{}, false
	}
	amount, err := entity.ParseAmount(form.Amount)
	if err != nil {
		h.badRequest(c, "amount must be a decimal number")
		return service.SubmitRequest{}, false
	}

	multipartForm, err := c.MultipartForm()
	if err != nil {
		h.badRequest(c, "bills must be uploaded as multipart/form-data")
		return service.SubmitRequest{}, false
	}
	uploads, err := readBills(multipartForm.File["bills"])
	if err != nil {
		h.badRequest(c, err.Error())
		return service.SubmitRequest{}, false
	}

	return service.SubmitRequest{
		OrderDate:  orderDate,
		ClaimDate:  claimDate,
		ClaimantID: form.ClaimantID,
		MemberIDs:  splitIDs(form.MemberIDs),
		BillNumber: form.BillNumber,
		Amount:     amount,
		Bills:      uploads,
	}, true
}

func readBills(headers []*multipart.FileHeader) ([]entity.BillUpload, error) {
	uploads := make([]entity.BillUpload, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("cannot open %s: %w", fh.Filename, err)
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("cannot read %s: %w", fh.Filename, err)
		}
		uploads = append(uploads, entity.BillUpload{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}
	return uploads, nil
}

// splitIDs accepts repeated member_ids fields as well as comma separated lists
func splitIDs(values []string) []string {
	var ids []string
	for _, v := range values {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

func (h *Handlers) badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, Response{Success: false, Error: msg, Code: claim.CodeInvalidRequest})
}

// fail writes a domain error with the status its code maps to
func (h *Handlers) fail(c *gin.Context, msg string, err error) {
	code := claim.CodeOf(err)
	status := statusFor(code)

	if status >= http.StatusInternalServerError {
		h.logger.Error(msg, zap.String("code", code), zap.Error(err))
	} else {
		h.logger.Info(msg, zap.String("code", code), zap.Error(err))
	}

	message := err.Error()
	var persist *claim.PersistenceError
	if errors.As(err, &persist) || code == claim.CodeUnknown {
		message = "internal error"
	}
	c.JSON(status, Response{Success: false, Error: message, Code: code})
}

func statusFor(code string) int {
	switch code {
	case claim.CodeInvalidRequest:
		return http.StatusBadRequest
	case claim.CodeNotFound:
		return http.StatusNotFound
	case claim.CodeDuplicateClaim, claim.CodeDuplicateBill:
		return http.StatusConflict
	case claim.CodeExtractionFailed:
		return http.StatusBadGateway
	case claim.CodeInvalidDateWindow, claim.CodeClaimWindowExpired, claim.CodeUnknownEmployee,
		claim.CodeAbsentMember, claim.CodeNoEligibleMembers, claim.CodeAmountMismatch, claim.CodeBillDateMismatch:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func toClaimResponse(r *entity.ClaimRecord) ClaimResponse {
	members, _ := claim.MembersOf(r)
	if members == nil {
		members = []entity.GroupMember{}
	}

	resp := ClaimResponse{
		BillNumber:       r.BillNumber,
		OrderDate:        r.OrderDate.Format(entity.DateLayout),
		ClaimDate:        r.ClaimDate.Format(entity.DateLayout),
		ClaimantID:       r.ClaimantID,
		GroupMembers:     members,
		GroupSize:        len(members),
		BillAmount:       r.BillAmount,
		ReimbursedAmount: r.ReimbursedAmount,
		BillFiles:        len(r.BillFilePaths),
		Status:           r.Status,
		Approve:          r.Status == entity.ClaimStatusApproved,
		Reject:           r.Status == entity.ClaimStatusRejected,
	}
	if !r.CreatedAt.IsZero() {
		resp.CreatedAt = r.CreatedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func toClaimResponses(records []*entity.ClaimRecord) []ClaimResponse {
	out := make([]ClaimResponse, 0, len(records))
	for _, r := range records {
		out = append(out, toClaimResponse(r))
	}
	return out
}
