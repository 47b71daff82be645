package loan

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/sojourn-loans/sojourn/internal/platform/httpx"
	"github.com/sojourn-loans/sojourn/internal/shared"
	"github.com/sojourn-loans/sojourn/internal/timeline"
	"github.com/sojourn-loans/sojourn/report"
)

// SchedulePDF renders a repayment schedule document.
type SchedulePDF interface {
	RenderSchedule(ctx context.Context, data report.ScheduleData) ([]byte, error)
}

// Handler manages the admin loan endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	pdf      SchedulePDF
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, pdf SchedulePDF) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(),
		pdf:      pdf,
	}
}

// MountRoutes registers admin routes. The caller guards the group with
// the admin role middleware.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/borrowers", h.registerBorrower)
	r.Get("/borrowers", h.listBorrowers)
	r.Get("/borrowers/{id}", h.getBorrowerDetail)
	r.Post("/borrowers/{id}/reset-password", h.resetPassword)
	r.Post("/payments", h.recordPayment)

	// PDF generation is expensive; throttle per caller.
	r.Group(func(gr chi.Router) {
		gr.Use(httprate.Limit(10, time.Minute, httprate.WithKeyFuncs(rateLimitKey)))
		gr.Get("/borrowers/{id}/schedule", h.downloadSchedule)
	})
}

func rateLimitKey(r *http.Request) (string, error) {
	if id := shared.IdentityFromContext(r.Context()); id != nil {
		return "user:" + strconv.FormatInt(id.UserID, 10), nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}

type registerBorrowerRequest struct {
	FullName              string  `json:"fullName" validate:"required"`
	PhoneNumber           string  `json:"phoneNumber" validate:"required"`
	GhanaCardNumber       string  `json:"ghanaCardNumber" validate:"required"`
	HomeAddressGhana      string  `json:"homeAddressGhana" validate:"required"`
	DestinationAddress    string  `json:"destinationAddress" validate:"required"`
	LoanAmount            float64 `json:"loanAmount" validate:"required,gt=0"`
	MonthsDuration        int     `json:"monthsDuration" validate:"omitempty,gt=0"`
	StartDate             string  `json:"startDate" validate:"omitempty,datetime=2006-01-02"`
	GuarantorName         string  `json:"guarantorName" validate:"required"`
	GuarantorPhone        string  `json:"guarantorPhone" validate:"required"`
	GuarantorRelationship string  `json:"guarantorRelationship" validate:"required"`
}

func (h *Handler) registerBorrower(w http.ResponseWriter, r *http.Request) {
	var req registerBorrowerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	var startDate time.Time
	if req.StartDate != "" {
		startDate, _ = time.Parse("2006-01-02", req.StartDate)
	}

	detail, tempPassword, err := h.service.RegisterBorrower(r.Context(), RegisterBorrowerInput{
		FullName:           req.FullName,
		PhoneNumber:        req.PhoneNumber,
		GhanaCardNumber:    req.GhanaCardNumber,
		HomeAddressGhana:   req.HomeAddressGhana,
		DestinationAddress: req.DestinationAddress,
		LoanAmount:         req.LoanAmount,
		MonthsDuration:     req.MonthsDuration,
		StartDate:          startDate,
		GuarantorName:      req.GuarantorName,
		GuarantorPhone:     req.GuarantorPhone,
		GuarantorRelation:  req.GuarantorRelationship,
		RegisteredBy:       actorID(r),
	})
	if err != nil {
		h.logger.Error("register borrower", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	httpx.JSON(w, http.StatusCreated, map[string]any{
		"borrowerId":   detail.Borrower.ID,
		"tempPassword": tempPassword,
	})
}

type pageResponse struct {
	Content       []BorrowerSummary `json:"content"`
	TotalElements int               `json:"totalElements"`
	TotalPages    int               `json:"totalPages"`
	Size          int               `json:"size"`
	Number        int               `json:"number"`
	First         bool              `json:"first"`
	Last          bool              `json:"last"`
	Stats         DashboardStats    `json:"stats"`
}

func (h *Handler) listBorrowers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("size"))
	if size <= 0 || size > 100 {
		size = 10
	}

	req := ListBorrowersRequest{
		Search:   strings.TrimSpace(q.Get("search")),
		Statuses: parseStatuses(q.Get("status")),
		Page:     page + 1, // zero-based page numbers on the wire
		PerPage:  size,
		SortBy:   q.Get("sortBy"),
		SortDir:  q.Get("sortDir"),
	}

	result, err := h.service.ListBorrowers(r.Context(), req)
	if err != nil {
		h.logger.Error("list borrowers", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	items := result.Items
	if items == nil {
		items = []BorrowerSummary{}
	}
	httpx.JSON(w, http.StatusOK, pageResponse{
		Content:       items,
		TotalElements: result.Pagination.Total,
		TotalPages:    result.Pagination.TotalPages,
		Size:          result.Pagination.PerPage,
		Number:        result.Pagination.Page - 1,
		First:         result.Pagination.Page == 1,
		Last:          result.Pagination.IsLast(),
		Stats:         ComputeDashboardStats(result.Pagination.Total, items),
	})
}

func parseStatuses(raw string) []Status {
	if raw == "" {
		return nil
	}
	var out []Status
	for _, part := range strings.Split(raw, ",") {
		switch Status(strings.TrimSpace(part)) {
		case StatusOnTrack:
			out = append(out, StatusOnTrack)
		case StatusDelayed:
			out = append(out, StatusDelayed)
		case StatusCompleted:
			out = append(out, StatusCompleted)
		}
	}
	return out
}

type paymentResponse struct {
	Amount     float64   `json:"amount"`
	Date       time.Time `json:"date"`
	RecordedBy string    `json:"recordedBy"`
	Note       string    `json:"note,omitempty"`
}

type borrowerDetailResponse struct {
	BorrowerID            int64            `json:"borrowerId"`
	FullName              string           `json:"fullName"`
	PhoneNumber           string           `json:"phoneNumber"`
	GhanaCardNumber       string           `json:"ghanaCardNumber"`
	HomeAddressGhana      string           `json:"homeAddressGhana"`
	DestinationAddress    string           `json:"destinationAddress"`
	LoanAmount            float64          `json:"loanAmount"`
	MonthlyPayment        float64          `json:"monthlyPayment"`
	TotalPaid             float64          `json:"totalPaid"`
	Balance               float64          `json:"balance"`
	StartDate             *time.Time       `json:"startDate"`
	EndDate               *time.Time       `json:"endDate"`
	MonthsDuration        int              `json:"monthsDuration"`
	Status                Status           `json:"status"`
	GuarantorName         string           `json:"guarantorName"`
	GuarantorPhone        string           `json:"guarantorPhone"`
	GuarantorRelationship string           `json:"guarantorRelationship"`
	Payments              []paymentResponse `json:"payments"`
	Timeline              []timeline.Entry  `json:"timeline"`
}

func detailResponse(view *DetailView) borrowerDetailResponse {
	d := view.Detail
	resp := borrowerDetailResponse{
		BorrowerID:            d.Borrower.ID,
		FullName:              d.Borrower.FullName,
		PhoneNumber:           d.Borrower.PhoneNumber,
		GhanaCardNumber:       d.Borrower.GhanaCardNumber,
		HomeAddressGhana:      d.Borrower.HomeAddressGhana,
		DestinationAddress:    d.Borrower.DestinationAddress,
		LoanAmount:            d.Loan.Amount,
		MonthlyPayment:        d.Loan.MonthlyPayment,
		TotalPaid:             d.Loan.TotalPaid,
		Balance:               d.Loan.Balance(),
		MonthsDuration:        d.Loan.MonthsDuration,
		Status:                d.Loan.Status,
		GuarantorName:         d.Guarantor.FullName,
		GuarantorPhone:        d.Guarantor.PhoneNumber,
		GuarantorRelationship: d.Guarantor.Relationship,
		Payments:              []paymentResponse{},
		Timeline:              view.Timeline,
	}
	if !d.Loan.StartDate.IsZero() {
		t := d.Loan.StartDate
		resp.StartDate = &t
	}
	if !d.Loan.EndDate.IsZero() {
		t := d.Loan.EndDate
		resp.EndDate = &t
	}
	for _, p := range d.Payments {
		resp.Payments = append(resp.Payments, paymentResponse{
			Amount:     p.Amount,
			Date:       p.PaidAt,
			RecordedBy: p.RecordedBy,
			Note:       p.Note,
		})
	}
	if resp.Timeline == nil {
		resp.Timeline = []timeline.Entry{}
	}
	return resp
}

func (h *Handler) getBorrowerDetail(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid borrower ID")
		return
	}
	view, err := h.service.GetBorrowerDetail(r.Context(), id)
	if err != nil {
		h.logger.Error("get borrower detail", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, detailResponse(view))
}

type recordPaymentRequest struct {
	BorrowerID  int64   `json:"borrowerId" validate:"required"`
	AmountPaid  float64 `json:"amountPaid" validate:"required,gt=0"`
	PaymentDate string  `json:"paymentDate" validate:"omitempty,datetime=2006-01-02"`
	Note        string  `json:"note"`
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	var req recordPaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	var paidAt time.Time
	if req.PaymentDate != "" {
		paidAt, _ = time.Parse("2006-01-02", req.PaymentDate)
	}

	identity := shared.IdentityFromContext(r.Context())
	recordedBy := ""
	if identity != nil {
		recordedBy = identity.FullName
	}

	payment, err := h.service.RecordPayment(r.Context(), RecordPaymentInput{
		BorrowerID: req.BorrowerID,
		Amount:     req.AmountPaid,
		PaidAt:     paidAt,
		Note:       req.Note,
		RecordedBy: recordedBy,
		ActorID:    actorID(r),
	})
	if err != nil {
		h.logger.Error("record payment", slog.Any("error", err), slog.Int64("borrower_id", req.BorrowerID))
		httpx.RespondError(w, err)
		return
	}

	httpx.JSON(w, http.StatusCreated, map[string]any{
		"paymentId": payment.ID,
		"amount":    payment.Amount,
		"date":      payment.PaidAt,
	})
}

func (h *Handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid borrower ID")
		return
	}
	tempPassword, err := h.service.ResetBorrowerPassword(r.Context(), id, actorID(r))
	if err != nil {
		h.logger.Error("reset borrower password", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"tempPassword": tempPassword})
}

func (h *Handler) downloadSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid borrower ID")
		return
	}
	view, err := h.service.GetBorrowerDetail(r.Context(), id)
	if err != nil {
		h.logger.Error("load schedule data", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}

	pdf, err := h.pdf.RenderSchedule(r.Context(), report.ScheduleData{
		BorrowerName:   view.Detail.Borrower.FullName,
		PhoneNumber:    view.Detail.Borrower.PhoneNumber,
		LoanAmount:     view.Detail.Loan.Amount,
		MonthlyPayment: view.Detail.Loan.MonthlyPayment,
		TotalPaid:      view.Detail.Loan.TotalPaid,
		Balance:        view.Detail.Loan.Balance(),
		Status:         string(view.Detail.Loan.Status),
		Entries:        view.Timeline,
	})
	if err != nil {
		h.logger.Error("render schedule pdf", slog.Any("error", err), slog.Int64("id", id))
		httpx.Problem(w, http.StatusBadGateway, "PDF Generation Failed", "")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "Repayment-Schedule-"+view.Detail.Borrower.PhoneNumber+".pdf"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

func actorID(r *http.Request) int64 {
	if id := shared.IdentityFromContext(r.Context()); id != nil {
		return id.UserID
	}
	return 0
}
