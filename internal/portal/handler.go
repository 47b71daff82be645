package portal

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/sojourn-loans/sojourn/internal/platform/httpx"
	"github.com/sojourn-loans/sojourn/internal/shared"
	"github.com/sojourn-loans/sojourn/report"
)

// SchedulePDF renders a repayment schedule document.
type SchedulePDF interface {
	RenderSchedule(ctx context.Context, data report.ScheduleData) ([]byte, error)
}

// Handler manages borrower self-service endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	pdf     SchedulePDF
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, pdf SchedulePDF) *Handler {
	return &Handler{logger: logger, service: service, pdf: pdf}
}

// MountRoutes registers borrower routes. The caller guards the group with
// the borrower role middleware.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/me", h.getDashboard)
	r.Group(func(gr chi.Router) {
		gr.Use(httprate.Limit(10, time.Minute, httprate.WithKeyFuncs(rateLimitKey)))
		gr.Get("/me/schedule", h.downloadSchedule)
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

func (h *Handler) getDashboard(w http.ResponseWriter, r *http.Request) {
	identity := shared.IdentityFromContext(r.Context())
	if identity == nil {
		httpx.RespondError(w, shared.ErrForbidden)
		return
	}
	dash, err := h.service.GetDashboard(r.Context(), identity.UserID)
	if err != nil {
		h.logger.Error("borrower dashboard", slog.Any("error", err), slog.Int64("user_id", identity.UserID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, dash)
}

func (h *Handler) downloadSchedule(w http.ResponseWriter, r *http.Request) {
	identity := shared.IdentityFromContext(r.Context())
	if identity == nil {
		httpx.RespondError(w, shared.ErrForbidden)
		return
	}
	view, err := h.service.GetScheduleView(r.Context(), identity.UserID)
	if err != nil {
		h.logger.Error("load schedule data", slog.Any("error", err), slog.Int64("user_id", identity.UserID))
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
		h.logger.Error("render schedule pdf", slog.Any("error", err))
		httpx.Problem(w, http.StatusBadGateway, "PDF Generation Failed", "")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "Repayment-Schedule-"+view.Detail.Borrower.PhoneNumber+".pdf"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}
