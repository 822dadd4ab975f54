package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"voip-billing/internal/audit"
	"voip-billing/internal/invoicing"
	"voip-billing/internal/rates"
	"voip-billing/internal/reporting"
	"voip-billing/internal/tax"
	"voip-billing/internal/usage"
	"voip-billing/internal/wallet"
	"voip-billing/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Rates   *rates.Service
	Wallet  *wallet.Service
	Usage   *usage.Service
	Billing *invoicing.Service
	Reports *reporting.Service
	Audit   *audit.Service
	Tax     tax.Policy
}

const headerActor = "X-Actor"

// writeServiceError maps service sentinel errors to HTTP statuses.
func writeServiceError(c *gin.Context, err error) {
	var short *wallet.InsufficientBalanceError
	if errors.As(err, &short) {
		c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{
			"error":    "insufficient balance",
			"current":  short.Current,
			"required": short.Required,
		})
		return
	}

	switch {
	case errors.Is(err, wallet.ErrInsufficientBalance):
		c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{"error": "insufficient balance"})
	case errors.Is(err, rates.ErrPlanNotFound),
		errors.Is(err, rates.ErrNoRouteFound),
		errors.Is(err, wallet.ErrNotFound),
		errors.Is(err, invoicing.ErrTenantNotFound),
		errors.Is(err, invoicing.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, rates.ErrNoPlanAssigned):
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, invoicing.ErrInvalidTransition),
		errors.Is(err, invoicing.ErrConcurrencyConflict):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, rates.ErrInvalidRequest),
		errors.Is(err, wallet.ErrInvalidAmount),
		errors.Is(err, wallet.ErrInvalidArgument),
		errors.Is(err, usage.ErrInvalidEvent),
		errors.Is(err, invoicing.ErrInvalidRequest),
		errors.Is(err, reporting.ErrInvalidRequest):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// --- Rates ---

func (h Handlers) ListPlanRates(c *gin.Context) {
	if h.Rates == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "rates not configured"})
		return
	}
	out, err := h.Rates.ConfigureRates(c.Request.Context(), c.Param("plan_id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rates": out})
}

func (h Handlers) ListTenantRates(c *gin.Context) {
	if h.Rates == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "rates not configured"})
		return
	}
	out, err := h.Rates.UserRates(c.Request.Context(), c.Param("tenant_id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rates": out})
}

func (h Handlers) PreviewCallCost(c *gin.Context) {
	if h.Rates == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "rates not configured"})
		return
	}
	dest := c.Query("destination")
	dur, err := strconv.Atoi(c.DefaultQuery("duration_seconds", "0"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "duration_seconds must be an integer"})
		return
	}
	out, err := h.Rates.CallCost(c.Request.Context(), c.Param("tenant_id"), dest, dur)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

type importRatesRequest struct {
	Rates []rates.BaseRate `json:"rates"`
}

func (h Handlers) ImportBaseRates(c *gin.Context) {
	if h.Rates == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "rates not configured"})
		return
	}
	var req importRatesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	n, err := h.Rates.ImportBaseRates(c.Request.Context(), c.GetHeader(headerActor), req.Rates)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"imported": n})
}

// --- Wallet ---

func (h Handlers) GetBalance(c *gin.Context) {
	if h.Wallet == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "wallet not configured"})
		return
	}
	bal, err := h.Wallet.Balance(c.Request.Context(), c.Param("tenant_id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tenant_id": c.Param("tenant_id"), "balance": bal})
}

func (h Handlers) GetLedger(c *gin.Context) {
	if h.Wallet == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "wallet not configured"})
		return
	}
	entries, err := h.Wallet.History(c.Request.Context(), c.Param("tenant_id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

type topUpRequest struct {
	Amount                decimal.Decimal `json:"amount"`
	PaymentMethod         string          `json:"payment_method,omitempty"`
	ExternalTransactionID string          `json:"external_transaction_id"`

	// Optional billing profile for the tax breakdown in the response.
	Country            string `json:"country,omitempty"`
	RegistrationNumber string `json:"registration_number,omitempty"`
}

// TopUp credits the tenant wallet. The response carries the tax treatment
// for the paid amount so the payment layer can issue a correct receipt.
func (h Handlers) TopUp(c *gin.Context) {
	if h.Wallet == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "wallet not configured"})
		return
	}
	var req topUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	desc := "wallet top-up"
	if req.PaymentMethod != "" {
		desc = "wallet top-up via " + req.PaymentMethod
	}
	tenantID := c.Param("tenant_id")
	res, err := h.Wallet.Credit(c.Request.Context(), tenantID, req.Amount, wallet.EntryTypeTopUp, desc, req.ExternalTransactionID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	breakdown := h.Tax.Calculate(tax.BillingProfile{
		Country:            req.Country,
		RegistrationNumber: req.RegistrationNumber,
	}, req.Amount)
	c.JSON(http.StatusOK, gin.H{
		"new_balance": res.NewBalance,
		"entry_id":    res.EntryID,
		"tax":         breakdown,
	})
}

type adminCreditRequest struct {
	TenantID string          `json:"tenant_id"`
	Amount   decimal.Decimal `json:"amount"`
	Reason   string          `json:"reason"`
}

// AdminCredit performs a privileged wallet adjustment. The audit trail
// records who did it and why; audit failures never undo the credit.
func (h Handlers) AdminCredit(c *gin.Context) {
	if h.Wallet == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "wallet not configured"})
		return
	}
	var req adminCreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.Reason == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "reason required"})
		return
	}
	res, err := h.Wallet.Credit(c.Request.Context(), req.TenantID, req.Amount, wallet.EntryTypeAdjustment, req.Reason, "")
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if h.Audit != nil {
		actor := c.GetHeader(headerActor)
		if aerr := h.Audit.LogManualCredit(c.Request.Context(), req.TenantID, actor, res.EntryID, req.Reason); aerr != nil {
			logger.FromGin(c).Warn("manual credit audit failed", "tenant_id", req.TenantID, "err", aerr)
		}
	}
	c.JSON(http.StatusOK, gin.H{"new_balance": res.NewBalance, "entry_id": res.EntryID})
}

// --- Usage ---

func (h Handlers) SubmitCall(c *gin.Context) {
	if h.Usage == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "usage not configured"})
		return
	}
	var ev usage.CallEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	res, err := h.Usage.SubmitCall(c.Request.Context(), ev)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h Handlers) SubmitSMS(c *gin.Context) {
	if h.Usage == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "usage not configured"})
		return
	}
	var ev usage.SMSEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	res, err := h.Usage.SubmitSMS(c.Request.Context(), ev)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// --- Billing ---

func (h Handlers) CountUnbilled(c *gin.Context) {
	if h.Billing == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "billing not configured"})
		return
	}
	start, end, ok := parsePeriod(c)
	if !ok {
		return
	}
	n, err := h.Billing.CountUnbilled(c.Request.Context(), c.Param("tenant_id"), start, end)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unbilled": n})
}

func (h Handlers) GenerateInvoice(c *gin.Context) {
	if h.Billing == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "billing not configured"})
		return
	}
	var req invoicing.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	inv, err := h.Billing.GenerateInvoice(c.Request.Context(), req)
	if err != nil {
		// An empty window is an expected, displayable condition, not a failure.
		if errors.Is(err, invoicing.ErrNothingToBill) {
			c.JSON(http.StatusOK, gin.H{
				"status":  "nothing_to_bill",
				"message": "no unbilled usage in the requested window",
			})
			return
		}
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, inv)
}

func (h Handlers) GetInvoice(c *gin.Context) {
	if h.Billing == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "billing not configured"})
		return
	}
	inv, err := h.Billing.Get(c.Request.Context(), c.Param("invoice_id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, inv)
}

func (h Handlers) ListInvoices(c *gin.Context) {
	if h.Billing == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "billing not configured"})
		return
	}
	out, err := h.Billing.List(c.Request.Context(), c.Param("tenant_id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invoices": out})
}

func (h Handlers) PayInvoice(c *gin.Context) {
	if h.Billing == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "billing not configured"})
		return
	}
	inv, err := h.Billing.MarkPaid(c.Request.Context(), c.Param("invoice_id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, inv)
}

func (h Handlers) MarkInvoiceOverdue(c *gin.Context) {
	if h.Billing == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "billing not configured"})
		return
	}
	inv, err := h.Billing.MarkOverdue(c.Request.Context(), c.Param("invoice_id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, inv)
}

func (h Handlers) CancelInvoice(c *gin.Context) {
	if h.Billing == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "billing not configured"})
		return
	}
	inv, err := h.Billing.Cancel(c.Request.Context(), c.Param("invoice_id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, inv)
}

// --- Tax ---

type taxPreviewRequest struct {
	Amount             decimal.Decimal `json:"amount"`
	Country            string          `json:"country"`
	RegistrationNumber string          `json:"registration_number,omitempty"`
}

func (h Handlers) TaxPreview(c *gin.Context) {
	var req taxPreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	out := h.Tax.Calculate(tax.BillingProfile{
		Country:            req.Country,
		RegistrationNumber: req.RegistrationNumber,
	}, req.Amount)
	c.JSON(http.StatusOK, out)
}

// --- Reports ---

func (h Handlers) SpendSummary(c *gin.Context) {
	if h.Reports == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reporting not configured"})
		return
	}
	from, to, ok := parsePeriod(c)
	if !ok {
		return
	}
	out, err := h.Reports.SpendSummary(c.Request.Context(), reporting.SpendSummaryRequest{
		TenantID: c.Param("tenant_id"),
		Range:    reporting.TimeRange{From: from, To: to},
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) UsageSummary(c *gin.Context) {
	if h.Reports == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reporting not configured"})
		return
	}
	from, to, ok := parsePeriod(c)
	if !ok {
		return
	}
	out, err := h.Reports.UsageSummary(c.Request.Context(), reporting.UsageSummaryRequest{
		TenantID: c.Param("tenant_id"),
		Range:    reporting.TimeRange{From: from, To: to},
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// parsePeriod reads period_start/period_end query params as RFC3339.
// Writes the error response itself when parsing fails.
func parsePeriod(c *gin.Context) (time.Time, time.Time, bool) {
	start, err := time.Parse(time.RFC3339, c.Query("period_start"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "period_start must be RFC3339"})
		return time.Time{}, time.Time{}, false
	}
	end, err := time.Parse(time.RFC3339, c.Query("period_end"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "period_end must be RFC3339"})
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}
