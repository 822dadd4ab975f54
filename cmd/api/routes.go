package main

import (
	"database/sql"
	"time"

	"voip-billing/internal/httpapi"
	"voip-billing/internal/wallet"
	"voip-billing/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Per-tenant in-flight submission cap at usage intake.
// TTL bounds leaked slots if a process dies mid-request.
const (
	intakeCapLimit = 32
	intakeCapTTL   = 30 * time.Second
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, rdb *redis.Client, db *sql.DB) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		if db != nil {
			if err := utils.HealthCheck(c.Request.Context(), db, 2*time.Second); err != nil {
				c.JSON(503, gin.H{"status": "degraded"})
				return
			}
		}
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := r.Group("/v1")
	{
		// RATES routes
		ratesGroup := v1.Group("/rates")
		{
			ratesGroup.GET("/plans/:plan_id", h.ListPlanRates)
		}

		// TENANT-scoped routes
		tenants := v1.Group("/tenants/:tenant_id")
		{
			tenants.GET("/rates", h.ListTenantRates)
			tenants.GET("/rates/call-cost", h.PreviewCallCost)

			tenants.GET("/wallet", h.GetBalance)
			tenants.GET("/wallet/ledger", h.GetLedger)
			tenants.POST("/wallet/top-up", h.TopUp)

			tenants.GET("/billing/unbilled", h.CountUnbilled)
			tenants.GET("/invoices", h.ListInvoices)

			tenants.GET("/reports/spend", h.SpendSummary)
			tenants.GET("/reports/usage", h.UsageSummary)
		}

		// USAGE intake. Balance and the in-flight cap are checked up front;
		// the wallet debit inside the service remains the hard gate.
		usageGroup := v1.Group("/usage")
		usageGroup.Use(httpapi.IntakeCap(rdb, intakeCapLimit, intakeCapTTL))
		usageGroup.Use(wallet.RequireSufficientBalance(h.Wallet))
		{
			usageGroup.POST("/calls", h.SubmitCall)
			usageGroup.POST("/sms", h.SubmitSMS)
		}

		// INVOICE routes
		invoices := v1.Group("/invoices")
		{
			invoices.POST("", h.GenerateInvoice)
			invoices.GET("/:invoice_id", h.GetInvoice)
			invoices.POST("/:invoice_id/pay", h.PayInvoice)
			invoices.POST("/:invoice_id/cancel", h.CancelInvoice)
		}

		// TAX routes
		v1.POST("/tax/preview", h.TaxPreview)

		// ADMIN routes
		admin := v1.Group("/admin")
		{
			admin.GET("/ping", func(c *gin.Context) {
				c.JSON(200, gin.H{"status": "ok"})
			})
			admin.POST("/rates/import", h.ImportBaseRates)
			admin.POST("/wallets/credit", h.AdminCredit)
			admin.POST("/invoices/:invoice_id/overdue", h.MarkInvoiceOverdue)
		}
	}
}
