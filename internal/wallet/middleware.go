package wallet

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

const (
	headerTenantID      = "X-Tenant-Id"
	headerEstimatedCost = "X-Estimated-Cost"
)

// BalanceReader is the minimal wallet surface needed by middleware.
type BalanceReader interface {
	Balance(ctx context.Context, tenantID string) (decimal.Decimal, error)
}

// RequireSufficientBalance blocks the request if the tenant's balance is
// below the estimated charge. It is a cheap pre-check in front of usage
// submission; the authoritative check remains the atomic debit, so letting a
// request through here can still fail with insufficient balance later.
// Requests without an X-Estimated-Cost header skip the pre-check entirely.
//
// Inputs:
// - tenant id from the tenant_id path param, falling back to X-Tenant-Id
// - estimated charge from X-Estimated-Cost (decimal string)
func RequireSufficientBalance(svc BalanceReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Pre-check only applies when the caller supplies an estimate.
		estStr := strings.TrimSpace(c.GetHeader(headerEstimatedCost))
		if estStr == "" {
			c.Next()
			return
		}

		tenantID := c.Param("tenant_id")
		if tenantID == "" {
			tenantID = strings.TrimSpace(c.GetHeader(headerTenantID))
		}
		if tenantID == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "tenant id required"})
			return
		}
		est, err := decimal.NewFromString(estStr)
		if err != nil || est.Sign() <= 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "estimated cost invalid"})
			return
		}

		bal, err := svc.Balance(c.Request.Context(), tenantID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "balance lookup failed"})
			return
		}
		if bal.LessThan(est) {
			// 402 Payment Required is semantically appropriate.
			c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{
				"error":    "insufficient balance",
				"current":  bal.String(),
				"required": est.String(),
			})
			return
		}

		c.Next()
	}
}
