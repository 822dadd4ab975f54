package httpapi

import (
	"net/http"
	"time"

	"voip-billing/pkg/logger"
	"voip-billing/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// IntakeCap limits how many usage submissions a tenant may have in flight
// at once. The cap is enforced in Redis so it holds across API instances.
//
// Fail-open: if Redis is unreachable the request proceeds; the wallet debit
// remains the hard safety check.
func IntakeCap(rdb *redis.Client, limit int, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rdb == nil {
			c.Next()
			return
		}
		tenantID := c.Param("tenant_id")
		if tenantID == "" {
			tenantID = c.GetHeader("X-Tenant-Id")
		}
		if tenantID == "" {
			c.Next()
			return
		}

		key := "usage:intake:" + tenantID
		ok, err := utils.AcquireConcurrencyCap(c.Request.Context(), rdb, key, limit, ttl)
		if err != nil {
			logger.FromGin(c).Debug("intake cap unavailable", "err", err)
			c.Next()
			return
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many in-flight submissions"})
			return
		}
		defer func() {
			if err := utils.ReleaseConcurrencyCap(c.Request.Context(), rdb, key); err != nil {
				logger.FromGin(c).Debug("intake cap release failed", "err", err)
			}
		}()

		c.Next()
	}
}
