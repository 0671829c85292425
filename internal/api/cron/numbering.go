package cron

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/qmsuite/correlative/internal/logger"
	"github.com/qmsuite/correlative/internal/service"
	"github.com/qmsuite/correlative/internal/types"
)

type NumberingCronHandler struct {
	logger       *logger.Logger
	resetService service.NumberingResetService
}

func NewNumberingCronHandler(logger *logger.Logger, resetService service.NumberingResetService) *NumberingCronHandler {
	return &NumberingCronHandler{
		logger:       logger,
		resetService: resetService,
	}
}

// ResetAnnual zeroes yearly counters, for one tenant when tenant_id is given or for all of them
func (h *NumberingCronHandler) ResetAnnual(c *gin.Context) {
	h.reset(c, types.ResetPolicyAnnual)
}

// ResetMonthly zeroes monthly counters, for one tenant when tenant_id is given or for all of them
func (h *NumberingCronHandler) ResetMonthly(c *gin.Context) {
	h.reset(c, types.ResetPolicyMonthly)
}

func (h *NumberingCronHandler) reset(c *gin.Context, policy types.ResetPolicy) {
	ctx := c.Request.Context()
	h.logger.Infow("starting numbering reset cron job",
		"policy", policy,
		"started_at", time.Now().UTC().Format(time.RFC3339),
	)

	if tenantID := types.GetTenantID(ctx); tenantID != "" {
		resp, err := h.resetService.Reset(ctx, tenantID, policy)
		if err != nil {
			c.Error(err)
			return
		}
		c.JSON(http.StatusOK, resp)
		return
	}

	resp, err := h.resetService.ResetAllTenants(ctx, policy)
	if err != nil {
		h.logger.Errorw("numbering reset cron job failed", "policy", policy, "error", err)
		c.Error(err)
		return
	}

	h.logger.Infow("completed numbering reset cron job",
		"policy", policy,
		"tenants", len(resp.Tenants),
		"counters_reset", resp.CountersReset,
		"failed_tenants", resp.FailedTenants,
	)
	c.JSON(http.StatusOK, resp)
}
