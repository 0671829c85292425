package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	ierr "github.com/qmsuite/correlative/internal/errors"
	"github.com/qmsuite/correlative/internal/types"
)

// TenantMiddleware copies the tenant and user set by the upstream gateway into the
// request context. Requests without a tenant are rejected.
func TenantMiddleware(c *gin.Context) {
	tenantID := strings.TrimSpace(c.GetHeader(types.HeaderTenantID))
	if tenantID == "" {
		c.Error(ierr.NewError("missing tenant header").
			WithHintf("The %s header is required", types.HeaderTenantID).
			Mark(ierr.ErrPermissionDenied))
		c.Abort()
		return
	}

	ctx := types.SetTenantID(c.Request.Context(), tenantID)
	if userID := strings.TrimSpace(c.GetHeader(types.HeaderUserID)); userID != "" {
		ctx = types.SetUserID(ctx, userID)
	}
	c.Request = c.Request.WithContext(ctx)
	c.Next()
}

// CronMiddleware marks cron requests as issued by the system user
func CronMiddleware(c *gin.Context) {
	ctx := types.SetUserID(c.Request.Context(), types.SystemUserID)
	if tenantID := strings.TrimSpace(c.Query("tenant_id")); tenantID != "" {
		ctx = types.SetTenantID(ctx, tenantID)
	}
	c.Request = c.Request.WithContext(ctx)
	c.Next()
}
