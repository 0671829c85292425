package v1

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/qmsuite/correlative/internal/api/dto"
	ierr "github.com/qmsuite/correlative/internal/errors"
	"github.com/qmsuite/correlative/internal/logger"
	"github.com/qmsuite/correlative/internal/service"
	"github.com/qmsuite/correlative/internal/types"
)

type NumberingHandler struct {
	service service.NumberingService
	log     *logger.Logger
}

func NewNumberingHandler(service service.NumberingService, log *logger.Logger) *NumberingHandler {
	return &NumberingHandler{service: service, log: log}
}

// @Summary Generate a code
// @Description Issues the next correlative code of the scope selected by the configuration
// @Tags Numbering
// @Accept json
// @Produce json
// @Param request body dto.GenerateCodeRequest true "Numbering configuration"
// @Success 201 {object} dto.CodeResult
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 503 {object} ierr.ErrorResponse
// @Router /numbering/codes [post]
func (h *NumberingHandler) GenerateCode(c *gin.Context) {
	var req dto.GenerateCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	ctx := c.Request.Context()
	resp, err := h.service.GenerateCode(ctx, types.GetTenantID(ctx), req.NumberingConfig, types.GetUserID(ctx))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// @Summary Generate a sub-code
// @Description Issues a child code embedding the parent code, ex REV-2024-0007.H0002
// @Tags Numbering
// @Accept json
// @Produce json
// @Param request body dto.GenerateSubCodeRequest true "Sub-code request"
// @Success 201 {object} dto.SubCodeResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 503 {object} ierr.ErrorResponse
// @Router /numbering/subcodes [post]
func (h *NumberingHandler) GenerateSubCode(c *gin.Context) {
	var req dto.GenerateSubCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}
	if err := req.Validate(); err != nil {
		c.Error(err)
		return
	}

	ctx := c.Request.Context()
	code, err := h.service.GenerateSubCode(ctx, types.GetTenantID(ctx), req.ParentCode, req.ChildEntityType, req.ChildPrefix)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, dto.SubCodeResponse{Code: code})
}

// @Summary Preview the next code
// @Description Renders the code the next issuance would receive without reserving it
// @Tags Numbering
// @Accept json
// @Produce json
// @Param request body dto.GenerateCodeRequest true "Numbering configuration"
// @Success 200 {object} dto.PreviewResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Router /numbering/preview [post]
func (h *NumberingHandler) PreviewCode(c *gin.Context) {
	var req dto.GenerateCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	ctx := c.Request.Context()
	resp, err := h.service.PreviewCode(ctx, types.GetTenantID(ctx), req.NumberingConfig)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary List numbering scopes
// @Description Lists the scopes of the tenant sorted by entity type, prefix and period
// @Tags Numbering
// @Produce json
// @Param entity_type query string false "Entity type"
// @Success 200 {object} dto.ListScopesResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Router /numbering/scopes [get]
func (h *NumberingHandler) ListScopes(c *gin.Context) {
	ctx := c.Request.Context()
	scopes, err := h.service.GetConfiguration(ctx, types.GetTenantID(ctx), types.EntityType(c.Query("entity_type")))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.NewListScopesResponse(scopes))
}

// @Summary List numbering logs
// @Description Lists the most recent issuance attempts of the tenant
// @Tags Numbering
// @Produce json
// @Param scope_id query string false "Scope ID"
// @Param limit query int false "Limit"
// @Success 200 {object} dto.ListLogsResponse
// @Router /numbering/logs [get]
func (h *NumberingHandler) ListLogs(c *gin.Context) {
	var limit uint64
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			c.Error(ierr.WithError(err).
				WithHint("Limit must be a positive integer").
				Mark(ierr.ErrValidation))
			return
		}
		limit = parsed
	}

	ctx := c.Request.Context()
	items, err := h.service.ListLogs(ctx, types.GetTenantID(ctx), c.Query("scope_id"), limit)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.ListLogsResponse{Items: items, Total: len(items)})
}
