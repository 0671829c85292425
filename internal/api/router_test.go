package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/qmsuite/correlative/internal/api/cron"
	"github.com/qmsuite/correlative/internal/api/dto"
	v1 "github.com/qmsuite/correlative/internal/api/v1"
	ierr "github.com/qmsuite/correlative/internal/errors"
	"github.com/qmsuite/correlative/internal/service"
	"github.com/qmsuite/correlative/internal/testutil"
	"github.com/qmsuite/correlative/internal/types"
	"github.com/stretchr/testify/suite"
)

type RouterSuite struct {
	testutil.BaseServiceTestSuite
	router *gin.Engine
}

func TestRouter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()

	params := service.ServiceParams{
		Logger:           s.GetLogger(),
		Config:           s.GetConfig(),
		DB:               s.GetDB(),
		Cache:            s.GetCache(),
		Sentry:           s.GetSentry(),
		Clock:            s.Clock(),
		NumberingRepo:    s.GetStores().NumberingRepo,
		NumberingLogRepo: s.GetStores().NumberingLogRepo,
	}
	s.router = NewRouter(Handlers{
		Health:        v1.NewHealthHandler(nil, s.GetLogger()),
		Numbering:     v1.NewNumberingHandler(service.NewNumberingService(params), s.GetLogger()),
		CronNumbering: cron.NewNumberingCronHandler(s.GetLogger(), service.NewNumberingResetService(params)),
	}, s.GetConfig(), s.GetLogger())
}

func (s *RouterSuite) do(method, path, tenantID string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if tenantID != "" {
		req.Header.Set(types.HeaderTenantID, tenantID)
		req.Header.Set(types.HeaderUserID, "user_http")
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *RouterSuite) TestGenerateCode() {
	body := map[string]any{
		"entity_type":  "audit",
		"prefix":       "aud",
		"format":       "AUD-{año}-{numero}",
		"reset_annual": true,
	}

	w := s.do(http.MethodPost, "/v1/numbering/codes", "tenant_http", body)
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())

	var result dto.CodeResult
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &result))
	s.Equal("AUD-2024-0001", result.Code)
	s.Equal("AUD-2024-0002", result.NextCodePreview)
	s.Equal("user_http", result.Scope.Metadata.CreatedBy)
	s.NotEmpty(w.Header().Get(types.HeaderRequestID))
}

func (s *RouterSuite) TestGenerateSubCode() {
	body := map[string]any{
		"parent_code":       "REV-2024-0007",
		"child_entity_type": "finding",
		"child_prefix":      "H",
	}

	w := s.do(http.MethodPost, "/v1/numbering/subcodes", "tenant_http", body)
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())

	var resp dto.SubCodeResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.Equal("REV-2024-0007.H0001", resp.Code)
}

func (s *RouterSuite) TestMissingTenantIsRejected() {
	w := s.do(http.MethodPost, "/v1/numbering/codes", "", map[string]any{"entity_type": "audit", "prefix": "AUD"})
	s.Equal(http.StatusForbidden, w.Code)
	s.Zero(s.GetStores().NumberingRepo.Calls(testutil.OpGetOrCreate))
}

func (s *RouterSuite) TestInvalidConfigurationReturnsBadRequest() {
	w := s.do(http.MethodPost, "/v1/numbering/codes", "tenant_http", map[string]any{
		"entity_type": "audit",
		"prefix":      "AUD",
		"format":      "AUD-{año}",
	})
	s.Require().Equal(http.StatusBadRequest, w.Code)

	var resp ierr.ErrorResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.False(resp.Success)
	s.NotEmpty(resp.Error.Display)
}

func (s *RouterSuite) TestStorageFailureIsRetryable() {
	s.GetStores().NumberingRepo.FailOn(testutil.OpAtomicIncrement,
		ierr.NewError("connection refused").Mark(ierr.ErrIncrementFailed))

	w := s.do(http.MethodPost, "/v1/numbering/codes", "tenant_http", map[string]any{
		"entity_type": "meeting",
		"prefix":      "REU",
	})
	s.Equal(http.StatusServiceUnavailable, w.Code)
	s.Equal("1", w.Header().Get("Retry-After"))
}

func (s *RouterSuite) TestListScopesAndPreview() {
	body := map[string]any{"entity_type": "meeting", "prefix": "REU"}
	s.Require().Equal(http.StatusCreated, s.do(http.MethodPost, "/v1/numbering/codes", "tenant_http", body).Code)

	w := s.do(http.MethodPost, "/v1/numbering/preview", "tenant_http", body)
	s.Require().Equal(http.StatusOK, w.Code)
	var preview dto.PreviewResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &preview))
	s.Equal("REU-0002", preview.Code)

	w = s.do(http.MethodGet, "/v1/numbering/scopes?entity_type=meeting", "tenant_http", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var list dto.ListScopesResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &list))
	s.Require().Equal(1, list.Total)
	s.Equal(int64(1), list.Items[0].LastNumber)
}

func (s *RouterSuite) TestCronResetAllTenants() {
	body := map[string]any{"entity_type": "audit", "prefix": "AUD", "reset_annual": true}
	s.Require().Equal(http.StatusCreated, s.do(http.MethodPost, "/v1/numbering/codes", "tenant_a", body).Code)
	s.Require().Equal(http.StatusCreated, s.do(http.MethodPost, "/v1/numbering/codes", "tenant_b", body).Code)

	w := s.do(http.MethodPost, "/v1/cron/numbering/reset/annual", "", nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	var resp dto.ResetAllTenantsResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.Len(resp.Tenants, 2)
	s.Equal(2, resp.CountersReset)
}

func (s *RouterSuite) TestHealth() {
	w := s.do(http.MethodGet, "/health", "", nil)
	s.Equal(http.StatusOK, w.Code)
}
