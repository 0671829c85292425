package service

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/qmsuite/correlative/internal/api/dto"
	"github.com/qmsuite/correlative/internal/domain/numbering"
	ierr "github.com/qmsuite/correlative/internal/errors"
	"github.com/qmsuite/correlative/internal/testutil"
	"github.com/qmsuite/correlative/internal/types"
	"github.com/samber/lo"
	"github.com/sourcegraph/conc"
	"github.com/stretchr/testify/suite"
)

const (
	testTenantID = "tenant_qms"
	testUserID   = "user_auditor"
)

type NumberingServiceSuite struct {
	testutil.BaseServiceTestSuite
	service NumberingService
}

func TestNumberingService(t *testing.T) {
	suite.Run(t, new(NumberingServiceSuite))
}

func (s *NumberingServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.service = NewNumberingService(newTestServiceParams(&s.BaseServiceTestSuite))
}

func newTestServiceParams(s *testutil.BaseServiceTestSuite) ServiceParams {
	return ServiceParams{
		Logger:           s.GetLogger(),
		Config:           s.GetConfig(),
		DB:               s.GetDB(),
		Cache:            s.GetCache(),
		Sentry:           s.GetSentry(),
		Clock:            s.Clock(),
		NumberingRepo:    s.GetStores().NumberingRepo,
		NumberingLogRepo: s.GetStores().NumberingLogRepo,
	}
}

func auditConfig() dto.NumberingConfig {
	return dto.NumberingConfig{
		EntityType:  types.EntityTypeAudit,
		Prefix:      "AUD",
		Format:      lo.ToPtr("AUD-{año}-{numero}"),
		ResetAnnual: lo.ToPtr(true),
	}
}

func (s *NumberingServiceSuite) scopeFor(cfg dto.NumberingConfig) *numbering.Scope {
	key := numbering.NewScopeKey(testTenantID, cfg.EntityType, cfg.Prefix, cfg.Period(s.GetNow()))
	scope, err := s.GetStores().NumberingRepo.FindByKey(s.GetContext(), key)
	s.Require().NoError(err)
	return scope
}

func (s *NumberingServiceSuite) TestGenerateCode_AuditScenario() {
	result, err := s.service.GenerateCode(s.GetContext(), testTenantID, auditConfig(), testUserID)
	s.Require().NoError(err)

	s.Equal("AUD-2024-0001", result.Code)
	s.Equal(int64(1), result.Number)
	s.Equal("AUD-2024-0002", result.NextCodePreview)
	s.Require().NotNil(result.Scope)
	s.Equal(types.Period{Year: 2024}, result.Scope.Period)
	s.Equal(int64(1), result.Scope.LastNumber)
	s.Equal(testUserID, result.Scope.Metadata.CreatedBy)

	result, err = s.service.GenerateCode(s.GetContext(), testTenantID, auditConfig(), testUserID)
	s.Require().NoError(err)
	s.Equal("AUD-2024-0002", result.Code)
	s.Equal("AUD-2024-0003", result.NextCodePreview)
}

func (s *NumberingServiceSuite) TestGenerateCode_DefaultComposition() {
	tests := []struct {
		name string
		cfg  dto.NumberingConfig
		want string
	}{
		{
			name: "no_resets",
			cfg:  dto.NumberingConfig{EntityType: types.EntityTypeMeeting, Prefix: "mtg"},
			want: "MTG-0001",
		},
		{
			name: "annual",
			cfg:  dto.NumberingConfig{EntityType: types.EntityTypeFinding, Prefix: "hal", ResetAnnual: lo.ToPtr(true)},
			want: "HAL-2024-0001",
		},
		{
			name: "monthly",
			cfg: dto.NumberingConfig{
				EntityType:   types.EntityTypeAction,
				Prefix:       "ac",
				ResetAnnual:  lo.ToPtr(true),
				ResetMonthly: lo.ToPtr(true),
			},
			want: "AC-2024-03-0001",
		},
		{
			name: "suffix",
			cfg: dto.NumberingConfig{
				EntityType:     "record:nonconformity",
				Prefix:         "nc",
				AdvancedConfig: &dto.AdvancedConfigRequest{Suffix: lo.ToPtr("qa")},
			},
			want: "NC-0001-QA",
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			result, err := s.service.GenerateCode(s.GetContext(), testTenantID, tt.cfg, testUserID)
			s.Require().NoError(err)
			s.Equal(tt.want, result.Code)
		})
	}
}

func (s *NumberingServiceSuite) TestGenerateCode_ConcurrentCallsNeverShareANumber() {
	const callers = 64

	var (
		mu    sync.Mutex
		codes = make([]string, 0, callers)
		nums  = make([]int64, 0, callers)
		wg    conc.WaitGroup
	)
	for i := 0; i < callers; i++ {
		wg.Go(func() {
			result, err := s.service.GenerateCode(s.GetContext(), testTenantID, auditConfig(), testUserID)
			if !s.NoError(err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			codes = append(codes, result.Code)
			nums = append(nums, result.Number)
		})
	}
	wg.Wait()

	s.Require().Len(codes, callers)
	s.Len(lo.Uniq(codes), callers)

	sort.Slice(nums, func(i, j int) bool { return nums[i] < nums[j] })
	for i, n := range nums {
		s.Equal(int64(i+1), n)
	}
	s.Equal(int64(callers), s.scopeFor(auditConfig()).LastNumber)
}

func (s *NumberingServiceSuite) TestGenerateCode_PreviewDoesNotConsume() {
	_, err := s.service.GenerateCode(s.GetContext(), testTenantID, auditConfig(), testUserID)
	s.Require().NoError(err)

	first, err := s.service.PreviewCode(s.GetContext(), testTenantID, auditConfig())
	s.Require().NoError(err)
	second, err := s.service.PreviewCode(s.GetContext(), testTenantID, auditConfig())
	s.Require().NoError(err)

	s.Equal(first, second)
	s.Equal("AUD-2024-0002", first.Code)
	s.Equal(int64(1), s.scopeFor(auditConfig()).LastNumber)

	result, err := s.service.GenerateCode(s.GetContext(), testTenantID, auditConfig(), testUserID)
	s.Require().NoError(err)
	s.Equal(first.Code, result.Code)
}

func (s *NumberingServiceSuite) TestPreviewCode_UnknownScopeIsNotCreated() {
	preview, err := s.service.PreviewCode(s.GetContext(), testTenantID, auditConfig())
	s.Require().NoError(err)
	s.Equal("AUD-2024-0001", preview.Code)
	s.Equal(int64(1), preview.Number)

	scopes, err := s.service.GetConfiguration(s.GetContext(), testTenantID, "")
	s.Require().NoError(err)
	s.Empty(scopes)
}

func (s *NumberingServiceSuite) TestGenerateCode_AdvancedConfigIsMergedShallowly() {
	cfg := dto.NumberingConfig{
		EntityType:     types.EntityTypeAction,
		Prefix:         "act",
		AdvancedConfig: &dto.AdvancedConfigRequest{NumberLength: lo.ToPtr(6)},
	}
	result, err := s.service.GenerateCode(s.GetContext(), testTenantID, cfg, testUserID)
	s.Require().NoError(err)
	s.Equal("ACT-000001", result.Code)

	cfg.AdvancedConfig = &dto.AdvancedConfigRequest{Suffix: lo.ToPtr("x")}
	result, err = s.service.GenerateCode(s.GetContext(), testTenantID, cfg, "user_other")
	s.Require().NoError(err)
	s.Equal("ACT-000002-X", result.Code)

	scope := s.scopeFor(cfg)
	s.Equal(6, scope.AdvancedConfig.NumberLength)
	s.Equal("x", scope.AdvancedConfig.Suffix)
	s.Equal("user_other", scope.Metadata().ModifiedBy)
}

func (s *NumberingServiceSuite) TestGenerateCode_InvalidConfigurationTouchesNoStorage() {
	tests := []struct {
		name string
		cfg  dto.NumberingConfig
	}{
		{name: "missing_prefix", cfg: dto.NumberingConfig{EntityType: types.EntityTypeAudit}},
		{name: "bad_prefix", cfg: dto.NumberingConfig{EntityType: types.EntityTypeAudit, Prefix: "A-B"}},
		{name: "unknown_entity_type", cfg: dto.NumberingConfig{EntityType: "invoice", Prefix: "INV"}},
		{name: "format_without_number", cfg: dto.NumberingConfig{EntityType: types.EntityTypeAudit, Prefix: "AUD", Format: lo.ToPtr("AUD-{año}")}},
		{name: "negative_length", cfg: dto.NumberingConfig{
			EntityType:     types.EntityTypeAudit,
			Prefix:         "AUD",
			AdvancedConfig: &dto.AdvancedConfigRequest{NumberLength: lo.ToPtr(-1)},
		}},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := s.service.GenerateCode(s.GetContext(), testTenantID, tt.cfg, testUserID)
			s.Require().Error(err)
			s.True(ierr.IsConfigurationInvalid(err), "got %v", err)
		})
	}
	s.Zero(s.GetStores().NumberingRepo.Calls(testutil.OpGetOrCreate))
	s.Zero(s.GetStores().NumberingRepo.Calls(testutil.OpAtomicIncrement))
}

func (s *NumberingServiceSuite) TestGenerateCode_RequiresTenant() {
	_, err := s.service.GenerateCode(s.GetContext(), " ", auditConfig(), testUserID)
	s.Require().Error(err)
	s.True(ierr.IsValidation(err))
}

func (s *NumberingServiceSuite) TestGenerateCode_IncrementFailureIsRecorded() {
	_, err := s.service.GenerateCode(s.GetContext(), testTenantID, auditConfig(), testUserID)
	s.Require().NoError(err)

	s.GetStores().NumberingRepo.FailOn(testutil.OpAtomicIncrement,
		ierr.NewError("connection reset").Mark(ierr.ErrIncrementFailed))

	_, err = s.service.GenerateCode(s.GetContext(), testTenantID, auditConfig(), testUserID)
	s.Require().Error(err)
	s.True(ierr.IsIncrementFailed(err))
	s.True(ierr.IsRetryable(err))

	scope := s.scopeFor(auditConfig())
	s.Equal(int64(1), scope.LastNumber)
	s.Require().Len(scope.ErrorLog, 1)
	s.Contains(scope.ErrorLog[0].Message, "connection reset")

	logs, err := s.service.ListLogs(s.GetContext(), testTenantID, "", 10)
	s.Require().NoError(err)
	s.Require().Len(logs, 2)
	failed, ok := lo.Find(logs, func(l *numbering.LogEntry) bool { return !l.Success })
	s.Require().True(ok)
	s.Contains(failed.ErrorMessage, "connection reset")
	s.Equal(testUserID, failed.CreatedBy)
}

func (s *NumberingServiceSuite) TestGenerateCode_ErrorLogFailureIsSwallowed() {
	_, err := s.service.GenerateCode(s.GetContext(), testTenantID, auditConfig(), testUserID)
	s.Require().NoError(err)

	repo := s.GetStores().NumberingRepo
	repo.FailOn(testutil.OpAtomicIncrement, ierr.NewError("deadlock").Mark(ierr.ErrIncrementFailed))
	repo.FailOn(testutil.OpAppendErrorLog, ierr.NewError("disk full").Mark(ierr.ErrLoggingFailure))

	_, err = s.service.GenerateCode(s.GetContext(), testTenantID, auditConfig(), testUserID)
	s.Require().Error(err)
	s.True(ierr.IsIncrementFailed(err))
	s.False(ierr.IsLoggingFailure(err))
	s.Equal(1, repo.Calls(testutil.OpAppendErrorLog))
}

func (s *NumberingServiceSuite) TestGenerateCode_ErrorLogIsCapped() {
	_, err := s.service.GenerateCode(s.GetContext(), testTenantID, auditConfig(), testUserID)
	s.Require().NoError(err)

	s.GetStores().NumberingRepo.FailOn(testutil.OpAtomicIncrement,
		ierr.NewError("unavailable").Mark(ierr.ErrIncrementFailed))

	limit := s.GetConfig().Numbering.ErrorLogLimit
	for i := 0; i < limit+2; i++ {
		_, err := s.service.GenerateCode(s.GetContext(), testTenantID, auditConfig(), testUserID)
		s.Require().Error(err)
	}

	s.Len(s.scopeFor(auditConfig()).ErrorLog, limit)
}

func (s *NumberingServiceSuite) TestGenerateCode_UnresolvableScopeIsRetriedThenReported() {
	repo := s.GetStores().NumberingRepo
	repo.FailOn(testutil.OpGetOrCreate, ierr.NewError("too many connections").Mark(ierr.ErrScopeNotResolvable))

	_, err := s.service.GenerateCode(s.GetContext(), testTenantID, auditConfig(), testUserID)
	s.Require().Error(err)
	s.True(ierr.IsScopeNotResolvable(err))
	s.Equal(int(s.GetConfig().Numbering.ResolveRetries)+1, repo.Calls(testutil.OpGetOrCreate))
	s.Zero(repo.Calls(testutil.OpAtomicIncrement))
}

func (s *NumberingServiceSuite) TestGenerateCode_UnclassifiedErrorsAreMarked() {
	repo := s.GetStores().NumberingRepo
	repo.FailOn(testutil.OpGetOrCreate, ierr.NewError("boom").Mark(ierr.ErrSystem))

	_, err := s.service.GenerateCode(s.GetContext(), testTenantID, auditConfig(), testUserID)
	s.Require().Error(err)
	s.True(ierr.IsScopeNotResolvable(err))
	s.Equal(1, repo.Calls(testutil.OpGetOrCreate))
}

func (s *NumberingServiceSuite) TestGenerateCode_ScopeConflictIsRetryable() {
	repo := s.GetStores().NumberingRepo
	repo.FailOn(testutil.OpGetOrCreate, ierr.NewError("duplicate key value").Mark(ierr.ErrAlreadyExists))

	_, err := s.service.GenerateCode(s.GetContext(), testTenantID, auditConfig(), testUserID)
	s.Require().Error(err)
	s.True(ierr.IsScopeNotResolvable(err))
	s.True(ierr.IsRetryable(err))
	s.Equal(http.StatusServiceUnavailable, ierr.HTTPStatusFromErr(err))
	s.Zero(repo.Calls(testutil.OpAtomicIncrement))
}

func (s *NumberingServiceSuite) TestGenerateCode_FailedReResolveOfStaleScopeIsMarked() {
	first, err := s.service.GenerateCode(s.GetContext(), testTenantID, auditConfig(), testUserID)
	s.Require().NoError(err)

	repo := s.GetStores().NumberingRepo
	s.Require().NoError(repo.Remove(s.GetContext(), first.Scope.ID))
	repo.FailOn(testutil.OpGetOrCreate, ierr.NewError("boom").Mark(ierr.ErrSystem))

	_, err = s.service.GenerateCode(s.GetContext(), testTenantID, auditConfig(), testUserID)
	s.Require().Error(err)
	s.True(ierr.IsScopeNotResolvable(err))
	s.Equal(http.StatusServiceUnavailable, ierr.HTTPStatusFromErr(err))
}

func (s *NumberingServiceSuite) TestGenerateCode_StaleCachedScopeIsResolvedAgain() {
	first, err := s.service.GenerateCode(s.GetContext(), testTenantID, auditConfig(), testUserID)
	s.Require().NoError(err)

	repo := s.GetStores().NumberingRepo
	s.Require().NoError(repo.Remove(s.GetContext(), first.Scope.ID))

	result, err := s.service.GenerateCode(s.GetContext(), testTenantID, auditConfig(), testUserID)
	s.Require().NoError(err)
	s.Equal("AUD-2024-0001", result.Code)
	s.NotEqual(first.Scope.ID, result.Scope.ID)
	s.Equal(2, repo.Calls(testutil.OpGetOrCreate))
}

func (s *NumberingServiceSuite) TestGenerateCode_CachedScopeSkipsResolution() {
	for i := 0; i < 3; i++ {
		_, err := s.service.GenerateCode(s.GetContext(), testTenantID, auditConfig(), testUserID)
		s.Require().NoError(err)
	}
	s.Equal(1, s.GetStores().NumberingRepo.Calls(testutil.OpGetOrCreate))
	s.Equal(int64(3), s.GetDB().TxCount())
}

func (s *NumberingServiceSuite) TestGenerateCode_NewYearStartsANewScope() {
	_, err := s.service.GenerateCode(s.GetContext(), testTenantID, auditConfig(), testUserID)
	s.Require().NoError(err)

	s.SetNow(time.Date(2025, time.January, 1, 0, 0, 1, 0, time.UTC))
	result, err := s.service.GenerateCode(s.GetContext(), testTenantID, auditConfig(), testUserID)
	s.Require().NoError(err)
	s.Equal("AUD-2025-0001", result.Code)

	scopes, err := s.service.GetConfiguration(s.GetContext(), testTenantID, types.EntityTypeAudit)
	s.Require().NoError(err)
	s.Require().Len(scopes, 2)
	s.Equal(2024, scopes[0].Year)
	s.Equal(2025, scopes[1].Year)
}

func (s *NumberingServiceSuite) TestGenerateCode_TenantsAreIsolated() {
	a, err := s.service.GenerateCode(s.GetContext(), "tenant_a", auditConfig(), testUserID)
	s.Require().NoError(err)
	b, err := s.service.GenerateCode(s.GetContext(), "tenant_b", auditConfig(), testUserID)
	s.Require().NoError(err)

	s.Equal(a.Code, b.Code)
	s.NotEqual(a.Scope.ID, b.Scope.ID)
}

func (s *NumberingServiceSuite) TestGenerateSubCode_Scenario() {
	code, err := s.service.GenerateSubCode(s.GetContext(), testTenantID, "REV-2024-0007", types.EntityTypeFinding, "H")
	s.Require().NoError(err)
	s.Regexp(regexp.MustCompile(`^REV-2024-0007\.H\d{4}$`), code)
	s.Equal("REV-2024-0007.H0001", code)

	code, err = s.service.GenerateSubCode(s.GetContext(), testTenantID, "REV-2024-0007", types.EntityTypeFinding, "H")
	s.Require().NoError(err)
	s.Equal("REV-2024-0007.H0002", code)
}

func (s *NumberingServiceSuite) TestGenerateSubCode_IgnoresStoredSuffix() {
	_, err := s.service.GenerateCode(s.GetContext(), testTenantID, dto.NumberingConfig{
		EntityType: types.EntityTypeFinding,
		Prefix:     "H",
		AdvancedConfig: &dto.AdvancedConfigRequest{
			Suffix: lo.ToPtr("QA"),
		},
	}, testUserID)
	s.Require().NoError(err)

	code, err := s.service.GenerateSubCode(s.GetContext(), testTenantID, "REV-2024-0007", types.EntityTypeFinding, "H")
	s.Require().NoError(err)
	s.Regexp(regexp.MustCompile(`^REV-2024-0007\.H\d{4}$`), code)
	s.Equal("REV-2024-0007.H0002", code)
}

func (s *NumberingServiceSuite) TestGenerateSubCode_ChildrenShareOneCounter() {
	_, err := s.service.GenerateSubCode(s.GetContext(), testTenantID, "REV-2024-0007", types.EntityTypeFinding, "H")
	s.Require().NoError(err)

	code, err := s.service.GenerateSubCode(s.GetContext(), testTenantID, "REV-2024-0008", types.EntityTypeFinding, "H")
	s.Require().NoError(err)
	s.Equal("REV-2024-0008.H0002", code)
}

func (s *NumberingServiceSuite) TestGenerateSubCode_ConcurrentParentsNeverMix() {
	const callers = 24

	var (
		mu    sync.Mutex
		codes = make(map[string]string, callers)
		wg    conc.WaitGroup
	)
	for i := 0; i < callers; i++ {
		parent := fmt.Sprintf("REV-2024-%04d", i+1)
		wg.Go(func() {
			code, err := s.service.GenerateSubCode(s.GetContext(), testTenantID, parent, types.EntityTypeFinding, "H")
			if !s.NoError(err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			codes[code] = parent
		})
	}
	wg.Wait()

	s.Require().Len(codes, callers)
	for code, parent := range codes {
		s.True(strings.HasPrefix(code, parent+".H"), "code %s does not embed its parent %s", code, parent)
	}
}

func (s *NumberingServiceSuite) TestGenerateSubCode_InvalidParent() {
	for _, parent := range []string{"", "   ", "REV-{año}", strings.Repeat("R", dto.MaxParentCodeLength+1)} {
		_, err := s.service.GenerateSubCode(s.GetContext(), testTenantID, parent, types.EntityTypeFinding, "H")
		s.Require().Error(err)
		s.True(ierr.IsConfigurationInvalid(err))
	}
	s.Zero(s.GetStores().NumberingRepo.Calls(testutil.OpGetOrCreate))
}

func (s *NumberingServiceSuite) TestGetConfiguration_Sorted() {
	ctx := context.Background()
	cfgs := []dto.NumberingConfig{
		{EntityType: types.EntityTypeMeeting, Prefix: "REU"},
		{EntityType: types.EntityTypeAudit, Prefix: "AUD"},
		{EntityType: types.EntityTypeAudit, Prefix: "AEX"},
	}
	for _, cfg := range cfgs {
		_, err := s.service.GenerateCode(ctx, testTenantID, cfg, testUserID)
		s.Require().NoError(err)
	}
	_, err := s.service.GenerateCode(ctx, "tenant_other", cfgs[0], testUserID)
	s.Require().NoError(err)

	scopes, err := s.service.GetConfiguration(ctx, testTenantID, "")
	s.Require().NoError(err)
	s.Require().Len(scopes, 3)
	s.Equal("AEX", scopes[0].Prefix)
	s.Equal("AUD", scopes[1].Prefix)
	s.Equal(types.EntityTypeMeeting, scopes[2].EntityType)

	scopes, err = s.service.GetConfiguration(ctx, testTenantID, types.EntityTypeMeeting)
	s.Require().NoError(err)
	s.Len(scopes, 1)

	_, err = s.service.GetConfiguration(ctx, testTenantID, "invoice")
	s.True(ierr.IsConfigurationInvalid(err))
}
